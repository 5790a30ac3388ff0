// Package gateway dispatches LOGIN_REQ/LOGOUT_REQ/HEARTBEAT_PING over both
// TCP and WebSocket listeners, brokering session ownership through
// ownership.LocalMap and, when configured, ownership.SessionManager.
package gateway

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chirp-im/chirp/internal/authclient"
	"github.com/chirp-im/chirp/internal/ownership"
	"github.com/chirp-im/chirp/internal/protocol"
	"github.com/chirp-im/chirp/internal/transport"
)

// Gateway holds the shared state one running instance needs to dispatch
// client frames: the local and (optionally) fleet-wide ownership trackers,
// and an optional auth RPC client. When auth is nil, login falls back to
// treating the token as the user ID directly - the scaffolding mode the
// original used before an auth service was wired up.
type Gateway struct {
	local    *ownership.LocalMap
	auth     *authclient.Client
	redisMgr *ownership.SessionManager

	sessionIDsMu sync.Mutex
	sessionIDs   map[transport.Session]string
}

// New builds a Gateway. auth and redisMgr may be nil. redisMgr can also be
// attached after construction via AttachRedis, which callers need when the
// manager's own onKick callback must close over this Gateway.
func New(auth *authclient.Client, redisMgr *ownership.SessionManager) *Gateway {
	return &Gateway{
		local:      ownership.NewLocalMap(),
		auth:       auth,
		redisMgr:   redisMgr,
		sessionIDs: make(map[transport.Session]string),
	}
}

// AttachRedis wires a SessionManager into a Gateway built without one.
func (g *Gateway) AttachRedis(redisMgr *ownership.SessionManager) {
	g.redisMgr = redisMgr
}

func (g *Gateway) setSessionID(sess transport.Session, id string) {
	g.sessionIDsMu.Lock()
	g.sessionIDs[sess] = id
	g.sessionIDsMu.Unlock()
}

func (g *Gateway) getSessionID(sess transport.Session) (string, bool) {
	g.sessionIDsMu.Lock()
	defer g.sessionIDsMu.Unlock()
	id, ok := g.sessionIDs[sess]
	return id, ok
}

func (g *Gateway) deleteSessionID(sess transport.Session) {
	g.sessionIDsMu.Lock()
	delete(g.sessionIDs, sess)
	g.sessionIDsMu.Unlock()
}

// OnFrame is the transport.FrameCallback wired into every accepted session.
func (g *Gateway) OnFrame(sess transport.Session, payload []byte) {
	env, err := protocol.WireDecode(payload)
	if err != nil {
		log.Printf("gateway: failed to decode envelope: %v", err)
		return
	}

	switch env.MsgID {
	case protocol.LoginReq:
		g.handleLogin(sess, env)
	case protocol.LogoutReq:
		g.handleLogout(sess, env)
	case protocol.HeartbeatPing:
		g.handleHeartbeat(sess, env)
	default:
		// Unknown/unimplemented message kinds are ignored rather than
		// closing the connection.
	}
}

// OnClose is the transport.CloseCallback wired into every accepted session.
func (g *Gateway) OnClose(sess transport.Session) {
	g.deleteSessionID(sess)
	userID, ok := g.local.RemoveSession(sess)
	if !ok {
		return
	}
	if g.redisMgr != nil {
		g.redisMgr.Release(userID)
	}
}

func (g *Gateway) handleLogin(sess transport.Session, env protocol.Envelope) {
	var req protocol.LoginRequest
	if err := env.Decode(&req); err != nil {
		g.sendLoginErr(sess, env.Sequence, protocol.InvalidParam)
		return
	}

	var resp protocol.LoginResponse
	if g.auth != nil {
		resp = g.auth.Login(req, env.Sequence)
	} else {
		if req.Token == "" {
			g.sendLoginErr(sess, env.Sequence, protocol.InvalidParam)
			return
		}
		resp = protocol.LoginResponse{
			Code:         protocol.OK,
			UserID:       req.Token,
			SessionID:    uuid.NewString(),
			KickPrevious: true,
			Kick:         &protocol.KickInfo{Reason: "login from another device"},
		}
	}
	resp.ServerTime = time.Now().UnixMilli()

	if resp.Code != protocol.OK {
		send(sess, protocol.LoginResp, env.Sequence, resp)
		return
	}

	userID := resp.UserID
	if userID == "" {
		userID = req.Token
	}
	if userID == "" {
		g.sendLoginErr(sess, env.Sequence, protocol.InvalidParam)
		return
	}

	old := g.local.Set(userID, sess)
	g.setSessionID(sess, resp.SessionID)

	if old != nil && old != sess {
		reason := "login from another device"
		if resp.Kick != nil && resp.Kick.Reason != "" {
			reason = resp.Kick.Reason
		}
		kick(old, reason)
	}

	if g.redisMgr != nil {
		claim := g.redisMgr.Claim(userID)
		if claim.Err != nil {
			log.Printf("gateway: redis claim for %s failed: %v", userID, claim.Err)
		}
	}

	send(sess, protocol.LoginResp, env.Sequence, resp)
}

func (g *Gateway) handleLogout(sess transport.Session, env protocol.Envelope) {
	var req protocol.LogoutRequest
	if err := env.Decode(&req); err != nil || req.UserID == "" {
		g.sendLogoutResp(sess, env.Sequence, protocol.InvalidParam, false)
		return
	}

	curSess, ok := g.local.Get(req.UserID)
	if !ok || curSess != sess {
		g.sendLogoutResp(sess, env.Sequence, protocol.AuthFailed, false)
		return
	}
	if cur, ok := g.getSessionID(sess); ok && req.SessionID != "" && cur != "" && cur != req.SessionID {
		g.sendLogoutResp(sess, env.Sequence, protocol.SessionExpired, false)
		return
	}

	var resp protocol.LogoutResponse
	if g.auth != nil {
		resp = g.auth.Logout(req, env.Sequence)
	} else {
		resp = protocol.LogoutResponse{Code: protocol.OK}
	}
	resp.ServerTime = time.Now().UnixMilli()

	if resp.Code != protocol.OK {
		send(sess, protocol.LogoutResp, env.Sequence, resp)
		return
	}

	if _, ok := g.local.RemoveSession(sess); ok {
		g.deleteSessionID(sess)
		if g.redisMgr != nil {
			g.redisMgr.Release(req.UserID)
		}
	}
	sendAndClose(sess, protocol.LogoutResp, env.Sequence, resp)
}

func (g *Gateway) handleHeartbeat(sess transport.Session, env protocol.Envelope) {
	var ping protocol.HeartbeatPingBody
	if err := env.Decode(&ping); err != nil {
		log.Printf("gateway: failed to decode heartbeat ping: %v", err)
		return
	}
	pong := protocol.HeartbeatPongBody{Timestamp: ping.Timestamp, ServerTime: time.Now().UnixMilli()}
	send(sess, protocol.HeartbeatPong, env.Sequence, pong)
}

// LocalSessionCount reports how many users this instance currently has a
// live session for, for the admin HTTP surface.
func (g *Gateway) LocalSessionCount() int {
	return g.local.Count()
}

// HandleKick is invoked (from ownership.SessionManager's subscriber
// goroutine) when another instance claims a user this instance currently
// owns locally.
func (g *Gateway) HandleKick(userID string) {
	sess, ok := g.local.Get(userID)
	if !ok {
		return
	}
	kick(sess, "login from another gateway instance")
}

func (g *Gateway) sendLoginErr(sess transport.Session, seq int64, code protocol.ErrorCode) {
	send(sess, protocol.LoginResp, seq, protocol.LoginResponse{Code: code, ServerTime: time.Now().UnixMilli()})
}

func (g *Gateway) sendLogoutResp(sess transport.Session, seq int64, code protocol.ErrorCode, closeConn bool) {
	resp := protocol.LogoutResponse{Code: code, ServerTime: time.Now().UnixMilli()}
	if closeConn {
		sendAndClose(sess, protocol.LogoutResp, seq, resp)
	} else {
		send(sess, protocol.LogoutResp, seq, resp)
	}
}

func kick(sess transport.Session, reason string) {
	sendAndClose(sess, protocol.KickNotify, 0, protocol.KickInfo{Reason: reason})
}

func send(sess transport.Session, msgID protocol.MsgID, seq int64, body any) {
	env, err := protocol.Encode(msgID, seq, body)
	if err != nil {
		log.Printf("gateway: failed to encode %v response: %v", msgID, err)
		return
	}
	raw, err := protocol.WireEncode(env)
	if err != nil {
		log.Printf("gateway: failed to wire-encode %v response: %v", msgID, err)
		return
	}
	sess.Send(raw)
}

func sendAndClose(sess transport.Session, msgID protocol.MsgID, seq int64, body any) {
	env, err := protocol.Encode(msgID, seq, body)
	if err != nil {
		log.Printf("gateway: failed to encode %v response: %v", msgID, err)
		return
	}
	raw, err := protocol.WireEncode(env)
	if err != nil {
		log.Printf("gateway: failed to wire-encode %v response: %v", msgID, err)
		return
	}
	sess.SendAndClose(raw)
}
