// Package authsvc implements the standalone auth service: it answers
// LOGIN_REQ/LOGOUT_REQ RPCs from one or more gateway instances, verifying a
// JWT when the presented token looks like one and otherwise looking the
// token up in a fixed token-to-user map; a token that is in neither is
// answered with AUTH_FAILED.
package authsvc

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chirp-im/chirp/internal/cryptoutil"
	"github.com/chirp-im/chirp/internal/protocol"
	"github.com/chirp-im/chirp/internal/transport"
)

// Service answers auth RPCs. There is no real credential store in this
// scaffold - spec.md treats Auth internals as external/opaque beyond the RPC
// contract - so unverified tokens resolve through a fixed map supplied at
// startup (--fixed_user=token:user_id, repeatable).
type Service struct {
	jwtSecret   []byte
	fixedUsers  map[string]string
}

// New builds a Service that verifies JWTs signed with jwtSecret (when
// non-empty) and otherwise resolves tokens through fixedUsers.
func New(jwtSecret string, fixedUsers map[string]string) *Service {
	if fixedUsers == nil {
		fixedUsers = map[string]string{}
	}
	return &Service{jwtSecret: []byte(jwtSecret), fixedUsers: fixedUsers}
}

// OnFrame is the transport.FrameCallback wired into every accepted session.
func (s *Service) OnFrame(sess transport.Session, payload []byte) {
	env, err := protocol.WireDecode(payload)
	if err != nil {
		log.Printf("authsvc: failed to decode envelope: %v", err)
		return
	}

	switch env.MsgID {
	case protocol.LoginReq:
		s.handleLogin(sess, env)
	case protocol.LogoutReq:
		s.handleLogout(sess, env)
	}
}

func (s *Service) handleLogin(sess transport.Session, env protocol.Envelope) {
	var req protocol.LoginRequest
	if err := env.Decode(&req); err != nil {
		s.sendLogin(sess, env.Sequence, protocol.LoginResponse{Code: protocol.InvalidParam})
		return
	}

	var userID string
	verifiedByJWT := false
	if len(s.jwtSecret) > 0 && looksLikeJWT(req.Token) {
		if claims, err := cryptoutil.JwtVerifyHS256(req.Token, s.jwtSecret); err == nil {
			userID = claims.Subject
			verifiedByJWT = true
		}
	}
	if !verifiedByJWT {
		mapped, ok := s.fixedUsers[req.Token]
		if !ok {
			s.sendLogin(sess, env.Sequence, protocol.LoginResponse{Code: protocol.AuthFailed})
			return
		}
		userID = mapped
	}

	if userID == "" {
		s.sendLogin(sess, env.Sequence, protocol.LoginResponse{Code: protocol.InvalidParam})
		return
	}

	s.sendLogin(sess, env.Sequence, protocol.LoginResponse{
		Code:         protocol.OK,
		UserID:       userID,
		SessionID:    uuid.NewString(),
		KickPrevious: true,
		Kick:         &protocol.KickInfo{Reason: "login from another device"},
	})
}

func (s *Service) handleLogout(sess transport.Session, env protocol.Envelope) {
	var req protocol.LogoutRequest
	if err := env.Decode(&req); err != nil || req.UserID == "" {
		s.sendLogout(sess, env.Sequence, protocol.LogoutResponse{Code: protocol.InvalidParam})
		return
	}
	s.sendLogout(sess, env.Sequence, protocol.LogoutResponse{Code: protocol.OK})
}

func (s *Service) sendLogin(sess transport.Session, seq int64, resp protocol.LoginResponse) {
	resp.ServerTime = time.Now().UnixMilli()
	send(sess, protocol.LoginResp, seq, resp)
}

func (s *Service) sendLogout(sess transport.Session, seq int64, resp protocol.LogoutResponse) {
	resp.ServerTime = time.Now().UnixMilli()
	send(sess, protocol.LogoutResp, seq, resp)
}

func send(sess transport.Session, msgID protocol.MsgID, seq int64, body any) {
	env, err := protocol.Encode(msgID, seq, body)
	if err != nil {
		log.Printf("authsvc: failed to encode %v response: %v", msgID, err)
		return
	}
	raw, err := protocol.WireEncode(env)
	if err != nil {
		log.Printf("authsvc: failed to wire-encode %v response: %v", msgID, err)
		return
	}
	sess.Send(raw)
}

func looksLikeJWT(token string) bool {
	dot1 := strings.IndexByte(token, '.')
	if dot1 < 0 {
		return false
	}
	return strings.IndexByte(token[dot1+1:], '.') >= 0
}
