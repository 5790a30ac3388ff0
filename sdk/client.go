// Package sdk is the client-side mirror of the gateway's session handling:
// one connection, a serialized write queue, a heartbeat timer, and a
// pending-login table keyed by sequence, wired to the same framed envelope
// the gateway speaks. Grounded on the original sdk_client.cc's Impl: where
// that type posts every operation onto a single io_context strand, this
// Client serializes the same state under one mutex and a dedicated
// read/write goroutine pair per connection.
package sdk

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chirp-im/chirp/internal/framing"
	"github.com/chirp-im/chirp/internal/protocol"
)

// State is the client's connection state machine:
// Disconnected -> Connecting -> Connected -> LoggedIn.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	LoggedIn
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case LoggedIn:
		return "logged_in"
	default:
		return "unknown"
	}
}

// ErrNotConnected is delivered to every pending login callback (and to
// Login callers) when the connection drops or was never made, and is
// returned by SendMessage whenever the client is not LoggedIn.
var ErrNotConnected = errors.New("sdk: not connected")

// ErrLoginFailed is returned to a Login callback when the gateway's
// LOGIN_RESP carries a non-OK code.
var ErrLoginFailed = errors.New("sdk: login failed")

// Config configures a Client. UseWebSocket is accepted for forward
// compatibility with the gateway's WebSocket listener but is not yet wired -
// the original SDK this is ported from rejects it the same way
// (DoConnect's enable_websocket branch fails immediately rather than
// dialing), so it is preserved here as an explicit unsupported option rather
// than silently ignored.
type Config struct {
	GatewayAddr         string
	UseWebSocket        bool
	HeartbeatInterval   time.Duration // 0 selects the 30s default; <0 disables the heartbeat timer
	DialTimeout         time.Duration
}

// LoginCallback receives the login outcome: err is nil and userID is set on
// success.
type LoginCallback func(err error, userID string)

// MessageCallback receives every CHAT_MESSAGE_NOTIFY.
type MessageCallback func(senderID, content string)

// DisconnectCallback fires once when the connection tears down, carrying
// the error that caused it (nil for an explicit Disconnect/Logout).
type DisconnectCallback func(err error)

// KickCallback fires on KICK_NOTIFY, before the connection is torn down.
type KickCallback func(reason string)

type writeJob struct {
	payload []byte
}

// Client is the SDK's connection handle. All exported methods are
// goroutine-safe.
type Client struct {
	cfg   Config
	state atomic.Int32

	mu         sync.Mutex
	conn       net.Conn
	writeCh    chan writeJob
	doneCh     chan struct{}
	nextSeq    int64
	userID     string
	sessionID  string
	heartStop  chan struct{}

	pendingMu     sync.Mutex
	pendingLogins map[int64]LoginCallback

	callbacksMu  sync.Mutex
	onMessage    MessageCallback
	onDisconnect DisconnectCallback
	onKick       KickCallback
}

// New builds a Client in the Disconnected state.
func New(cfg Config) *Client {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	c := &Client{cfg: cfg, pendingLogins: make(map[int64]LoginCallback)}
	c.state.Store(int32(Disconnected))
	return c
}

// State reports the current connection state.
func (c *Client) State() State { return State(c.state.Load()) }

// SetMessageCallback registers the handler for CHAT_MESSAGE_NOTIFY.
func (c *Client) SetMessageCallback(cb MessageCallback) {
	c.callbacksMu.Lock()
	c.onMessage = cb
	c.callbacksMu.Unlock()
}

// SetDisconnectCallback registers the handler fired when the connection
// drops.
func (c *Client) SetDisconnectCallback(cb DisconnectCallback) {
	c.callbacksMu.Lock()
	c.onDisconnect = cb
	c.callbacksMu.Unlock()
}

// SetKickCallback registers the handler fired on KICK_NOTIFY.
func (c *Client) SetKickCallback(cb KickCallback) {
	c.callbacksMu.Lock()
	c.onKick = cb
	c.callbacksMu.Unlock()
}

// Connect dials the gateway and starts the read/write/heartbeat loops. It
// blocks until the TCP connect completes (or fails); every operation after
// that is asynchronous, matching the rest of the SDK's non-blocking surface.
func (c *Client) Connect() error {
	if c.cfg.UseWebSocket {
		return fmt.Errorf("sdk: websocket transport not supported by this client")
	}
	if c.State() != Disconnected {
		return fmt.Errorf("sdk: Connect called from state %s", c.State())
	}
	c.state.Store(int32(Connecting))

	conn, err := net.DialTimeout("tcp", c.cfg.GatewayAddr, c.cfg.DialTimeout)
	if err != nil {
		c.state.Store(int32(Disconnected))
		return fmt.Errorf("sdk: connect %s: %w", c.cfg.GatewayAddr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.writeCh = make(chan writeJob, 64)
	c.doneCh = make(chan struct{})
	c.userID = ""
	c.sessionID = ""
	c.nextSeq = 1
	c.mu.Unlock()

	c.state.Store(int32(Connected))

	go c.writeLoop(conn, c.writeCh, c.doneCh)
	go c.readLoop(conn, c.doneCh)
	c.startHeartbeat()
	return nil
}

// Disconnect closes the connection without notifying pending logins of an
// error beyond ErrNotConnected, mirroring an explicit user-initiated close.
func (c *Client) Disconnect() {
	c.teardown(nil)
}

// Logout sends LOGOUT_REQ (best-effort, fire-and-forget) and tears the
// connection down locally; the gateway's own close-callback path reclaims
// the server-side session state.
func (c *Client) Logout() {
	if c.State() != LoggedIn {
		return
	}
	c.mu.Lock()
	req := protocol.LogoutRequest{UserID: c.userID, SessionID: c.sessionID}
	seq := c.nextSeqLocked()
	c.mu.Unlock()
	c.sendEnvelope(protocol.LogoutReq, seq, req)
	c.teardown(nil)
}

// Login sends LOGIN_REQ with token and registers cb to be invoked exactly
// once when the paired LOGIN_RESP arrives, or with ErrNotConnected if the
// connection drops first.
func (c *Client) Login(token string, cb LoginCallback) {
	if token == "" {
		if cb != nil {
			cb(fmt.Errorf("sdk: empty token"), "")
		}
		return
	}
	if c.State() < Connected {
		if cb != nil {
			cb(ErrNotConnected, "")
		}
		return
	}

	c.mu.Lock()
	seq := c.nextSeqLocked()
	c.mu.Unlock()

	if cb != nil {
		c.pendingMu.Lock()
		c.pendingLogins[seq] = cb
		c.pendingMu.Unlock()
	}

	c.sendEnvelope(protocol.LoginReq, seq, protocol.LoginRequest{
		Token: token, DeviceID: "sdk_device", Platform: "go-sdk",
	})
}

// SendMessage sends a PRIVATE SEND_MESSAGE_REQ to receiver. It requires the
// client to be LoggedIn; this surface does not support GROUP sends.
func (c *Client) SendMessage(receiverID, content string) error {
	if c.State() != LoggedIn {
		return ErrNotConnected
	}
	if receiverID == "" {
		return fmt.Errorf("sdk: empty receiverID")
	}

	c.mu.Lock()
	userID := c.userID
	seq := c.nextSeqLocked()
	c.mu.Unlock()

	req := protocol.SendMessageRequest{
		SenderID:        userID,
		ReceiverID:      receiverID,
		ChannelType:     protocol.ChannelPrivate,
		ChannelID:       privateChannelID(userID, receiverID),
		Content:         content,
		ClientTimestamp: time.Now().UnixMilli(),
	}
	c.sendEnvelope(protocol.SendMessageReq, seq, req)
	return nil
}

func (c *Client) nextSeqLocked() int64 {
	seq := c.nextSeq
	c.nextSeq++
	return seq
}

func (c *Client) startHeartbeat() {
	if c.cfg.HeartbeatInterval <= 0 {
		return
	}
	stop := make(chan struct{})
	c.mu.Lock()
	c.heartStop = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.mu.Lock()
				seq := c.nextSeqLocked()
				c.mu.Unlock()
				c.sendEnvelope(protocol.HeartbeatPing, seq, protocol.HeartbeatPingBody{Timestamp: time.Now().UnixMilli()})
			case <-stop:
				return
			}
		}
	}()
}

func (c *Client) sendEnvelope(msgID protocol.MsgID, seq int64, body any) {
	env, err := protocol.Encode(msgID, seq, body)
	if err != nil {
		return
	}
	raw, err := protocol.WireEncode(env)
	if err != nil {
		return
	}

	c.mu.Lock()
	ch := c.writeCh
	c.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- writeJob{payload: framing.Encode(raw)}:
	default:
		// write queue full: drop rather than block the caller.
	}
}

func (c *Client) writeLoop(conn net.Conn, writeCh chan writeJob, doneCh chan struct{}) {
	for {
		select {
		case job := <-writeCh:
			if _, err := conn.Write(job.payload); err != nil {
				c.teardown(err)
				return
			}
		case <-doneCh:
			return
		}
	}
}

func (c *Client) readLoop(conn net.Conn, doneCh chan struct{}) {
	var framer framing.Framer
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			framer.Append(buf[:n])
			for {
				payload, ok := framer.PopFrame()
				if !ok {
					break
				}
				c.dispatch(payload)
			}
		}
		if err != nil {
			select {
			case <-doneCh:
				return
			default:
			}
			c.teardown(err)
			return
		}
	}
}

func (c *Client) dispatch(payload []byte) {
	env, err := protocol.WireDecode(payload)
	if err != nil {
		return
	}

	switch env.MsgID {
	case protocol.LoginResp:
		c.handleLoginResp(env)
	case protocol.KickNotify:
		c.handleKick(env)
	case protocol.ChatMessageNotify:
		c.handleChatNotify(env)
	default:
		// Unknown/unimplemented kinds (HEARTBEAT_PONG, *_RESP this surface
		// never solicits) are ignored.
	}
}

func (c *Client) handleLoginResp(env protocol.Envelope) {
	var resp protocol.LoginResponse
	err := env.Decode(&resp)

	c.pendingMu.Lock()
	cb, ok := c.pendingLogins[env.Sequence]
	if ok {
		delete(c.pendingLogins, env.Sequence)
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}

	if err != nil || resp.Code != protocol.OK {
		cb(ErrLoginFailed, "")
		return
	}

	c.mu.Lock()
	c.userID = resp.UserID
	c.sessionID = resp.SessionID
	c.mu.Unlock()
	c.state.Store(int32(LoggedIn))

	cb(nil, resp.UserID)
}

func (c *Client) handleKick(env protocol.Envelope) {
	var kick protocol.KickInfo
	_ = env.Decode(&kick)
	c.callbacksMu.Lock()
	cb := c.onKick
	c.callbacksMu.Unlock()
	if cb != nil {
		cb(kick.Reason)
	}
}

func (c *Client) handleChatNotify(env protocol.Envelope) {
	var msg protocol.ChatMessage
	if err := env.Decode(&msg); err != nil {
		return
	}
	c.callbacksMu.Lock()
	cb := c.onMessage
	c.callbacksMu.Unlock()
	if cb != nil {
		cb(msg.SenderID, msg.Content)
	}
}

// teardown tears the connection down exactly once, drains the pending-login
// table with a synthetic ErrNotConnected for every entry, and invokes the
// disconnect callback.
func (c *Client) teardown(cause error) {
	c.mu.Lock()
	conn := c.conn
	doneCh := c.doneCh
	heartStop := c.heartStop
	c.conn = nil
	c.doneCh = nil
	c.writeCh = nil
	c.heartStop = nil
	c.mu.Unlock()

	if doneCh == nil {
		return // already torn down
	}
	close(doneCh)
	if heartStop != nil {
		close(heartStop)
	}
	if conn != nil {
		conn.Close()
	}
	c.state.Store(int32(Disconnected))

	c.pendingMu.Lock()
	pending := c.pendingLogins
	c.pendingLogins = make(map[int64]LoginCallback)
	c.pendingMu.Unlock()
	for _, cb := range pending {
		cb(ErrNotConnected, "")
	}

	c.callbacksMu.Lock()
	cb := c.onDisconnect
	c.callbacksMu.Unlock()
	if cb != nil {
		cb(cause)
	}
}

func privateChannelID(a, b string) string {
	if a <= b {
		return a + "|" + b
	}
	return b + "|" + a
}
