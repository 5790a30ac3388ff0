// Package authclient implements the gateway's RPC connection to the auth
// service: a fresh TCP connection per request, serialized behind one worker
// goroutine. A slow or down auth service never blocks the gateway's accept
// loops; the goroutine that calls Login or Logout waits for its own reply,
// and calls from other sessions queue behind it.
package authclient

import (
	"fmt"
	"net"
	"time"

	"github.com/chirp-im/chirp/internal/framing"
	"github.com/chirp-im/chirp/internal/protocol"
)

// Client issues LOGIN_REQ/LOGOUT_REQ RPCs against the auth service.
type Client struct {
	addr    string
	timeout time.Duration
	jobs    chan func()
	quit    chan struct{}
	done    chan struct{}
}

// NewClient builds and starts a Client targeting the auth service at addr.
func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	c := &Client{
		addr:    addr,
		timeout: timeout,
		jobs:    make(chan func(), 256),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Client) run() {
	defer close(c.done)
	for {
		select {
		case job := <-c.jobs:
			job()
		case <-c.quit:
			return
		}
	}
}

// Stop drains in-flight work and exits the worker goroutine.
func (c *Client) Stop() {
	close(c.quit)
	<-c.done
}

// Login performs a synchronous LOGIN_REQ RPC, queued behind any other
// in-flight auth calls. On any transport or protocol failure it returns a
// response with Code=InternalError rather than propagating the error, since
// the caller always needs a *_RESP body to send back to its own client.
func (c *Client) Login(req protocol.LoginRequest, seq int64) protocol.LoginResponse {
	resultCh := make(chan protocol.LoginResponse, 1)
	c.jobs <- func() {
		resultCh <- c.doLogin(req, seq)
	}
	return <-resultCh
}

// Logout performs a synchronous LOGOUT_REQ RPC, same failure semantics as
// Login.
func (c *Client) Logout(req protocol.LogoutRequest, seq int64) protocol.LogoutResponse {
	resultCh := make(chan protocol.LogoutResponse, 1)
	c.jobs <- func() {
		resultCh <- c.doLogout(req, seq)
	}
	return <-resultCh
}

func (c *Client) doLogin(req protocol.LoginRequest, seq int64) protocol.LoginResponse {
	nowMs := time.Now().UnixMilli()
	fail := protocol.LoginResponse{Code: protocol.InternalError, ServerTime: nowMs}

	env, err := protocol.Encode(protocol.LoginReq, seq, req)
	if err != nil {
		return fail
	}
	respEnv, err := c.roundTrip(env)
	if err != nil {
		return fail
	}
	if respEnv.MsgID != protocol.LoginResp {
		return fail
	}
	var resp protocol.LoginResponse
	if err := respEnv.Decode(&resp); err != nil {
		return fail
	}
	resp.ServerTime = nowMs
	return resp
}

func (c *Client) doLogout(req protocol.LogoutRequest, seq int64) protocol.LogoutResponse {
	nowMs := time.Now().UnixMilli()
	fail := protocol.LogoutResponse{Code: protocol.InternalError, ServerTime: nowMs}

	env, err := protocol.Encode(protocol.LogoutReq, seq, req)
	if err != nil {
		return fail
	}
	respEnv, err := c.roundTrip(env)
	if err != nil {
		return fail
	}
	if respEnv.MsgID != protocol.LogoutResp {
		return fail
	}
	var resp protocol.LogoutResponse
	if err := respEnv.Decode(&resp); err != nil {
		return fail
	}
	resp.ServerTime = nowMs
	return resp
}

func (c *Client) roundTrip(env protocol.Envelope) (protocol.Envelope, error) {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("authclient: dial %s: %w", c.addr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	raw, err := protocol.WireEncode(env)
	if err != nil {
		return protocol.Envelope{}, err
	}
	if _, err := conn.Write(framing.Encode(raw)); err != nil {
		return protocol.Envelope{}, fmt.Errorf("authclient: write: %w", err)
	}

	var framer framing.Framer
	buf := make([]byte, 4096)
	for {
		if payload, ok := framer.PopFrame(); ok {
			return protocol.WireDecode(payload)
		}
		n, err := conn.Read(buf)
		if n > 0 {
			framer.Append(buf[:n])
			if payload, ok := framer.PopFrame(); ok {
				return protocol.WireDecode(payload)
			}
		}
		if err != nil {
			return protocol.Envelope{}, fmt.Errorf("authclient: read: %w", err)
		}
	}
}
