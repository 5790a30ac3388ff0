package sdk

import (
	"net"
	"testing"
	"time"

	"github.com/chirp-im/chirp/internal/framing"
	"github.com/chirp-im/chirp/internal/protocol"
)

// fakeGateway accepts one connection and lets the test script exact
// request/response pairs by hand, so these tests exercise the Client's
// framing, pending-login bookkeeping and dispatch without a real gateway.
func fakeGateway(t *testing.T) (addr string, accept func() net.Conn) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	connCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			connCh <- conn
		}
	}()

	return ln.Addr().String(), func() net.Conn {
		select {
		case c := <-connCh:
			return c
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for accept")
			return nil
		}
	}
}

func readEnvelope(t *testing.T, conn net.Conn) protocol.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var framer framing.Framer
	buf := make([]byte, 4096)
	for {
		if payload, ok := framer.PopFrame(); ok {
			env, err := protocol.WireDecode(payload)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			return env
		}
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		framer.Append(buf[:n])
	}
}

func writeEnvelope(t *testing.T, conn net.Conn, msgID protocol.MsgID, seq int64, body any) {
	t.Helper()
	env, err := protocol.Encode(msgID, seq, body)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw, err := protocol.WireEncode(env)
	if err != nil {
		t.Fatalf("wire encode: %v", err)
	}
	if _, err := conn.Write(framing.Encode(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoginDeliversCallbackExactlyOnce(t *testing.T) {
	addr, accept := fakeGateway(t)
	c := New(Config{GatewayAddr: addr, HeartbeatInterval: -1})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()

	server := accept()
	defer server.Close()

	results := make(chan string, 2)
	c.Login("alice-token", func(err error, userID string) {
		if err != nil {
			t.Errorf("unexpected login error: %v", err)
		}
		results <- userID
	})

	req := readEnvelope(t, server)
	if req.MsgID != protocol.LoginReq {
		t.Fatalf("expected LOGIN_REQ, got %v", req.MsgID)
	}
	writeEnvelope(t, server, protocol.LoginResp, req.Sequence, protocol.LoginResponse{
		Code: protocol.OK, UserID: "alice", SessionID: "sess1",
	})

	select {
	case userID := <-results:
		if userID != "alice" {
			t.Fatalf("expected alice, got %s", userID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for login callback")
	}

	if c.State() != LoggedIn {
		t.Fatalf("expected LoggedIn state, got %v", c.State())
	}

	c.Disconnect()
	select {
	case userID := <-results:
		t.Fatalf("login callback invoked a second time (userID=%q)", userID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDisconnectDrainsPendingLoginWithNotConnected(t *testing.T) {
	addr, accept := fakeGateway(t)
	c := New(Config{GatewayAddr: addr, HeartbeatInterval: -1})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	server := accept()
	defer server.Close()

	done := make(chan error, 1)
	c.Login("bob-token", func(err error, userID string) { done <- err })

	readEnvelope(t, server) // drain LOGIN_REQ
	c.Disconnect()

	select {
	case err := <-done:
		if err != ErrNotConnected {
			t.Fatalf("expected ErrNotConnected, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for drained login callback")
	}
}

func TestSendMessageRequiresLoggedIn(t *testing.T) {
	addr, accept := fakeGateway(t)
	c := New(Config{GatewayAddr: addr, HeartbeatInterval: -1})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()
	server := accept()
	defer server.Close()

	if err := c.SendMessage("bob", "hi"); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected before login, got %v", err)
	}
}

func TestChatMessageNotifyInvokesCallback(t *testing.T) {
	addr, accept := fakeGateway(t)
	c := New(Config{GatewayAddr: addr, HeartbeatInterval: -1})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Disconnect()
	server := accept()
	defer server.Close()

	msgCh := make(chan string, 1)
	c.SetMessageCallback(func(sender, content string) { msgCh <- sender + ":" + content })

	writeEnvelope(t, server, protocol.ChatMessageNotify, 0, protocol.ChatMessage{
		SenderID: "carol", Content: "hello",
	})

	select {
	case got := <-msgCh:
		if got != "carol:hello" {
			t.Fatalf("unexpected message payload: %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message callback")
	}
}
