package gateway

import (
	"net"
	"testing"
	"time"

	"github.com/chirp-im/chirp/internal/framing"
	"github.com/chirp-im/chirp/internal/protocol"
	"github.com/chirp-im/chirp/internal/transport"
)

func recvEnvelope(t *testing.T, conn net.Conn) protocol.Envelope {
	t.Helper()
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f framing.Framer
	f.Append(buf[:n])
	payload, ok := f.PopFrame()
	if !ok {
		t.Fatalf("expected a complete frame")
	}
	env, err := protocol.WireDecode(payload)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func newPipeSession(t *testing.T, g *Gateway) (transport.Session, net.Conn) {
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	sess := transport.NewTCPSession(server, g.OnFrame, g.OnClose)
	return sess, client
}

func sendLogin(t *testing.T, conn net.Conn, token string, seq int64) {
	t.Helper()
	env, err := protocol.Encode(protocol.LoginReq, seq, protocol.LoginRequest{Token: token})
	if err != nil {
		t.Fatalf("encode login: %v", err)
	}
	raw, err := protocol.WireEncode(env)
	if err != nil {
		t.Fatalf("wire encode: %v", err)
	}
	if _, err := conn.Write(framing.Encode(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoginWithoutAuthFallsBackToTokenAsUserID(t *testing.T) {
	g := New(nil, nil)
	_, client := newPipeSession(t, g)

	sendLogin(t, client, "alice", 1)

	respEnv := recvEnvelope(t, client)
	var resp protocol.LoginResponse
	if err := respEnv.Decode(&resp); err != nil {
		t.Fatalf("decode resp: %v", err)
	}
	if resp.Code != protocol.OK || resp.UserID != "alice" {
		t.Fatalf("unexpected resp: %+v", resp)
	}
}

func TestSecondLoginKicksFirstSession(t *testing.T) {
	g := New(nil, nil)
	_, client1 := newPipeSession(t, g)
	_, client2 := newPipeSession(t, g)

	sendLogin(t, client1, "alice", 1)
	recvEnvelope(t, client1) // LOGIN_RESP for client1

	sendLogin(t, client2, "alice", 2)
	recvEnvelope(t, client2) // LOGIN_RESP for client2

	client1.SetReadDeadline(time.Now().Add(2 * time.Second))
	kickEnv := recvEnvelope(t, client1)
	if kickEnv.MsgID != protocol.KickNotify {
		t.Fatalf("expected KICK_NOTIFY, got %v", kickEnv.MsgID)
	}
}

func TestHeartbeatEchoesTimestamp(t *testing.T) {
	g := New(nil, nil)
	_, client := newPipeSession(t, g)

	env, err := protocol.Encode(protocol.HeartbeatPing, 9, protocol.HeartbeatPingBody{Timestamp: 12345})
	if err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	raw, err := protocol.WireEncode(env)
	if err != nil {
		t.Fatalf("wire encode: %v", err)
	}
	if _, err := client.Write(framing.Encode(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}

	respEnv := recvEnvelope(t, client)
	if respEnv.MsgID != protocol.HeartbeatPong {
		t.Fatalf("expected HEARTBEAT_PONG, got %v", respEnv.MsgID)
	}
	var pong protocol.HeartbeatPongBody
	if err := respEnv.Decode(&pong); err != nil {
		t.Fatalf("decode pong: %v", err)
	}
	if pong.Timestamp != 12345 {
		t.Fatalf("expected echoed timestamp 12345, got %d", pong.Timestamp)
	}
}
