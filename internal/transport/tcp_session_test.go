package transport

import (
	"net"
	"testing"
	"time"

	"github.com/chirp-im/chirp/internal/framing"
)

func TestTCPSessionSendIsFramed(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	sess := NewTCPSession(server, nil, nil)
	defer sess.Close()

	sess.Send([]byte("hi"))

	buf := make([]byte, 64)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f framing.Framer
	f.Append(buf[:n])
	payload, ok := f.PopFrame()
	if !ok {
		t.Fatalf("expected a complete frame")
	}
	if string(payload) != "hi" {
		t.Fatalf("got %q want %q", payload, "hi")
	}
}

func TestTCPSessionOnFrameCalledForIncomingPayload(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	received := make(chan []byte, 1)
	sess := NewTCPSession(server, func(_ Session, payload []byte) {
		received <- payload
	}, nil)
	defer sess.Close()

	if _, err := client.Write(framing.Encode([]byte("ping"))); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != "ping" {
			t.Fatalf("got %q want %q", got, "ping")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for onFrame callback")
	}
}

func TestTCPSessionCloseInvokesOnClose(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	closed := make(chan struct{})
	sess := NewTCPSession(server, nil, func(_ Session) {
		close(closed)
	})

	sess.Close()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for onClose callback")
	}
}
