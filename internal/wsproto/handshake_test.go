package wsproto

import (
	"bufio"
	"strings"
	"testing"
)

func TestComputeAcceptKnownVector(t *testing.T) {
	got := ComputeAccept("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("ComputeAccept = %s want %s", got, want)
	}
}

func TestReadHandshakeAndWriteAccept(t *testing.T) {
	raw := "GET /ws HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"\r\n"

	hs, err := ReadHandshake(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("ReadHandshake: %v", err)
	}
	if hs.Path != "/ws" {
		t.Fatalf("Path = %q want /ws", hs.Path)
	}
	if hs.SecWebSocketKey != "dGhlIHNhbXBsZSBub25jZQ==" {
		t.Fatalf("unexpected key: %q", hs.SecWebSocketKey)
	}

	var out strings.Builder
	if err := WriteAccept(&out, hs); err != nil {
		t.Fatalf("WriteAccept: %v", err)
	}
	resp := out.String()
	if !strings.HasPrefix(resp, "HTTP/1.1 101 Switching Protocols\r\n") {
		t.Fatalf("unexpected status line in response: %q", resp)
	}
	if !strings.Contains(resp, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n") {
		t.Fatalf("missing expected accept header in response: %q", resp)
	}
}

func TestReadHandshakeRejectsMissingUpgrade(t *testing.T) {
	raw := "GET /ws HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"\r\n"
	if _, err := ReadHandshake(bufio.NewReader(strings.NewReader(raw))); err == nil {
		t.Fatalf("expected error for missing Upgrade header")
	}
}
