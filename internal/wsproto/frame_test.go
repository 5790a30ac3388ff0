package wsproto

import (
	"bytes"
	"testing"
)

func TestBuildAndParseUnmaskedFrame(t *testing.T) {
	payload := []byte("hello websocket")
	wire := BuildFrame(OpBinary, payload, false)

	var p FrameParser
	p.Append(wire)
	frame, ok := p.PopFrame()
	if !ok {
		t.Fatalf("expected a complete frame")
	}
	if frame.Opcode != OpBinary || !frame.Fin {
		t.Fatalf("unexpected frame header: opcode=%d fin=%v", frame.Opcode, frame.Fin)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("got %q want %q", frame.Payload, payload)
	}
}

func TestParseMaskedFrameUnmasksPayload(t *testing.T) {
	payload := []byte("masked client frame")
	wire := BuildFrame(OpText, payload, true)

	var p FrameParser
	p.Append(wire)
	frame, ok := p.PopFrame()
	if !ok {
		t.Fatalf("expected a complete frame")
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("got %q want %q", frame.Payload, payload)
	}
}

func TestPopFrameIncompleteReturnsFalse(t *testing.T) {
	wire := BuildFrame(OpBinary, []byte("partial payload"), false)
	var p FrameParser
	p.Append(wire[:len(wire)-3])
	if _, ok := p.PopFrame(); ok {
		t.Fatalf("expected incomplete frame to report ok=false")
	}
}

func TestExtendedPayloadLengths(t *testing.T) {
	for _, n := range []int{125, 126, 65535, 65536} {
		payload := bytes.Repeat([]byte{0x5A}, n)
		wire := BuildFrame(OpBinary, payload, false)

		var p FrameParser
		p.Append(wire)
		frame, ok := p.PopFrame()
		if !ok {
			t.Fatalf("size %d: expected complete frame", n)
		}
		if len(frame.Payload) != n {
			t.Fatalf("size %d: got payload length %d", n, len(frame.Payload))
		}
	}
}

func TestOversizedFrameIsDroppedAndBufferCleared(t *testing.T) {
	var p FrameParser
	header := []byte{0x82, 127, 0, 0, 0, 1, 0, 0, 0, 0} // declares 4 GiB payload
	p.Append(header)
	if _, ok := p.PopFrame(); ok {
		t.Fatalf("expected oversized frame to be rejected")
	}
	if len(p.buf) != 0 {
		t.Fatalf("expected buffer to be cleared after oversized frame, got %d bytes", len(p.buf))
	}
}

func TestChunkedFeedProducesSameFrame(t *testing.T) {
	payload := []byte("split across reads")
	wire := BuildFrame(OpBinary, payload, false)

	var p FrameParser
	for _, b := range wire {
		p.Append([]byte{b})
	}
	frame, ok := p.PopFrame()
	if !ok {
		t.Fatalf("expected complete frame after byte-by-byte feed")
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Fatalf("got %q want %q", frame.Payload, payload)
	}
}
