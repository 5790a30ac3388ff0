package framing

import "bytes"

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("hello"),
		{},
		[]byte("second payload, a bit longer than the first one"),
	}

	var wire []byte
	for _, p := range payloads {
		wire = append(wire, Encode(p)...)
	}

	var f Framer
	f.Append(wire)
	for i, want := range payloads {
		got, ok := f.PopFrame()
		if !ok {
			t.Fatalf("frame %d: expected a complete frame", i)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d: got %q want %q", i, got, want)
		}
	}
	if f.BufferedBytes() != 0 {
		t.Fatalf("expected empty buffer, got %d bytes", f.BufferedBytes())
	}
}

func TestPopFrameIncompleteLeavesBufferUnchanged(t *testing.T) {
	var f Framer
	f.Append(Encode([]byte("partial"))[:5])
	before := f.BufferedBytes()

	if _, ok := f.PopFrame(); ok {
		t.Fatalf("expected incomplete frame to report ok=false")
	}
	if f.BufferedBytes() != before {
		t.Fatalf("buffer changed on incomplete pop: before=%d after=%d", before, f.BufferedBytes())
	}
}

func TestZeroLengthPayload(t *testing.T) {
	encoded := Encode(nil)
	want := []byte{0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(encoded, want) {
		t.Fatalf("got %x want %x", encoded, want)
	}

	var f Framer
	f.Append(encoded)
	got, ok := f.PopFrame()
	if !ok {
		t.Fatalf("expected a complete frame")
	}
	if len(got) != 0 {
		t.Fatalf("expected empty payload, got %q", got)
	}
}

func TestChunkedFeedProducesSameFrames(t *testing.T) {
	payloads := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	var wire []byte
	for _, p := range payloads {
		wire = append(wire, Encode(p)...)
	}

	var f Framer
	for _, b := range wire {
		f.Append([]byte{b})
	}

	for i, want := range payloads {
		got, ok := f.PopFrame()
		if !ok {
			t.Fatalf("frame %d: expected complete frame after byte-by-byte feed", i)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d: got %q want %q", i, got, want)
		}
	}
}
