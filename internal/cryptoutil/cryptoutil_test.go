package cryptoutil

import "testing"

func TestSha256Vectors(t *testing.T) {
	cases := map[string]string{
		"":    "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		"abc": "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
	}
	for in, want := range cases {
		if got := Sha256Hex([]byte(in)); got != want {
			t.Fatalf("Sha256Hex(%q) = %s want %s", in, got, want)
		}
	}
}

func TestHmacSha256NotEmpty(t *testing.T) {
	mac := HmacSha256([]byte("key"), []byte("msg"))
	if len(mac) != 32 {
		t.Fatalf("expected 32-byte HMAC, got %d", len(mac))
	}
}

func TestBase64URLRoundTrip(t *testing.T) {
	data := []byte{0x00, 0x01, 0xff, 0x10, 'a', 'b', 'c'}
	encoded := Base64URLEncode(data)
	decoded, err := Base64URLDecode(encoded)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(decoded) != string(data) {
		t.Fatalf("round trip mismatch: got %v want %v", decoded, data)
	}
}

func TestConstantTimeEqual(t *testing.T) {
	a := []byte("same-bytes")
	b := []byte("same-bytes")
	c := []byte("different!")
	if !ConstantTimeEqual(a, b) {
		t.Fatalf("expected equal byte slices to compare equal")
	}
	if ConstantTimeEqual(a, c) {
		t.Fatalf("expected different byte slices to compare unequal")
	}
	if ConstantTimeEqual(a, []byte("short")) {
		t.Fatalf("expected different-length slices to compare unequal")
	}
}
