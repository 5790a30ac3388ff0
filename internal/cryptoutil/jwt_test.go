package cryptoutil

import "testing"

func TestJwtSignAndVerifyRoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	token, err := JwtSignHS256("user-42", 1700000000, secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := JwtVerifyHS256(token, secret)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "user-42" || claims.IssuedAt != 1700000000 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestJwtVerifyRejectsWrongSecret(t *testing.T) {
	token, err := JwtSignHS256("user-42", 1700000000, []byte("right-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := JwtVerifyHS256(token, []byte("wrong-secret")); err == nil {
		t.Fatalf("expected verification to fail with wrong secret")
	}
}

func TestJwtVerifyRejectsMalformedToken(t *testing.T) {
	if _, err := JwtVerifyHS256("not-a-jwt", []byte("secret")); err == nil {
		t.Fatalf("expected error for malformed token")
	}
	if _, err := JwtVerifyHS256("only.two", []byte("secret")); err == nil {
		t.Fatalf("expected error for token missing third segment")
	}
}
