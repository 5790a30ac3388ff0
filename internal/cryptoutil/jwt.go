package cryptoutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JwtClaims is the minimal claim set the auth service issues and the
// gateway verifies: just enough to identify the user and when the token was
// minted. This is not a general JWT library - it speaks exactly the shape
// chirp needs, the same way the original only ever dealt with sub/iat.
type JwtClaims struct {
	Subject  string `json:"sub"`
	IssuedAt int64  `json:"iat"`
}

type jwtHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// JwtSignHS256 builds a compact HS256 JWT for subject, stamped with
// issuedAt (unix seconds), signed with secret.
func JwtSignHS256(subject string, issuedAt int64, secret []byte) (string, error) {
	headerJSON, err := json.Marshal(jwtHeader{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(JwtClaims{Subject: subject, IssuedAt: issuedAt})
	if err != nil {
		return "", err
	}

	signingInput := Base64URLEncode(headerJSON) + "." + Base64URLEncode(payloadJSON)
	sig := HmacSha256(secret, []byte(signingInput))
	return signingInput + "." + Base64URLEncode(sig), nil
}

// JwtVerifyHS256 validates token's signature and alg, and returns its
// claims.
func JwtVerifyHS256(token string, secret []byte) (JwtClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return JwtClaims{}, fmt.Errorf("cryptoutil: malformed token")
	}
	headerB64, payloadB64, sigB64 := parts[0], parts[1], parts[2]

	signingInput := headerB64 + "." + payloadB64
	expectedSig := HmacSha256(secret, []byte(signingInput))
	gotSig, err := Base64URLDecode(sigB64)
	if err != nil {
		return JwtClaims{}, fmt.Errorf("cryptoutil: bad signature encoding: %w", err)
	}
	if !ConstantTimeEqual(expectedSig, gotSig) {
		return JwtClaims{}, fmt.Errorf("cryptoutil: signature mismatch")
	}

	headerJSON, err := Base64URLDecode(headerB64)
	if err != nil {
		return JwtClaims{}, fmt.Errorf("cryptoutil: bad header encoding: %w", err)
	}
	var header jwtHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return JwtClaims{}, fmt.Errorf("cryptoutil: bad header json: %w", err)
	}
	if header.Alg != "HS256" {
		return JwtClaims{}, fmt.Errorf("cryptoutil: unsupported alg %q", header.Alg)
	}

	payloadJSON, err := Base64URLDecode(payloadB64)
	if err != nil {
		return JwtClaims{}, fmt.Errorf("cryptoutil: bad payload encoding: %w", err)
	}
	var claims JwtClaims
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return JwtClaims{}, fmt.Errorf("cryptoutil: bad payload json: %w", err)
	}
	if claims.Subject == "" {
		return JwtClaims{}, fmt.Errorf("cryptoutil: missing sub claim")
	}
	return claims, nil
}
