// auth_test.go — authentication security integration tests.
// Tests JWT hardening: alg:none rejection, expired tokens, signature
// tampering, and garbage input.
package security_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/docverify/docverify/internal/auth"
)

func init() {
	os.Setenv("AUTH_JWT_SECRET", "test-secret-key-for-security-tests-minimum-32chars")
}

// craftToken creates a custom JWT for testing edge cases.
func craftToken(header, payload map[string]interface{}, key []byte) string {
	hBytes, _ := json.Marshal(header)
	pBytes, _ := json.Marshal(payload)

	hEnc := base64.RawURLEncoding.EncodeToString(hBytes)
	pEnc := base64.RawURLEncoding.EncodeToString(pBytes)
	msg := hEnc + "." + pEnc

	if key == nil {
		return msg + "."
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return msg + "." + sig
}

func basePayload() map[string]interface{} {
	return map[string]interface{}{
		"sub":  "00000000-0000-0000-0000-000000000001",
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
		"iss":  "docverify",
		"jti":  uuid.NewString(),
		"role": "admin",
	}
}

func TestRejectAlgNone(t *testing.T) {
	token := craftToken(
		map[string]interface{}{"alg": "none", "typ": "JWT"},
		basePayload(),
		nil,
	)
	if _, err := auth.ValidateAccessToken(token); err == nil {
		t.Error("alg:none token must be rejected")
	}
}

func TestRejectExpiredToken(t *testing.T) {
	key := []byte(os.Getenv("AUTH_JWT_SECRET"))
	payload := basePayload()
	payload["exp"] = time.Now().Add(-1 * time.Hour).Unix()
	payload["iat"] = time.Now().Add(-2 * time.Hour).Unix()

	token := craftToken(map[string]interface{}{"alg": "HS256", "typ": "JWT"}, payload, key)
	if _, err := auth.ValidateAccessToken(token); err == nil {
		t.Error("expired token must be rejected")
	}
}

func TestRejectWrongKey(t *testing.T) {
	token := craftToken(
		map[string]interface{}{"alg": "HS256", "typ": "JWT"},
		basePayload(),
		[]byte("attacker-controlled-key-thats-also-32-chars"),
	)
	if _, err := auth.ValidateAccessToken(token); err == nil {
		t.Error("token signed with the wrong key must be rejected")
	}
}

// TestRejectTamperedPayload signs a legitimate user token, then swaps the
// payload for one claiming the admin role. The signature no longer matches.
func TestRejectTamperedPayload(t *testing.T) {
	legit, err := auth.GenerateAccessToken(uuid.New(), "user", true)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	parts := strings.Split(legit, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d segments", len(parts))
	}

	elevated := basePayload()
	pBytes, _ := json.Marshal(elevated)
	parts[1] = base64.RawURLEncoding.EncodeToString(pBytes)
	tampered := strings.Join(parts, ".")

	if _, err := auth.ValidateAccessToken(tampered); err == nil {
		t.Error("payload-swapped token must be rejected")
	}
}

func TestRejectGarbageTokens(t *testing.T) {
	garbage := []string{
		"",
		"not-a-token",
		"a.b",
		"a.b.c",
		"....",
		strings.Repeat("A", 8192),
	}
	for _, token := range garbage {
		if _, err := auth.ValidateAccessToken(token); err == nil {
			t.Errorf("garbage token %q must be rejected", token[:min(len(token), 20)])
		}
	}
}

func TestValidTokenAccepted(t *testing.T) {
	uid := uuid.New()
	token, err := auth.GenerateAccessToken(uid, "user", true)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	claims, err := auth.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if claims.Subject != uid.String() || claims.Role != "user" {
		t.Errorf("claims mismatch: sub=%s role=%s", claims.Subject, claims.Role)
	}
}
