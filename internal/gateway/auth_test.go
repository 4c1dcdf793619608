package gateway

import (
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractToken_AuthorizationHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/realtime", nil)
	r.Header.Set("Authorization", "Bearer secret-token")

	token, presented := extractToken(r)
	if !presented || token != "secret-token" {
		t.Errorf("Expected (secret-token, true), got (%q, %v)", token, presented)
	}
}

func TestExtractToken_MalformedAuthorizationHeader(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/realtime", nil)
	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	token, presented := extractToken(r)
	if !presented || token != "" {
		t.Errorf("Non-bearer scheme counts as presented-but-invalid, got (%q, %v)", token, presented)
	}
}

func TestExtractToken_Subprotocol(t *testing.T) {
	// Unpadded base64url, the way browser clients smuggle the credential.
	enc := base64.URLEncoding.EncodeToString([]byte("secret-token"))
	enc = strings.TrimRight(enc, "=")

	r := httptest.NewRequest("GET", "/v1/realtime", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "realtime, bearer."+enc)

	token, presented := extractToken(r)
	if !presented || token != "secret-token" {
		t.Errorf("Expected (secret-token, true), got (%q, %v)", token, presented)
	}
}

func TestExtractToken_SubprotocolUndecodable(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/realtime", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "bearer.!!!not-base64!!!")

	token, presented := extractToken(r)
	if !presented || token != "" {
		t.Errorf("Undecodable credential must be presented-but-invalid, got (%q, %v)", token, presented)
	}
}

func TestExtractToken_Absent(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/realtime", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "realtime")

	if _, presented := extractToken(r); presented {
		t.Error("Expected no credential presented")
	}
}

func TestExtractToken_HeaderWinsOverSubprotocol(t *testing.T) {
	enc := strings.TrimRight(base64.URLEncoding.EncodeToString([]byte("proto-token")), "=")
	r := httptest.NewRequest("GET", "/v1/realtime", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	r.Header.Set("Sec-WebSocket-Protocol", "bearer."+enc)

	token, _ := extractToken(r)
	if token != "header-token" {
		t.Errorf("Expected Authorization header to take precedence, got %q", token)
	}
}

func TestTokenMatches(t *testing.T) {
	if !tokenMatches("abc", "abc") {
		t.Error("Expected equal tokens to match")
	}
	if tokenMatches("abc", "abd") {
		t.Error("Expected differing tokens to mismatch")
	}
	if tokenMatches("", "abc") {
		t.Error("Expected empty token to mismatch")
	}
}

func TestNegotiateSubprotocol(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/realtime", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "bearer.abc, realtime")
	if got := negotiateSubprotocol(r); got != "realtime" {
		t.Errorf("Expected realtime echoed back, got %q", got)
	}

	r = httptest.NewRequest("GET", "/v1/realtime", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "bearer.abc")
	if got := negotiateSubprotocol(r); got != "" {
		t.Errorf("Expected no negotiated subprotocol, got %q", got)
	}
}
