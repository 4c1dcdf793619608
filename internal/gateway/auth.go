package gateway

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// Application close codes for authentication failures. Sent after the
// upgrade so browser clients, which cannot read HTTP error bodies on a
// failed WebSocket handshake, can distinguish the two cases.
const (
	CloseMissingCredentials = 4401
	CloseInvalidCredentials = 4403
)

const subprotocolTokenPrefix = "bearer."

// extractToken pulls the bearer credential from the Authorization header
// or from a "bearer.<token>" entry in Sec-WebSocket-Protocol. Subprotocol
// values cannot carry '=', so tokens travel as unpadded base64url and the
// padding is restored before decoding. Reports whether any credential was
// presented at all.
func extractToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")), true
		}
		return "", true
	}

	for _, proto := range websocket.Subprotocols(r) {
		if !strings.HasPrefix(proto, subprotocolTokenPrefix) {
			continue
		}
		enc := strings.TrimPrefix(proto, subprotocolTokenPrefix)
		if pad := len(enc) % 4; pad != 0 {
			enc += strings.Repeat("=", 4-pad)
		}
		raw, err := base64.URLEncoding.DecodeString(enc)
		if err != nil {
			// Presented but undecodable counts as an invalid credential,
			// not a missing one.
			return "", true
		}
		return string(raw), true
	}
	return "", false
}

// tokenMatches compares the presented token to the configured one in
// constant time.
func tokenMatches(presented, configured string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}

// negotiateSubprotocol echoes back a non-credential subprotocol the client
// offered, if any, per the WebSocket handshake rules.
func negotiateSubprotocol(r *http.Request) string {
	for _, proto := range websocket.Subprotocols(r) {
		if !strings.HasPrefix(proto, subprotocolTokenPrefix) {
			return proto
		}
	}
	return ""
}
