// Package gateway owns the client-facing WebSocket surface: the upgrade
// and authentication handshake, the per-connection event loops, and the
// wiring between the protocol, speech, and responder layers.
package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/realtime-gateway/internal/observability"
	"github.com/lexiqai/realtime-gateway/internal/protocol"
	"github.com/lexiqai/realtime-gateway/internal/responder"
	"github.com/lexiqai/realtime-gateway/internal/session"
	"github.com/lexiqai/realtime-gateway/internal/speech"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Bearer auth is the access control; origin is not restricted.
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// RecognizerFactory builds a fresh recognition connection per session.
type RecognizerFactory func() speech.Recognizer

// Options holds the gateway's static configuration.
type Options struct {
	// AuthToken is the bearer credential required on /v1/realtime. Empty
	// disables authentication.
	AuthToken string

	// InputSampleRate is assumed for appends that do not declare a rate.
	InputSampleRate int

	// Speech carries the per-session recognition timer set.
	Speech speech.Config

	// Defaults seed each new session's configuration.
	Defaults protocol.SessionConfig
}

// Gateway accepts realtime WebSocket connections.
type Gateway struct {
	opts          Options
	registry      *session.Registry
	table         *speech.Table
	orchestrator  *responder.Orchestrator
	newRecognizer RecognizerFactory
	logger        zerolog.Logger
}

// New wires a gateway from its collaborators.
func New(
	opts Options,
	registry *session.Registry,
	table *speech.Table,
	orchestrator *responder.Orchestrator,
	newRecognizer RecognizerFactory,
	logger zerolog.Logger,
) *Gateway {
	if opts.InputSampleRate == 0 {
		opts.InputSampleRate = 24000
	}
	return &Gateway{
		opts:          opts,
		registry:      registry,
		table:         table,
		orchestrator:  orchestrator,
		newRecognizer: newRecognizer,
		logger:        logger.With().Str("component", "gateway").Logger(),
	}
}

// Handler is the /v1/realtime endpoint.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var responseHeader http.Header
		if proto := negotiateSubprotocol(r); proto != "" {
			responseHeader = http.Header{"Sec-WebSocket-Protocol": {proto}}
		}

		ws, err := upgrader.Upgrade(w, r, responseHeader)
		if err != nil {
			g.logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		if g.opts.AuthToken != "" {
			token, presented := extractToken(r)
			if !presented {
				g.closeWith(ws, CloseMissingCredentials, "missing credentials")
				return
			}
			if !tokenMatches(token, g.opts.AuthToken) {
				g.closeWith(ws, CloseInvalidCredentials, "invalid credentials")
				return
			}
		}

		c := newConn(g, ws)
		c.run()
	}
}

// closeWith sends a close frame with the given application code and drops
// the connection.
func (g *Gateway) closeWith(ws *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		g.logger.Debug().Err(err).Int("code", code).Msg("close frame write failed")
	}
	ws.Close()
}

// sessionMetrics builds the per-session metrics tracker; split out so
// tests can observe construction.
func sessionMetrics(id string) *observability.Metrics {
	return observability.NewSessionMetrics(id)
}
