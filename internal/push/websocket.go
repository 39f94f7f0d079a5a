package push

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/orbitsocial/backend/internal/relationships"
)

// SocketSource consumes push events from a websocket endpoint. Reconnection
// policy is the caller's concern; Listen returns once the connection drops.
type SocketSource struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewSocketSource constructs a websocket event source. The token, when set,
// is sent as a bearer credential during the handshake.
func NewSocketSource(url, token string, logger *slog.Logger) *SocketSource {
	if logger == nil {
		logger = slog.Default()
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &SocketSource{
		url:    url,
		header: header,
		dialer: websocket.DefaultDialer,
		logger: logger,
	}
}

// Listen dials the endpoint and delivers decoded events until the context is
// cancelled or the connection fails. Undecodable payloads are logged and
// skipped.
func (s *SocketSource) Listen(ctx context.Context, deliver func(relationships.Event)) error {
	conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return relationships.ErrAuth
		}
		return &relationships.NetworkError{Op: "dial push socket", Err: err}
	}
	defer conn.Close()

	// ReadMessage has no context support; closing the connection unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &relationships.NetworkError{Op: "read push socket", Err: err}
		}

		ev, err := decodeEvent(data)
		if err != nil {
			s.logger.Warn("dropping undecodable push payload", "error", err)
			continue
		}
		deliver(ev)
	}
}

var _ relationships.EventSource = (*SocketSource)(nil)
