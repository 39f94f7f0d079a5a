package push

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/orbitsocial/backend/internal/relationships"
)

// NATSSource consumes push events from a NATS subject. Each user has a
// dedicated subject under a shared prefix so the server fans events out per
// recipient.
type NATSSource struct {
	url     string
	subject string
	logger  *slog.Logger
}

// NewNATSSource constructs a NATS event source subscribed to
// "<prefix>.<userID>".
func NewNATSSource(url, subjectPrefix string, user relationships.UserID, logger *slog.Logger) *NATSSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSource{
		url:     url,
		subject: fmt.Sprintf("%s.%s", subjectPrefix, user),
		logger:  logger,
	}
}

// Subject returns the fully qualified subject this source subscribes to.
func (s *NATSSource) Subject() string { return s.subject }

// Listen connects, subscribes, and delivers decoded events until the context
// is cancelled or the connection fails.
func (s *NATSSource) Listen(ctx context.Context, deliver func(relationships.Event)) error {
	conn, err := nats.Connect(s.url, nats.Name("orbit-push"))
	if err != nil {
		return &relationships.NetworkError{Op: "connect nats", Err: err}
	}
	defer conn.Close()

	msgs := make(chan *nats.Msg, 64)
	sub, err := conn.ChanSubscribe(s.subject, msgs)
	if err != nil {
		return &relationships.NetworkError{Op: "subscribe " + s.subject, Err: err}
	}
	defer func() { _ = sub.Unsubscribe() }()

	s.logger.Info("listening for push events", "subject", s.subject)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return &relationships.NetworkError{Op: "receive " + s.subject, Err: nats.ErrConnectionClosed}
			}
			ev, err := decodeEvent(msg.Data)
			if err != nil {
				s.logger.Warn("dropping undecodable push payload", "subject", s.subject, "error", err)
				continue
			}
			deliver(ev)
		}
	}
}

var _ relationships.EventSource = (*NATSSource)(nil)
