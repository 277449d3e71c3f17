package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tOgg1/pagechat/internal/logging"
	"github.com/tOgg1/pagechat/internal/models"
)

// ForwarderSubscriptionID is the subscription the NATS bridge registers.
const ForwarderSubscriptionID = "nats-forwarder"

// natsConn is the part of *nats.Conn the bridge uses.
type natsConn interface {
	Publish(subject string, data []byte) error
}

// NATSForwarder republishes inbox events on NATS subjects of the form
// <prefix>.<event type>.
type NATSForwarder struct {
	conn   natsConn
	prefix string
	logger zerolog.Logger
}

// ConnectNATS dials the NATS server used by the event bridge.
func ConnectNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("pagechat"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// NewNATSForwarder creates a bridge over an established connection.
func NewNATSForwarder(conn natsConn, prefix string) *NATSForwarder {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "pagechat"
	}
	return &NATSForwarder{
		conn:   conn,
		prefix: prefix,
		logger: logging.Component("events.nats"),
	}
}

// Subject returns the subject an event type is forwarded on.
func (f *NATSForwarder) Subject(eventType models.EventType) string {
	return f.prefix + "." + string(eventType)
}

// Attach subscribes the bridge to every event on pub.
func (f *NATSForwarder) Attach(pub Publisher) error {
	return pub.Subscribe(ForwarderSubscriptionID, Filter{}, f.forward)
}

// Detach removes the bridge subscription.
func (f *NATSForwarder) Detach(pub Publisher) error {
	return pub.Unsubscribe(ForwarderSubscriptionID)
}

func (f *NATSForwarder) forward(event *models.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		f.logger.Warn().Err(err).Str("event_id", event.ID).Msg("failed to encode event")
		return
	}
	subject := f.Subject(event.Type)
	if err := f.conn.Publish(subject, data); err != nil {
		f.logger.Warn().Err(err).Str("subject", subject).Msg("failed to forward event")
		return
	}
	f.logger.Debug().Str("subject", subject).Str("event_id", event.ID).Msg("event forwarded")
}
