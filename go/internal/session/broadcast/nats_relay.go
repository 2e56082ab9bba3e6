package broadcast

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSRelay mirrors topic messages onto core NATS subjects. Core NATS keeps no
// backlog, which matches topic semantics.
type NATSRelay struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSRelay creates a relay publishing under prefix, e.g. "livequiz"
func NewNATSRelay(nc *nats.Conn, prefix string) *NATSRelay {
	return &NATSRelay{nc: nc, prefix: prefix}
}

// Subject returns the NATS subject a topic is mirrored to
func (r *NATSRelay) Subject(t Topic) string {
	return r.prefix + "." + string(t)
}

// Deliver implements Sink
func (r *NATSRelay) Deliver(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("topic", string(msg.Topic)).Msg("failed to marshal relay message")
		return
	}

	out := &nats.Msg{
		Subject: r.Subject(msg.Topic),
		Data:    data,
		Header: nats.Header{
			"Message-ID": []string{msg.ID},
			"Kind":       []string{string(msg.Kind)},
		},
	}
	if err := r.nc.PublishMsg(out); err != nil {
		log.Warn().Err(err).Str("subject", out.Subject).Msg("failed to relay message to NATS")
	}
}
