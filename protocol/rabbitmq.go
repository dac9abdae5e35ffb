package protocol

import (
	"strconv"

	"gostomp/frame"
)

// RabbitMQ is the RabbitMQ STOMP plugin dialect.
type RabbitMQ struct {
	*Stomp

	// PrefetchCount caps the number of unacknowledged messages outstanding
	// on a subscription. Minimum 1.
	PrefetchCount int
}

// NewRabbitMQ wraps the generic dialect with RabbitMQ behavior.
func NewRabbitMQ(base *Stomp) *RabbitMQ {
	return &RabbitMQ{Stomp: base, PrefetchCount: 1}
}

// SubscribeFrame adds the prefetch count and marks durable subscriptions
// persistent.
func (r *RabbitMQ) SubscribeFrame(destination, id string, opts SubscribeOptions) (*frame.Frame, error) {
	f, err := r.Stomp.SubscribeFrame(destination, id, opts)
	if err != nil {
		return nil, err
	}
	if !f.Header.Has("prefetch-count") {
		count := r.PrefetchCount
		if count < 1 {
			count = 1
		}
		f.Header.Set("prefetch-count", strconv.Itoa(count))
	}
	if opts.Durable {
		f.Header.Set("persistent", "true")
	}
	return f, nil
}

// NackFrame rejects a message. RabbitMQ supports the requeue flag and it is
// emitted verbatim when the caller sets one.
func (r *RabbitMQ) NackFrame(msg *frame.Frame, transaction string, requeue *bool) (*frame.Frame, error) {
	if r.Version() == V10 {
		return nil, errorf("NACK is not available in STOMP 1.0")
	}
	f := r.nackFrame(msg, transaction)
	if requeue != nil {
		f.Header.Set("requeue", strconv.FormatBool(*requeue))
	}
	return f, nil
}
