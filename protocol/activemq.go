package protocol

import (
	"strconv"

	"gostomp/frame"
)

// ActiveMQ broker extension headers accepted on SUBSCRIBE.
const (
	amqDispatchAsync     = "activemq.dispatchAsync"
	amqExclusive         = "activemq.exclusive"
	amqMaxPendingLimit   = "activemq.maximumPendingMessageLimit"
	amqNoLocal           = "activemq.noLocal"
	amqPrefetchSize      = "activemq.prefetchSize"
	amqPriority          = "activemq.priority"
	amqRetroactive       = "activemq.retroactive"
	amqSubscriptionName  = "activemq.subscriptionName"
	hdrDurableSubscriber = "durable-subscriber-name"
)

// ActiveMQ is the Apache ActiveMQ dialect.
type ActiveMQ struct {
	*Stomp

	// PrefetchSize caps the number of unacknowledged messages the broker
	// dispatches to a subscription. Minimum 1.
	PrefetchSize int
}

// NewActiveMQ wraps the generic dialect with ActiveMQ behavior.
func NewActiveMQ(base *Stomp) *ActiveMQ {
	return &ActiveMQ{Stomp: base, PrefetchSize: 1}
}

// SubscribeFrame adds the prefetch size and, for durable subscriptions, the
// subscription naming headers ActiveMQ expects.
func (a *ActiveMQ) SubscribeFrame(destination, id string, opts SubscribeOptions) (*frame.Frame, error) {
	if err := a.checkExtensions(opts.Extra); err != nil {
		return nil, err
	}
	f, err := a.Stomp.SubscribeFrame(destination, id, opts)
	if err != nil {
		return nil, err
	}
	if !f.Header.Has(amqPrefetchSize) {
		size := a.PrefetchSize
		if size < 1 {
			size = 1
		}
		f.Header.Set(amqPrefetchSize, strconv.Itoa(size))
	}
	if opts.Durable {
		f.Header.Set(amqSubscriptionName, a.ClientID())
		f.Header.Set(hdrDurableSubscriber, id)
	}
	return f, nil
}

// UnsubscribeFrame mirrors the durable naming headers so the broker can
// resolve which durable subscription to drop.
func (a *ActiveMQ) UnsubscribeFrame(destination, id string, opts SubscribeOptions) (*frame.Frame, error) {
	f, err := a.Stomp.UnsubscribeFrame(destination, id, opts)
	if err != nil {
		return nil, err
	}
	if opts.Durable {
		f.Header.Set(amqSubscriptionName, a.ClientID())
		f.Header.Set(hdrDurableSubscriber, id)
	}
	return f, nil
}

// NackFrame rejects a message. ActiveMQ has no requeue control; at 1.2 the
// broker-assigned ack header is preferred over the message-id, matching its
// ACK addressing.
func (a *ActiveMQ) NackFrame(msg *frame.Frame, transaction string, requeue *bool) (*frame.Frame, error) {
	if a.Version() == V10 {
		return nil, errorf("NACK is not available in STOMP 1.0")
	}
	if requeue != nil {
		return nil, errorf("requeue is not supported by ActiveMQ")
	}
	f := a.nackFrame(msg, transaction)
	if a.Version().AtLeast(V12) {
		if ack := msg.Header.Value(frame.HdrAck); ack != "" {
			f.Header.Set(frame.HdrID, ack)
		}
	}
	return f, nil
}

// checkExtensions validates broker tuning headers against the documented
// ActiveMQ set and value ranges.
func (a *ActiveMQ) checkExtensions(extra map[string]string) error {
	for k, v := range extra {
		switch k {
		case amqDispatchAsync, amqExclusive, amqNoLocal, amqRetroactive,
			amqMaxPendingLimit, amqSubscriptionName:
		case amqPrefetchSize:
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return errorf("%s must be an integer >= 1, got %q", amqPrefetchSize, v)
			}
		case amqPriority:
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 || n > 127 {
				return errorf("%s must be in [0,127], got %q", amqPriority, v)
			}
		default:
			if len(k) > 9 && k[:9] == "activemq." {
				return errorf("unknown ActiveMQ extension header %q", k)
			}
		}
	}
	return nil
}
