// Package session layers a producer/consumer state machine over the client.
//
// The session starts as a producer. Subscribing turns it into a consumer,
// BEGIN moves it into the matching in-transaction state, and removing the
// last subscription either returns it to a producer or parks it in a
// draining state until every buffered frame has been read. Each state
// defines which STOMP verbs are legal; anything else fails with
// InvalidStateError or DrainingMessageError.
package session

import (
	"strconv"

	"github.com/google/uuid"

	"gostomp/client"
	"gostomp/frame"
	"gostomp/ids"
	"gostomp/protocol"
)

// State names as reported by Session.State and carried in errors.
const (
	StateProducer           = "producer"
	StateConsumer           = "consumer"
	StateProducerTx         = "producer-in-transaction"
	StateConsumerTx         = "consumer-in-transaction"
	StateDrainingConsumer   = "draining-consumer"
	StateDrainingConsumerTx = "draining-consumer-in-transaction"
)

// state is the behavior of the session in one of its modes. Exactly one
// state is installed at a time; transitions happen by the active state
// replacing itself through Session.setState.
type state interface {
	Name() string

	Send(destination string, msg *frame.Frame) error
	Ack(msg *frame.Frame) error
	Nack(msg *frame.Frame, requeue *bool) error
	Subscribe(destination string, opts protocol.SubscribeOptions) (int, error)
	Unsubscribe(id int) error
	Begin() error
	Commit() error
	Abort() error
	Read() (*frame.Frame, error)
}

// Session is the stateful façade. It owns the subscription registry and
// mediates state transitions.
type Session struct {
	client *client.Client
	state  state
	subs   subscriptionList
}

// New wraps a connected client, starting in the producer state.
func New(c *client.Client) *Session {
	s := &Session{client: c}
	s.state = &producerState{session: s}
	return s
}

// Client returns the underlying session client.
func (s *Session) Client() *client.Client {
	return s.client
}

// State names the currently active state.
func (s *Session) State() string {
	return s.state.Name()
}

// ActiveSubscriptions returns the subscriptions in insertion order.
func (s *Session) ActiveSubscriptions() []Subscription {
	return s.subs.all()
}

// SubscriptionFor looks up the subscription a MESSAGE frame belongs to.
// Nil means the frame matched no active subscription; such frames are still
// delivered by Read.
func (s *Session) SubscriptionFor(f *frame.Frame) *Subscription {
	return s.subs.byFrame(f)
}

// Send transmits msg as a SEND frame to the destination. In a transaction
// state the transaction header is injected.
func (s *Session) Send(destination string, msg *frame.Frame) error {
	return s.state.Send(destination, msg)
}

// SendBody is a convenience Send for plain byte payloads.
func (s *Session) SendBody(destination string, body []byte) error {
	return s.state.Send(destination, frame.New(frame.CmdSend, body))
}

// Ack acknowledges a received MESSAGE frame.
func (s *Session) Ack(msg *frame.Frame) error {
	return s.state.Ack(msg)
}

// Nack rejects a received MESSAGE frame. requeue is honored only by
// dialects that support it and may be nil.
func (s *Session) Nack(msg *frame.Frame, requeue *bool) error {
	return s.state.Nack(msg, requeue)
}

// Subscribe registers a subscription and returns its session-local id.
func (s *Session) Subscribe(destination string, opts protocol.SubscribeOptions) (int, error) {
	return s.state.Subscribe(destination, opts)
}

// Unsubscribe removes the subscription with the given id.
func (s *Session) Unsubscribe(id int) error {
	return s.state.Unsubscribe(id)
}

// Begin opens a transaction. Nested transactions are rejected.
func (s *Session) Begin() error {
	return s.state.Begin()
}

// Commit commits the open transaction.
func (s *Session) Commit() error {
	return s.state.Commit()
}

// Abort rolls back the open transaction.
func (s *Session) Abort() error {
	return s.state.Abort()
}

// Read returns the next inbound frame. In the draining states only buffered
// frames are yielded; a nil frame marks the end of the drain and the
// transition back to a producer state.
func (s *Session) Read() (*frame.Frame, error) {
	return s.state.Read()
}

// TransactionID returns the open transaction id, or empty outside of a
// transaction.
func (s *Session) TransactionID() string {
	if tx, ok := s.state.(interface{ transactionID() string }); ok {
		return tx.transactionID()
	}
	return ""
}

// Disconnect tears down the session and its client.
func (s *Session) Disconnect() error {
	for _, sub := range s.subs.all() {
		ids.Release(sub.ID)
	}
	s.subs = subscriptionList{}
	s.state = &producerState{session: s}
	return s.client.Disconnect()
}

func (s *Session) setState(next state) {
	s.state = next
}

func (s *Session) proto() protocol.Protocol {
	return s.client.Protocol()
}

// sendMessage shapes msg into a SEND frame and writes it.
func (s *Session) sendMessage(destination string, msg *frame.Frame, tx string) error {
	if msg.Command == "" {
		msg.Command = frame.CmdSend
	}
	msg.Header.Set(frame.HdrDestination, destination)
	if tx != "" {
		msg.Header.Set(frame.HdrTransaction, tx)
	}
	return s.client.SendFrame(msg)
}

// subscribe writes the SUBSCRIBE frame and registers the subscription.
func (s *Session) subscribe(destination string, opts protocol.SubscribeOptions) (*Subscription, error) {
	id, err := ids.Generate()
	if err != nil {
		return nil, err
	}
	f, err := s.proto().SubscribeFrame(destination, strconv.Itoa(id), opts)
	if err != nil {
		ids.Release(id)
		return nil, err
	}
	if err := s.client.SendFrame(f); err != nil {
		ids.Release(id)
		return nil, err
	}
	sub := &Subscription{ID: id, Destination: destination, Opts: opts}
	s.subs.add(sub)
	return sub, nil
}

// unsubscribe writes the UNSUBSCRIBE frame for a registered subscription
// and releases its id. Reports whether any subscription remains.
func (s *Session) unsubscribe(id int, stateName string) (remaining int, err error) {
	sub := s.subs.remove(id)
	if sub == nil {
		return s.subs.len(), &InvalidStateError{State: stateName, Operation: "unsubscribe unknown id " + strconv.Itoa(id)}
	}
	f, err := s.proto().UnsubscribeFrame(sub.Destination, strconv.Itoa(sub.ID), sub.Opts)
	if err != nil {
		s.subs.add(sub)
		return s.subs.len(), err
	}
	if err := s.client.SendFrame(f); err != nil {
		s.subs.add(sub)
		return s.subs.len(), err
	}
	ids.Release(sub.ID)
	return s.subs.len(), nil
}

// begin opens a transaction on the broker and returns its id.
func (s *Session) begin() (string, error) {
	tx := uuid.NewString()
	if err := s.client.SendFrame(s.proto().BeginFrame(tx)); err != nil {
		return "", err
	}
	return tx, nil
}

// ack sends the dialect's ACK for msg, asynchronously: acknowledgements are
// fire-and-forget even on synchronous sessions.
func (s *Session) ack(msg *frame.Frame, tx string) error {
	return s.client.SendFrameSync(s.proto().AckFrame(msg, tx), false)
}

// nack sends the dialect's NACK for msg.
func (s *Session) nack(msg *frame.Frame, tx string, requeue *bool) error {
	f, err := s.proto().NackFrame(msg, tx, requeue)
	if err != nil {
		return err
	}
	return s.client.SendFrameSync(f, false)
}
