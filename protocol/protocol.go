// Package protocol builds outbound STOMP verb frames according to the
// negotiated protocol version and the broker dialect in use.
//
// Stomp implements the rules common to every broker; the ActiveMQ, RabbitMQ
// and Apollo types specialize individual verbs. ForServer selects the dialect
// from the CONNECTED server header.
package protocol

import (
	"fmt"
	"strings"

	"gostomp/frame"
)

// Error reports a verb that cannot be composed under the active version or
// dialect, such as NACK on STOMP 1.0 or an unknown ack mode.
type Error struct {
	Msg string
}

func (e *Error) Error() string {
	return "stomp protocol: " + e.Msg
}

func errorf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// ConnectOptions carries everything the CONNECT frame may need.
type ConnectOptions struct {
	Login    string
	Passcode string
	Host     string // vhost
	Versions []Version
	Beat     HeartBeat
}

// SubscribeOptions tunes SUBSCRIBE and UNSUBSCRIBE frames. Extra headers are
// passed through; dialects may validate or reject them.
type SubscribeOptions struct {
	Ack      string
	Selector string
	Durable  bool
	Extra    map[string]string
}

// Protocol composes outbound verb frames for one broker dialect.
type Protocol interface {
	ConnectFrame(opts ConnectOptions) *frame.Frame
	SubscribeFrame(destination, id string, opts SubscribeOptions) (*frame.Frame, error)
	UnsubscribeFrame(destination, id string, opts SubscribeOptions) (*frame.Frame, error)
	AckFrame(msg *frame.Frame, transaction string) *frame.Frame
	NackFrame(msg *frame.Frame, transaction string, requeue *bool) (*frame.Frame, error)
	BeginFrame(transaction string) *frame.Frame
	CommitFrame(transaction string) *frame.Frame
	AbortFrame(transaction string) *frame.Frame
	DisconnectFrame() *frame.Frame
	Version() Version
}

// ForServer picks the dialect matching a CONNECTED server header.
func ForServer(server string, v Version, clientID string) Protocol {
	base := NewStomp(v, clientID)
	switch {
	case strings.Contains(server, "ActiveMQ"):
		return NewActiveMQ(base)
	case strings.Contains(server, "RabbitMQ"):
		return NewRabbitMQ(base)
	case strings.Contains(strings.ToLower(server), "apollo"):
		return NewApollo(base)
	}
	return base
}

// Stomp is the generic, broker-agnostic dialect.
type Stomp struct {
	version  Version
	clientID string
}

// NewStomp returns the generic dialect for the given negotiated version.
// clientID may be empty.
func NewStomp(v Version, clientID string) *Stomp {
	return &Stomp{version: v, clientID: clientID}
}

// Version returns the negotiated protocol version.
func (s *Stomp) Version() Version {
	return s.version
}

// ClientID returns the configured client identity, if any.
func (s *Stomp) ClientID() string {
	return s.clientID
}

// ConnectFrame builds the CONNECT frame. CONNECT is always framed with the
// legacy escaping rules since no version has been negotiated yet.
func (s *Stomp) ConnectFrame(opts ConnectOptions) *frame.Frame {
	f := frame.New(frame.CmdConnect, nil)
	f.Legacy = true
	if opts.Login != "" || opts.Passcode != "" {
		f.Header.Set(frame.HdrLogin, opts.Login)
		f.Header.Set(frame.HdrPasscode, opts.Passcode)
	}
	if s.clientID != "" {
		f.Header.Set(frame.HdrClientID, s.clientID)
	}
	versions := opts.Versions
	if len(versions) == 0 {
		versions = AllVersions
	}
	f.Header.Set(frame.HdrAcceptVersion, VersionList(versions))
	if opts.Host != "" {
		f.Header.Set(frame.HdrHost, opts.Host)
	}
	f.Header.Set(frame.HdrHeartBeat, opts.Beat.String())
	return f
}

// SubscribeFrame builds a SUBSCRIBE frame, validating the ack mode against
// the active version. id may be empty on STOMP 1.0 only.
func (s *Stomp) SubscribeFrame(destination, id string, opts SubscribeOptions) (*frame.Frame, error) {
	ack := opts.Ack
	if ack == "" {
		ack = frame.AckAuto
	}
	if err := s.checkAckMode(ack); err != nil {
		return nil, err
	}
	f := frame.New(frame.CmdSubscribe, nil)
	f.Header.Set(frame.HdrDestination, destination)
	f.Header.Set(frame.HdrAck, ack)
	if id != "" {
		f.Header.Set(frame.HdrID, id)
	}
	if opts.Selector != "" {
		f.Header.Set(frame.HdrSelector, opts.Selector)
	}
	for k, v := range opts.Extra {
		f.Header.Set(k, v)
	}
	return f, nil
}

func (s *Stomp) checkAckMode(ack string) error {
	switch ack {
	case frame.AckAuto, frame.AckClient:
		return nil
	case frame.AckClientIndividual:
		if s.version.AtLeast(V11) {
			return nil
		}
		return errorf("ack mode %q requires STOMP 1.1 or later", ack)
	}
	return errorf("unsupported ack mode %q", ack)
}

// UnsubscribeFrame builds an UNSUBSCRIBE frame.
func (s *Stomp) UnsubscribeFrame(destination, id string, opts SubscribeOptions) (*frame.Frame, error) {
	f := frame.New(frame.CmdUnsubscribe, nil)
	f.Header.Set(frame.HdrDestination, destination)
	if id != "" {
		f.Header.Set(frame.HdrID, id)
	}
	return f, nil
}

// AckFrame acknowledges a received MESSAGE frame. Header composition is
// version dependent:
//
//	1.2: id = the message's ack header, falling back to message-id
//	1.1: message-id + subscription
//	1.0: message-id
func (s *Stomp) AckFrame(msg *frame.Frame, transaction string) *frame.Frame {
	f := frame.New(frame.CmdAck, nil)
	switch {
	case s.version.AtLeast(V12):
		id := msg.Header.Value(frame.HdrAck)
		if id == "" {
			id = msg.Header.Value(frame.HdrMessageID)
		}
		f.Header.Set(frame.HdrID, id)
	case s.version.AtLeast(V11):
		f.Header.Set(frame.HdrMessageID, msg.Header.Value(frame.HdrMessageID))
		f.Header.Set(frame.HdrSubscription, msg.Header.Value(frame.HdrSubscription))
	default:
		f.Header.Set(frame.HdrMessageID, msg.Header.Value(frame.HdrMessageID))
	}
	if transaction != "" {
		f.Header.Set(frame.HdrTransaction, transaction)
	}
	return f
}

// NackFrame rejects a received MESSAGE frame. NACK does not exist in STOMP
// 1.0, and the generic dialect has no requeue semantics.
func (s *Stomp) NackFrame(msg *frame.Frame, transaction string, requeue *bool) (*frame.Frame, error) {
	if s.version == V10 {
		return nil, errorf("NACK is not available in STOMP 1.0")
	}
	if requeue != nil {
		return nil, errorf("requeue is not supported by this broker dialect")
	}
	return s.nackFrame(msg, transaction), nil
}

// nackFrame composes the NACK headers without dialect checks. Unlike ACK,
// the 1.2 form always carries the message-id.
func (s *Stomp) nackFrame(msg *frame.Frame, transaction string) *frame.Frame {
	f := frame.New(frame.CmdNack, nil)
	if s.version.AtLeast(V12) {
		f.Header.Set(frame.HdrID, msg.Header.Value(frame.HdrMessageID))
	} else {
		f.Header.Set(frame.HdrMessageID, msg.Header.Value(frame.HdrMessageID))
		f.Header.Set(frame.HdrSubscription, msg.Header.Value(frame.HdrSubscription))
	}
	if transaction != "" {
		f.Header.Set(frame.HdrTransaction, transaction)
	}
	return f
}

// BeginFrame opens a transaction.
func (s *Stomp) BeginFrame(transaction string) *frame.Frame {
	return transactionFrame(frame.CmdBegin, transaction)
}

// CommitFrame commits a transaction.
func (s *Stomp) CommitFrame(transaction string) *frame.Frame {
	return transactionFrame(frame.CmdCommit, transaction)
}

// AbortFrame rolls back a transaction.
func (s *Stomp) AbortFrame(transaction string) *frame.Frame {
	return transactionFrame(frame.CmdAbort, transaction)
}

func transactionFrame(command, transaction string) *frame.Frame {
	f := frame.New(command, nil)
	f.Header.Set(frame.HdrTransaction, transaction)
	return f
}

// DisconnectFrame builds the DISCONNECT frame.
func (s *Stomp) DisconnectFrame() *frame.Frame {
	f := frame.New(frame.CmdDisconnect, nil)
	if s.clientID != "" {
		f.Header.Set(frame.HdrClientID, s.clientID)
	}
	return f
}
