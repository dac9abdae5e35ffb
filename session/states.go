package session

import (
	"gostomp/frame"
	"gostomp/protocol"
)

func invalid(state, op string) error {
	return &InvalidStateError{State: state, Operation: op}
}

func draining(state, op string) error {
	return &DrainingMessageError{State: state, Operation: op}
}

// producerState: plain sends only; subscribe or begin leave it.
type producerState struct {
	session *Session
}

func (p *producerState) Name() string { return StateProducer }

func (p *producerState) Send(destination string, msg *frame.Frame) error {
	return p.session.sendMessage(destination, msg, "")
}

func (p *producerState) Subscribe(destination string, opts protocol.SubscribeOptions) (int, error) {
	sub, err := p.session.subscribe(destination, opts)
	if err != nil {
		return 0, err
	}
	p.session.setState(&consumerState{session: p.session})
	return sub.ID, nil
}

func (p *producerState) Begin() error {
	tx, err := p.session.begin()
	if err != nil {
		return err
	}
	p.session.setState(&producerTxState{session: p.session, tx: tx})
	return nil
}

func (p *producerState) Ack(*frame.Frame) error          { return invalid(p.Name(), "ack") }
func (p *producerState) Nack(*frame.Frame, *bool) error  { return invalid(p.Name(), "nack") }
func (p *producerState) Unsubscribe(int) error           { return invalid(p.Name(), "unsubscribe") }
func (p *producerState) Commit() error                   { return invalid(p.Name(), "commit") }
func (p *producerState) Abort() error                    { return invalid(p.Name(), "abort") }
func (p *producerState) Read() (*frame.Frame, error)     { return nil, invalid(p.Name(), "read") }

// consumerState: full verb set; removing the last subscription returns to
// producer, via draining when frames are still buffered.
type consumerState struct {
	session *Session
}

func (c *consumerState) Name() string { return StateConsumer }

func (c *consumerState) Send(destination string, msg *frame.Frame) error {
	return c.session.sendMessage(destination, msg, "")
}

func (c *consumerState) Ack(msg *frame.Frame) error {
	return c.session.ack(msg, "")
}

func (c *consumerState) Nack(msg *frame.Frame, requeue *bool) error {
	return c.session.nack(msg, "", requeue)
}

func (c *consumerState) Subscribe(destination string, opts protocol.SubscribeOptions) (int, error) {
	sub, err := c.session.subscribe(destination, opts)
	if err != nil {
		return 0, err
	}
	return sub.ID, nil
}

func (c *consumerState) Unsubscribe(id int) error {
	remaining, err := c.session.unsubscribe(id, c.Name())
	if err != nil || remaining > 0 {
		return err
	}
	if c.session.client.HasBufferedFrames() {
		c.session.setState(&drainingConsumerState{session: c.session})
	} else {
		c.session.setState(&producerState{session: c.session})
	}
	return nil
}

func (c *consumerState) Begin() error {
	tx, err := c.session.begin()
	if err != nil {
		return err
	}
	c.session.setState(&consumerTxState{session: c.session, tx: tx})
	return nil
}

func (c *consumerState) Read() (*frame.Frame, error) {
	return c.session.client.ReadFrame()
}

func (c *consumerState) Commit() error { return invalid(c.Name(), "commit") }
func (c *consumerState) Abort() error  { return invalid(c.Name(), "abort") }

// producerTxState: producer inside a transaction; sends carry the
// transaction header.
type producerTxState struct {
	session *Session
	tx      string
}

func (p *producerTxState) Name() string          { return StateProducerTx }
func (p *producerTxState) transactionID() string { return p.tx }

func (p *producerTxState) Send(destination string, msg *frame.Frame) error {
	return p.session.sendMessage(destination, msg, p.tx)
}

func (p *producerTxState) Subscribe(destination string, opts protocol.SubscribeOptions) (int, error) {
	sub, err := p.session.subscribe(destination, opts)
	if err != nil {
		return 0, err
	}
	p.session.setState(&consumerTxState{session: p.session, tx: p.tx})
	return sub.ID, nil
}

func (p *producerTxState) Begin() error {
	return invalid(p.Name(), "begin (transaction already open)")
}

func (p *producerTxState) Commit() error {
	if err := p.session.client.SendFrame(p.session.proto().CommitFrame(p.tx)); err != nil {
		return err
	}
	p.session.setState(&producerState{session: p.session})
	return nil
}

func (p *producerTxState) Abort() error {
	if err := p.session.client.SendFrame(p.session.proto().AbortFrame(p.tx)); err != nil {
		return err
	}
	p.session.setState(&producerState{session: p.session})
	return nil
}

func (p *producerTxState) Ack(*frame.Frame) error         { return invalid(p.Name(), "ack") }
func (p *producerTxState) Nack(*frame.Frame, *bool) error { return invalid(p.Name(), "nack") }
func (p *producerTxState) Unsubscribe(int) error          { return invalid(p.Name(), "unsubscribe") }
func (p *producerTxState) Read() (*frame.Frame, error)    { return nil, invalid(p.Name(), "read") }

// consumerTxState: consumer inside a transaction; sends and acks carry the
// transaction header.
type consumerTxState struct {
	session *Session
	tx      string
}

func (c *consumerTxState) Name() string          { return StateConsumerTx }
func (c *consumerTxState) transactionID() string { return c.tx }

func (c *consumerTxState) Send(destination string, msg *frame.Frame) error {
	return c.session.sendMessage(destination, msg, c.tx)
}

func (c *consumerTxState) Ack(msg *frame.Frame) error {
	return c.session.ack(msg, c.tx)
}

func (c *consumerTxState) Nack(msg *frame.Frame, requeue *bool) error {
	return c.session.nack(msg, c.tx, requeue)
}

func (c *consumerTxState) Subscribe(destination string, opts protocol.SubscribeOptions) (int, error) {
	sub, err := c.session.subscribe(destination, opts)
	if err != nil {
		return 0, err
	}
	return sub.ID, nil
}

func (c *consumerTxState) Unsubscribe(id int) error {
	remaining, err := c.session.unsubscribe(id, c.Name())
	if err != nil || remaining > 0 {
		return err
	}
	if c.session.client.HasBufferedFrames() {
		c.session.setState(&drainingConsumerTxState{session: c.session, tx: c.tx})
	} else {
		c.session.setState(&producerTxState{session: c.session, tx: c.tx})
	}
	return nil
}

func (c *consumerTxState) Begin() error {
	return invalid(c.Name(), "begin (transaction already open)")
}

func (c *consumerTxState) Commit() error {
	if err := c.session.client.SendFrame(c.session.proto().CommitFrame(c.tx)); err != nil {
		return err
	}
	c.session.setState(&consumerState{session: c.session})
	return nil
}

func (c *consumerTxState) Abort() error {
	if err := c.session.client.SendFrame(c.session.proto().AbortFrame(c.tx)); err != nil {
		return err
	}
	c.session.setState(&consumerState{session: c.session})
	return nil
}

func (c *consumerTxState) Read() (*frame.Frame, error) {
	return c.session.client.ReadFrame()
}

// drainingConsumerState: the last subscription is gone but buffered frames
// remain; only those may be read before the session becomes a producer.
type drainingConsumerState struct {
	session *Session
}

func (d *drainingConsumerState) Name() string { return StateDrainingConsumer }

func (d *drainingConsumerState) Send(destination string, msg *frame.Frame) error {
	return d.session.sendMessage(destination, msg, "")
}

func (d *drainingConsumerState) Ack(msg *frame.Frame) error {
	return d.session.ack(msg, "")
}

func (d *drainingConsumerState) Nack(msg *frame.Frame, requeue *bool) error {
	return d.session.nack(msg, "", requeue)
}

func (d *drainingConsumerState) Read() (*frame.Frame, error) {
	f, err := d.session.client.ReadBuffered()
	if err != nil {
		return nil, err
	}
	if f == nil {
		d.session.setState(&producerState{session: d.session})
		return nil, nil
	}
	return f, nil
}

func (d *drainingConsumerState) Subscribe(string, protocol.SubscribeOptions) (int, error) {
	return 0, draining(d.Name(), "subscribe")
}
func (d *drainingConsumerState) Unsubscribe(int) error { return draining(d.Name(), "unsubscribe") }
func (d *drainingConsumerState) Begin() error          { return draining(d.Name(), "begin") }
func (d *drainingConsumerState) Commit() error         { return draining(d.Name(), "commit") }
func (d *drainingConsumerState) Abort() error          { return draining(d.Name(), "abort") }

// drainingConsumerTxState: like drainingConsumerState but inside a
// transaction; even sends must wait, and commit/abort are deferred until
// the drain completes.
type drainingConsumerTxState struct {
	session *Session
	tx      string
}

func (d *drainingConsumerTxState) Name() string          { return StateDrainingConsumerTx }
func (d *drainingConsumerTxState) transactionID() string { return d.tx }

func (d *drainingConsumerTxState) Ack(msg *frame.Frame) error {
	return d.session.ack(msg, d.tx)
}

func (d *drainingConsumerTxState) Nack(msg *frame.Frame, requeue *bool) error {
	return d.session.nack(msg, d.tx, requeue)
}

func (d *drainingConsumerTxState) Read() (*frame.Frame, error) {
	f, err := d.session.client.ReadBuffered()
	if err != nil {
		return nil, err
	}
	if f == nil {
		d.session.setState(&producerTxState{session: d.session, tx: d.tx})
		return nil, nil
	}
	return f, nil
}

func (d *drainingConsumerTxState) Send(string, *frame.Frame) error {
	return draining(d.Name(), "send")
}
func (d *drainingConsumerTxState) Subscribe(string, protocol.SubscribeOptions) (int, error) {
	return 0, draining(d.Name(), "subscribe")
}
func (d *drainingConsumerTxState) Unsubscribe(int) error { return draining(d.Name(), "unsubscribe") }
func (d *drainingConsumerTxState) Begin() error          { return draining(d.Name(), "begin") }
func (d *drainingConsumerTxState) Commit() error         { return draining(d.Name(), "commit") }
func (d *drainingConsumerTxState) Abort() error          { return draining(d.Name(), "abort") }
