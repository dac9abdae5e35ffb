package session

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostomp/brokertest"
	"gostomp/client"
	"gostomp/failover"
	"gostomp/frame"
	"gostomp/protocol"
	"gostomp/transport"
)

func newTestSession(t *testing.T, bcfg brokertest.Config) (*brokertest.Broker, *Session) {
	t.Helper()
	broker, err := brokertest.Start(bcfg)
	require.NoError(t, err)
	t.Cleanup(broker.Close)

	group, err := failover.Parse(broker.URI())
	require.NoError(t, err)
	c := client.New(transport.New(group, transport.Config{ReadTimeout: 2 * time.Second}), client.Config{})
	require.NoError(t, c.Connect())

	s := New(c)
	t.Cleanup(func() { s.Disconnect() })
	return broker, s
}

func waitCommands(t *testing.T, broker *brokertest.Broker, n int) []*frame.Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fs := broker.Received(); len(fs) >= n {
			return fs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("broker received %d frames, want at least %d", len(broker.Received()), n)
	return nil
}

func lastFrame(t *testing.T, broker *brokertest.Broker, n int) *frame.Frame {
	t.Helper()
	fs := waitCommands(t, broker, n)
	return fs[n-1]
}

func testMessage(id string) *frame.Frame {
	f := frame.New(frame.CmdMessage, []byte("payload-"+id))
	f.Header.Set(frame.HdrMessageID, id)
	return f
}

func TestStartsAsProducer(t *testing.T) {
	_, s := newTestSession(t, brokertest.Config{})
	assert.Equal(t, StateProducer, s.State())
	assert.Empty(t, s.TransactionID())
	assert.Empty(t, s.ActiveSubscriptions())
}

func TestProducerRejectsConsumerVerbs(t *testing.T) {
	_, s := newTestSession(t, brokertest.Config{})

	var ierr *InvalidStateError
	assert.ErrorAs(t, s.Ack(testMessage("m-1")), &ierr)
	assert.ErrorAs(t, s.Nack(testMessage("m-1"), nil), &ierr)
	assert.ErrorAs(t, s.Unsubscribe(1), &ierr)
	assert.ErrorAs(t, s.Commit(), &ierr)
	assert.ErrorAs(t, s.Abort(), &ierr)
	_, err := s.Read()
	assert.ErrorAs(t, err, &ierr)
	assert.Equal(t, StateProducer, s.State())
}

func TestProducerSend(t *testing.T) {
	broker, s := newTestSession(t, brokertest.Config{})

	require.NoError(t, s.SendBody("/queue/orders", []byte("order-1")))

	send := lastFrame(t, broker, 2)
	assert.Equal(t, frame.CmdSend, send.Command)
	assert.Equal(t, "/queue/orders", send.Header.Value(frame.HdrDestination))
	assert.False(t, send.Header.Has(frame.HdrTransaction))
}

func TestSubscribeTransitionsToConsumer(t *testing.T) {
	broker, s := newTestSession(t, brokertest.Config{})

	id, err := s.Subscribe("/queue/orders", protocol.SubscribeOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateConsumer, s.State())

	sub := lastFrame(t, broker, 2)
	assert.Equal(t, frame.CmdSubscribe, sub.Command)
	assert.Equal(t, "/queue/orders", sub.Header.Value(frame.HdrDestination))
	assert.Equal(t, strconv.Itoa(id), sub.Header.Value(frame.HdrID))
	assert.Equal(t, frame.AckAuto, sub.Header.Value(frame.HdrAck))

	subs := s.ActiveSubscriptions()
	require.Len(t, subs, 1)
	assert.Equal(t, id, subs[0].ID)
	assert.Equal(t, "/queue/orders", subs[0].Destination)
}

func TestSubscriptionFor(t *testing.T) {
	_, s := newTestSession(t, brokertest.Config{})
	id, err := s.Subscribe("/queue/orders", protocol.SubscribeOptions{})
	require.NoError(t, err)

	matched := testMessage("m-1")
	matched.Header.Set(frame.HdrSubscription, strconv.Itoa(id))
	require.NotNil(t, s.SubscriptionFor(matched))
	assert.Equal(t, id, s.SubscriptionFor(matched).ID)

	assert.Nil(t, s.SubscriptionFor(testMessage("m-2")))
}

func TestSubscribeInvalidAckMode(t *testing.T) {
	_, s := newTestSession(t, brokertest.Config{Version: "1.0"})

	_, err := s.Subscribe("/queue/orders", protocol.SubscribeOptions{
		Ack: frame.AckClientIndividual,
	})
	require.Error(t, err)
	assert.Equal(t, StateProducer, s.State())
	assert.Empty(t, s.ActiveSubscriptions())
}

func TestUnsubscribeReturnsToProducer(t *testing.T) {
	broker, s := newTestSession(t, brokertest.Config{})
	id, err := s.Subscribe("/queue/orders", protocol.SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Unsubscribe(id))
	assert.Equal(t, StateProducer, s.State())
	assert.Empty(t, s.ActiveSubscriptions())

	unsub := lastFrame(t, broker, 3)
	assert.Equal(t, frame.CmdUnsubscribe, unsub.Command)
	assert.Equal(t, strconv.Itoa(id), unsub.Header.Value(frame.HdrID))
}

func TestUnsubscribeKeepsConsumerWhileOthersRemain(t *testing.T) {
	_, s := newTestSession(t, brokertest.Config{})
	first, err := s.Subscribe("/queue/a", protocol.SubscribeOptions{})
	require.NoError(t, err)
	_, err = s.Subscribe("/queue/b", protocol.SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Unsubscribe(first))
	assert.Equal(t, StateConsumer, s.State())
	assert.Len(t, s.ActiveSubscriptions(), 1)
}

func TestUnsubscribeUnknownID(t *testing.T) {
	_, s := newTestSession(t, brokertest.Config{})
	_, err := s.Subscribe("/queue/orders", protocol.SubscribeOptions{})
	require.NoError(t, err)

	var ierr *InvalidStateError
	assert.ErrorAs(t, s.Unsubscribe(99999), &ierr)
	assert.Equal(t, StateConsumer, s.State())
}

func TestUnsubscribeDrainsBufferedMessages(t *testing.T) {
	broker, s := newTestSession(t, brokertest.Config{})
	id, err := s.Subscribe("/queue/orders", protocol.SubscribeOptions{})
	require.NoError(t, err)

	// In-flight messages land on the wire before the unsubscribe receipt,
	// so the client buffers them during the receipt wait.
	require.NoError(t, broker.Push(testMessage("m-1")))
	require.NoError(t, broker.Push(testMessage("m-2")))

	require.NoError(t, s.Unsubscribe(id))
	assert.Equal(t, StateDrainingConsumer, s.State())

	// Only draining reads are allowed until the buffer runs dry.
	var derr *DrainingMessageError
	_, err = s.Subscribe("/queue/other", protocol.SubscribeOptions{})
	assert.ErrorAs(t, err, &derr)
	assert.ErrorAs(t, s.Begin(), &derr)
	assert.ErrorAs(t, s.Unsubscribe(id), &derr)

	f, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, "m-1", f.Header.Value(frame.HdrMessageID))

	f, err = s.Read()
	require.NoError(t, err)
	assert.Equal(t, "m-2", f.Header.Value(frame.HdrMessageID))

	f, err = s.Read()
	require.NoError(t, err)
	assert.Nil(t, f, "end of drain yields no frame")
	assert.Equal(t, StateProducer, s.State())
}

func TestBeginCommit(t *testing.T) {
	broker, s := newTestSession(t, brokertest.Config{})

	require.NoError(t, s.Begin())
	assert.Equal(t, StateProducerTx, s.State())
	tx := s.TransactionID()
	require.NotEmpty(t, tx)

	begin := lastFrame(t, broker, 2)
	assert.Equal(t, frame.CmdBegin, begin.Command)
	assert.Equal(t, tx, begin.Header.Value(frame.HdrTransaction))

	require.NoError(t, s.SendBody("/queue/orders", []byte("in-tx")))
	send := lastFrame(t, broker, 3)
	assert.Equal(t, tx, send.Header.Value(frame.HdrTransaction))

	require.NoError(t, s.Commit())
	assert.Equal(t, StateProducer, s.State())
	assert.Empty(t, s.TransactionID())

	commit := lastFrame(t, broker, 4)
	assert.Equal(t, frame.CmdCommit, commit.Command)
	assert.Equal(t, tx, commit.Header.Value(frame.HdrTransaction))
}

func TestBeginAbort(t *testing.T) {
	broker, s := newTestSession(t, brokertest.Config{})

	require.NoError(t, s.Begin())
	tx := s.TransactionID()
	require.NoError(t, s.Abort())
	assert.Equal(t, StateProducer, s.State())

	abort := lastFrame(t, broker, 3)
	assert.Equal(t, frame.CmdAbort, abort.Command)
	assert.Equal(t, tx, abort.Header.Value(frame.HdrTransaction))
}

func TestNestedBeginRejected(t *testing.T) {
	_, s := newTestSession(t, brokertest.Config{})
	require.NoError(t, s.Begin())

	var ierr *InvalidStateError
	assert.ErrorAs(t, s.Begin(), &ierr)
	assert.Equal(t, StateProducerTx, s.State())
}

func TestConsumerTransaction(t *testing.T) {
	broker, s := newTestSession(t, brokertest.Config{})

	_, err := s.Subscribe("/queue/orders", protocol.SubscribeOptions{Ack: frame.AckClient})
	require.NoError(t, err)
	require.NoError(t, s.Begin())
	assert.Equal(t, StateConsumerTx, s.State())
	tx := s.TransactionID()

	msg := testMessage("m-1")
	msg.Header.Set(frame.HdrAck, "ack-1")
	require.NoError(t, s.Ack(msg))

	ack := lastFrame(t, broker, 4)
	assert.Equal(t, frame.CmdAck, ack.Command)
	assert.Equal(t, "ack-1", ack.Header.Value(frame.HdrID)) // 1.2 addressing
	assert.Equal(t, tx, ack.Header.Value(frame.HdrTransaction))

	require.NoError(t, s.Commit())
	assert.Equal(t, StateConsumer, s.State())
}

func TestConsumerNack(t *testing.T) {
	broker, s := newTestSession(t, brokertest.Config{})
	_, err := s.Subscribe("/queue/orders", protocol.SubscribeOptions{Ack: frame.AckClient})
	require.NoError(t, err)

	require.NoError(t, s.Nack(testMessage("m-1"), nil))
	nack := lastFrame(t, broker, 3)
	assert.Equal(t, frame.CmdNack, nack.Command)
	assert.Equal(t, "m-1", nack.Header.Value(frame.HdrID))
}

func TestNackRequeueRejectedByGenericDialect(t *testing.T) {
	_, s := newTestSession(t, brokertest.Config{})
	_, err := s.Subscribe("/queue/orders", protocol.SubscribeOptions{})
	require.NoError(t, err)

	requeue := true
	var perr *protocol.Error
	assert.ErrorAs(t, s.Nack(testMessage("m-1"), &requeue), &perr)
}

func TestDrainingTransactionHoldsSends(t *testing.T) {
	broker, s := newTestSession(t, brokertest.Config{})

	id, err := s.Subscribe("/queue/orders", protocol.SubscribeOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Begin())
	tx := s.TransactionID()

	require.NoError(t, broker.Push(testMessage("m-1")))
	require.NoError(t, s.Unsubscribe(id))
	assert.Equal(t, StateDrainingConsumerTx, s.State())
	assert.Equal(t, tx, s.TransactionID(), "transaction survives the drain")

	var derr *DrainingMessageError
	assert.ErrorAs(t, s.SendBody("/queue/other", nil), &derr)
	assert.ErrorAs(t, s.Commit(), &derr)

	// Acking the drained message inside the transaction is still legal.
	f, err := s.Read()
	require.NoError(t, err)
	require.NotNil(t, f)
	require.NoError(t, s.Ack(f))

	f, err = s.Read()
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, StateProducerTx, s.State())

	require.NoError(t, s.Commit())
	assert.Equal(t, StateProducer, s.State())
}

func TestReadDeliversPushedMessages(t *testing.T) {
	broker, s := newTestSession(t, brokertest.Config{})
	_, err := s.Subscribe("/queue/orders", protocol.SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, broker.Push(testMessage("m-1")))

	f, err := s.Read()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "m-1", f.Header.Value(frame.HdrMessageID))
	assert.Equal(t, "payload-m-1", f.BodyString())
}

func TestDisconnectResetsSession(t *testing.T) {
	_, s := newTestSession(t, brokertest.Config{})
	_, err := s.Subscribe("/queue/orders", protocol.SubscribeOptions{})
	require.NoError(t, err)
	require.NoError(t, s.Disconnect())

	assert.Equal(t, StateProducer, s.State())
	assert.Empty(t, s.ActiveSubscriptions())
	assert.False(t, s.Client().Connected())
}
