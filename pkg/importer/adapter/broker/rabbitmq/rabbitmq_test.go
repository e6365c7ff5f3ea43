package rabbitmq_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/payroll-import/pkg/importer/adapter/broker/rabbitmq"
	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	model "github.com/tigerroll/payroll-import/pkg/importer/core/domain/model"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/exception"
)

type declaredQueue struct {
	args amqp.Table
}

type binding struct {
	queue, key, exchange string
}

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	mu         sync.Mutex
	exchanges  []string
	queues     map[string]declaredQueue
	bindings   []binding
	published  []published
	publishErr error
	prefetch   int
	deliveries chan amqp.Delivery
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{queues: map[string]declaredQueue{}, deliveries: make(chan amqp.Delivery, 16)}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, name+"/"+kind)
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[name] = declaredQueue{args: args}
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings = append(f.bindings, binding{name, key, exchange})
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Cancel(consumer string, noWait bool) error { return nil }

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeOpener struct {
	mu       sync.Mutex
	channels []*fakeChannel
	opened   int
}

func (o *fakeOpener) Channel(ctx context.Context) (rabbitmq.Channel, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := o.channels[o.opened%len(o.channels)]
	o.opened++
	return ch, nil
}

type fakeAck struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
	done   chan struct{}
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	a.acked = append(a.acked, tag)
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func (a *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	if !requeue {
		a.nacked = append(a.nacked, tag)
	}
	a.mu.Unlock()
	a.done <- struct{}{}
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error { return a.Nack(tag, false, requeue) }

type recordingHandler struct {
	mu  sync.Mutex
	got []model.ChunkMessage
}

func (h *recordingHandler) HandleChunk(ctx context.Context, msg model.ChunkMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, msg)
}

func brokerConfig() config.BrokerConfig {
	return config.NewConfig().Importer.Broker
}

func TestDeclareTopology(t *testing.T) {
	ch := newFakeChannel()
	require.NoError(t, rabbitmq.DeclareTopology(ch, brokerConfig()))

	assert.ElementsMatch(t, []string{"importacion.exchange/direct", "importacion.dlx/direct"}, ch.exchanges)

	chunk := ch.queues["importacion.chunk.queue"].args
	assert.Equal(t, "importacion.dlx", chunk["x-dead-letter-exchange"])
	assert.Equal(t, "importacion.dlq", chunk["x-dead-letter-routing-key"])
	assert.Equal(t, int64(3600000), chunk["x-message-ttl"])
	assert.Equal(t, int64(100000), chunk["x-max-length"])

	assert.Equal(t, int64(86400000), ch.queues["importacion.dlq"].args["x-message-ttl"])
	assert.Contains(t, ch.queues, "importacion.notification.queue")

	assert.Contains(t, ch.bindings, binding{"importacion.chunk.queue", "importacion.chunk", "importacion.exchange"})
	assert.Contains(t, ch.bindings, binding{"importacion.dlq", "importacion.dlq", "importacion.dlx"})
	assert.Contains(t, ch.bindings, binding{"importacion.notification.queue", "importacion.notification", "importacion.exchange"})
}

func TestPublisher_PublishChunk(t *testing.T) {
	ch := newFakeChannel()
	p := rabbitmq.NewPublisher(&fakeOpener{channels: []*fakeChannel{ch}}, brokerConfig())

	msg := model.NewChunkMessage("job-1", "job-1_nomina.xlsx", "ops@example.com", model.ChunkRange{Index: 2, Start: 2001, End: 2500}, 3)
	require.NoError(t, p.PublishChunk(context.Background(), msg))

	require.Len(t, ch.published, 1)
	pub := ch.published[0]
	assert.Equal(t, "importacion.exchange", pub.exchange)
	assert.Equal(t, "importacion.chunk", pub.key)
	assert.Equal(t, "job-1:2", pub.msg.MessageId)
	assert.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)
	assert.Equal(t, "application/json", pub.msg.ContentType)

	var decoded model.ChunkMessage
	require.NoError(t, json.Unmarshal(pub.msg.Body, &decoded))
	assert.Equal(t, msg, decoded)
}

func TestPublisher_ReopensChannelAfterFailure(t *testing.T) {
	broken := newFakeChannel()
	broken.publishErr = errors.New("channel/connection is not open")
	healthy := newFakeChannel()
	opener := &fakeOpener{channels: []*fakeChannel{broken, healthy}}
	p := rabbitmq.NewPublisher(opener, brokerConfig())

	job := model.NewJob("job-2", "nomina.xlsx", "ops@example.com", "ref", 10)
	update := model.NewProgressUpdate(job, time.Now().UTC())

	err := p.PublishProgress(context.Background(), update)
	require.Error(t, err)
	assert.True(t, exception.IsTemporary(err))
	assert.True(t, broken.closed)

	require.NoError(t, p.PublishProgress(context.Background(), update))
	require.Len(t, healthy.published, 1)
	assert.Equal(t, "importacion.notification", healthy.published[0].key)
	assert.Equal(t, 2, opener.opened)
}

func TestConsumer_AcksHandledAndRejectsUndecodable(t *testing.T) {
	cfg := brokerConfig()
	cfg.Concurrency = 1
	ch := newFakeChannel()
	handler := &recordingHandler{}
	c := rabbitmq.NewConsumer(&fakeOpener{channels: []*fakeChannel{ch}}, handler, cfg)

	ack := &fakeAck{done: make(chan struct{}, 4)}
	good, err := json.Marshal(model.NewChunkMessage("job-3", "ref", "ops@example.com", model.ChunkRange{Index: 0, Start: 1, End: 1000}, 1))
	require.NoError(t, err)
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: good}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("{not json")}
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: []byte(`{"jobId":"job-3","startRow":10,"endRow":5}`)}

	c.Start(context.Background())
	for i := 0; i < 3; i++ {
		select {
		case <-ack.done:
		case <-time.After(2 * time.Second):
			t.Fatal("delivery was not settled")
		}
	}
	require.NoError(t, c.Stop(context.Background()))

	assert.Equal(t, []uint64{1}, ack.acked)
	assert.Equal(t, []uint64{2, 3}, ack.nacked)
	require.Len(t, handler.got, 1)
	assert.Equal(t, "job-3:0", handler.got[0].MessageID())
	assert.Equal(t, cfg.Prefetch, ch.prefetch)
}

func TestConsumer_WorkersAreBounded(t *testing.T) {
	cfg := brokerConfig()
	cfg.Concurrency = 25
	assert.Equal(t, 10, rabbitmq.NewConsumer(&fakeOpener{}, &recordingHandler{}, cfg).Workers())
	cfg.Concurrency = 0
	assert.Equal(t, 1, rabbitmq.NewConsumer(&fakeOpener{}, &recordingHandler{}, cfg).Workers())
}
