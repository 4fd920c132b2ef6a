package job

import (
	"context"
	"errors"
	"sync"
	"testing"

	"marketplace/internal/infrastructure/mq"
	"marketplace/internal/model"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu       sync.Mutex
	pending  []*model.OutboxMessage
	listErr  error
	sent     []int64
	failures map[int64]int
}

func newFakeQueue(msgs ...*model.OutboxMessage) *fakeQueue {
	return &fakeQueue{pending: msgs, failures: map[int64]int{}}
}

func (q *fakeQueue) ListPending(_ context.Context, limit int) ([]*model.OutboxMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.listErr != nil {
		return nil, q.listErr
	}
	if len(q.pending) > limit {
		return q.pending[:limit], nil
	}
	return q.pending, nil
}

func (q *fakeQueue) MarkSent(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, id)
	return nil
}

func (q *fakeQueue) RecordFailure(_ context.Context, id int64, _ int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failures[id]++
	return nil
}

type fakePublisher struct {
	failKeys map[string]bool
	got      []string
}

func (p *fakePublisher) Publish(topic, key, value string) error {
	if p.failKeys[key] {
		return errors.New("broker unavailable")
	}
	p.got = append(p.got, topic+"/"+key)
	return nil
}

func outboxMsg(id int64, key string) *model.OutboxMessage {
	return &model.OutboxMessage{
		ID:         id,
		MessageKey: key,
		Topic:      "marketplace.order.settled",
		Payload:    `{"event":"order.settled","order_no":"` + key + `"}`,
		Status:     model.OutboxStatusPending,
	}
}

func TestOutboxSender_ProcessPending(t *testing.T) {
	queue := newFakeQueue(outboxMsg(1, "ORD1"), outboxMsg(2, "ORD2"), outboxMsg(3, "ORD3"))
	pub := &fakePublisher{failKeys: map[string]bool{"ORD2": true}}
	sender := NewOutboxSender(queue, pub, 0, 10, 3)

	sent := sender.ProcessPending(context.Background())

	assert.Equal(t, 2, sent)
	assert.Equal(t, []int64{1, 3}, queue.sent)
	assert.Equal(t, 1, queue.failures[2])
	assert.Equal(t, []string{"marketplace.order.settled/ORD1", "marketplace.order.settled/ORD3"}, pub.got)
}

func TestOutboxSender_BatchSize(t *testing.T) {
	queue := newFakeQueue(outboxMsg(1, "A"), outboxMsg(2, "B"), outboxMsg(3, "C"))
	sender := NewOutboxSender(queue, &fakePublisher{}, 0, 2, 3)

	assert.Equal(t, 2, sender.ProcessPending(context.Background()))
	assert.Equal(t, []int64{1, 2}, queue.sent)
}

func TestOutboxSender_ListError(t *testing.T) {
	queue := newFakeQueue()
	queue.listErr = errors.New("db down")
	pub := &fakePublisher{}
	sender := NewOutboxSender(queue, pub, 0, 0, 0)

	assert.Equal(t, 0, sender.ProcessPending(context.Background()))
	assert.Empty(t, pub.got)
}

func TestOutboxSender_KafkaPublisher(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mq.NewProducerConfig())
	producer.ExpectSendMessageAndSucceed()
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	queue := newFakeQueue(outboxMsg(1, "ORD1"), outboxMsg(2, "ORD2"))
	publisher := mq.NewPublisher(producer)
	sender := NewOutboxSender(queue, publisher, 0, 10, 5)

	assert.Equal(t, 1, sender.ProcessPending(context.Background()))
	assert.Equal(t, []int64{1}, queue.sent)
	assert.Equal(t, 1, queue.failures[2])
	require.NoError(t, publisher.Close())
}

func TestOutboxSender_StartStop(t *testing.T) {
	sender := NewOutboxSender(newFakeQueue(), &fakePublisher{}, 0, 0, 0)

	done := make(chan struct{})
	go func() {
		sender.Start(context.Background())
		close(done)
	}()
	sender.Stop()
	<-done
}
