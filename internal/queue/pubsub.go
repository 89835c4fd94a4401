package queue

import (
	"context"
	"encoding/json"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

// PubSub is a TaskQueue backed by a Google Cloud Pub/Sub topic and
// subscription. It authenticates with Application Default Credentials.
type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	tasks  chan monitor.ReportTask
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// NewPubSub connects to Pub/Sub and starts receiving tasks. The topic
// and subscription must already exist; provisioning is an operations
// concern.
func NewPubSub(ctx context.Context, projectID, topicID, subscriptionID string, logger *zap.Logger) (*PubSub, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "create pubsub client")
	}

	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "check topic %s", topicID)
	}
	if !ok {
		_ = client.Close()
		return nil, eris.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	q := &PubSub{
		client: client,
		topic:  topic,
		sub:    client.Subscription(subscriptionID),
		logger: logger,
		tasks:  make(chan monitor.ReportTask, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go q.receive(recvCtx)
	return q, nil
}

// Enqueue publishes a task and waits for the server acknowledgment, so
// callers can treat a returned error as "not queued".
func (q *PubSub) Enqueue(ctx context.Context, task monitor.ReportTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return eris.Wrap(err, "encode task")
	}
	if _, err := q.topic.Publish(ctx, &pubsub.Message{Data: data}).Get(ctx); err != nil {
		return monitor.Transient(eris.Wrap(err, "publish task"), 0)
	}
	return nil
}

// Dequeue returns the next received task.
func (q *PubSub) Dequeue(ctx context.Context) (monitor.ReportTask, error) {
	select {
	case task, ok := <-q.tasks:
		if !ok {
			return monitor.ReportTask{}, ErrClosed
		}
		return task, nil
	case <-ctx.Done():
		return monitor.ReportTask{}, ctx.Err()
	}
}

func (q *PubSub) receive(ctx context.Context) {
	defer close(q.done)

	err := q.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		var task monitor.ReportTask
		if err := json.Unmarshal(msg.Data, &task); err != nil {
			q.logger.Error("dropping undecodable task message", zap.Error(err))
			msg.Ack()
			return
		}
		select {
		case q.tasks <- task:
			msg.Ack()
		case <-ctx.Done():
			msg.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		q.logger.Error("pubsub receive stopped", zap.Error(err))
	}
	close(q.tasks)
}

// Close stops receiving, flushes pending publishes, and closes the
// client.
func (q *PubSub) Close() error {
	var err error
	q.once.Do(func() {
		q.cancel()
		<-q.done
		q.topic.Stop()
		err = q.client.Close()
	})
	if err != nil {
		return eris.Wrap(err, "close pubsub client")
	}
	return nil
}
