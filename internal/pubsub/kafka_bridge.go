package pubsub

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/groshare/groupbuy/internal/infrastructure/kafka"
)

// Topic carries every order lifecycle event; the message key is the order id
// so all events of one order stay in partition order.
const Topic = "group-orders.events"

// KafkaBridge forwards hub events to Kafka so out-of-process consumers (the
// notifier daemon) see the same stream as in-process subscribers. Publish
// failures are logged, never propagated: the committed lifecycle state is the
// single source of truth.
type KafkaBridge struct {
	producer *kafka.Producer
	log      *logrus.Logger
}

func NewKafkaBridge(producer *kafka.Producer, log *logrus.Logger) *KafkaBridge {
	return &KafkaBridge{producer: producer, log: log}
}

// Run drains the hub's global feed until ctx is cancelled.
func (b *KafkaBridge) Run(ctx context.Context, hub *Hub) error {
	events, cancel := hub.SubscribeGlobal()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := b.producer.Publish(ctx, ev.OrderID, ev); err != nil {
				b.log.WithFields(logrus.Fields{
					"component": "kafka-bridge",
					"order_id":  ev.OrderID,
					"event":     ev.Type,
				}).WithError(err).Error("publish event")
			}
		}
	}
}
