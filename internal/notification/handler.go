package notification

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/groshare/groupbuy/internal/pubsub"
)

// Handler feeds bridge events from Kafka into a Notifier. It runs in the
// notifier daemon, out of process from the lifecycle engine.
type Handler struct {
	notifier Notifier
	log      *logrus.Logger
}

func NewHandler(notifier Notifier, log *logrus.Logger) *Handler {
	return &Handler{notifier: notifier, log: log}
}

// HandleEvent processes one event from Kafka.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var ev pubsub.Event
	if err := json.Unmarshal(value, &ev); err != nil {
		h.log.WithField("component", "notifier").WithError(err).Error("unmarshal event")
		return err
	}
	if ev.Order == nil {
		return nil
	}

	switch ev.Type {
	case pubsub.EventOrderLocked:
		h.notifier.OrderLocked(ctx, ev.Order)
	case pubsub.EventOrderCompleted:
		h.notifier.OrderCompleted(ctx, ev.Order)
	}
	return nil
}
