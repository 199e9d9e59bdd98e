// Package notification delivers best-effort participant notifications.
// Failures are logged, never returned to the lifecycle path: a lost mail must
// not unwind a committed transition.
package notification

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/groshare/groupbuy/internal/domain/order"
	"github.com/groshare/groupbuy/internal/email"
)

// Notifier is invoked by the lifecycle service after a transition commits.
type Notifier interface {
	OrderLocked(ctx context.Context, o *order.Order)
	OrderCompleted(ctx context.Context, o *order.Order)
}

// Directory resolves a user id to an email address. Identity management is an
// external collaborator; this is the only piece of it the notifier needs.
type Directory interface {
	Email(ctx context.Context, userID string) (string, error)
}

// StaticDirectory is a fixed user-id-to-address map, used in development.
type StaticDirectory map[string]string

func (d StaticDirectory) Email(ctx context.Context, userID string) (string, error) {
	addr, ok := d[userID]
	if !ok {
		return "", order.ErrNotFound
	}
	return addr, nil
}

// LogNotifier only logs, for deployments without an SMTP relay.
type LogNotifier struct {
	Log *logrus.Logger
}

func (n LogNotifier) OrderLocked(ctx context.Context, o *order.Order) {
	n.Log.WithFields(logrus.Fields{
		"component": "notifier",
		"order_id":  o.ID,
	}).Info("order locked, participants would be notified")
}

func (n LogNotifier) OrderCompleted(ctx context.Context, o *order.Order) {
	n.Log.WithFields(logrus.Fields{
		"component": "notifier",
		"order_id":  o.ID,
	}).Info("order completed, participants would be notified")
}

// EmailNotifier mails every participant (and the organizer) on lifecycle
// milestones.
type EmailNotifier struct {
	mailer    *email.Service
	directory Directory
	log       *logrus.Logger
}

func NewEmailNotifier(mailer *email.Service, directory Directory, log *logrus.Logger) *EmailNotifier {
	return &EmailNotifier{mailer: mailer, directory: directory, log: log}
}

func (n *EmailNotifier) OrderLocked(ctx context.Context, o *order.Order) {
	n.fanOut(ctx, o, "order locked", n.mailer.SendOrderLocked)
}

func (n *EmailNotifier) OrderCompleted(ctx context.Context, o *order.Order) {
	n.fanOut(ctx, o, "order completed", n.mailer.SendOrderCompleted)
}

func (n *EmailNotifier) fanOut(ctx context.Context, o *order.Order, what string, send func(string, *order.Order) error) {
	recipients := map[string]struct{}{o.Organizer: {}}
	for i := range o.Participants {
		recipients[o.Participants[i].UserID] = struct{}{}
	}

	for userID := range recipients {
		addr, err := n.directory.Email(ctx, userID)
		if err != nil {
			n.log.WithFields(logrus.Fields{
				"component": "notifier",
				"order_id":  o.ID,
				"user_id":   userID,
			}).WithError(err).Warn("no address for participant")
			continue
		}
		if err := send(addr, o); err != nil {
			n.log.WithFields(logrus.Fields{
				"component": "notifier",
				"order_id":  o.ID,
				"user_id":   userID,
			}).WithError(err).Errorf("send %s mail", what)
		}
	}
}
