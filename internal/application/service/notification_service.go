package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// NotificationService fans transition events out to every configured sink
type NotificationService interface {
	// Attach subscribes the service to every transition event of the dispatcher
	Attach(d dispatcher.Dispatcher)

	// Notify delivers one event to all sinks; a failing sink does not stop the others
	Notify(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	notifiers []port.Notifier
	logger    Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(notifiers []port.Notifier, logger Logger) NotificationService {
	return &notificationServiceImpl{
		notifiers: notifiers,
		logger:    logger,
	}
}

func (s *notificationServiceImpl) Attach(d dispatcher.Dispatcher) {
	d.SubscribeAll("notification-service", s.Notify)
}

func (s *notificationServiceImpl) Notify(ctx context.Context, evt *event.Event) error {
	var errs []error
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, evt); err != nil {
			s.logger.Error("Notifier failed",
				"notifier", n.Name(),
				"event_type", evt.Type,
				"expense_id", evt.ExpenseID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	s.logger.Info("Transition notified",
		"event_type", evt.Type,
		"expense_id", evt.ExpenseID,
		"sinks", len(s.notifiers),
	)
	return nil
}
