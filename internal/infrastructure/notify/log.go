package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// LogNotifier writes every transition to the application log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier backed by zap
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

// Name identifies the sink
func (n *LogNotifier) Name() string { return "log" }

// Notify logs the event at info level
func (n *LogNotifier) Notify(ctx context.Context, evt *event.Event) error {
	utils.ForExpense(n.logger, evt.ExpenseID, evt.GetPayload("org_id")).Info(evt.Summary(),
		zap.String("event_id", evt.ID),
		zap.String("event_type", evt.Type.String()),
		zap.String("from", evt.FromState),
		zap.String("to", evt.ToState),
		zap.String("actor", evt.Actor),
		zap.Int("step", evt.Step),
		zap.Any("payload", evt.Payload),
	)
	return nil
}
