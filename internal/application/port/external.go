package port

import (
	"context"
	"io"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

// OrgChart is the read-only org lookup used to resolve approvers.
// ManagerOf returns nil, nil when the user has no manager.
type OrgChart interface {
	GetUser(ctx context.Context, userID string) (*entity.User, error)
	ManagerOf(ctx context.Context, userID string) (*entity.User, error)
}

// Authorizer is the identity collaborator trusted for role checks
type Authorizer interface {
	CurrentUser(ctx context.Context) (*entity.User, error)
	HasRole(ctx context.Context, user *entity.User, role entity.Role) bool
}

// Locker provides mutual exclusion per key (one key per expense).
// Lock blocks until the key is held and returns the function that releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Notifier receives transition events. Delivery is best effort.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, evt *event.Event) error
}

// WorkflowMetrics records engine activity
type WorkflowMetrics interface {
	ObserveTransition(from, to entity.Status)
	ObserveDecision(decision entity.Decision, duplicate bool)
	ObserveFailure(operation string, err error)
	ObserveDuration(operation string, elapsed time.Duration)
}

// LedgerExporter renders an expense and its decision ledger to a document
type LedgerExporter interface {
	ExportLedger(ctx context.Context, expense *entity.Expense, ledger []*entity.ApprovalDecision, w io.Writer) error
}
