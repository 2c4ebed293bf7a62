package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ExpenseRepository defines persistence operations for Expense
type ExpenseRepository interface {
	Create(ctx context.Context, expense *entity.Expense) error
	GetByID(ctx context.Context, id string) (*entity.Expense, error)

	// Update is a compare-and-swap on Version. It fails with entity.ErrVersionConflict
	// when the stored version differs and bumps expense.Version on success.
	Update(ctx context.Context, expense *entity.Expense) error

	ListByOwner(ctx context.Context, ownerID string) ([]*entity.Expense, error)
	ListByOrg(ctx context.Context, orgID string) ([]*entity.Expense, error)
	ListByStatus(ctx context.Context, status entity.Status) ([]*entity.Expense, error)
}

// DecisionRepository is the append-only approval ledger
type DecisionRepository interface {
	Append(ctx context.Context, decision *entity.ApprovalDecision) error

	// ListByExpense returns the ledger in the order it was appended
	ListByExpense(ctx context.Context, expenseID string) ([]*entity.ApprovalDecision, error)
}

// UserRepository defines persistence operations for User
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	Update(ctx context.Context, user *entity.User) error
	ListByOrg(ctx context.Context, orgID string) ([]*entity.User, error)
}

// RuleRepository stores approval rules. Rules are never edited once stored;
// only their Active flag is cleared when a replacement is published.
type RuleRepository interface {
	Create(ctx context.Context, rule *entity.ApprovalRule) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalRule, error)

	// FindActive returns the active rule for an org and category, using the
	// empty category for the org default. Missing rules yield entity.ErrRuleNotFound.
	FindActive(ctx context.Context, orgID, category string) (*entity.ApprovalRule, error)

	Deactivate(ctx context.Context, id string) error
	ListByOrg(ctx context.Context, orgID string) ([]*entity.ApprovalRule, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
