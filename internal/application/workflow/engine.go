package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/rule"
)

// WorkflowEngine drives expenses through their approval chain
type WorkflowEngine interface {
	// Submit moves a draft owned by actorID into step 1
	Submit(ctx context.Context, expenseID, actorID string) (*entity.Expense, error)

	// Decide records one approver's verdict on the current step and
	// advances, finalizes or holds the chain accordingly
	Decide(ctx context.Context, cmd DecideCommand) (*DecisionResult, error)

	// Override forces a non-terminal expense straight to Approved or Rejected
	Override(ctx context.Context, cmd OverrideCommand) (*entity.Expense, error)

	// GetApprovalStep returns the derived view of the expense's current step
	GetApprovalStep(ctx context.Context, expenseID string) (*entity.ApprovalStep, error)
}

// DecideCommand is a decision event from an approver.
// Step optionally names the step the approver saw; zero means the current step.
type DecideCommand struct {
	ExpenseID  string
	ApproverID string
	Step       int
	Decision   entity.Decision
	Comment    string
}

// OverrideCommand is an administrative bypass
type OverrideCommand struct {
	ExpenseID string
	AdminID   string
	Status    entity.Status
	Comment   string
}

// DecisionResult describes the effect of a Decide call.
// Duplicate is set when the call repeated an already recorded decision;
// the expense is then returned unchanged.
type DecisionResult struct {
	Expense   *entity.Expense
	Decision  *entity.ApprovalDecision
	Outcome   rule.Result
	Duplicate bool
}

// AlreadyDecided reports a duplicate as entity.ErrAlreadyDecided so transports
// can surface it as a notice rather than a failure
func (r *DecisionResult) AlreadyDecided() error {
	if r == nil || !r.Duplicate {
		return nil
	}
	return fmt.Errorf("%w: %s on step %d", entity.ErrAlreadyDecided, r.Decision.Decision, r.Decision.Step)
}
