package workflow

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// BuildExpenseStateMachine creates a state machine positioned at the expense's
// current status. StepApproved finishes the chain only on the final step.
func BuildExpenseStateMachine(expense *entity.Expense) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	finalStep := func(ctx context.Context) bool { return expense.IsFinalStep() }
	moreSteps := func(ctx context.Context) bool { return !expense.IsFinalStep() }

	// DRAFT state transitions
	builder.Configure(domainwf.StateDraft).
		Permit(domainwf.TriggerSubmit, domainwf.StatePendingApproval).
		Permit(domainwf.TriggerOverrideApprove, domainwf.StateApproved).
		Permit(domainwf.TriggerOverrideReject, domainwf.StateRejected)

	// PENDING_APPROVAL state transitions
	builder.Configure(domainwf.StatePendingApproval).
		PermitIf(domainwf.TriggerStepApproved, domainwf.StateApproved, finalStep).
		PermitIf(domainwf.TriggerStepApproved, domainwf.StatePendingApproval, moreSteps).
		Permit(domainwf.TriggerStepRejected, domainwf.StateRejected).
		Permit(domainwf.TriggerOverrideApprove, domainwf.StateApproved).
		Permit(domainwf.TriggerOverrideReject, domainwf.StateRejected)

	// APPROVED and REJECTED are terminal states - no outgoing transitions

	return builder.Build(domainwf.State(expense.Status))
}

// overrideTrigger maps a forced status onto its trigger
func overrideTrigger(status entity.Status) (domainwf.Trigger, bool) {
	switch status {
	case entity.StatusApproved:
		return domainwf.TriggerOverrideApprove, true
	case entity.StatusRejected:
		return domainwf.TriggerOverrideReject, true
	default:
		return "", false
	}
}
