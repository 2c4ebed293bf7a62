// Package resolver computes the ordered approver set of an approval step.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// OrgChart is a read-only view of the organization.
// ManagerOf returns a nil user and nil error when userID has no manager.
type OrgChart interface {
	GetUser(ctx context.Context, userID string) (*entity.User, error)
	ManagerOf(ctx context.Context, userID string) (*entity.User, error)
}

// ResolveStep returns the approvers of a 1-based step. The result is non-empty,
// de-duplicated and ordered. Steps after the first walk the manager chain from
// whoever approved the previous step. A step settled without approvals (a zero
// threshold) is skipped over, back to the owner when no step has an approver.
func ResolveStep(
	ctx context.Context,
	expense *entity.Expense,
	stepIndex int,
	rule *entity.ApprovalRule,
	org OrgChart,
	ledger []*entity.ApprovalDecision,
) ([]string, error) {
	stepRule, err := rule.Step(stepIndex)
	if err != nil {
		return nil, err
	}

	base, err := baseApprovers(ctx, expense, stepIndex, stepRule, org, ledger)
	if err != nil {
		return nil, err
	}

	approvers := dedupe(base)
	if stepRule.Kind == entity.RuleKindSpecific || stepRule.Kind == entity.RuleKindHybrid {
		approvers = appendMissing(approvers, stepRule.ApproverID)
	}

	if len(approvers) == 0 {
		return nil, fmt.Errorf("%w: step %d of expense %s", entity.ErrNoApproverFound, stepIndex, expense.ID)
	}

	for _, id := range approvers {
		if err := checkEligible(ctx, org, id); err != nil {
			return nil, err
		}
	}

	return approvers, nil
}

func baseApprovers(
	ctx context.Context,
	expense *entity.Expense,
	stepIndex int,
	stepRule entity.StepRule,
	org OrgChart,
	ledger []*entity.ApprovalDecision,
) ([]string, error) {
	if len(stepRule.Panel) > 0 {
		return stepRule.Panel, nil
	}

	anchor := expense.OwnerID
	for step := stepIndex - 1; step >= 1; step-- {
		if id := lastApprover(ledger, step); id != "" {
			anchor = id
			break
		}
	}

	if _, err := org.GetUser(ctx, anchor); err != nil {
		if errors.Is(err, entity.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %v", entity.ErrNoApproverFound, err)
		}
		return nil, err
	}

	manager, err := org.ManagerOf(ctx, anchor)
	if err != nil {
		if errors.Is(err, entity.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: manager of %s is not a known user", entity.ErrInvalidApproverRole, anchor)
		}
		return nil, err
	}
	if manager == nil {
		return nil, fmt.Errorf("%w: user %s has no manager", entity.ErrNoApproverFound, anchor)
	}
	return []string{manager.ID}, nil
}

func checkEligible(ctx context.Context, org OrgChart, userID string) error {
	user, err := org.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, entity.ErrUserNotFound) {
			return fmt.Errorf("%w: %s is not a known user", entity.ErrInvalidApproverRole, userID)
		}
		return err
	}
	if !user.IsEligibleApprover() {
		return fmt.Errorf("%w: %s is not an active manager or admin", entity.ErrInvalidApproverRole, userID)
	}
	return nil
}

// lastApprover is the most recent Approved decider of a step
func lastApprover(ledger []*entity.ApprovalDecision, step int) string {
	var id string
	for _, d := range ledger {
		if d.Step == step && d.Decision == entity.DecisionApproved {
			id = d.ApproverID
		}
	}
	return id
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func appendMissing(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
