// Package rule scores the recorded decisions of one approval step against its rule.
package rule

import (
	"fmt"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Verdict is the coarse outcome of an evaluation
type Verdict string

const (
	VerdictPending   Verdict = "Pending"
	VerdictSatisfied Verdict = "Satisfied"
)

// Result carries the verdict and, when satisfied, the decision it resolved to
type Result struct {
	Verdict Verdict
	Outcome entity.Decision
}

// Pending is the result of a step still waiting for input
func Pending() Result {
	return Result{Verdict: VerdictPending}
}

// Satisfied is the result of a resolved step
func Satisfied(outcome entity.Decision) Result {
	return Result{Verdict: VerdictSatisfied, Outcome: outcome}
}

// IsPending reports whether the step needs more decisions
func (r Result) IsPending() bool {
	return r.Verdict == VerdictPending
}

// Approved reports whether the step resolved to Approved
func (r Result) Approved() bool {
	return r.Verdict == VerdictSatisfied && r.Outcome == entity.DecisionApproved
}

// Rejected reports whether the step resolved to Rejected
func (r Result) Rejected() bool {
	return r.Verdict == VerdictSatisfied && r.Outcome == entity.DecisionRejected
}

func (r Result) String() string {
	if r.Verdict == VerdictSatisfied {
		return fmt.Sprintf("Satisfied(%s)", r.Outcome)
	}
	return string(r.Verdict)
}

// Evaluate scores decisions for a single step. Only decisions from members of
// approverSet count, and only the first decision of each member. Evaluate has no
// side effects and does not depend on the order of decisions beyond that.
func Evaluate(rule entity.StepRule, decisions []*entity.ApprovalDecision, approverSet []string) (Result, error) {
	if err := rule.Validate(); err != nil {
		return Pending(), err
	}

	tally := newTally(decisions, approverSet)

	switch rule.Kind {
	case entity.RuleKindPercentage:
		if len(tally.members) == 0 {
			return Pending(), fmt.Errorf("%w: percentage rule over an empty approver set", entity.ErrInvalidRuleConfiguration)
		}
		return evaluatePercentage(rule.Threshold, tally), nil

	case entity.RuleKindSpecific:
		return evaluateSpecific(rule.ApproverID, tally), nil

	case entity.RuleKindHybrid:
		if len(tally.members) == 0 {
			return Pending(), fmt.Errorf("%w: hybrid rule over an empty approver set", entity.ErrInvalidRuleConfiguration)
		}
		return combineHybrid(
			evaluatePercentage(rule.Threshold, tally),
			evaluateSpecific(rule.ApproverID, tally),
		), nil
	}

	return Pending(), fmt.Errorf("%w: unknown rule kind %q", entity.ErrInvalidRuleConfiguration, rule.Kind)
}

// RequiredApprovals is ceil(threshold/100 * setSize) in integer arithmetic
func RequiredApprovals(threshold, setSize int) int {
	return (threshold*setSize + 99) / 100
}

func evaluatePercentage(threshold int, t tally) Result {
	n := len(t.members)
	required := RequiredApprovals(threshold, n)

	if t.approved >= required {
		return Satisfied(entity.DecisionApproved)
	}
	if t.rejected > n-required {
		return Satisfied(entity.DecisionRejected)
	}
	return Pending()
}

func evaluateSpecific(approverID string, t tally) Result {
	decision, ok := t.byApprover[approverID]
	if !ok {
		return Pending()
	}
	return Satisfied(decision)
}

// combineHybrid: either path approving wins; both paths must reject to reject.
func combineHybrid(percentage, specific Result) Result {
	if percentage.Approved() || specific.Approved() {
		return Satisfied(entity.DecisionApproved)
	}
	if percentage.Rejected() && specific.Rejected() {
		return Satisfied(entity.DecisionRejected)
	}
	return Pending()
}

type tally struct {
	members    map[string]bool
	byApprover map[string]entity.Decision
	approved   int
	rejected   int
}

func newTally(decisions []*entity.ApprovalDecision, approverSet []string) tally {
	t := tally{
		members:    make(map[string]bool, len(approverSet)),
		byApprover: make(map[string]entity.Decision, len(decisions)),
	}
	for _, id := range approverSet {
		t.members[id] = true
	}

	for _, d := range decisions {
		if d == nil || !t.members[d.ApproverID] || !d.Decision.IsValid() {
			continue
		}
		if _, seen := t.byApprover[d.ApproverID]; seen {
			continue
		}
		t.byApprover[d.ApproverID] = d.Decision
		if d.Decision == entity.DecisionApproved {
			t.approved++
		} else {
			t.rejected++
		}
	}
	return t
}
