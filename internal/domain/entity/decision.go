package entity

import "time"

// Decision is an approver's verdict
type Decision string

const (
	DecisionApproved Decision = "Approved"
	DecisionRejected Decision = "Rejected"
)

// IsValid reports whether d is Approved or Rejected
func (d Decision) IsValid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Status maps the decision onto the terminal status it forces
func (d Decision) Status() Status {
	if d == DecisionApproved {
		return StatusApproved
	}
	return StatusRejected
}

// OverrideStep marks ledger entries written by an admin override
const OverrideStep = -1

// ApprovalDecision is one immutable ledger entry.
// Expense and approver are referenced by identifier only.
type ApprovalDecision struct {
	ID         string    `json:"id"`
	ExpenseID  string    `json:"expense_id"`
	Step       int       `json:"step"`
	ApproverID string    `json:"approver_id"`
	Decision   Decision  `json:"decision"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsOverride reports whether the entry was written by the override authority
func (d *ApprovalDecision) IsOverride() bool {
	return d.Step == OverrideStep
}

// SamePayload reports whether two entries carry the same approver, step, verdict and comment
func (d *ApprovalDecision) SamePayload(other *ApprovalDecision) bool {
	return d.ApproverID == other.ApproverID &&
		d.Step == other.Step &&
		d.Decision == other.Decision &&
		d.Comment == other.Comment
}

// ApprovalStep is the derived view of one stage of a chain
type ApprovalStep struct {
	Index     int
	Approvers []string
	Rule      StepRule
	Decisions []*ApprovalDecision
}

// DecisionsForStep filters a ledger down to one step
func DecisionsForStep(ledger []*ApprovalDecision, step int) []*ApprovalDecision {
	var out []*ApprovalDecision
	for _, d := range ledger {
		if d.Step == step {
			out = append(out, d)
		}
	}
	return out
}

// PendingApprovers is the step's approver set minus those who already decided
func (s *ApprovalStep) PendingApprovers() []string {
	decided := make(map[string]bool, len(s.Decisions))
	for _, d := range s.Decisions {
		decided[d.ApproverID] = true
	}
	var pending []string
	for _, id := range s.Approvers {
		if !decided[id] {
			pending = append(pending, id)
		}
	}
	return pending
}
