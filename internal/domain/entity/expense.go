package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle status of an expense
type Status string

const (
	StatusDraft           Status = "Draft"
	StatusPendingApproval Status = "PendingApproval"
	StatusApproved        Status = "Approved"
	StatusRejected        Status = "Rejected"
)

// IsTerminal reports whether no further chain transitions are allowed
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// ExpenseItem is a single line of an expense, owned exclusively by its expense
type ExpenseItem struct {
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	Currency       string          `json:"currency"`
	ExchangeRate   decimal.Decimal `json:"exchange_rate"`
}

// Expense is a submitted claim moving through an approval chain.
//
// While Status is PendingApproval, CurrentStep is in [1, TotalSteps], StepApprovers
// holds the resolved approver set of that step and CurrentApprover is one of them.
type Expense struct {
	ID              string        `json:"id"`
	OwnerID         string        `json:"owner_id"`
	OrgID           string        `json:"org_id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Category        string        `json:"category"`
	Currency        string        `json:"currency"`
	Items           []ExpenseItem `json:"items"`
	Status          Status        `json:"status"`
	CurrentStep     int           `json:"current_step"`
	TotalSteps      int           `json:"total_steps"`
	RuleID          string        `json:"rule_id,omitempty"`
	StepApprovers   []string      `json:"step_approvers,omitempty"`
	CurrentApprover string        `json:"current_approver,omitempty"`
	Version         int64         `json:"version"`
	SubmittedAt     *time.Time    `json:"submitted_at,omitempty"`
	DecidedAt       *time.Time    `json:"decided_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Total sums the item amounts
func (e *Expense) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range e.Items {
		total = total.Add(item.Amount)
	}
	return total
}

// IsStepApprover reports whether userID belongs to the current step's approver set
func (e *Expense) IsStepApprover(userID string) bool {
	for _, id := range e.StepApprovers {
		if id == userID {
			return true
		}
	}
	return false
}

// IsFinalStep reports whether the current step is the last one of the chain
func (e *Expense) IsFinalStep() bool {
	return e.CurrentStep >= e.TotalSteps
}

// Clone returns a deep copy so callers can mutate without touching stored state
func (e *Expense) Clone() *Expense {
	if e == nil {
		return nil
	}
	c := *e
	c.Items = append([]ExpenseItem(nil), e.Items...)
	c.StepApprovers = append([]string(nil), e.StepApprovers...)
	if e.SubmittedAt != nil {
		t := *e.SubmittedAt
		c.SubmittedAt = &t
	}
	if e.DecidedAt != nil {
		t := *e.DecidedAt
		c.DecidedAt = &t
	}
	return &c
}
