package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is emitted after every committed state transition of an expense.
// Delivery is best-effort and outside the transactional guarantee.
type Event struct {
	ID            string            `json:"id"`
	Type          Type              `json:"type"`
	ExpenseID     string            `json:"expense_id"`
	FromState     string            `json:"from_state"`
	ToState       string            `json:"to_state"`
	Actor         string            `json:"actor"`
	Step          int               `json:"step"`
	Payload       map[string]string `json:"payload,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id"`
}

// NewTransition creates a transition event with a fresh ID and timestamp
func NewTransition(eventType Type, expenseID, fromState, toState, actor string, step int) *Event {
	id := uuid.NewString()
	return &Event{
		ID:            id,
		Type:          eventType,
		ExpenseID:     expenseID,
		FromState:     fromState,
		ToState:       toState,
		Actor:         actor,
		Step:          step,
		Timestamp:     time.Now().UTC(),
		CorrelationID: id,
	}
}

// WithPayload returns a copy of the event with an extra payload entry
func (e *Event) WithPayload(key, value string) *Event {
	payload := make(map[string]string, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	c := *e
	c.Payload = payload
	return &c
}

// WithCorrelation returns a copy of the event linked to an existing correlation chain
func (e *Event) WithCorrelation(correlationID string) *Event {
	c := *e
	c.CorrelationID = correlationID
	return &c
}

// GetPayload retrieves a payload value, or "" when absent
func (e *Event) GetPayload(key string) string {
	return e.Payload[key]
}

// Summary renders a one-line human readable description
func (e *Event) Summary() string {
	switch e.Type {
	case TypeExpenseSubmitted:
		return fmt.Sprintf("Expense %s submitted by %s, awaiting step %d", e.ExpenseID, e.Actor, e.Step)
	case TypeStepAdvanced:
		return fmt.Sprintf("Expense %s approved by %s, moved to step %d", e.ExpenseID, e.Actor, e.Step)
	case TypeExpenseApproved:
		return fmt.Sprintf("Expense %s approved by %s", e.ExpenseID, e.Actor)
	case TypeExpenseRejected:
		return fmt.Sprintf("Expense %s rejected by %s", e.ExpenseID, e.Actor)
	case TypeExpenseOverridden:
		return fmt.Sprintf("Expense %s forced to %s by admin %s", e.ExpenseID, e.ToState, e.Actor)
	default:
		return fmt.Sprintf("Expense %s moved from %s to %s", e.ExpenseID, e.FromState, e.ToState)
	}
}
