package event

// Type identifies the type of domain event
type Type string

const (
	TypeExpenseSubmitted  Type = "expense.submitted"
	TypeStepAdvanced      Type = "expense.step_advanced"
	TypeExpenseApproved   Type = "expense.approved"
	TypeExpenseRejected   Type = "expense.rejected"
	TypeExpenseOverridden Type = "expense.overridden"
)

// AllTypes lists every transition event type, in lifecycle order
var AllTypes = []Type{
	TypeExpenseSubmitted,
	TypeStepAdvanced,
	TypeExpenseApproved,
	TypeExpenseRejected,
	TypeExpenseOverridden,
}

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeExpenseSubmitted,
		TypeStepAdvanced,
		TypeExpenseApproved,
		TypeExpenseRejected,
		TypeExpenseOverridden:
		return true
	default:
		return false
	}
}
