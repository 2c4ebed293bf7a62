package workflow

import "github.com/garyjia/expense-approval/internal/domain/entity"

// State represents a node of the expense approval lifecycle
type State string

const (
	StateDraft           State = State(entity.StatusDraft)
	StatePendingApproval State = State(entity.StatusPendingApproval)
	StateApproved        State = State(entity.StatusApproved)
	StateRejected        State = State(entity.StatusRejected)
)

var validStates = map[State]bool{
	StateDraft:           true,
	StatePendingApproval: true,
	StateApproved:        true,
	StateRejected:        true,
}

var terminalStates = map[State]bool{
	StateApproved: true,
	StateRejected: true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}

// Status converts the state to the persisted expense status
func (s State) Status() entity.Status {
	return entity.Status(s)
}
