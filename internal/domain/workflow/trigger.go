package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	// TriggerSubmit moves a draft into step 1
	TriggerSubmit Trigger = "SUBMIT"
	// TriggerStepApproved fires when the current step's rule is satisfied with Approved
	TriggerStepApproved Trigger = "STEP_APPROVED"
	// TriggerStepRejected fires when the current step's rule is satisfied with Rejected
	TriggerStepRejected Trigger = "STEP_REJECTED"
	// TriggerOverrideApprove and TriggerOverrideReject are the admin bypass
	TriggerOverrideApprove Trigger = "OVERRIDE_APPROVE"
	TriggerOverrideReject  Trigger = "OVERRIDE_REJECT"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
