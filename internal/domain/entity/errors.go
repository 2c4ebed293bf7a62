package entity

import "errors"

var (
	// ErrNoApproverFound is returned when a step resolves to nobody
	ErrNoApproverFound = errors.New("no approver found")

	// ErrInvalidApproverRole is returned when a resolved approver is inactive or not a Manager/Admin
	ErrInvalidApproverRole = errors.New("invalid approver role")

	// ErrUnauthorizedApprover is returned when the deciding user is not in the current step's approver set
	ErrUnauthorizedApprover = errors.New("unauthorized approver")

	// ErrAlreadyDecided marks an identical retried decision; callers treat it as success
	ErrAlreadyDecided = errors.New("already decided")

	// ErrConflictingDecision is returned when an approver changes their verdict on an open step
	ErrConflictingDecision = errors.New("conflicting decision")

	// ErrStepAlreadyResolved is returned for a decision aimed at a step the chain has left
	ErrStepAlreadyResolved = errors.New("approval step already resolved")

	// ErrExpenseAlreadyFinalized is returned for any chain event on an Approved or Rejected expense
	ErrExpenseAlreadyFinalized = errors.New("expense already finalized")

	// ErrInvalidRuleConfiguration is returned for malformed or unsatisfiable rules
	ErrInvalidRuleConfiguration = errors.New("invalid rule configuration")

	// ErrPersistenceFailure wraps store failures during an atomic save
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrVersionConflict is returned when an optimistic version check fails
	ErrVersionConflict = errors.New("version conflict")

	ErrExpenseNotFound       = errors.New("expense not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrRuleNotFound          = errors.New("rule not found")
	ErrExpenseNotPending     = errors.New("expense is not pending approval")
	ErrExpenseNotDraft       = errors.New("expense is not a draft")
	ErrNotExpenseOwner       = errors.New("only the owner may submit an expense")
	ErrNotAdmin              = errors.New("admin role required")
	ErrInvalidOverrideStatus = errors.New("override status must be Approved or Rejected")
	ErrInvalidDecision       = errors.New("decision must be Approved or Rejected")
	ErrInvalidUser           = errors.New("invalid user")
	ErrInvalidExpense        = errors.New("invalid expense")
	ErrForbidden             = errors.New("access denied")
)
