package entity

import (
	"fmt"
	"time"
)

// RuleKind tags the variant of a step rule
type RuleKind string

const (
	RuleKindPercentage RuleKind = "percentage"
	RuleKindSpecific   RuleKind = "specific"
	RuleKindHybrid     RuleKind = "hybrid"
)

// StepRule governs a single approval step.
// Percentage uses Threshold, Specific uses ApproverID, Hybrid uses both.
// Panel optionally pins the step's approver set instead of walking the manager chain.
type StepRule struct {
	Kind       RuleKind `json:"kind" yaml:"kind"`
	Threshold  int      `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	ApproverID string   `json:"approver_id,omitempty" yaml:"approver_id,omitempty"`
	Panel      []string `json:"panel,omitempty" yaml:"panel,omitempty"`
}

// Validate checks the shape of the rule; approver roles are checked by the caller
// that owns the org chart.
func (r StepRule) Validate() error {
	switch r.Kind {
	case RuleKindPercentage:
		return validateThreshold(r.Threshold)
	case RuleKindSpecific:
		if r.ApproverID == "" {
			return fmt.Errorf("%w: specific rule requires an approver", ErrInvalidRuleConfiguration)
		}
		return nil
	case RuleKindHybrid:
		if r.ApproverID == "" {
			return fmt.Errorf("%w: hybrid rule requires an approver", ErrInvalidRuleConfiguration)
		}
		return validateThreshold(r.Threshold)
	default:
		return fmt.Errorf("%w: unknown rule kind %q", ErrInvalidRuleConfiguration, r.Kind)
	}
}

// Describe renders a short human-readable summary
func (r StepRule) Describe() string {
	switch r.Kind {
	case RuleKindPercentage:
		return fmt.Sprintf("%d%% required", r.Threshold)
	case RuleKindSpecific:
		return fmt.Sprintf("requires %s", r.ApproverID)
	case RuleKindHybrid:
		return fmt.Sprintf("%d%% required or %s", r.Threshold, r.ApproverID)
	default:
		return string(r.Kind)
	}
}

func validateThreshold(threshold int) error {
	if threshold < 0 || threshold > 100 {
		return fmt.Errorf("%w: threshold %d outside 0-100", ErrInvalidRuleConfiguration, threshold)
	}
	return nil
}

// ApprovalRule is an organization policy. Rules are insert-only: publishing a
// replacement deactivates the old record but never edits it, so in-flight
// expenses keep evaluating against the rule they were submitted under.
type ApprovalRule struct {
	ID        string     `json:"id"`
	OrgID     string     `json:"org_id"`
	Category  string     `json:"category,omitempty"`
	Name      string     `json:"name"`
	Steps     []StepRule `json:"steps"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
}

// TotalSteps is the length of the chain governed by this rule
func (r *ApprovalRule) TotalSteps() int {
	return len(r.Steps)
}

// Step returns the rule of a 1-based step index
func (r *ApprovalRule) Step(index int) (StepRule, error) {
	if index < 1 || index > len(r.Steps) {
		return StepRule{}, fmt.Errorf("%w: step %d outside 1-%d", ErrInvalidRuleConfiguration, index, len(r.Steps))
	}
	return r.Steps[index-1], nil
}

// Validate checks every step
func (r *ApprovalRule) Validate() error {
	if len(r.Steps) == 0 {
		return fmt.Errorf("%w: rule has no steps", ErrInvalidRuleConfiguration)
	}
	for i, step := range r.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}
