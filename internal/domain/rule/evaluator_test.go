package rule

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

func decision(approver string, d entity.Decision) *entity.ApprovalDecision {
	return &entity.ApprovalDecision{ApproverID: approver, Step: 1, Decision: d}
}

func approve(approver string) *entity.ApprovalDecision {
	return decision(approver, entity.DecisionApproved)
}

func reject(approver string) *entity.ApprovalDecision {
	return decision(approver, entity.DecisionRejected)
}

func members(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("m%d", i+1)
	}
	return out
}

func TestRequiredApprovals(t *testing.T) {
	tests := []struct {
		threshold, n, want int
	}{
		{0, 3, 0},
		{50, 2, 1},
		{50, 3, 2},
		{60, 2, 2},
		{66, 3, 2},
		{67, 3, 3},
		{100, 4, 4},
		{1, 10, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_of_%d", tt.threshold, tt.n), func(t *testing.T) {
			assert.Equal(t, tt.want, RequiredApprovals(tt.threshold, tt.n))
		})
	}
}

func TestEvaluate_Percentage(t *testing.T) {
	set := members(3)
	rule := entity.StepRule{Kind: entity.RuleKindPercentage, Threshold: 60}

	tests := []struct {
		name      string
		decisions []*entity.ApprovalDecision
		want      Result
	}{
		{"no decisions", nil, Pending()},
		{"one approval", []*entity.ApprovalDecision{approve("m1")}, Pending()},
		{"two approvals", []*entity.ApprovalDecision{approve("m1"), approve("m2")}, Satisfied(entity.DecisionApproved)},
		{"one rejection still reachable", []*entity.ApprovalDecision{reject("m1")}, Pending()},
		{"two rejections unreachable", []*entity.ApprovalDecision{reject("m1"), reject("m2")}, Satisfied(entity.DecisionRejected)},
		{"outsider ignored", []*entity.ApprovalDecision{approve("m1"), approve("x9")}, Pending()},
		{"second decision of a member ignored", []*entity.ApprovalDecision{approve("m1"), reject("m1"), reject("m2")}, Pending()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(rule, tt.decisions, set)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_PercentageHalfOfTwo(t *testing.T) {
	rule := entity.StepRule{Kind: entity.RuleKindPercentage, Threshold: 50}

	got, err := Evaluate(rule, []*entity.ApprovalDecision{approve("m1")}, members(2))
	require.NoError(t, err)
	assert.True(t, got.Approved(), "ceil(50%% of 2) is one approval")
}

func TestEvaluate_PercentageSingleRejectionTerminatesFullConsensus(t *testing.T) {
	rule := entity.StepRule{Kind: entity.RuleKindPercentage, Threshold: 100}

	got, err := Evaluate(rule, []*entity.ApprovalDecision{approve("m1"), reject("m2")}, members(4))
	require.NoError(t, err)
	assert.True(t, got.Rejected())
}

func TestEvaluate_Specific(t *testing.T) {
	set := []string{"m1", "cfo"}
	rule := entity.StepRule{Kind: entity.RuleKindSpecific, ApproverID: "cfo"}

	got, err := Evaluate(rule, []*entity.ApprovalDecision{approve("m1")}, set)
	require.NoError(t, err)
	assert.True(t, got.IsPending())

	got, err = Evaluate(rule, []*entity.ApprovalDecision{approve("m1"), reject("cfo")}, set)
	require.NoError(t, err)
	assert.True(t, got.Rejected())

	got, err = Evaluate(rule, []*entity.ApprovalDecision{reject("m1"), approve("cfo")}, set)
	require.NoError(t, err)
	assert.True(t, got.Approved())
}

func TestEvaluate_Hybrid(t *testing.T) {
	set := []string{"m1", "m2", "cfo"}
	rule := entity.StepRule{Kind: entity.RuleKindHybrid, Threshold: 60, ApproverID: "cfo"}

	tests := []struct {
		name      string
		decisions []*entity.ApprovalDecision
		want      Result
	}{
		{"specific approves", []*entity.ApprovalDecision{approve("cfo")}, Satisfied(entity.DecisionApproved)},
		{"percentage approves", []*entity.ApprovalDecision{approve("m1"), approve("m2")}, Satisfied(entity.DecisionApproved)},
		{"specific rejects while percentage viable", []*entity.ApprovalDecision{reject("cfo")}, Pending()},
		{"percentage unreachable while specific undecided", []*entity.ApprovalDecision{reject("m1"), reject("m2")}, Pending()},
		{"both paths reject", []*entity.ApprovalDecision{reject("cfo"), reject("m1")}, Satisfied(entity.DecisionRejected)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(rule, tt.decisions, set)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_InvalidRule(t *testing.T) {
	tests := []struct {
		name string
		rule entity.StepRule
		set  []string
	}{
		{"threshold above 100", entity.StepRule{Kind: entity.RuleKindPercentage, Threshold: 101}, members(1)},
		{"negative threshold", entity.StepRule{Kind: entity.RuleKindPercentage, Threshold: -1}, members(1)},
		{"specific without approver", entity.StepRule{Kind: entity.RuleKindSpecific}, members(1)},
		{"unknown kind", entity.StepRule{Kind: "quorum"}, members(1)},
		{"empty approver set", entity.StepRule{Kind: entity.RuleKindPercentage, Threshold: 50}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.rule, nil, tt.set)
			assert.ErrorIs(t, err, entity.ErrInvalidRuleConfiguration)
		})
	}
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "Pending", Pending().String())
	assert.Equal(t, "Satisfied(Rejected)", Satisfied(entity.DecisionRejected).String())
}

// Approved exactly when ceil(T/100*N) approvals are in, whatever the order.
func TestEvaluate_PercentageApprovesAtCeilProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "n")
		threshold := rapid.IntRange(1, 100).Draw(t, "threshold")
		set := members(n)
		order := rapid.Permutation(set).Draw(t, "order")
		required := RequiredApprovals(threshold, n)
		rule := entity.StepRule{Kind: entity.RuleKindPercentage, Threshold: threshold}

		var recorded []*entity.ApprovalDecision
		for i, id := range order {
			recorded = append(recorded, approve(id))
			got, err := Evaluate(rule, recorded, set)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if i+1 < required && !got.IsPending() {
				t.Fatalf("resolved %s after %d approvals, need %d", got, i+1, required)
			}
			if i+1 >= required && !got.Approved() {
				t.Fatalf("still %s after %d approvals, need %d", got, i+1, required)
			}
		}
	})
}

func TestEvaluate_PercentageOrderIndependentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(t, "n")
		threshold := rapid.IntRange(0, 100).Draw(t, "threshold")
		set := members(n)
		decided := rapid.IntRange(1, n).Draw(t, "decided")

		var recorded []*entity.ApprovalDecision
		for _, id := range set[:decided] {
			if rapid.Bool().Draw(t, "approve_"+id) {
				recorded = append(recorded, approve(id))
			} else {
				recorded = append(recorded, reject(id))
			}
		}
		shuffled := rapid.Permutation(recorded).Draw(t, "shuffled")
		rule := entity.StepRule{Kind: entity.RuleKindPercentage, Threshold: threshold}

		first, err := Evaluate(rule, recorded, set)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := Evaluate(rule, shuffled, set)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first != second {
			t.Fatalf("order changed the result: %s vs %s", first, second)
		}
	})
}

// Only the designated approver decides a Specific step.
func TestEvaluate_SpecificIgnoresOthersProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		set := append(members(n), "cfo")
		rule := entity.StepRule{Kind: entity.RuleKindSpecific, ApproverID: "cfo"}

		var recorded []*entity.ApprovalDecision
		for _, id := range set[:n] {
			if rapid.Bool().Draw(t, "approve_"+id) {
				recorded = append(recorded, approve(id))
			} else {
				recorded = append(recorded, reject(id))
			}
		}

		got, err := Evaluate(rule, recorded, set)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.IsPending() {
			t.Fatalf("others resolved the step: %s", got)
		}

		designated := entity.DecisionRejected
		if rapid.Bool().Draw(t, "cfo_approves") {
			designated = entity.DecisionApproved
		}
		recorded = append(recorded, decision("cfo", designated))
		shuffled := rapid.Permutation(recorded).Draw(t, "shuffled")

		got, err = Evaluate(rule, shuffled, set)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != Satisfied(designated) {
			t.Fatalf("got %s, want Satisfied(%s)", got, designated)
		}
	})
}

// Approving through either path of a Hybrid step reaches the same result.
func TestEvaluate_HybridCommutativeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		threshold := rapid.IntRange(1, 100).Draw(t, "threshold")
		set := append(members(n), "cfo")
		rule := entity.StepRule{Kind: entity.RuleKindHybrid, Threshold: threshold, ApproverID: "cfo"}

		required := RequiredApprovals(threshold, len(set))
		var percentagePath []*entity.ApprovalDecision
		for _, id := range set[:n] {
			if len(percentagePath) == required {
				break
			}
			percentagePath = append(percentagePath, approve(id))
		}
		specificPath := []*entity.ApprovalDecision{approve("cfo")}

		viaSpecificFirst := append(append([]*entity.ApprovalDecision{}, specificPath...), percentagePath...)
		viaPercentageFirst := append(append([]*entity.ApprovalDecision{}, percentagePath...), specificPath...)

		a, err := Evaluate(rule, viaSpecificFirst, set)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, err := Evaluate(rule, viaPercentageFirst, set)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !a.Approved() || a != b {
			t.Fatalf("paths diverged: %s vs %s", a, b)
		}

		alone, err := Evaluate(rule, specificPath, set)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !alone.Approved() {
			t.Fatalf("specific path alone should approve, got %s", alone)
		}
	})
}
