package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

type mockOrgChart struct {
	users map[string]*entity.User
	calls int
}

func newMockOrgChart(users ...*entity.User) *mockOrgChart {
	m := &mockOrgChart{users: make(map[string]*entity.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockOrgChart) GetUser(ctx context.Context, userID string) (*entity.User, error) {
	m.calls++
	u, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrUserNotFound, userID)
	}
	return u, nil
}

func (m *mockOrgChart) ManagerOf(ctx context.Context, userID string) (*entity.User, error) {
	u, err := m.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.HasManager() {
		return nil, nil
	}
	return m.GetUser(ctx, u.ManagerID)
}

func user(id string, role entity.Role, manager string) *entity.User {
	return &entity.User{ID: id, Name: id, Role: role, ManagerID: manager, OrgID: "org", Active: true}
}

func orgFixture() *mockOrgChart {
	return newMockOrgChart(
		user("emp", entity.RoleEmployee, "mgr"),
		user("mgr", entity.RoleManager, "dir"),
		user("dir", entity.RoleManager, "ceo"),
		user("ceo", entity.RoleAdmin, ""),
		user("cfo", entity.RoleAdmin, ""),
		user("peer", entity.RoleEmployee, "mgr"),
	)
}

func percentage(threshold int) entity.StepRule {
	return entity.StepRule{Kind: entity.RuleKindPercentage, Threshold: threshold}
}

func ruleOf(steps ...entity.StepRule) *entity.ApprovalRule {
	return &entity.ApprovalRule{ID: "r1", OrgID: "org", Name: "test", Steps: steps, Active: true}
}

func expenseOf(owner string) *entity.Expense {
	return &entity.Expense{ID: "e1", OwnerID: owner, OrgID: "org", Status: entity.StatusDraft}
}

func approved(step int, approver string) *entity.ApprovalDecision {
	return &entity.ApprovalDecision{Step: step, ApproverID: approver, Decision: entity.DecisionApproved}
}

func TestResolveStep_FirstStepIsOwnersManager(t *testing.T) {
	got, err := ResolveStep(context.Background(), expenseOf("emp"), 1, ruleOf(percentage(100)), orgFixture(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"mgr"}, got)
}

func TestResolveStep_WalksUpFromPreviousApprover(t *testing.T) {
	rule := ruleOf(percentage(100), percentage(100), percentage(100))
	ledger := []*entity.ApprovalDecision{approved(1, "mgr")}

	got, err := ResolveStep(context.Background(), expenseOf("emp"), 2, rule, orgFixture(), ledger)
	require.NoError(t, err)
	assert.Equal(t, []string{"dir"}, got)

	ledger = append(ledger, approved(2, "dir"))
	got, err = ResolveStep(context.Background(), expenseOf("emp"), 3, rule, orgFixture(), ledger)
	require.NoError(t, err)
	assert.Equal(t, []string{"ceo"}, got)
}

func TestResolveStep_SkipsStepsSettledWithoutApproval(t *testing.T) {
	rule := ruleOf(percentage(100), percentage(0), percentage(100))
	ledger := []*entity.ApprovalDecision{approved(1, "mgr")}

	got, err := ResolveStep(context.Background(), expenseOf("emp"), 3, rule, orgFixture(), ledger)
	require.NoError(t, err)
	assert.Equal(t, []string{"dir"}, got)

	got, err = ResolveStep(context.Background(), expenseOf("emp"), 2, ruleOf(percentage(0), percentage(100)), orgFixture(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"mgr"}, got)
}

func TestResolveStep_PanelPreservesOrderAndDedupes(t *testing.T) {
	step := percentage(50)
	step.Panel = []string{"dir", "mgr", "dir", "ceo"}

	got, err := ResolveStep(context.Background(), expenseOf("emp"), 1, ruleOf(step), orgFixture(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"dir", "mgr", "ceo"}, got)
}

func TestResolveStep_DesignatedApproverAppended(t *testing.T) {
	specific := entity.StepRule{Kind: entity.RuleKindSpecific, ApproverID: "cfo"}
	got, err := ResolveStep(context.Background(), expenseOf("emp"), 1, ruleOf(specific), orgFixture(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"mgr", "cfo"}, got)

	hybrid := entity.StepRule{Kind: entity.RuleKindHybrid, Threshold: 50, ApproverID: "mgr"}
	got, err = ResolveStep(context.Background(), expenseOf("emp"), 1, ruleOf(hybrid), orgFixture(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"mgr"}, got)
}

func TestResolveStep_Errors(t *testing.T) {
	org := orgFixture()
	org.users["retired"] = &entity.User{ID: "retired", Role: entity.RoleManager, Active: false}
	org.users["orphan"] = user("orphan", entity.RoleEmployee, "retired")
	org.users["junior"] = user("junior", entity.RoleEmployee, "peer")
	org.users["lost"] = user("lost", entity.RoleEmployee, "ghost")

	tests := []struct {
		name    string
		owner   string
		step    int
		rule    *entity.ApprovalRule
		ledger  []*entity.ApprovalDecision
		wantErr error
	}{
		{"admin without manager", "ceo", 1, ruleOf(percentage(100)), nil, entity.ErrNoApproverFound},
		{"manager is an employee", "junior", 1, ruleOf(percentage(100)), nil, entity.ErrInvalidApproverRole},
		{"manager is inactive", "orphan", 1, ruleOf(percentage(100)), nil, entity.ErrInvalidApproverRole},
		{"manager does not exist", "lost", 1, ruleOf(percentage(100)), nil, entity.ErrInvalidApproverRole},
		{"unknown owner", "nobody", 1, ruleOf(percentage(100)), nil, entity.ErrNoApproverFound},
		{"step out of range", "emp", 3, ruleOf(percentage(100)), nil, entity.ErrInvalidRuleConfiguration},
		{
			"panel with employee", "emp", 1,
			ruleOf(entity.StepRule{Kind: entity.RuleKindPercentage, Threshold: 50, Panel: []string{"mgr", "peer"}}),
			nil, entity.ErrInvalidApproverRole,
		},
		{
			"designated approver is an employee", "emp", 1,
			ruleOf(entity.StepRule{Kind: entity.RuleKindSpecific, ApproverID: "peer"}),
			nil, entity.ErrInvalidApproverRole,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveStep(context.Background(), expenseOf(tt.owner), tt.step, tt.rule, org, tt.ledger)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResolveStep_Deterministic(t *testing.T) {
	org := orgFixture()
	step := entity.StepRule{Kind: entity.RuleKindHybrid, Threshold: 60, ApproverID: "cfo", Panel: []string{"dir", "mgr"}}
	rule := ruleOf(step)

	first, err := ResolveStep(context.Background(), expenseOf("emp"), 1, rule, org, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := ResolveStep(context.Background(), expenseOf("emp"), 1, rule, org, nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
