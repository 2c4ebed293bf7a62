package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/lock"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/memory"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store

	engine    workflow.WorkflowEngine
	users     service.UserService
	rules     service.RuleService
	expenses  service.ExpenseService
	approvals service.ApprovalService
}

// newFixture seeds org "acme" with emp -> mgr -> admin, a second employee
// and an admin of another org
func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	authorizer := service.NewAuthorizer(store.Users())
	engine := workflow.NewEngine(
		store.Expenses(),
		store.Decisions(),
		store.Rules(),
		service.NewOrgChart(store.Users()),
		authorizer,
		store,
		workflow.WithLocker(lock.NewKeyedMutex()),
	)

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    store,
		engine:   engine,
		users:    service.NewUserService(store.Users(), authorizer, store, nopLogger{}),
		rules:    service.NewRuleService(store.Rules(), store.Users(), authorizer, store, nopLogger{}),
		expenses: service.NewExpenseService(store.Expenses(), store.Decisions(), authorizer, nopLogger{}),
	}
	f.approvals = service.NewApprovalService(store.Expenses(), store.Decisions(), engine, authorizer, nil, nil, nopLogger{})

	f.seed(&entity.User{ID: "admin", Name: "Ada Admin", Email: "ada@acme.test", Role: entity.RoleAdmin, OrgID: "acme"})
	f.seed(&entity.User{ID: "mgr", Name: "Max Manager", Email: "max@acme.test", Role: entity.RoleManager, ManagerID: "admin", OrgID: "acme"})
	f.seed(&entity.User{ID: "emp", Name: "Eve Employee", Email: "eve@acme.test", Role: entity.RoleEmployee, ManagerID: "mgr", OrgID: "acme"})
	f.seed(&entity.User{ID: "emp2", Name: "Sam Employee", Email: "sam@acme.test", Role: entity.RoleEmployee, ManagerID: "mgr", OrgID: "acme"})
	f.seed(&entity.User{ID: "other-admin", Name: "Olga Admin", Email: "olga@globex.test", Role: entity.RoleAdmin, OrgID: "globex"})
	return f
}

func (f *fixture) seed(u *entity.User) {
	f.t.Helper()
	u.Active = true
	u.Currency = "EUR"
	u.CreatedAt = time.Now()
	require.NoError(f.t, f.store.Users().Create(f.ctx, u))
}

func (f *fixture) user(id string) *entity.User {
	f.t.Helper()
	u, err := f.store.Users().GetByID(f.ctx, id)
	require.NoError(f.t, err)
	return u
}
