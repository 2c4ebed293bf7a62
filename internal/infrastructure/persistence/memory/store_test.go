package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

func draft(id string) *entity.Expense {
	return &entity.Expense{ID: id, OwnerID: "emp", OrgID: "org", Status: entity.StatusDraft, CreatedAt: time.Now()}
}

func TestExpenseRepository_VersionCheck(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Expenses()

	expense := draft("e1")
	require.NoError(t, repo.Create(ctx, expense))
	assert.Equal(t, int64(1), expense.Version)

	first, err := repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, "e1")
	require.NoError(t, err)

	first.Title = "first writer"
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Title = "second writer"
	err = repo.Update(ctx, second)
	assert.ErrorIs(t, err, entity.ErrVersionConflict)

	stored, err := repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "first writer", stored.Title)
}

func TestExpenseRepository_NotFound(t *testing.T) {
	_, err := NewStore().Expenses().GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, entity.ErrExpenseNotFound)
}

func TestExpenseRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Expenses()
	expense := draft("e1")
	expense.StepApprovers = []string{"mgr"}
	require.NoError(t, repo.Create(ctx, expense))

	got, err := repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	got.StepApprovers[0] = "mutated"

	again, err := repo.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, []string{"mgr"}, again.StepApprovers)
}

func TestStore_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Expenses().Create(ctx, draft("e1")))

	boom := errors.New("boom")
	err := store.WithTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, store.Decisions().Append(txCtx, &entity.ApprovalDecision{ID: "d1", ExpenseID: "e1", Step: 1}))
		expense, err := store.Expenses().GetByID(txCtx, "e1")
		require.NoError(t, err)
		expense.Status = entity.StatusApproved
		require.NoError(t, store.Expenses().Update(txCtx, expense))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ledger, err := store.Decisions().ListByExpense(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, ledger)

	expense, err := store.Expenses().GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, expense.Status)
	assert.Equal(t, int64(1), expense.Version)
}

func TestStore_RollbackKeepsWritesOutsideTransaction(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Expenses().Create(ctx, draft("e1")))
	require.NoError(t, store.Rules().Create(ctx, &entity.ApprovalRule{ID: "r1", OrgID: "org", Active: true}))

	inTx := make(chan struct{})
	written := make(chan struct{})
	go func() {
		<-inTx
		assert.NoError(t, store.Expenses().Create(ctx, draft("draft-1")))
		assert.NoError(t, store.Users().Create(ctx, &entity.User{ID: "u1", OrgID: "org"}))
		close(written)
	}()

	err := store.WithTransaction(ctx, func(txCtx context.Context) error {
		require.NoError(t, store.Rules().Deactivate(txCtx, "r1"))
		require.NoError(t, store.Rules().Create(txCtx, &entity.ApprovalRule{ID: "r2", OrgID: "org", Active: true}))
		require.NoError(t, store.Decisions().Append(txCtx, &entity.ApprovalDecision{ID: "d1", ExpenseID: "e1", Step: 1}))
		close(inTx)
		<-written
		return entity.ErrVersionConflict
	})
	assert.ErrorIs(t, err, entity.ErrVersionConflict)

	_, err = store.Expenses().GetByID(ctx, "draft-1")
	assert.NoError(t, err)
	_, err = store.Users().GetByID(ctx, "u1")
	assert.NoError(t, err)

	_, err = store.Rules().GetByID(ctx, "r2")
	assert.ErrorIs(t, err, entity.ErrRuleNotFound)
	active, err := store.Rules().FindActive(ctx, "org", "")
	require.NoError(t, err)
	assert.Equal(t, "r1", active.ID)

	ledger, err := store.Decisions().ListByExpense(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, ledger)
}

func TestStore_TransactionCommits(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.WithTransaction(ctx, func(txCtx context.Context) error {
		return store.Decisions().Append(txCtx, &entity.ApprovalDecision{ID: "d1", ExpenseID: "e1", Step: 1})
	})
	require.NoError(t, err)

	ledger, err := store.Decisions().ListByExpense(ctx, "e1")
	require.NoError(t, err)
	assert.Len(t, ledger, 1)
}

func TestDecisionRepository_PreservesOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Decisions()

	for _, id := range []string{"d1", "d2", "d3"} {
		require.NoError(t, repo.Append(ctx, &entity.ApprovalDecision{ID: id, ExpenseID: "e1"}))
	}
	assert.Error(t, repo.Append(ctx, &entity.ApprovalDecision{ID: "d2", ExpenseID: "e1"}))

	ledger, err := repo.ListByExpense(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, ledger, 3)
	assert.Equal(t, "d1", ledger[0].ID)
	assert.Equal(t, "d3", ledger[2].ID)
}

func TestRuleRepository_FindActive(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Rules()
	steps := []entity.StepRule{{Kind: entity.RuleKindPercentage, Threshold: 100}}

	require.NoError(t, repo.Create(ctx, &entity.ApprovalRule{ID: "r1", OrgID: "org", Steps: steps, Active: true}))
	require.NoError(t, repo.Create(ctx, &entity.ApprovalRule{ID: "r2", OrgID: "org", Category: "Travel", Steps: steps, Active: true}))

	got, err := repo.FindActive(ctx, "org", "Travel")
	require.NoError(t, err)
	assert.Equal(t, "r2", got.ID)

	require.NoError(t, repo.Deactivate(ctx, "r2"))
	_, err = repo.FindActive(ctx, "org", "Travel")
	assert.ErrorIs(t, err, entity.ErrRuleNotFound)

	inactive, err := repo.GetByID(ctx, "r2")
	require.NoError(t, err)
	assert.False(t, inactive.Active)
}

func TestUserRepository_UniqueEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Users()

	require.NoError(t, repo.Create(ctx, &entity.User{ID: "u1", Email: "a@example.com", OrgID: "org"}))
	err := repo.Create(ctx, &entity.User{ID: "u2", Email: "A@example.com", OrgID: "org"})
	assert.ErrorIs(t, err, entity.ErrInvalidUser)

	got, err := repo.GetByEmail(ctx, "a@EXAMPLE.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
}
