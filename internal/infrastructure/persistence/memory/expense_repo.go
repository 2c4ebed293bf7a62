package memory

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// ExpenseRepository implements port.ExpenseRepository
type ExpenseRepository struct {
	store *Store
}

func (r *ExpenseRepository) Create(ctx context.Context, expense *entity.Expense) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.expenses[expense.ID]; exists {
		return fmt.Errorf("expense %s already exists", expense.ID)
	}
	if expense.Version == 0 {
		expense.Version = 1
	}
	r.store.expenses[expense.ID] = expense.Clone()
	r.store.onRollback(ctx, func() { delete(r.store.expenses, expense.ID) })
	return nil
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id string) (*entity.Expense, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	expense, ok := r.store.expenses[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrExpenseNotFound, id)
	}
	return expense.Clone(), nil
}

func (r *ExpenseRepository) Update(ctx context.Context, expense *entity.Expense) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.expenses[expense.ID]
	if !ok {
		return fmt.Errorf("%w: %s", entity.ErrExpenseNotFound, expense.ID)
	}
	if stored.Version != expense.Version {
		return fmt.Errorf("%w: expense %s at version %d, have %d", entity.ErrVersionConflict, expense.ID, stored.Version, expense.Version)
	}

	expense.Version++
	r.store.expenses[expense.ID] = expense.Clone()
	r.store.onRollback(ctx, func() { r.store.expenses[stored.ID] = stored })
	return nil
}

func (r *ExpenseRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entity.Expense, error) {
	return r.filter(func(e *entity.Expense) bool { return e.OwnerID == ownerID }), nil
}

func (r *ExpenseRepository) ListByOrg(ctx context.Context, orgID string) ([]*entity.Expense, error) {
	return r.filter(func(e *entity.Expense) bool { return e.OrgID == orgID }), nil
}

func (r *ExpenseRepository) ListByStatus(ctx context.Context, status entity.Status) ([]*entity.Expense, error) {
	return r.filter(func(e *entity.Expense) bool { return e.Status == status }), nil
}

func (r *ExpenseRepository) filter(keep func(*entity.Expense) bool) []*entity.Expense {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*entity.Expense
	for _, e := range r.store.expenses {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	sortExpenses(out)
	return out
}
