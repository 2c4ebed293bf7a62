package memory

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// DecisionRepository implements port.DecisionRepository
type DecisionRepository struct {
	store *Store
}

func (r *DecisionRepository) Append(ctx context.Context, decision *entity.ApprovalDecision) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, d := range r.store.decisions[decision.ExpenseID] {
		if d.ID == decision.ID {
			return fmt.Errorf("decision %s already recorded", decision.ID)
		}
	}

	c := *decision
	r.store.decisions[decision.ExpenseID] = append(r.store.decisions[decision.ExpenseID], &c)
	r.store.onRollback(ctx, func() { r.store.dropDecision(c.ExpenseID, c.ID) })
	return nil
}

func (r *DecisionRepository) ListByExpense(ctx context.Context, expenseID string) ([]*entity.ApprovalDecision, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ledger := r.store.decisions[expenseID]
	out := make([]*entity.ApprovalDecision, len(ledger))
	for i, d := range ledger {
		c := *d
		out[i] = &c
	}
	return out, nil
}

func (s *Store) dropDecision(expenseID, decisionID string) {
	ledger := s.decisions[expenseID]
	kept := ledger[:0:0]
	for _, d := range ledger {
		if d.ID != decisionID {
			kept = append(kept, d)
		}
	}
	s.decisions[expenseID] = kept
}
