package memory

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// RuleRepository implements port.RuleRepository
type RuleRepository struct {
	store *Store
}

func (r *RuleRepository) Create(ctx context.Context, rule *entity.ApprovalRule) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.rules[rule.ID]; exists {
		return fmt.Errorf("rule %s already exists", rule.ID)
	}
	r.store.rules[rule.ID] = cloneRule(rule)
	r.store.ruleOrder = append(r.store.ruleOrder, rule.ID)
	r.store.onRollback(ctx, func() { r.store.dropRule(rule.ID) })
	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalRule, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	rule, ok := r.store.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrRuleNotFound, id)
	}
	return cloneRule(rule), nil
}

// FindActive returns the most recently published active rule for the pair
func (r *RuleRepository) FindActive(ctx context.Context, orgID, category string) (*entity.ApprovalRule, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for i := len(r.store.ruleOrder) - 1; i >= 0; i-- {
		rule := r.store.rules[r.store.ruleOrder[i]]
		if rule.Active && rule.OrgID == orgID && rule.Category == category {
			return cloneRule(rule), nil
		}
	}
	return nil, fmt.Errorf("%w: org %s category %q", entity.ErrRuleNotFound, orgID, category)
}

func (r *RuleRepository) Deactivate(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rule, ok := r.store.rules[id]
	if !ok {
		return fmt.Errorf("%w: %s", entity.ErrRuleNotFound, id)
	}
	wasActive := rule.Active
	rule.Active = false
	r.store.onRollback(ctx, func() { rule.Active = wasActive })
	return nil
}

func (r *RuleRepository) ListByOrg(ctx context.Context, orgID string) ([]*entity.ApprovalRule, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*entity.ApprovalRule
	for _, id := range r.store.ruleOrder {
		if rule := r.store.rules[id]; rule.OrgID == orgID {
			out = append(out, cloneRule(rule))
		}
	}
	return out, nil
}

func (s *Store) dropRule(id string) {
	delete(s.rules, id)
	for i, ruleID := range s.ruleOrder {
		if ruleID == id {
			s.ruleOrder = append(s.ruleOrder[:i:i], s.ruleOrder[i+1:]...)
			return
		}
	}
}
