// Package memory implements the repository ports in process memory.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

type contextKey string

const txKey contextKey = "memtx"

// Store holds every table of the in-memory backend. Transactions are
// serialized and roll back by undoing only the writes they made.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	expenses  map[string]*entity.Expense
	decisions map[string][]*entity.ApprovalDecision
	users     map[string]*entity.User
	rules     map[string]*entity.ApprovalRule
	ruleOrder []string
}

// txLog collects undo steps for the writes of one transaction
type txLog struct {
	undo []func()
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		expenses:  make(map[string]*entity.Expense),
		decisions: make(map[string][]*entity.ApprovalDecision),
		users:     make(map[string]*entity.User),
		rules:     make(map[string]*entity.ApprovalRule),
	}
}

// WithTransaction executes fn atomically against the store
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	log := &txLog{}
	defer func() {
		if p := recover(); p != nil {
			s.rollback(log)
			panic(p)
		}
		if err != nil {
			s.rollback(log)
		}
	}()

	return fn(context.WithValue(ctx, txKey, log))
}

// Expenses returns the expense repository view
func (s *Store) Expenses() *ExpenseRepository {
	return &ExpenseRepository{store: s}
}

// Decisions returns the decision ledger view
func (s *Store) Decisions() *DecisionRepository {
	return &DecisionRepository{store: s}
}

// Users returns the user repository view
func (s *Store) Users() *UserRepository {
	return &UserRepository{store: s}
}

// Rules returns the rule repository view
func (s *Store) Rules() *RuleRepository {
	return &RuleRepository{store: s}
}

// onRollback registers undo for a write made under ctx. Callers hold s.mu.
func (s *Store) onRollback(ctx context.Context, undo func()) {
	if log, ok := ctx.Value(txKey).(*txLog); ok {
		log.undo = append(log.undo, undo)
	}
}

func (s *Store) rollback(log *txLog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(log.undo) - 1; i >= 0; i-- {
		log.undo[i]()
	}
}

func cloneRule(r *entity.ApprovalRule) *entity.ApprovalRule {
	c := *r
	c.Steps = make([]entity.StepRule, len(r.Steps))
	for i, step := range r.Steps {
		step.Panel = append([]string(nil), step.Panel...)
		c.Steps[i] = step
	}
	return &c
}

func sortExpenses(list []*entity.Expense) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
