package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// DecisionRepository implements port.DecisionRepository.
// The table is append-only; rows are never updated or deleted.
type DecisionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDecisionRepository creates a new decision repository
func NewDecisionRepository(db *sql.DB, logger *zap.Logger) port.DecisionRepository {
	return &DecisionRepository{
		db:     db,
		logger: logger,
	}
}

// Append records a decision at the end of the ledger
func (r *DecisionRepository) Append(ctx context.Context, decision *entity.ApprovalDecision) error {
	query := `
		INSERT INTO approval_decisions (
			id, expense_id, step, approver_id, decision, comment, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		decision.ID,
		decision.ExpenseID,
		decision.Step,
		decision.ApproverID,
		decision.Decision,
		decision.Comment,
		decision.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append decision",
			zap.String("expense_id", decision.ExpenseID),
			zap.String("approver_id", decision.ApproverID),
			zap.Error(err))
		return fmt.Errorf("failed to append decision: %w", err)
	}
	return nil
}

// ListByExpense returns the ledger of an expense in append order
func (r *DecisionRepository) ListByExpense(ctx context.Context, expenseID string) ([]*entity.ApprovalDecision, error) {
	query := `
		SELECT id, expense_id, step, approver_id, decision, comment, created_at
		FROM approval_decisions
		WHERE expense_id = ?
		ORDER BY seq ASC
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, expenseID)
	if err != nil {
		r.logger.Error("Failed to list decisions", zap.String("expense_id", expenseID), zap.Error(err))
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*entity.ApprovalDecision
	for rows.Next() {
		var d entity.ApprovalDecision
		if err := rows.Scan(&d.ID, &d.ExpenseID, &d.Step, &d.ApproverID, &d.Decision, &d.Comment, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}

func (r *DecisionRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}
