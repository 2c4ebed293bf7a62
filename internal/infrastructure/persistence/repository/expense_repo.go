package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

const expenseColumns = `
	id, owner_id, org_id, title, description, category, currency, items,
	status, current_step, total_steps, rule_id, step_approvers, current_approver,
	version, submitted_at, decided_at, created_at, updated_at`

// ExpenseRepository implements port.ExpenseRepository
type ExpenseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sql.DB, logger *zap.Logger) port.ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new expense at version 1
func (r *ExpenseRepository) Create(ctx context.Context, expense *entity.Expense) error {
	items, err := encodeJSON(expense.Items)
	if err != nil {
		return err
	}
	approvers, err := encodeJSON(expense.StepApprovers)
	if err != nil {
		return err
	}
	if expense.Version == 0 {
		expense.Version = 1
	}

	query := `INSERT INTO expenses (` + expenseColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.getExecutor(ctx).ExecContext(ctx, query,
		expense.ID,
		expense.OwnerID,
		expense.OrgID,
		expense.Title,
		expense.Description,
		expense.Category,
		expense.Currency,
		items,
		expense.Status,
		expense.CurrentStep,
		expense.TotalSteps,
		expense.RuleID,
		approvers,
		expense.CurrentApprover,
		expense.Version,
		nullTime(expense.SubmittedAt),
		nullTime(expense.DecidedAt),
		expense.CreatedAt,
		expense.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create expense", zap.String("expense_id", expense.ID), zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

// GetByID retrieves an expense by ID
func (r *ExpenseRepository) GetByID(ctx context.Context, id string) (*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ?`

	expense, err := scanExpense(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", entity.ErrExpenseNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get expense by ID", zap.String("expense_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return expense, nil
}

// Update writes the expense if the stored version still matches, then bumps it
func (r *ExpenseRepository) Update(ctx context.Context, expense *entity.Expense) error {
	items, err := encodeJSON(expense.Items)
	if err != nil {
		return err
	}
	approvers, err := encodeJSON(expense.StepApprovers)
	if err != nil {
		return err
	}

	query := `
		UPDATE expenses SET
			title = ?, description = ?, category = ?, currency = ?, items = ?,
			status = ?, current_step = ?, total_steps = ?, rule_id = ?,
			step_approvers = ?, current_approver = ?, version = version + 1,
			submitted_at = ?, decided_at = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`

	exec := r.getExecutor(ctx)
	result, err := exec.ExecContext(ctx, query,
		expense.Title,
		expense.Description,
		expense.Category,
		expense.Currency,
		items,
		expense.Status,
		expense.CurrentStep,
		expense.TotalSteps,
		expense.RuleID,
		approvers,
		expense.CurrentApprover,
		nullTime(expense.SubmittedAt),
		nullTime(expense.DecidedAt),
		expense.UpdatedAt,
		expense.ID,
		expense.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update expense", zap.String("expense_id", expense.ID), zap.Error(err))
		return fmt.Errorf("failed to update expense: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var stored int64
		err := exec.QueryRowContext(ctx, `SELECT version FROM expenses WHERE id = ?`, expense.ID).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", entity.ErrExpenseNotFound, expense.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to read expense version: %w", err)
		}
		return fmt.Errorf("%w: expense %s at version %d, have %d", entity.ErrVersionConflict, expense.ID, stored, expense.Version)
	}

	expense.Version++
	return nil
}

// ListByOwner returns an owner's expenses, newest first
func (r *ExpenseRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entity.Expense, error) {
	return r.list(ctx, `owner_id = ?`, ownerID)
}

// ListByOrg returns an organization's expenses, newest first
func (r *ExpenseRepository) ListByOrg(ctx context.Context, orgID string) ([]*entity.Expense, error) {
	return r.list(ctx, `org_id = ?`, orgID)
}

// ListByStatus returns expenses in a status, newest first
func (r *ExpenseRepository) ListByStatus(ctx context.Context, status entity.Status) ([]*entity.Expense, error) {
	return r.list(ctx, `status = ?`, status)
}

func (r *ExpenseRepository) list(ctx context.Context, where string, arg interface{}) ([]*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE ` + where + ` ORDER BY created_at DESC, rowid DESC`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.String("filter", where), zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*entity.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	return expenses, rows.Err()
}

func scanExpense(row rowScanner) (*entity.Expense, error) {
	var (
		expense     entity.Expense
		items       string
		approvers   string
		submittedAt sql.NullTime
		decidedAt   sql.NullTime
	)

	err := row.Scan(
		&expense.ID,
		&expense.OwnerID,
		&expense.OrgID,
		&expense.Title,
		&expense.Description,
		&expense.Category,
		&expense.Currency,
		&items,
		&expense.Status,
		&expense.CurrentStep,
		&expense.TotalSteps,
		&expense.RuleID,
		&approvers,
		&expense.CurrentApprover,
		&expense.Version,
		&submittedAt,
		&decidedAt,
		&expense.CreatedAt,
		&expense.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := decodeJSON(items, &expense.Items); err != nil {
		return nil, err
	}
	if err := decodeJSON(approvers, &expense.StepApprovers); err != nil {
		return nil, err
	}
	expense.SubmittedAt = timePtr(submittedAt)
	expense.DecidedAt = timePtr(decidedAt)
	return &expense, nil
}

func (r *ExpenseRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}
