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

const ruleColumns = `id, org_id, category, name, steps, active, created_at`

// RuleRepository implements port.RuleRepository
type RuleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sql.DB, logger *zap.Logger) port.RuleRepository {
	return &RuleRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a rule; its steps are stored as a JSON document
func (r *RuleRepository) Create(ctx context.Context, rule *entity.ApprovalRule) error {
	steps, err := encodeJSON(rule.Steps)
	if err != nil {
		return err
	}

	query := `INSERT INTO approval_rules (` + ruleColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = r.getExecutor(ctx).ExecContext(ctx, query,
		rule.ID,
		rule.OrgID,
		rule.Category,
		rule.Name,
		steps,
		rule.Active,
		rule.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create rule", zap.String("rule_id", rule.ID), zap.Error(err))
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// GetByID retrieves a rule by ID, active or not
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM approval_rules WHERE id = ?`

	rule, err := scanRule(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", entity.ErrRuleNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get rule", zap.String("rule_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// FindActive returns the most recently published active rule for the pair
func (r *RuleRepository) FindActive(ctx context.Context, orgID, category string) (*entity.ApprovalRule, error) {
	query := `
		SELECT ` + ruleColumns + ` FROM approval_rules
		WHERE org_id = ? AND category = ? AND active = 1
		ORDER BY seq DESC
		LIMIT 1
	`

	rule, err := scanRule(r.getExecutor(ctx).QueryRowContext(ctx, query, orgID, category))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: org %s category %q", entity.ErrRuleNotFound, orgID, category)
	}
	if err != nil {
		r.logger.Error("Failed to find active rule",
			zap.String("org_id", orgID),
			zap.String("category", category),
			zap.Error(err))
		return nil, fmt.Errorf("failed to find active rule: %w", err)
	}
	return rule, nil
}

// Deactivate retires a rule; nothing else about it changes
func (r *RuleRepository) Deactivate(ctx context.Context, id string) error {
	result, err := r.getExecutor(ctx).ExecContext(ctx, `UPDATE approval_rules SET active = 0 WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to deactivate rule", zap.String("rule_id", id), zap.Error(err))
		return fmt.Errorf("failed to deactivate rule: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", entity.ErrRuleNotFound, id)
	}
	return nil
}

// ListByOrg returns every rule of an organization in publication order
func (r *RuleRepository) ListByOrg(ctx context.Context, orgID string) ([]*entity.ApprovalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM approval_rules WHERE org_id = ? ORDER BY seq ASC`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, orgID)
	if err != nil {
		r.logger.Error("Failed to list rules", zap.String("org_id", orgID), zap.Error(err))
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*entity.ApprovalRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanRule(row rowScanner) (*entity.ApprovalRule, error) {
	var (
		rule  entity.ApprovalRule
		steps string
	)
	if err := row.Scan(&rule.ID, &rule.OrgID, &rule.Category, &rule.Name, &steps, &rule.Active, &rule.CreatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(steps, &rule.Steps); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *RuleRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}
