package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/pkg/utils"
)

// CreateExpenseInput carries a new draft
type CreateExpenseInput struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Category    string               `json:"category"`
	Currency    string               `json:"currency"`
	Items       []entity.ExpenseItem `json:"items"`
}

// ExpenseService manages expense drafts and their visibility
type ExpenseService interface {
	CreateDraft(ctx context.Context, owner *entity.User, in CreateExpenseInput) (*entity.Expense, error)
	GetExpense(ctx context.Context, viewer *entity.User, id string) (*entity.Expense, error)

	// ListExpenses returns every expense of the org for admins and the
	// viewer's own expenses for everyone else
	ListExpenses(ctx context.Context, viewer *entity.User) ([]*entity.Expense, error)
}

type expenseServiceImpl struct {
	expenseRepo  port.ExpenseRepository
	decisionRepo port.DecisionRepository
	authorizer   port.Authorizer
	logger       Logger
}

// NewExpenseService creates a new ExpenseService
func NewExpenseService(
	expenseRepo port.ExpenseRepository,
	decisionRepo port.DecisionRepository,
	authorizer port.Authorizer,
	logger Logger,
) ExpenseService {
	return &expenseServiceImpl{
		expenseRepo:  expenseRepo,
		decisionRepo: decisionRepo,
		authorizer:   authorizer,
		logger:       logger,
	}
}

func (s *expenseServiceImpl) CreateDraft(ctx context.Context, owner *entity.User, in CreateExpenseInput) (*entity.Expense, error) {
	if owner == nil {
		return nil, ErrUnauthenticated
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", entity.ErrInvalidExpense)
	}
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", entity.ErrInvalidExpense)
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = owner.Currency
	}
	if err := utils.ValidateCurrency(currency); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalidExpense, err)
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = entity.CategoryOther
	}

	items := make([]entity.ExpenseItem, len(in.Items))
	for i, item := range in.Items {
		normalized, err := normalizeItem(item, currency)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		items[i] = normalized
	}

	now := time.Now().UTC()
	expense := &entity.Expense{
		ID:          uuid.NewString(),
		OwnerID:     owner.ID,
		OrgID:       owner.OrgID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Category:    category,
		Currency:    currency,
		Items:       items,
		Status:      entity.StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.expenseRepo.Create(ctx, expense); err != nil {
		s.logger.Error("Failed to create expense", "owner_id", owner.ID, "error", err)
		return nil, fmt.Errorf("create expense: %w", err)
	}

	s.logger.Info("Expense draft created",
		"expense_id", expense.ID,
		"owner_id", owner.ID,
		"category", category,
		"total", expense.Total().StringFixed(2),
		"currency", currency,
	)
	return expense, nil
}

func (s *expenseServiceImpl) GetExpense(ctx context.Context, viewer *entity.User, id string) (*entity.Expense, error) {
	expense, err := s.expenseRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkVisible(ctx, viewer, expense); err != nil {
		return nil, err
	}
	return expense, nil
}

func (s *expenseServiceImpl) ListExpenses(ctx context.Context, viewer *entity.User) ([]*entity.Expense, error) {
	if viewer == nil {
		return nil, ErrUnauthenticated
	}
	if s.authorizer.HasRole(ctx, viewer, entity.RoleAdmin) {
		return s.expenseRepo.ListByOrg(ctx, viewer.OrgID)
	}
	return s.expenseRepo.ListByOwner(ctx, viewer.ID)
}

// checkVisible admits the owner, admins of the org, current approvers and
// anyone who already decided on the expense
func (s *expenseServiceImpl) checkVisible(ctx context.Context, viewer *entity.User, expense *entity.Expense) error {
	return canView(ctx, s.authorizer, s.decisionRepo, viewer, expense)
}

func canView(ctx context.Context, authorizer port.Authorizer, decisions port.DecisionRepository, viewer *entity.User, expense *entity.Expense) error {
	if viewer == nil {
		return ErrUnauthenticated
	}
	if viewer.ID == expense.OwnerID || expense.IsStepApprover(viewer.ID) {
		return nil
	}
	if viewer.OrgID == expense.OrgID && authorizer.HasRole(ctx, viewer, entity.RoleAdmin) {
		return nil
	}

	ledger, err := decisions.ListByExpense(ctx, expense.ID)
	if err != nil {
		return err
	}
	for _, d := range ledger {
		if d.ApproverID == viewer.ID {
			return nil
		}
	}
	return fmt.Errorf("%w: expense %s", entity.ErrForbidden, expense.ID)
}

func normalizeItem(item entity.ExpenseItem, currency string) (entity.ExpenseItem, error) {
	item.Description = strings.TrimSpace(item.Description)
	if item.Description == "" {
		return item, fmt.Errorf("%w: description is required", entity.ErrInvalidExpense)
	}
	if !item.Amount.IsPositive() {
		return item, fmt.Errorf("%w: amount must be positive", entity.ErrInvalidExpense)
	}

	item.Currency = strings.ToUpper(strings.TrimSpace(item.Currency))
	if item.Currency == "" {
		item.Currency = currency
	}
	if err := utils.ValidateCurrency(item.Currency); err != nil {
		return item, fmt.Errorf("%w: %v", entity.ErrInvalidExpense, err)
	}
	if item.ExchangeRate.IsZero() {
		item.ExchangeRate = decimal.NewFromInt(1)
	}
	if item.ExchangeRate.IsNegative() {
		return item, fmt.Errorf("%w: exchange rate must be positive", entity.ErrInvalidExpense)
	}
	if item.OriginalAmount.IsZero() {
		item.OriginalAmount = item.Amount.Div(item.ExchangeRate).Round(2)
	}
	return item, nil
}
