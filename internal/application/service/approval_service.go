package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// PendingApproval is an expense waiting on the viewer
type PendingApproval struct {
	Expense         *entity.Expense `json:"expense"`
	Step            int             `json:"step"`
	TotalSteps      int             `json:"total_steps"`
	RuleDescription string          `json:"rule_description"`
}

// LedgerView is the full decision history of an expense
type LedgerView struct {
	Expense     *entity.Expense            `json:"expense"`
	Decisions   []*entity.ApprovalDecision `json:"decisions"`
	CurrentStep *entity.ApprovalStep       `json:"current_step,omitempty"`
}

// ApprovalService answers approval queries and renders ledgers
type ApprovalService interface {
	// PendingFor lists pending expenses whose current step awaits the viewer
	PendingFor(ctx context.Context, viewer *entity.User) ([]*PendingApproval, error)
	Ledger(ctx context.Context, viewer *entity.User, expenseID string) (*LedgerView, error)
	ExportLedger(ctx context.Context, viewer *entity.User, expenseID string, w io.Writer) error

	// ArchiveLedger renders the ledger into report storage and returns its path.
	// It is an operator action and skips viewer checks.
	ArchiveLedger(ctx context.Context, expenseID string) (string, error)
}

type approvalServiceImpl struct {
	expenseRepo  port.ExpenseRepository
	decisionRepo port.DecisionRepository
	engine       workflow.WorkflowEngine
	authorizer   port.Authorizer
	exporter     port.LedgerExporter
	storage      port.ReportStorage
	logger       Logger
}

// NewApprovalService creates a new ApprovalService. exporter and storage may be
// nil when exports are not configured.
func NewApprovalService(
	expenseRepo port.ExpenseRepository,
	decisionRepo port.DecisionRepository,
	engine workflow.WorkflowEngine,
	authorizer port.Authorizer,
	exporter port.LedgerExporter,
	storage port.ReportStorage,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		expenseRepo:  expenseRepo,
		decisionRepo: decisionRepo,
		engine:       engine,
		authorizer:   authorizer,
		exporter:     exporter,
		storage:      storage,
		logger:       logger,
	}
}

// ErrExportDisabled is returned when no ledger exporter is wired
var ErrExportDisabled = errors.New("ledger export is not configured")

func (s *approvalServiceImpl) PendingFor(ctx context.Context, viewer *entity.User) ([]*PendingApproval, error) {
	if viewer == nil {
		return nil, ErrUnauthenticated
	}

	pending, err := s.expenseRepo.ListByStatus(ctx, entity.StatusPendingApproval)
	if err != nil {
		return nil, fmt.Errorf("list pending expenses: %w", err)
	}

	var out []*PendingApproval
	for _, expense := range pending {
		if expense.OrgID != viewer.OrgID || !expense.IsStepApprover(viewer.ID) {
			continue
		}

		step, err := s.engine.GetApprovalStep(ctx, expense.ID)
		if err != nil {
			s.logger.Error("Failed to load approval step", "expense_id", expense.ID, "error", err)
			continue
		}
		if !contains(step.PendingApprovers(), viewer.ID) {
			continue
		}

		out = append(out, &PendingApproval{
			Expense:         expense,
			Step:            step.Index,
			TotalSteps:      expense.TotalSteps,
			RuleDescription: step.Rule.Describe(),
		})
	}
	return out, nil
}

func (s *approvalServiceImpl) Ledger(ctx context.Context, viewer *entity.User, expenseID string) (*LedgerView, error) {
	expense, err := s.expenseRepo.GetByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if err := canView(ctx, s.authorizer, s.decisionRepo, viewer, expense); err != nil {
		return nil, err
	}
	return s.ledger(ctx, expense)
}

func (s *approvalServiceImpl) ExportLedger(ctx context.Context, viewer *entity.User, expenseID string, w io.Writer) error {
	if s.exporter == nil {
		return ErrExportDisabled
	}

	view, err := s.Ledger(ctx, viewer, expenseID)
	if err != nil {
		return err
	}
	return s.exporter.ExportLedger(ctx, view.Expense, view.Decisions, w)
}

func (s *approvalServiceImpl) ArchiveLedger(ctx context.Context, expenseID string) (string, error) {
	if s.exporter == nil || s.storage == nil {
		return "", ErrExportDisabled
	}

	expense, err := s.expenseRepo.GetByID(ctx, expenseID)
	if err != nil {
		return "", err
	}
	view, err := s.ledger(ctx, expense)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := s.exporter.ExportLedger(ctx, view.Expense, view.Decisions, &buf); err != nil {
		return "", fmt.Errorf("render ledger: %w", err)
	}

	path := fmt.Sprintf("%s/%s_ledger_%s.xlsx", expense.OrgID, expense.ID, time.Now().UTC().Format("20060102T150405"))
	if err := s.storage.Save(ctx, path, buf.Bytes()); err != nil {
		return "", fmt.Errorf("store ledger: %w", err)
	}

	s.logger.Info("Ledger archived", "expense_id", expense.ID, "path", path, "decisions", len(view.Decisions))
	return s.storage.GetFullPath(path), nil
}

func (s *approvalServiceImpl) ledger(ctx context.Context, expense *entity.Expense) (*LedgerView, error) {
	decisions, err := s.decisionRepo.ListByExpense(ctx, expense.ID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}

	view := &LedgerView{Expense: expense, Decisions: decisions}
	if expense.CurrentStep > 0 {
		step, err := s.engine.GetApprovalStep(ctx, expense.ID)
		if err != nil {
			return nil, err
		}
		view.CurrentStep = step
	}
	return view, nil
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
