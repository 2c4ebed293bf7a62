package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Sheet names of the exported workbook
const (
	SummarySheet = "Summary"
	LedgerSheet  = "Ledger"
	ItemsSheet   = "Items"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	ledgerHeader = []interface{}{"#", "Step", "Approver", "Decision", "Comment", "Recorded At"}
	itemsHeader  = []interface{}{"#", "Description", "Amount", "Original Amount", "Currency", "Exchange Rate"}
)

// LedgerWorkbook renders an expense ledger as an xlsx workbook
type LedgerWorkbook struct {
	logger *zap.Logger
}

// NewLedgerWorkbook creates a new workbook exporter
func NewLedgerWorkbook(logger *zap.Logger) *LedgerWorkbook {
	return &LedgerWorkbook{logger: logger}
}

// ExportLedger writes a Summary, a Ledger and an Items sheet to w
func (l *LedgerWorkbook) ExportLedger(ctx context.Context, expense *entity.Expense, ledger []*entity.ApprovalDecision, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if err := l.fillSummary(f, expense); err != nil {
		return err
	}

	if _, err := f.NewSheet(LedgerSheet); err != nil {
		return fmt.Errorf("failed to create ledger sheet: %w", err)
	}
	if err := l.fillLedger(f, ledger); err != nil {
		return err
	}

	if _, err := f.NewSheet(ItemsSheet); err != nil {
		return fmt.Errorf("failed to create items sheet: %w", err)
	}
	if err := l.fillItems(f, expense.Items); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	l.logger.Info("Ledger exported",
		zap.String("expense_id", expense.ID),
		zap.Int("decisions", len(ledger)),
		zap.Int("items", len(expense.Items)))
	return nil
}

func (l *LedgerWorkbook) fillSummary(f *excelize.File, expense *entity.Expense) error {
	rows := [][]interface{}{
		{"Expense", expense.ID},
		{"Title", expense.Title},
		{"Owner", expense.OwnerID},
		{"Organization", expense.OrgID},
		{"Category", expense.Category},
		{"Status", string(expense.Status)},
		{"Step", fmt.Sprintf("%d / %d", expense.CurrentStep, expense.TotalSteps)},
		{"Rule", expense.RuleID},
		{"Total", expense.Total().StringFixed(2) + " " + expense.Currency},
		{"Submitted At", formatTime(expense.SubmittedAt)},
		{"Decided At", formatTime(expense.DecidedAt)},
	}
	return setRows(f, SummarySheet, 1, rows)
}

func (l *LedgerWorkbook) fillLedger(f *excelize.File, ledger []*entity.ApprovalDecision) error {
	rows := make([][]interface{}, 0, len(ledger)+1)
	rows = append(rows, ledgerHeader)
	for i, d := range ledger {
		step := fmt.Sprint(d.Step)
		if d.IsOverride() {
			step = "override"
		}
		rows = append(rows, []interface{}{i + 1, step, d.ApproverID, string(d.Decision), d.Comment, d.CreatedAt.UTC().Format(timeLayout)})
	}
	return setRows(f, LedgerSheet, 1, rows)
}

func (l *LedgerWorkbook) fillItems(f *excelize.File, items []entity.ExpenseItem) error {
	rows := make([][]interface{}, 0, len(items)+1)
	rows = append(rows, itemsHeader)
	for i, item := range items {
		rows = append(rows, []interface{}{
			i + 1,
			item.Description,
			item.Amount.StringFixed(2),
			item.OriginalAmount.StringFixed(2),
			item.Currency,
			item.ExchangeRate.String(),
		})
	}
	return setRows(f, ItemsSheet, 1, rows)
}

func setRows(f *excelize.File, sheet string, first int, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, first+i)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to set %s row %d: %w", sheet, first+i, err)
		}
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

var _ port.LedgerExporter = (*LedgerWorkbook)(nil)
