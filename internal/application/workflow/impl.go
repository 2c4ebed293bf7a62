package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/resolver"
	"github.com/garyjia/expense-approval/internal/domain/rule"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

// DefaultRuleID prefixes the IDs of stored copies of the fallback rule
const DefaultRuleID = "default"

// DefaultRule is used when an organization has no applicable rule:
// a single step needing the owner's manager. It is stored per organization
// on first use, see pinDefaultRule.
func DefaultRule() *entity.ApprovalRule {
	return &entity.ApprovalRule{
		ID:     DefaultRuleID,
		Name:   "Manager approval",
		Steps:  []entity.StepRule{{Kind: entity.RuleKindPercentage, Threshold: 100}},
		Active: true,
	}
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	expenseRepo  port.ExpenseRepository
	decisionRepo port.DecisionRepository
	ruleRepo     port.RuleRepository
	orgChart     port.OrgChart
	authorizer   port.Authorizer
	txManager    port.TransactionManager

	dispatcher   dispatcher.Dispatcher
	locker       port.Locker
	metrics      port.WorkflowMetrics
	logger       Logger
	defaultRule  *entity.ApprovalRule
	storeTimeout time.Duration
	maxAttempts  int
	now          func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting transition events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLocker sets the per-expense lock. Without one, concurrent writers are
// only serialized by the expense version check.
func WithLocker(l port.Locker) EngineOption {
	return func(e *engineImpl) {
		e.locker = l
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m port.WorkflowMetrics) EngineOption {
	return func(e *engineImpl) {
		e.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithDefaultRule replaces the fallback rule; nil disables the fallback
func WithDefaultRule(r *entity.ApprovalRule) EngineOption {
	return func(e *engineImpl) {
		e.defaultRule = r
	}
}

// WithStoreTimeout bounds each round trip to the data store
func WithStoreTimeout(d time.Duration) EngineOption {
	return func(e *engineImpl) {
		e.storeTimeout = d
	}
}

// WithMaxAttempts sets how often an operation is replayed after a version conflict
func WithMaxAttempts(n int) EngineOption {
	return func(e *engineImpl) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	expenseRepo port.ExpenseRepository,
	decisionRepo port.DecisionRepository,
	ruleRepo port.RuleRepository,
	orgChart port.OrgChart,
	authorizer port.Authorizer,
	txManager port.TransactionManager,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		expenseRepo:  expenseRepo,
		decisionRepo: decisionRepo,
		ruleRepo:     ruleRepo,
		orgChart:     orgChart,
		authorizer:   authorizer,
		txManager:    txManager,
		locker:       nopLocker{},
		metrics:      nopMetrics{},
		logger:       nopLogger{},
		defaultRule:  DefaultRule(),
		storeTimeout: 5 * time.Second,
		maxAttempts:  3,
		now:          func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Submit moves a draft into step 1 of its approval chain
func (e *engineImpl) Submit(ctx context.Context, expenseID, actorID string) (*entity.Expense, error) {
	start := time.Now()
	defer func() { e.metrics.ObserveDuration("submit", time.Since(start)) }()

	var (
		submitted *entity.Expense
		fired     []stepTransition
	)

	err := e.serialized(ctx, expenseID, func() error {
		expense, err := e.loadExpense(ctx, expenseID)
		if err != nil {
			return err
		}

		switch {
		case expense.OwnerID != actorID:
			return fmt.Errorf("%w: %s does not own expense %s", entity.ErrNotExpenseOwner, actorID, expenseID)
		case expense.Status.IsTerminal():
			return fmt.Errorf("%w: expense %s is %s", entity.ErrExpenseAlreadyFinalized, expenseID, expense.Status)
		case expense.Status != entity.StatusDraft:
			return fmt.Errorf("%w: expense %s is %s", entity.ErrExpenseNotDraft, expenseID, expense.Status)
		}

		approvalRule, err := e.selectRule(ctx, expense)
		if err != nil {
			return err
		}

		next := expense.Clone()
		next.RuleID = approvalRule.ID
		next.TotalSteps = approvalRule.TotalSteps()
		next.CurrentStep = 1

		tr, err := BuildExpenseStateMachine(next).Fire(ctx, domainwf.TriggerSubmit)
		if err != nil {
			return err
		}

		now := e.now()
		next.Status = tr.To.Status()
		next.SubmittedAt = &now
		next.UpdatedAt = now

		settled, err := e.openStep(ctx, next, approvalRule, nil, now)
		if err != nil {
			return err
		}
		fired = append([]stepTransition{{Transition: tr, step: 1}}, settled...)

		if err := e.save(ctx, next, nil); err != nil {
			return err
		}

		submitted = next
		return nil
	})
	if err != nil {
		e.metrics.ObserveFailure("submit", err)
		e.logger.Error("Submit failed", "expense_id", expenseID, "actor", actorID, "error", err)
		return nil, err
	}

	for _, tr := range fired {
		e.afterTransition(ctx, tr.Transition, submitted, actorID, tr.step)
	}
	return submitted, nil
}

// Decide records a decision on the current step
func (e *engineImpl) Decide(ctx context.Context, cmd DecideCommand) (*DecisionResult, error) {
	if !cmd.Decision.IsValid() {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidDecision, cmd.Decision)
	}

	start := time.Now()
	defer func() { e.metrics.ObserveDuration("decide", time.Since(start)) }()

	var (
		result *DecisionResult
		fired  []stepTransition
	)

	err := e.serialized(ctx, cmd.ExpenseID, func() error {
		result, fired = nil, nil

		expense, err := e.loadExpense(ctx, cmd.ExpenseID)
		if err != nil {
			return err
		}
		ledger, err := e.loadLedger(ctx, cmd.ExpenseID)
		if err != nil {
			return err
		}

		if prior := findRetry(expense, ledger, cmd); prior != nil {
			result = &DecisionResult{Expense: expense, Decision: prior, Duplicate: true}
			return nil
		}

		if err := checkDecidable(expense, ledger, cmd); err != nil {
			return err
		}

		approvalRule, err := e.loadRule(ctx, expense.RuleID)
		if err != nil {
			return err
		}
		stepRule, err := approvalRule.Step(expense.CurrentStep)
		if err != nil {
			return err
		}

		now := e.now()
		decision := &entity.ApprovalDecision{
			ID:         uuid.NewString(),
			ExpenseID:  expense.ID,
			Step:       expense.CurrentStep,
			ApproverID: cmd.ApproverID,
			Decision:   cmd.Decision,
			Comment:    cmd.Comment,
			CreatedAt:  now,
		}
		ledger = append(ledger, decision)
		stepDecisions := entity.DecisionsForStep(ledger, expense.CurrentStep)

		outcome, err := rule.Evaluate(stepRule, stepDecisions, expense.StepApprovers)
		if err != nil {
			return err
		}

		next := expense.Clone()
		next.UpdatedAt = now

		if outcome.IsPending() {
			next.CurrentApprover = nextApprover(stepRule, next.StepApprovers, stepDecisions)
		} else {
			tr, err := settleStep(ctx, next, outcome, now)
			if err != nil {
				return err
			}
			fired = []stepTransition{tr}

			if !tr.To.IsTerminal() {
				settled, err := e.openStep(ctx, next, approvalRule, ledger, now)
				if err != nil {
					return err
				}
				fired = append(fired, settled...)
			}
		}

		if err := e.save(ctx, next, decision); err != nil {
			return err
		}

		result = &DecisionResult{Expense: next, Decision: decision, Outcome: outcome}
		return nil
	})
	if err != nil {
		e.metrics.ObserveFailure("decide", err)
		e.logger.Error("Decide failed",
			"expense_id", cmd.ExpenseID,
			"approver", cmd.ApproverID,
			"decision", cmd.Decision,
			"error", err,
		)
		return nil, err
	}

	e.metrics.ObserveDecision(cmd.Decision, result.Duplicate)
	if result.Duplicate {
		e.logger.Info("Duplicate decision ignored",
			"expense_id", cmd.ExpenseID,
			"approver", cmd.ApproverID,
			"step", result.Decision.Step,
		)
		return result, nil
	}

	for _, tr := range fired {
		e.afterTransition(ctx, tr.Transition, result.Expense, cmd.ApproverID, tr.step)
	}
	return result, nil
}

// Override forces a terminal status on behalf of an admin
func (e *engineImpl) Override(ctx context.Context, cmd OverrideCommand) (*entity.Expense, error) {
	trigger, ok := overrideTrigger(cmd.Status)
	if !ok {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidOverrideStatus, cmd.Status)
	}

	start := time.Now()
	defer func() { e.metrics.ObserveDuration("override", time.Since(start)) }()

	admin, err := e.loadAdmin(ctx, cmd.AdminID)
	if err != nil {
		e.metrics.ObserveFailure("override", err)
		return nil, err
	}

	var (
		overridden *entity.Expense
		fired      domainwf.Transition
	)

	err = e.serialized(ctx, cmd.ExpenseID, func() error {
		expense, err := e.loadExpense(ctx, cmd.ExpenseID)
		if err != nil {
			return err
		}
		if expense.Status.IsTerminal() {
			return fmt.Errorf("%w: expense %s is %s", entity.ErrExpenseAlreadyFinalized, expense.ID, expense.Status)
		}
		if admin.OrgID != expense.OrgID {
			return fmt.Errorf("%w: %s administers another organization", entity.ErrNotAdmin, admin.ID)
		}

		next := expense.Clone()
		fired, err = BuildExpenseStateMachine(next).Fire(ctx, trigger)
		if err != nil {
			return err
		}

		now := e.now()
		finalize(next, fired.To.Status(), now)

		decision := &entity.ApprovalDecision{
			ID:         uuid.NewString(),
			ExpenseID:  expense.ID,
			Step:       entity.OverrideStep,
			ApproverID: admin.ID,
			Decision:   decisionFor(cmd.Status),
			Comment:    cmd.Comment,
			CreatedAt:  now,
		}

		if err := e.save(ctx, next, decision); err != nil {
			return err
		}

		overridden = next
		return nil
	})
	if err != nil {
		e.metrics.ObserveFailure("override", err)
		e.logger.Error("Override failed", "expense_id", cmd.ExpenseID, "admin", cmd.AdminID, "error", err)
		return nil, err
	}

	e.afterTransition(ctx, fired, overridden, admin.ID, entity.OverrideStep)
	return overridden, nil
}

// GetApprovalStep returns the current step with its approvers and decisions
func (e *engineImpl) GetApprovalStep(ctx context.Context, expenseID string) (*entity.ApprovalStep, error) {
	expense, err := e.loadExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if expense.CurrentStep < 1 {
		return nil, fmt.Errorf("%w: expense %s has not entered a chain", entity.ErrExpenseNotPending, expenseID)
	}

	approvalRule, err := e.loadRule(ctx, expense.RuleID)
	if err != nil {
		return nil, err
	}
	stepRule, err := approvalRule.Step(expense.CurrentStep)
	if err != nil {
		return nil, err
	}
	ledger, err := e.loadLedger(ctx, expenseID)
	if err != nil {
		return nil, err
	}

	return &entity.ApprovalStep{
		Index:     expense.CurrentStep,
		Approvers: append([]string{}, expense.StepApprovers...),
		Rule:      stepRule,
		Decisions: entity.DecisionsForStep(ledger, expense.CurrentStep),
	}, nil
}

// serialized runs fn under the expense lock, replaying it on version conflicts
// so every precondition is re-checked against fresh state.
func (e *engineImpl) serialized(ctx context.Context, expenseID string, fn func() error) error {
	unlock, err := e.locker.Lock(ctx, lockKey(expenseID))
	if err != nil {
		return fmt.Errorf("%w: lock expense %s: %w", entity.ErrPersistenceFailure, expenseID, err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		err = fn()
		if !errors.Is(err, entity.ErrVersionConflict) {
			return err
		}
		if attempt >= e.maxAttempts {
			return fmt.Errorf("%w: %w", entity.ErrPersistenceFailure, err)
		}
		e.logger.Info("Version conflict, replaying", "expense_id", expenseID, "attempt", attempt)
	}
}

// enterStep resolves the approvers of expense.CurrentStep and records them on the expense
func (e *engineImpl) enterStep(ctx context.Context, expense *entity.Expense, approvalRule *entity.ApprovalRule, ledger []*entity.ApprovalDecision) error {
	stepRule, err := approvalRule.Step(expense.CurrentStep)
	if err != nil {
		return err
	}

	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	approvers, err := resolver.ResolveStep(storeCtx, expense, expense.CurrentStep, approvalRule, e.orgChart, ledger)
	if err != nil {
		return err
	}

	expense.StepApprovers = approvers
	expense.CurrentApprover = nextApprover(stepRule, approvers, nil)
	return nil
}

// openStep enters expense.CurrentStep and keeps moving down the chain while
// the entered step is already satisfied with no decisions, as a zero
// threshold is.
func (e *engineImpl) openStep(
	ctx context.Context,
	expense *entity.Expense,
	approvalRule *entity.ApprovalRule,
	ledger []*entity.ApprovalDecision,
	now time.Time,
) ([]stepTransition, error) {
	var fired []stepTransition
	for {
		if err := e.enterStep(ctx, expense, approvalRule, ledger); err != nil {
			return nil, err
		}

		stepRule, err := approvalRule.Step(expense.CurrentStep)
		if err != nil {
			return nil, err
		}
		outcome, err := rule.Evaluate(stepRule, nil, expense.StepApprovers)
		if err != nil {
			return nil, err
		}
		if outcome.IsPending() {
			return fired, nil
		}

		tr, err := settleStep(ctx, expense, outcome, now)
		if err != nil {
			return nil, err
		}
		fired = append(fired, tr)
		if tr.To.IsTerminal() {
			return fired, nil
		}
	}
}

// settleStep fires the outcome of the current step. A terminal outcome
// finalizes the expense, otherwise CurrentStep moves on and the caller enters it.
func settleStep(ctx context.Context, expense *entity.Expense, outcome rule.Result, now time.Time) (stepTransition, error) {
	trigger := domainwf.TriggerStepRejected
	if outcome.Approved() {
		trigger = domainwf.TriggerStepApproved
	}

	tr, err := BuildExpenseStateMachine(expense).Fire(ctx, trigger)
	if err != nil {
		return stepTransition{}, err
	}

	if tr.To.IsTerminal() {
		finalize(expense, tr.To.Status(), now)
	} else {
		expense.CurrentStep++
	}
	return stepTransition{Transition: tr, step: expense.CurrentStep}, nil
}

// stepTransition is a fired transition with the step the expense ended on
type stepTransition struct {
	domainwf.Transition
	step int
}

// save appends the decision and swaps in the new expense state as one unit
func (e *engineImpl) save(ctx context.Context, expense *entity.Expense, decision *entity.ApprovalDecision) error {
	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	err := e.txManager.WithTransaction(storeCtx, func(txCtx context.Context) error {
		if decision != nil {
			if err := e.decisionRepo.Append(txCtx, decision); err != nil {
				return fmt.Errorf("append decision: %w", err)
			}
		}
		return e.expenseRepo.Update(txCtx, expense)
	})
	if err == nil || errors.Is(err, entity.ErrVersionConflict) {
		return err
	}
	return fmt.Errorf("%w: save expense %s: %w", entity.ErrPersistenceFailure, expense.ID, err)
}

func (e *engineImpl) loadExpense(ctx context.Context, id string) (*entity.Expense, error) {
	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	expense, err := e.expenseRepo.GetByID(storeCtx, id)
	if err != nil {
		if errors.Is(err, entity.ErrExpenseNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load expense %s: %w", entity.ErrPersistenceFailure, id, err)
	}
	return expense, nil
}

func (e *engineImpl) loadLedger(ctx context.Context, expenseID string) ([]*entity.ApprovalDecision, error) {
	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	ledger, err := e.decisionRepo.ListByExpense(storeCtx, expenseID)
	if err != nil {
		return nil, fmt.Errorf("%w: list decisions of %s: %w", entity.ErrPersistenceFailure, expenseID, err)
	}
	return ledger, nil
}

// selectRule picks the category rule, then the org default, then the built-in fallback
func (e *engineImpl) selectRule(ctx context.Context, expense *entity.Expense) (*entity.ApprovalRule, error) {
	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	categories := []string{""}
	if expense.Category != "" {
		categories = []string{expense.Category, ""}
	}

	for _, category := range categories {
		found, err := e.ruleRepo.FindActive(storeCtx, expense.OrgID, category)
		if errors.Is(err, entity.ErrRuleNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: find rule: %w", entity.ErrPersistenceFailure, err)
		}
		if err := found.Validate(); err != nil {
			return nil, fmt.Errorf("rule %s: %w", found.ID, err)
		}
		return found, nil
	}

	if e.defaultRule == nil {
		return nil, fmt.Errorf("%w: no rule for org %s", entity.ErrRuleNotFound, expense.OrgID)
	}
	return e.pinDefaultRule(storeCtx, expense.OrgID)
}

// pinDefaultRule stores the fallback rule for an org under an ID derived from
// its content. A later change of the fallback gets a new record, so expenses
// already submitted keep the rule they started with. The record is inactive
// and never competes with published rules.
func (e *engineImpl) pinDefaultRule(ctx context.Context, orgID string) (*entity.ApprovalRule, error) {
	pinned, err := defaultRuleFor(e.defaultRule, orgID, e.now())
	if err != nil {
		return nil, err
	}

	existing, err := e.ruleRepo.GetByID(ctx, pinned.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, entity.ErrRuleNotFound) {
		return nil, fmt.Errorf("%w: load default rule: %w", entity.ErrPersistenceFailure, err)
	}

	if err := e.ruleRepo.Create(ctx, pinned); err != nil {
		// lost the race against another submit for the same org
		if existing, getErr := e.ruleRepo.GetByID(ctx, pinned.ID); getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: store default rule: %w", entity.ErrPersistenceFailure, err)
	}

	e.logger.Info("Default rule stored", "org_id", orgID, "rule_id", pinned.ID)
	return pinned, nil
}

func defaultRuleFor(template *entity.ApprovalRule, orgID string, now time.Time) (*entity.ApprovalRule, error) {
	if err := template.Validate(); err != nil {
		return nil, fmt.Errorf("default rule: %w", err)
	}
	steps, err := json.Marshal(template.Steps)
	if err != nil {
		return nil, fmt.Errorf("encode default rule: %w", err)
	}

	key := uuid.NewSHA1(uuid.NameSpaceOID, append([]byte(orgID+"/"), steps...))
	return &entity.ApprovalRule{
		ID:        DefaultRuleID + "-" + key.String(),
		OrgID:     orgID,
		Name:      template.Name,
		Steps:     append([]entity.StepRule(nil), template.Steps...),
		Active:    false,
		CreatedAt: now,
	}, nil
}

// loadRule returns the rule an expense was submitted under, active or not
func (e *engineImpl) loadRule(ctx context.Context, id string) (*entity.ApprovalRule, error) {
	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	found, err := e.ruleRepo.GetByID(storeCtx, id)
	if err != nil {
		if errors.Is(err, entity.ErrRuleNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load rule %s: %w", entity.ErrPersistenceFailure, id, err)
	}
	return found, nil
}

func (e *engineImpl) loadAdmin(ctx context.Context, adminID string) (*entity.User, error) {
	storeCtx, cancel := e.storeContext(ctx)
	defer cancel()

	admin, err := e.orgChart.GetUser(storeCtx, adminID)
	if err != nil {
		if errors.Is(err, entity.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %w", entity.ErrNotAdmin, err)
		}
		return nil, fmt.Errorf("%w: load user %s: %w", entity.ErrPersistenceFailure, adminID, err)
	}
	if !admin.Active || !e.authorizer.HasRole(ctx, admin, entity.RoleAdmin) {
		return nil, fmt.Errorf("%w: %s", entity.ErrNotAdmin, adminID)
	}
	return admin, nil
}

func (e *engineImpl) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.storeTimeout)
}

// afterTransition logs, counts and publishes a committed transition
func (e *engineImpl) afterTransition(ctx context.Context, tr domainwf.Transition, expense *entity.Expense, actor string, step int) {
	e.logger.Info("Expense state transition",
		"expense_id", expense.ID,
		"from", tr.From.String(),
		"to", tr.To.String(),
		"trigger", tr.Trigger.String(),
		"actor", actor,
		"step", step,
	)
	e.metrics.ObserveTransition(tr.From.Status(), tr.To.Status())

	if e.dispatcher == nil {
		return
	}

	evt := event.NewTransition(eventTypeFor(tr), expense.ID, tr.From.String(), tr.To.String(), actor, step).
		WithCorrelation(expense.ID).
		WithPayload("owner_id", expense.OwnerID).
		WithPayload("org_id", expense.OrgID).
		WithPayload("total_steps", fmt.Sprint(expense.TotalSteps))
	if expense.CurrentApprover != "" {
		evt = evt.WithPayload("current_approver", expense.CurrentApprover)
	}

	e.dispatcher.DispatchAsync(ctx, evt)
}

func eventTypeFor(tr domainwf.Transition) event.Type {
	switch tr.Trigger {
	case domainwf.TriggerSubmit:
		return event.TypeExpenseSubmitted
	case domainwf.TriggerOverrideApprove, domainwf.TriggerOverrideReject:
		return event.TypeExpenseOverridden
	}
	switch tr.To {
	case domainwf.StateApproved:
		return event.TypeExpenseApproved
	case domainwf.StateRejected:
		return event.TypeExpenseRejected
	default:
		return event.TypeStepAdvanced
	}
}

// findRetry returns the ledger entry a decision event repeats, if any. With a
// step named, a retry is the approver's verdict on that step with the same
// payload. Otherwise it is the approver's latest verdict with the same payload
// that can no longer be superseded: it sits on the current step, the chain has
// finished, or the approver has no say on the current step.
func findRetry(expense *entity.Expense, ledger []*entity.ApprovalDecision, cmd DecideCommand) *entity.ApprovalDecision {
	for i := len(ledger) - 1; i >= 0; i-- {
		d := ledger[i]
		if d.IsOverride() || d.ApproverID != cmd.ApproverID {
			continue
		}
		if cmd.Step > 0 && d.Step != cmd.Step {
			continue
		}
		if d.Decision != cmd.Decision || d.Comment != cmd.Comment {
			return nil
		}
		if cmd.Step > 0 || d.Step == expense.CurrentStep || expense.Status.IsTerminal() || !expense.IsStepApprover(cmd.ApproverID) {
			return d
		}
		return nil
	}
	return nil
}

func checkDecidable(expense *entity.Expense, ledger []*entity.ApprovalDecision, cmd DecideCommand) error {
	switch {
	case expense.Status.IsTerminal():
		return fmt.Errorf("%w: expense %s is %s", entity.ErrExpenseAlreadyFinalized, expense.ID, expense.Status)
	case expense.Status != entity.StatusPendingApproval:
		return fmt.Errorf("%w: expense %s is %s", entity.ErrExpenseNotPending, expense.ID, expense.Status)
	case cmd.Step > 0 && cmd.Step < expense.CurrentStep:
		return fmt.Errorf("%w: step %d of expense %s, now on step %d", entity.ErrStepAlreadyResolved, cmd.Step, expense.ID, expense.CurrentStep)
	case cmd.Step > expense.CurrentStep:
		return fmt.Errorf("%w: step %d of expense %s is not open", entity.ErrUnauthorizedApprover, cmd.Step, expense.ID)
	case !expense.IsStepApprover(cmd.ApproverID):
		if prior := earlierDecision(ledger, cmd.ApproverID, expense.CurrentStep); prior != nil {
			return fmt.Errorf("%w: %s decided %s on step %d, now on step %d",
				entity.ErrStepAlreadyResolved, cmd.ApproverID, prior.Decision, prior.Step, expense.CurrentStep)
		}
		return fmt.Errorf("%w: %s is not an approver of step %d", entity.ErrUnauthorizedApprover, cmd.ApproverID, expense.CurrentStep)
	}

	for _, d := range entity.DecisionsForStep(ledger, expense.CurrentStep) {
		if d.ApproverID == cmd.ApproverID {
			return fmt.Errorf("%w: %s already decided %s on step %d", entity.ErrConflictingDecision, cmd.ApproverID, d.Decision, d.Step)
		}
	}
	return nil
}

// earlierDecision is the approver's latest verdict on a step before current
func earlierDecision(ledger []*entity.ApprovalDecision, approverID string, current int) *entity.ApprovalDecision {
	for i := len(ledger) - 1; i >= 0; i-- {
		d := ledger[i]
		if !d.IsOverride() && d.ApproverID == approverID && d.Step < current {
			return d
		}
	}
	return nil
}

// nextApprover points at the designated approver while undecided, else the
// first undecided member of the set
func nextApprover(stepRule entity.StepRule, approvers []string, decisions []*entity.ApprovalDecision) string {
	decided := make(map[string]bool, len(decisions))
	for _, d := range decisions {
		decided[d.ApproverID] = true
	}

	if stepRule.Kind == entity.RuleKindSpecific || stepRule.Kind == entity.RuleKindHybrid {
		if !decided[stepRule.ApproverID] {
			return stepRule.ApproverID
		}
	}
	for _, id := range approvers {
		if !decided[id] {
			return id
		}
	}
	return ""
}

func finalize(expense *entity.Expense, status entity.Status, at time.Time) {
	expense.Status = status
	expense.DecidedAt = &at
	expense.CurrentApprover = ""
}

func decisionFor(status entity.Status) entity.Decision {
	if status == entity.StatusApproved {
		return entity.DecisionApproved
	}
	return entity.DecisionRejected
}

func lockKey(expenseID string) string {
	return "expense:" + expenseID
}

type nopLocker struct{}

func (nopLocker) Lock(ctx context.Context, key string) (func(), error) {
	return func() {}, nil
}

type nopMetrics struct{}

func (nopMetrics) ObserveTransition(from, to entity.Status) {}
func (nopMetrics) ObserveDecision(decision entity.Decision, duplicate bool) {}
func (nopMetrics) ObserveFailure(operation string, err error) {}
func (nopMetrics) ObserveDuration(operation string, elapsed time.Duration) {}

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{}) {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}
