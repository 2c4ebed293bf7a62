package http

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// UserIDHeader carries the caller's identity. Token validation happens upstream.
const UserIDHeader = "X-User-ID"

const currentUserKey = "current_user"

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// DecideRequest is the body of POST /api/approvals/:id
type DecideRequest struct {
	Decision entity.Decision `json:"decision" binding:"required"`
	Comment  string          `json:"comment"`
	Step     int             `json:"step"`
}

// OverrideRequest is the body of POST /api/approvals/:id/override
type OverrideRequest struct {
	Status  entity.Status `json:"status" binding:"required"`
	Comment string        `json:"comment"`
}

// ChangeRoleRequest is the body of PUT /api/users/:id/role
type ChangeRoleRequest struct {
	Role entity.Role `json:"role" binding:"required"`
}

// ChangeManagerRequest is the body of PUT /api/users/:id/manager
type ChangeManagerRequest struct {
	ManagerID string `json:"manager_id"`
}

// DecisionResponse reports the effect of a decision
type DecisionResponse struct {
	Expense   *entity.Expense          `json:"expense"`
	Decision  *entity.ApprovalDecision `json:"decision,omitempty"`
	Outcome   string                   `json:"outcome"`
	Duplicate bool                     `json:"duplicate"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// Identity resolves the X-User-ID header to an active user
func (h *Handlers) Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := service.ContextWithUserID(c.Request.Context(), c.GetHeader(UserIDHeader))
		c.Request = c.Request.WithContext(ctx)

		user, err := h.services.Authorizer.CurrentUser(ctx)
		if err != nil {
			h.fail(c, err)
			c.Abort()
			return
		}
		c.Set(currentUserKey, user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *entity.User {
	user, _ := c.MustGet(currentUserKey).(*entity.User)
	return user
}

// CreateUser handles POST /api/users
func (h *Handlers) CreateUser(c *gin.Context) {
	var req service.CreateUserInput
	if !h.bind(c, &req) {
		return
	}
	user, err := h.services.Users.CreateUser(c.Request.Context(), currentUser(c), req)
	h.respond(c, http.StatusCreated, user, err)
}

// ListUsers handles GET /api/users
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.services.Users.ListUsers(c.Request.Context(), currentUser(c))
	h.respond(c, http.StatusOK, users, err)
}

// ChangeRole handles PUT /api/users/:id/role
func (h *Handlers) ChangeRole(c *gin.Context) {
	var req ChangeRoleRequest
	if !h.bind(c, &req) {
		return
	}
	user, err := h.services.Users.ChangeRole(c.Request.Context(), currentUser(c), c.Param("id"), req.Role)
	h.respond(c, http.StatusOK, user, err)
}

// ChangeManager handles PUT /api/users/:id/manager
func (h *Handlers) ChangeManager(c *gin.Context) {
	var req ChangeManagerRequest
	if !h.bind(c, &req) {
		return
	}
	user, err := h.services.Users.ChangeManager(c.Request.Context(), currentUser(c), c.Param("id"), req.ManagerID)
	h.respond(c, http.StatusOK, user, err)
}

// DeactivateUser handles DELETE /api/users/:id
func (h *Handlers) DeactivateUser(c *gin.Context) {
	user, err := h.services.Users.Deactivate(c.Request.Context(), currentUser(c), c.Param("id"))
	h.respond(c, http.StatusOK, user, err)
}

// PublishRule handles POST /api/rules
func (h *Handlers) PublishRule(c *gin.Context) {
	var req service.PublishRuleInput
	if !h.bind(c, &req) {
		return
	}
	rule, err := h.services.Rules.PublishRule(c.Request.Context(), currentUser(c), req)
	h.respond(c, http.StatusCreated, rule, err)
}

// ListRules handles GET /api/rules
func (h *Handlers) ListRules(c *gin.Context) {
	rules, err := h.services.Rules.ListRules(c.Request.Context(), currentUser(c))
	h.respond(c, http.StatusOK, rules, err)
}

// CreateExpense handles POST /api/expenses
func (h *Handlers) CreateExpense(c *gin.Context) {
	var req service.CreateExpenseInput
	if !h.bind(c, &req) {
		return
	}
	expense, err := h.services.Expenses.CreateDraft(c.Request.Context(), currentUser(c), req)
	h.respond(c, http.StatusCreated, expense, err)
}

// ListExpenses handles GET /api/expenses
func (h *Handlers) ListExpenses(c *gin.Context) {
	expenses, err := h.services.Expenses.ListExpenses(c.Request.Context(), currentUser(c))
	h.respond(c, http.StatusOK, expenses, err)
}

// GetExpense handles GET /api/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	expense, err := h.services.Expenses.GetExpense(c.Request.Context(), currentUser(c), c.Param("id"))
	h.respond(c, http.StatusOK, expense, err)
}

// SubmitExpense handles POST /api/expenses/:id/submit
func (h *Handlers) SubmitExpense(c *gin.Context) {
	expense, err := h.services.Engine.Submit(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	h.respond(c, http.StatusOK, expense, err)
}

// Decide handles POST /api/approvals/:id
func (h *Handlers) Decide(c *gin.Context) {
	var req DecideRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.services.Engine.Decide(c.Request.Context(), workflow.DecideCommand{
		ExpenseID:  c.Param("id"),
		ApproverID: currentUser(c).ID,
		Step:       req.Step,
		Decision:   req.Decision,
		Comment:    req.Comment,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	if dup := result.AlreadyDecided(); dup != nil {
		h.logger.Info("Duplicate decision ignored", "expense_id", c.Param("id"), "notice", dup.Error())
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: DecisionResponse{
			Expense:   result.Expense,
			Decision:  result.Decision,
			Outcome:   result.Outcome.String(),
			Duplicate: result.Duplicate,
		},
	})
}

// Override handles POST /api/approvals/:id/override
func (h *Handlers) Override(c *gin.Context) {
	var req OverrideRequest
	if !h.bind(c, &req) {
		return
	}
	expense, err := h.services.Engine.Override(c.Request.Context(), workflow.OverrideCommand{
		ExpenseID: c.Param("id"),
		AdminID:   currentUser(c).ID,
		Status:    req.Status,
		Comment:   req.Comment,
	})
	h.respond(c, http.StatusOK, expense, err)
}

// PendingApprovals handles GET /api/approvals/pending
func (h *Handlers) PendingApprovals(c *gin.Context) {
	pending, err := h.services.Approvals.PendingFor(c.Request.Context(), currentUser(c))
	h.respond(c, http.StatusOK, pending, err)
}

// ExpenseLedger handles GET /api/approvals/expense/:id
func (h *Handlers) ExpenseLedger(c *gin.Context) {
	view, err := h.services.Approvals.Ledger(c.Request.Context(), currentUser(c), c.Param("id"))
	h.respond(c, http.StatusOK, view, err)
}

// ExportLedger handles GET /api/approvals/expense/:id/export
func (h *Handlers) ExportLedger(c *gin.Context) {
	id := c.Param("id")

	// Render fully before writing so failures still produce a JSON error
	var buf bytes.Buffer
	if err := h.services.Approvals.ExportLedger(c.Request.Context(), currentUser(c), id, &buf); err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_ledger.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// bind decodes the JSON body and answers 400 on failure
func (h *Handlers) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.Error("Invalid request body", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}

func (h *Handlers) respond(c *gin.Context, status int, data interface{}, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, Response{Success: true, Data: data})
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

var statusMap = []struct {
	err    error
	status int
}{
	{service.ErrUnauthenticated, http.StatusUnauthorized},

	{entity.ErrExpenseNotFound, http.StatusNotFound},
	{entity.ErrUserNotFound, http.StatusNotFound},
	{entity.ErrRuleNotFound, http.StatusNotFound},

	{entity.ErrUnauthorizedApprover, http.StatusForbidden},
	{entity.ErrNotAdmin, http.StatusForbidden},
	{entity.ErrNotExpenseOwner, http.StatusForbidden},
	{entity.ErrForbidden, http.StatusForbidden},

	{entity.ErrExpenseAlreadyFinalized, http.StatusConflict},
	{entity.ErrConflictingDecision, http.StatusConflict},
	{entity.ErrStepAlreadyResolved, http.StatusConflict},
	{entity.ErrVersionConflict, http.StatusConflict},
	{entity.ErrExpenseNotPending, http.StatusConflict},
	{entity.ErrExpenseNotDraft, http.StatusConflict},

	{entity.ErrNoApproverFound, http.StatusUnprocessableEntity},
	{entity.ErrInvalidApproverRole, http.StatusUnprocessableEntity},
	{entity.ErrInvalidRuleConfiguration, http.StatusUnprocessableEntity},
	{entity.ErrInvalidOverrideStatus, http.StatusUnprocessableEntity},
	{entity.ErrInvalidDecision, http.StatusUnprocessableEntity},
	{entity.ErrInvalidUser, http.StatusUnprocessableEntity},
	{entity.ErrInvalidExpense, http.StatusUnprocessableEntity},

	{service.ErrExportDisabled, http.StatusNotImplemented},
}

// StatusFor maps an application error onto an HTTP status code
func StatusFor(err error) int {
	for _, m := range statusMap {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}
