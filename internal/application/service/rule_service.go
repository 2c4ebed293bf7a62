package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// PublishRuleInput describes a new approval policy
type PublishRuleInput struct {
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Steps    []entity.StepRule `json:"steps"`
}

// RuleService publishes and lists approval rules
type RuleService interface {
	// PublishRule stores a new rule and retires the one it replaces.
	// Expenses already in flight keep evaluating against the retired rule.
	PublishRule(ctx context.Context, actor *entity.User, in PublishRuleInput) (*entity.ApprovalRule, error)
	ListRules(ctx context.Context, viewer *entity.User) ([]*entity.ApprovalRule, error)

	// ImportRule publishes a seeded rule, skipping IDs that already exist
	ImportRule(ctx context.Context, rule *entity.ApprovalRule) error
}

type ruleServiceImpl struct {
	ruleRepo   port.RuleRepository
	userRepo   port.UserRepository
	authorizer port.Authorizer
	txManager  port.TransactionManager
	logger     Logger
}

// NewRuleService creates a new RuleService
func NewRuleService(
	ruleRepo port.RuleRepository,
	userRepo port.UserRepository,
	authorizer port.Authorizer,
	txManager port.TransactionManager,
	logger Logger,
) RuleService {
	return &ruleServiceImpl{
		ruleRepo:   ruleRepo,
		userRepo:   userRepo,
		authorizer: authorizer,
		txManager:  txManager,
		logger:     logger,
	}
}

func (s *ruleServiceImpl) PublishRule(ctx context.Context, actor *entity.User, in PublishRuleInput) (*entity.ApprovalRule, error) {
	if !s.authorizer.HasRole(ctx, actor, entity.RoleAdmin) {
		return nil, entity.ErrNotAdmin
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "Approval rule"
	}
	rule := &entity.ApprovalRule{
		ID:        uuid.NewString(),
		OrgID:     actor.OrgID,
		Category:  strings.TrimSpace(in.Category),
		Name:      name,
		Steps:     in.Steps,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.publish(ctx, rule); err != nil {
		s.logger.Error("Failed to publish rule", "org_id", actor.OrgID, "category", rule.Category, "error", err)
		return nil, err
	}

	s.logger.Info("Rule published",
		"rule_id", rule.ID,
		"org_id", rule.OrgID,
		"category", rule.Category,
		"steps", rule.TotalSteps(),
		"by", actor.ID,
	)
	return rule, nil
}

func (s *ruleServiceImpl) ListRules(ctx context.Context, viewer *entity.User) ([]*entity.ApprovalRule, error) {
	if viewer == nil {
		return nil, ErrUnauthenticated
	}
	return s.ruleRepo.ListByOrg(ctx, viewer.OrgID)
}

func (s *ruleServiceImpl) ImportRule(ctx context.Context, rule *entity.ApprovalRule) error {
	if _, err := s.ruleRepo.GetByID(ctx, rule.ID); err == nil {
		return nil
	} else if !errors.Is(err, entity.ErrRuleNotFound) {
		return err
	}

	rule.Active = true
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	if err := s.publish(ctx, rule); err != nil {
		return fmt.Errorf("import rule %s: %w", rule.ID, err)
	}
	s.logger.Info("Rule imported", "rule_id", rule.ID, "org_id", rule.OrgID, "category", rule.Category)
	return nil
}

func (s *ruleServiceImpl) publish(ctx context.Context, rule *entity.ApprovalRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.checkApprovers(txCtx, rule); err != nil {
			return err
		}

		previous, err := s.ruleRepo.FindActive(txCtx, rule.OrgID, rule.Category)
		switch {
		case err == nil:
			if err := s.ruleRepo.Deactivate(txCtx, previous.ID); err != nil {
				return err
			}
		case !errors.Is(err, entity.ErrRuleNotFound):
			return err
		}

		return s.ruleRepo.Create(txCtx, rule)
	})
}

// checkApprovers requires designated approvers to be active managers or admins
// of the rule's org, and panel members to exist there
func (s *ruleServiceImpl) checkApprovers(ctx context.Context, rule *entity.ApprovalRule) error {
	for i, step := range rule.Steps {
		if step.ApproverID != "" {
			user, err := s.orgMember(ctx, rule.OrgID, step.ApproverID)
			if err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
			if !user.IsEligibleApprover() {
				return fmt.Errorf("%w: step %d approver %s is not an active manager or admin", entity.ErrInvalidRuleConfiguration, i+1, user.ID)
			}
		}
		for _, member := range step.Panel {
			if _, err := s.orgMember(ctx, rule.OrgID, member); err != nil {
				return fmt.Errorf("step %d panel: %w", i+1, err)
			}
		}
	}
	return nil
}

func (s *ruleServiceImpl) orgMember(ctx context.Context, orgID, userID string) (*entity.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, entity.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user %s does not exist", entity.ErrInvalidRuleConfiguration, userID)
		}
		return nil, err
	}
	if user.OrgID != orgID {
		return nil, fmt.Errorf("%w: user %s belongs to another organization", entity.ErrInvalidRuleConfiguration, userID)
	}
	return user, nil
}
