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
	"github.com/garyjia/expense-approval/pkg/utils"
)

// CreateUserInput carries the fields of a new user
type CreateUserInput struct {
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      entity.Role `json:"role"`
	ManagerID string      `json:"manager_id"`
	Currency  string      `json:"currency"`
}

// UserService administers the organization's users. Every mutation is admin-only.
type UserService interface {
	CreateUser(ctx context.Context, actor *entity.User, in CreateUserInput) (*entity.User, error)
	GetUser(ctx context.Context, id string) (*entity.User, error)
	ListUsers(ctx context.Context, actor *entity.User) ([]*entity.User, error)
	ChangeRole(ctx context.Context, actor *entity.User, userID string, role entity.Role) (*entity.User, error)
	ChangeManager(ctx context.Context, actor *entity.User, userID, managerID string) (*entity.User, error)
	Deactivate(ctx context.Context, actor *entity.User, userID string) (*entity.User, error)

	// ImportUser stores a seeded user as-is, skipping IDs that already exist
	ImportUser(ctx context.Context, user *entity.User) error
}

type userServiceImpl struct {
	userRepo   port.UserRepository
	authorizer port.Authorizer
	txManager  port.TransactionManager
	logger     Logger
}

// NewUserService creates a new UserService
func NewUserService(
	userRepo port.UserRepository,
	authorizer port.Authorizer,
	txManager port.TransactionManager,
	logger Logger,
) UserService {
	return &userServiceImpl{
		userRepo:   userRepo,
		authorizer: authorizer,
		txManager:  txManager,
		logger:     logger,
	}
}

func (s *userServiceImpl) CreateUser(ctx context.Context, actor *entity.User, in CreateUserInput) (*entity.User, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	switch {
	case in.Name == "":
		return nil, fmt.Errorf("%w: name is required", entity.ErrInvalidUser)
	case utils.ValidateEmail(in.Email) != nil:
		return nil, fmt.Errorf("%w: email %q is not valid", entity.ErrInvalidUser, in.Email)
	case !in.Role.IsValid():
		return nil, fmt.Errorf("%w: unknown role %q", entity.ErrInvalidUser, in.Role)
	case in.Role == entity.RoleEmployee && in.ManagerID == "":
		return nil, fmt.Errorf("%w: employees need a manager", entity.ErrInvalidUser)
	}

	currency := in.Currency
	if currency == "" {
		currency = actor.Currency
	}

	now := time.Now().UTC()
	user := &entity.User{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Email:     in.Email,
		Role:      in.Role,
		ManagerID: in.ManagerID,
		OrgID:     actor.OrgID,
		Currency:  currency,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.userRepo.GetByEmail(txCtx, user.Email); err == nil {
			return fmt.Errorf("%w: email %s already registered", entity.ErrInvalidUser, user.Email)
		} else if !errors.Is(err, entity.ErrUserNotFound) {
			return err
		}
		if user.ManagerID != "" {
			if err := s.checkManager(txCtx, user, user.ManagerID); err != nil {
				return err
			}
		}
		return s.userRepo.Create(txCtx, user)
	})
	if err != nil {
		s.logger.Error("Failed to create user", "email", in.Email, "error", err)
		return nil, err
	}

	s.logger.Info("User created", "user_id", user.ID, "role", user.Role, "org_id", user.OrgID, "by", actor.ID)
	return user, nil
}

func (s *userServiceImpl) GetUser(ctx context.Context, id string) (*entity.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *userServiceImpl) ListUsers(ctx context.Context, actor *entity.User) ([]*entity.User, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	return s.userRepo.ListByOrg(ctx, actor.OrgID)
}

func (s *userServiceImpl) ChangeRole(ctx context.Context, actor *entity.User, userID string, role entity.Role) (*entity.User, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", entity.ErrInvalidUser, role)
	}

	return s.mutate(ctx, actor, userID, func(txCtx context.Context, user *entity.User) error {
		if role == entity.RoleEmployee && !user.HasManager() {
			return fmt.Errorf("%w: employees need a manager", entity.ErrInvalidUser)
		}
		user.Role = role
		return nil
	})
}

func (s *userServiceImpl) ChangeManager(ctx context.Context, actor *entity.User, userID, managerID string) (*entity.User, error) {
	return s.mutate(ctx, actor, userID, func(txCtx context.Context, user *entity.User) error {
		if managerID == "" {
			if user.Role == entity.RoleEmployee {
				return fmt.Errorf("%w: employees need a manager", entity.ErrInvalidUser)
			}
			user.ManagerID = ""
			return nil
		}
		if err := s.checkManager(txCtx, user, managerID); err != nil {
			return err
		}
		user.ManagerID = managerID
		return nil
	})
}

func (s *userServiceImpl) Deactivate(ctx context.Context, actor *entity.User, userID string) (*entity.User, error) {
	if actor != nil && actor.ID == userID {
		return nil, fmt.Errorf("%w: admins cannot deactivate themselves", entity.ErrInvalidUser)
	}
	return s.mutate(ctx, actor, userID, func(txCtx context.Context, user *entity.User) error {
		user.Active = false
		return nil
	})
}

func (s *userServiceImpl) ImportUser(ctx context.Context, user *entity.User) error {
	if _, err := s.userRepo.GetByID(ctx, user.ID); err == nil {
		return nil
	} else if !errors.Is(err, entity.ErrUserNotFound) {
		return err
	}

	if !user.Role.IsValid() {
		return fmt.Errorf("%w: user %s has unknown role %q", entity.ErrInvalidUser, user.ID, user.Role)
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if err := s.userRepo.Create(ctx, user); err != nil {
		return fmt.Errorf("import user %s: %w", user.ID, err)
	}
	s.logger.Info("User imported", "user_id", user.ID, "role", user.Role)
	return nil
}

// mutate loads a user of the actor's org, applies fn and stores the result
func (s *userServiceImpl) mutate(ctx context.Context, actor *entity.User, userID string, fn func(context.Context, *entity.User) error) (*entity.User, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}

	var updated *entity.User
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		user, err := s.userRepo.GetByID(txCtx, userID)
		if err != nil {
			return err
		}
		if user.OrgID != actor.OrgID {
			return fmt.Errorf("%w: %s", entity.ErrUserNotFound, userID)
		}
		if err := fn(txCtx, user); err != nil {
			return err
		}
		user.UpdatedAt = time.Now().UTC()
		if err := s.userRepo.Update(txCtx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update user", "user_id", userID, "error", err)
		return nil, err
	}

	s.logger.Info("User updated",
		"user_id", updated.ID,
		"role", updated.Role,
		"manager_id", updated.ManagerID,
		"active", updated.Active,
		"by", actor.ID,
	)
	return updated, nil
}

// checkManager rejects managers outside the org, ineligible approvers and cycles
func (s *userServiceImpl) checkManager(ctx context.Context, user *entity.User, managerID string) error {
	if managerID == user.ID {
		return fmt.Errorf("%w: a user cannot manage themselves", entity.ErrInvalidUser)
	}

	manager, err := s.userRepo.GetByID(ctx, managerID)
	if err != nil {
		if errors.Is(err, entity.ErrUserNotFound) {
			return fmt.Errorf("%w: manager %s does not exist", entity.ErrInvalidUser, managerID)
		}
		return err
	}
	if manager.OrgID != user.OrgID {
		return fmt.Errorf("%w: manager %s belongs to another organization", entity.ErrInvalidUser, managerID)
	}
	if !manager.IsEligibleApprover() {
		return fmt.Errorf("%w: %s is not an active manager or admin", entity.ErrInvalidApproverRole, managerID)
	}

	seen := map[string]bool{user.ID: true}
	for cursor := manager; cursor.HasManager(); {
		if seen[cursor.ManagerID] {
			return fmt.Errorf("%w: manager chain of %s would loop", entity.ErrInvalidUser, user.ID)
		}
		seen[cursor.ID] = true
		next, err := s.userRepo.GetByID(ctx, cursor.ManagerID)
		if err != nil {
			break
		}
		cursor = next
	}
	return nil
}

func (s *userServiceImpl) requireAdmin(ctx context.Context, actor *entity.User) error {
	if !s.authorizer.HasRole(ctx, actor, entity.RoleAdmin) {
		return entity.ErrNotAdmin
	}
	return nil
}
