package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ContextWithUserID attaches the caller's identity to the context
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the identity set by ContextWithUserID
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// ErrUnauthenticated is returned when no identity is attached to the request
var ErrUnauthenticated = errors.New("unauthenticated")

type userAuthorizer struct {
	users port.UserRepository
}

// NewAuthorizer resolves the current user from the context identity
func NewAuthorizer(users port.UserRepository) port.Authorizer {
	return &userAuthorizer{users: users}
}

func (a *userAuthorizer) CurrentUser(ctx context.Context) (*entity.User, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}

	user, err := a.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, entity.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return nil, err
	}
	if !user.Active {
		return nil, fmt.Errorf("%w: user %s is deactivated", ErrUnauthenticated, id)
	}
	return user, nil
}

func (a *userAuthorizer) HasRole(ctx context.Context, user *entity.User, role entity.Role) bool {
	return user != nil && user.Active && user.Role == role
}

type repositoryOrgChart struct {
	users port.UserRepository
}

// NewOrgChart exposes the user repository as the org chart used by the resolver
func NewOrgChart(users port.UserRepository) port.OrgChart {
	return &repositoryOrgChart{users: users}
}

func (o *repositoryOrgChart) GetUser(ctx context.Context, userID string) (*entity.User, error) {
	return o.users.GetByID(ctx, userID)
}

func (o *repositoryOrgChart) ManagerOf(ctx context.Context, userID string) (*entity.User, error) {
	user, err := o.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasManager() {
		return nil, nil
	}
	return o.users.GetByID(ctx, user.ManagerID)
}
