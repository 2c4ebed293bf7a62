package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// UserRepository implements port.UserRepository
type UserRepository struct {
	store *Store
}

func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.users[user.ID]; exists {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	for _, u := range r.store.users {
		if user.Email != "" && strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("%w: email %s already registered", entity.ErrInvalidUser, user.Email)
		}
	}

	c := *user
	r.store.users[user.ID] = &c
	r.store.onRollback(ctx, func() { delete(r.store.users, c.ID) })
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	u, ok := r.store.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrUserNotFound, id)
	}
	c := *u
	return &c, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, u := range r.store.users {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", entity.ErrUserNotFound, email)
}

func (r *UserRepository) Update(ctx context.Context, user *entity.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	prev, ok := r.store.users[user.ID]
	if !ok {
		return fmt.Errorf("%w: %s", entity.ErrUserNotFound, user.ID)
	}
	c := *user
	r.store.users[user.ID] = &c
	r.store.onRollback(ctx, func() { r.store.users[prev.ID] = prev })
	return nil
}

func (r *UserRepository) ListByOrg(ctx context.Context, orgID string) ([]*entity.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*entity.User
	for _, u := range r.store.users {
		if u.OrgID == orgID {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
