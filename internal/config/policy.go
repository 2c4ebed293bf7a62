package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Policy is the seed file of users and approval rules loaded at startup
type Policy struct {
	Users []SeedUser `yaml:"users"`
	Rules []SeedRule `yaml:"rules"`
}

// SeedUser is one user entry of the policy file
type SeedUser struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Email     string `yaml:"email"`
	Role      string `yaml:"role"`
	ManagerID string `yaml:"manager_id"`
	OrgID     string `yaml:"org_id"`
	Currency  string `yaml:"currency"`
}

// SeedRule is one approval rule entry of the policy file
type SeedRule struct {
	ID       string            `yaml:"id"`
	OrgID    string            `yaml:"org_id"`
	Category string            `yaml:"category"`
	Name     string            `yaml:"name"`
	Steps    []entity.StepRule `yaml:"steps"`
}

// UserImporter stores seeded users
type UserImporter interface {
	ImportUser(ctx context.Context, user *entity.User) error
}

// RuleImporter stores seeded rules
type RuleImporter interface {
	ImportRule(ctx context.Context, rule *entity.ApprovalRule) error
}

// LoadPolicy reads and decodes a policy file
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	policy, err := ParsePolicy(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return policy, nil
}

// ParsePolicy decodes a policy document. Unknown keys are rejected.
func ParsePolicy(r io.Reader) (*Policy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var policy Policy
	if err := dec.Decode(&policy); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (p *Policy) validate() error {
	seen := make(map[string]bool, len(p.Users))
	for i, u := range p.Users {
		if u.ID == "" || u.OrgID == "" {
			return fmt.Errorf("users[%d]: id and org_id are required", i)
		}
		if seen[u.ID] {
			return fmt.Errorf("users[%d]: duplicate id %q", i, u.ID)
		}
		seen[u.ID] = true
	}
	for i, r := range p.Rules {
		if r.ID == "" || r.OrgID == "" {
			return fmt.Errorf("rules[%d]: id and org_id are required", i)
		}
	}
	return nil
}

// Apply imports users first, then rules, so rule approvers already exist.
// Entries whose IDs are already stored are left untouched.
func (p *Policy) Apply(ctx context.Context, users UserImporter, rules RuleImporter) error {
	for _, u := range p.Users {
		if err := users.ImportUser(ctx, &entity.User{
			ID:        u.ID,
			Name:      u.Name,
			Email:     u.Email,
			Role:      entity.Role(u.Role),
			ManagerID: u.ManagerID,
			OrgID:     u.OrgID,
			Currency:  u.Currency,
			Active:    true,
		}); err != nil {
			return err
		}
	}

	for _, r := range p.Rules {
		if err := rules.ImportRule(ctx, &entity.ApprovalRule{
			ID:       r.ID,
			OrgID:    r.OrgID,
			Category: r.Category,
			Name:     r.Name,
			Steps:    r.Steps,
		}); err != nil {
			return err
		}
	}
	return nil
}
