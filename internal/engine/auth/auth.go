package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Permissions checked by the API and the CLI.
const (
	PermRead           = "csuite.read"
	PermChat           = "csuite.chat"
	PermMeeting        = "csuite.meeting"
	PermDraft          = "csuite.draft"
	PermKnowledgeWrite = "csuite.knowledge.write"
)

// All lists every permission in a stable order.
var All = []string{PermRead, PermChat, PermMeeting, PermDraft, PermKnowledgeWrite}

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Store is the persistence the permission checks need.
type Store interface {
	ActorPermissions(ctx context.Context, actorID string) ([]string, error)
	GrantPermission(ctx context.Context, actorID, perm string) error
	RevokePermission(ctx context.Context, actorID, perm string) error
}

// Service provides permission helpers backed by the store.
type Service struct {
	Store Store
}

// Known reports whether perm is a permission this system checks.
func Known(perm string) bool {
	return slices.Contains(All, perm)
}

// Expand resolves the "*" shorthand to every permission and drops duplicates.
func Expand(perms []string) ([]string, error) {
	out := []string{}
	for _, p := range perms {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
			continue
		case p == "*":
			for _, all := range All {
				if !slices.Contains(out, all) {
					out = append(out, all)
				}
			}
		case !Known(p):
			return nil, fmt.Errorf("unknown permission %q", p)
		case !slices.Contains(out, p):
			out = append(out, p)
		}
	}
	return out, nil
}

func (s Service) ActorHasPermission(ctx context.Context, actorID, perm string) (bool, error) {
	if actorID == "" {
		return false, errors.New("actor_id required")
	}
	perms, err := s.Store.ActorPermissions(ctx, actorID)
	if err != nil {
		return false, err
	}
	return slices.Contains(perms, perm), nil
}

// Require passes when claimed already holds perm, otherwise consults the stored grants.
func (s Service) Require(ctx context.Context, actorID string, claimed []string, perm string) error {
	if slices.Contains(claimed, perm) {
		return nil
	}
	ok, err := s.ActorHasPermission(ctx, actorID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Permission: perm}
	}
	return nil
}

// Grant records perms for actorID. "*" grants everything.
func (s Service) Grant(ctx context.Context, actorID string, perms ...string) ([]string, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, errors.New("actor_id required")
	}
	expanded, err := Expand(perms)
	if err != nil {
		return nil, err
	}
	for _, p := range expanded {
		if err := s.Store.GrantPermission(ctx, actorID, p); err != nil {
			return nil, fmt.Errorf("grant %s: %w", p, err)
		}
	}
	return expanded, nil
}

func (s Service) Revoke(ctx context.Context, actorID string, perms ...string) error {
	expanded, err := Expand(perms)
	if err != nil {
		return err
	}
	for _, p := range expanded {
		if err := s.Store.RevokePermission(ctx, actorID, p); err != nil {
			return fmt.Errorf("revoke %s: %w", p, err)
		}
	}
	return nil
}
