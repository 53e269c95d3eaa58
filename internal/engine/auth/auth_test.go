package auth

import (
	"context"
	"errors"
	"slices"
	"testing"
)

type memStore struct {
	perms map[string][]string
	err   error
}

func (m *memStore) ActorPermissions(_ context.Context, actorID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.perms[actorID], nil
}

func (m *memStore) GrantPermission(_ context.Context, actorID, perm string) error {
	if m.perms == nil {
		m.perms = map[string][]string{}
	}
	if !slices.Contains(m.perms[actorID], perm) {
		m.perms[actorID] = append(m.perms[actorID], perm)
	}
	return nil
}

func (m *memStore) RevokePermission(_ context.Context, actorID, perm string) error {
	m.perms[actorID] = slices.DeleteFunc(m.perms[actorID], func(p string) bool { return p == perm })
	return nil
}

func TestRequire(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	svc := Service{Store: store}

	if err := svc.Require(ctx, "u-1", []string{PermChat}, PermChat); err != nil {
		t.Fatalf("claimed permission should pass: %v", err)
	}
	err := svc.Require(ctx, "u-1", nil, PermMeeting)
	var fe ForbiddenError
	if !errors.As(err, &fe) || fe.Permission != PermMeeting {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := svc.Grant(ctx, "u-1", PermMeeting); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := svc.Require(ctx, "u-1", nil, PermMeeting); err != nil {
		t.Fatalf("granted permission should pass: %v", err)
	}
	if err := svc.Revoke(ctx, "u-1", PermMeeting); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := svc.Require(ctx, "u-1", nil, PermMeeting); !errors.As(err, &fe) {
		t.Fatalf("revoked permission should fail, got %v", err)
	}

	store.err = errors.New("db down")
	if err := svc.Require(ctx, "u-1", nil, PermRead); err == nil || errors.As(err, &fe) {
		t.Fatalf("store errors must surface as-is, got %v", err)
	}
}

func TestGrantExpandsWildcard(t *testing.T) {
	svc := Service{Store: &memStore{}}
	got, err := svc.Grant(context.Background(), "admin", "*", PermRead)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !slices.Equal(got, All) {
		t.Fatalf("granted %v, want %v", got, All)
	}
	if _, err := svc.Grant(context.Background(), "admin", "project.create"); err == nil {
		t.Fatalf("unknown permission should be rejected")
	}
	if _, err := svc.Grant(context.Background(), " ", PermRead); err == nil {
		t.Fatalf("empty actor should be rejected")
	}
}
