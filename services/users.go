package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/Singhary/chaty/models"

	"golang.org/x/sync/errgroup"
)

// UserService reads identity records from the store. Records are written
// once, on first sight of an identity handed over by the identity provider.
type UserService struct {
	store Store
}

func NewUserService(store Store) *UserService {
	return &UserService{store: store}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Remember records the identity under user:{id} and user:email:{email} if it
// is not known yet.
func (s *UserService) Remember(ctx context.Context, u models.User) error {
	if u.ID == "" {
		return Unauthenticated("identity has no id")
	}
	_, err := s.store.Get(ctx, userKey(u.ID))
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNil) {
		return Upstream("failed to load user", err)
	}

	u.Email = NormalizeEmail(u.Email)
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	ops := NewOps().Set(userKey(u.ID), string(data))
	if u.Email != "" {
		ops.Set(userEmailKey(u.Email), u.ID)
	}
	if err := s.store.Atomic(ctx, ops); err != nil {
		return Upstream("failed to store user", err)
	}
	return nil
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	raw, err := s.store.Get(ctx, userKey(id))
	if errors.Is(err, ErrNil) {
		return nil, NotFound("user not found")
	}
	if err != nil {
		return nil, Upstream("failed to load user", err)
	}
	var u models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, Upstream("corrupt user record", err)
	}
	return &u, nil
}

// GetMany loads the users concurrently, preserving the order of ids.
func (s *UserService) GetMany(ctx context.Context, ids []string) ([]models.User, error) {
	users := make([]models.User, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			u, err := s.Get(gctx, id)
			if err != nil {
				return err
			}
			users[i] = *u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return users, nil
}

// ResolveEmail returns the id registered for email.
func (s *UserService) ResolveEmail(ctx context.Context, email string) (string, error) {
	id, err := s.store.Get(ctx, userEmailKey(NormalizeEmail(email)))
	if errors.Is(err, ErrNil) {
		return "", NotFound("user not found")
	}
	if err != nil {
		return "", Upstream("failed to resolve email", err)
	}
	return id, nil
}
