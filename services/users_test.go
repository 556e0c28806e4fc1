package services

import (
	"testing"

	"github.com/Singhary/chaty/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRememberRecordsIdentityOnce(t *testing.T) {
	f := newFixture(t)
	u := userFixture("u1")
	u.Email = "  U1@Example.COM "
	require.NoError(t, f.users.Remember(f.ctx, u))

	changed := u
	changed.Name = "someone else"
	require.NoError(t, f.users.Remember(f.ctx, changed))

	got, err := f.users.Get(f.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, u.Name, got.Name)
	assert.Equal(t, "u1@example.com", got.Email)

	id, err := f.users.ResolveEmail(f.ctx, "U1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", id)
}

func TestRememberRequiresID(t *testing.T) {
	f := newFixture(t)
	err := f.users.Remember(f.ctx, models.User{Email: "a@b.c"})
	assert.Equal(t, KindUnauthenticated, KindOf(err))
}

func TestGetManyPreservesOrder(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.user(t), f.user(t), f.user(t)

	got, err := f.users.GetMany(f.ctx, []string{c.ID, a.ID, b.ID})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, []string{got[0].ID, got[1].ID, got[2].ID})

	_, err = f.users.GetMany(f.ctx, []string{a.ID, "ghost"})
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = f.users.ResolveEmail(f.ctx, "ghost@example.com")
	assert.Equal(t, KindNotFound, KindOf(err))
}
