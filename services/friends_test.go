package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/Singhary/chaty/models"
	"github.com/Singhary/chaty/topics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFriendRequestAcceptFlow(t *testing.T) {
	f := newFixture(t)
	x, y := f.user(t), f.user(t)

	require.NoError(t, f.friends.SendFriendRequest(f.ctx, x.ID, y.Email))
	pending, err := f.friends.HasIncomingRequest(f.ctx, y.ID, x.ID)
	require.NoError(t, err)
	assert.True(t, pending)

	hint := f.pub.on(topics.User(y.ID, topics.IncomingRequests))
	require.Len(t, hint, 1)
	assert.Equal(t, models.EventIncomingFriendRequests, hint[0].event)
	assert.Equal(t, x.ID, hint[0].payload.(models.IncomingFriendRequest).SenderID)

	require.NoError(t, f.friends.AcceptFriendRequest(f.ctx, y.ID, x.ID))

	xy, err := f.friends.IsFriend(f.ctx, x.ID, y.ID)
	require.NoError(t, err)
	yx, err := f.friends.IsFriend(f.ctx, y.ID, x.ID)
	require.NoError(t, err)
	assert.True(t, xy)
	assert.True(t, yx)

	requests, err := f.friends.ListIncomingRequests(f.ctx, y.ID)
	require.NoError(t, err)
	assert.Empty(t, requests)

	toX := f.pub.on(topics.User(x.ID, topics.Friends))
	require.Len(t, toX, 1)
	assert.Equal(t, models.EventNewFriend, toX[0].event)
	assert.Equal(t, y.ID, toX[0].payload.(models.User).ID)

	toY := f.pub.on(topics.User(y.ID, topics.Friends))
	require.Len(t, toY, 1)
	assert.Equal(t, x.ID, toY[0].payload.(models.User).ID)
}

func TestSendFriendRequestEmailIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	x, y := f.user(t), f.user(t)
	require.NoError(t, f.friends.SendFriendRequest(f.ctx, x.ID, "  "+strings.ToUpper(y.Email)+" "))
}

func TestSendFriendRequestPreconditions(t *testing.T) {
	f := newFixture(t)
	x, y := f.user(t), f.user(t)

	err := f.friends.SendFriendRequest(f.ctx, "", y.Email)
	assert.Equal(t, KindUnauthenticated, KindOf(err))

	err = f.friends.SendFriendRequest(f.ctx, x.ID, "not-an-email")
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	err = f.friends.SendFriendRequest(f.ctx, x.ID, "ghost@example.com")
	assert.Equal(t, KindNotFound, KindOf(err))

	err = f.friends.SendFriendRequest(f.ctx, x.ID, x.Email)
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	require.NoError(t, f.friends.SendFriendRequest(f.ctx, x.ID, y.Email))
	err = f.friends.SendFriendRequest(f.ctx, x.ID, y.Email)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestSendFriendRequestRejectsReverseRequestWithoutMutation(t *testing.T) {
	f := newFixture(t)
	x, y := f.user(t), f.user(t)
	require.NoError(t, f.friends.SendFriendRequest(f.ctx, x.ID, y.Email))
	f.pub.reset()

	err := f.friends.SendFriendRequest(f.ctx, y.ID, x.Email)
	assert.Equal(t, KindConflict, KindOf(err))

	pending, err := f.friends.HasIncomingRequest(f.ctx, x.ID, y.ID)
	require.NoError(t, err)
	assert.False(t, pending)
	assert.Zero(t, f.pub.count())
}

func TestSendFriendRequestRejectsExistingFriend(t *testing.T) {
	f := newFixture(t)
	x, y := f.user(t), f.user(t)
	f.befriend(t, x, y)

	err := f.friends.SendFriendRequest(f.ctx, y.ID, x.Email)
	assert.Equal(t, KindConflict, KindOf(err))

	pending, err := f.friends.HasIncomingRequest(f.ctx, x.ID, y.ID)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestAcceptFriendRequestPreconditions(t *testing.T) {
	f := newFixture(t)
	x, y := f.user(t), f.user(t)

	err := f.friends.AcceptFriendRequest(f.ctx, "", x.ID)
	assert.Equal(t, KindUnauthenticated, KindOf(err))

	err = f.friends.AcceptFriendRequest(f.ctx, y.ID, x.ID)
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	f.befriend(t, x, y)
	err = f.friends.AcceptFriendRequest(f.ctx, y.ID, x.ID)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestDenyFriendRequest(t *testing.T) {
	f := newFixture(t)
	x, y := f.user(t), f.user(t)
	require.NoError(t, f.friends.SendFriendRequest(f.ctx, x.ID, y.Email))

	require.NoError(t, f.friends.DenyFriendRequest(f.ctx, y.ID, x.ID))
	pending, err := f.friends.HasIncomingRequest(f.ctx, y.ID, x.ID)
	require.NoError(t, err)
	assert.False(t, pending)

	friends, err := f.friends.IsFriend(f.ctx, x.ID, y.ID)
	require.NoError(t, err)
	assert.False(t, friends)

	err = f.friends.DenyFriendRequest(f.ctx, y.ID, x.ID)
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	err = f.friends.DenyFriendRequest(f.ctx, "", x.ID)
	assert.Equal(t, KindUnauthenticated, KindOf(err))
}

func TestListFriends(t *testing.T) {
	f := newFixture(t)
	x, y, z := f.user(t), f.user(t), f.user(t)
	f.befriend(t, x, y)
	f.befriend(t, z, x)

	friends, err := f.friends.ListFriends(f.ctx, x.ID)
	require.NoError(t, err)
	ids := []string{}
	for _, u := range friends {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []string{y.ID, z.ID}, ids)
}

func TestAcceptFriendRequestReportsPublishFailure(t *testing.T) {
	f := newFixture(t)
	x, y := f.user(t), f.user(t)
	require.NoError(t, f.friends.SendFriendRequest(f.ctx, x.ID, y.Email))

	f.pub.fail = errors.New("relay down")
	err := f.friends.AcceptFriendRequest(f.ctx, y.ID, x.ID)
	assert.Equal(t, KindUpstream, KindOf(err))

	// the store write is not rolled back
	ok, err := f.friends.IsFriend(f.ctx, x.ID, y.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}
