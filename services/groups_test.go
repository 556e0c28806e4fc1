package services

import (
	"strings"
	"testing"

	"github.com/Singhary/chaty/models"
	"github.com/Singhary/chaty/topics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertGroupConsistent checks the record against the index sets.
func assertGroupConsistent(t *testing.T, f *fixture, groupID string) models.Group {
	t.Helper()
	g, err := f.groups.load(f.ctx, groupID)
	require.NoError(t, err)

	members, err := f.store.SMembers(f.ctx, groupMembersKey(groupID))
	require.NoError(t, err)
	admins, err := f.store.SMembers(f.ctx, groupAdminsKey(groupID))
	require.NoError(t, err)
	assert.ElementsMatch(t, g.Members, members)
	assert.ElementsMatch(t, g.Admins, admins)
	for _, a := range g.Admins {
		assert.Contains(t, g.Members, a, "admin %s is not a member", a)
	}
	for _, m := range g.Members {
		ok, err := f.store.SIsMember(f.ctx, userGroupsKey(m), groupID)
		require.NoError(t, err)
		assert.True(t, ok, "member %s misses the group in its index", m)
	}
	return *g
}

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)
	owner, a, b := f.user(t), f.user(t), f.user(t)
	f.befriend(t, owner, a)
	f.befriend(t, b, owner)
	f.pub.reset()

	g, err := f.groups.CreateGroup(f.ctx, owner.ID, CreateGroupInput{
		Name:        "  Weekend  ",
		Description: "hiking",
		Members:     []string{a.ID, " " + b.ID, a.ID, owner.ID, ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "Weekend", g.Name)
	assert.Equal(t, owner.ID, g.CreatedBy)
	assert.Equal(t, []string{owner.ID, a.ID, b.ID}, g.Members)
	assert.Equal(t, []string{owner.ID}, g.Admins)
	assert.NotEmpty(t, g.ID)
	assert.NotZero(t, g.CreatedAt)

	stored := assertGroupConsistent(t, f, g.ID)
	assert.Equal(t, *g, stored)

	for _, u := range []models.User{owner, a, b} {
		events := f.pub.on(topics.User(u.ID, topics.Groups))
		require.Len(t, events, 1)
		assert.Equal(t, models.EventNewGroup, events[0].event)
		e := events[0].payload.(models.NewGroupEvent)
		assert.Equal(t, g.ID, e.Group.ID)
		assert.Equal(t, owner.ID, e.CreatedBy.ID)
	}
}

func TestCreateGroupValidation(t *testing.T) {
	f := newFixture(t)
	owner, a := f.user(t), f.user(t)
	f.befriend(t, owner, a)

	tooMany := make([]string, 51)
	for i := range tooMany {
		tooMany[i] = strings.Repeat("x", i+1)
	}
	cases := map[string]CreateGroupInput{
		"empty name":       {Name: "   ", Members: []string{a.ID}},
		"long name":        {Name: strings.Repeat("n", 51), Members: []string{a.ID}},
		"long description": {Name: "ok", Description: strings.Repeat("d", 201), Members: []string{a.ID}},
		"no members":       {Name: "ok", Members: []string{" "}},
		"too many members": {Name: "ok", Members: tooMany},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.groups.CreateGroup(f.ctx, owner.ID, in)
			assert.Equal(t, KindInvalidRequest, KindOf(err))
		})
	}

	_, err := f.groups.CreateGroup(f.ctx, owner.ID, CreateGroupInput{Name: strings.Repeat("n", 50), Description: strings.Repeat("d", 200), Members: []string{a.ID}})
	assert.NoError(t, err)
}

func TestCreateGroupRequiresFriends(t *testing.T) {
	f := newFixture(t)
	owner, friend, stranger := f.user(t), f.user(t), f.user(t)
	f.befriend(t, owner, friend)
	f.pub.reset()

	_, err := f.groups.CreateGroup(f.ctx, owner.ID, CreateGroupInput{Name: "g", Members: []string{friend.ID, stranger.ID}})
	assert.Equal(t, KindForbidden, KindOf(err))

	groups, err := f.groups.ListGroups(f.ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, groups)
	assert.Zero(t, f.pub.count())
}

func TestMakeAdmin(t *testing.T) {
	f := newFixture(t)
	owner, a, b := f.user(t), f.user(t), f.user(t)
	f.befriend(t, owner, a)
	f.befriend(t, owner, b)
	g := f.group(t, owner, a, b)
	f.pub.reset()

	updated, err := f.groups.MakeAdmin(f.ctx, owner.ID, g.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{owner.ID, a.ID}, updated.Admins)
	assertGroupConsistent(t, f, g.ID)

	for _, u := range []models.User{owner, a, b} {
		events := f.pub.on(topics.User(u.ID, topics.Groups))
		require.Len(t, events, 1)
		e := events[0].payload.(models.NewAdminEvent)
		assert.Equal(t, models.EventNewAdmin, events[0].event)
		assert.Equal(t, a.ID, e.NewAdmin.ID)
		assert.Equal(t, owner.ID, e.PromotedBy.ID)
	}

	// a promoted admin can promote others
	_, err = f.groups.MakeAdmin(f.ctx, a.ID, g.ID, b.ID)
	require.NoError(t, err)
	assertGroupConsistent(t, f, g.ID)
}

func TestMakeAdminPreconditions(t *testing.T) {
	f := newFixture(t)
	owner, a, outsider := f.user(t), f.user(t), f.user(t)
	f.befriend(t, owner, a)
	g := f.group(t, owner, a)

	_, err := f.groups.MakeAdmin(f.ctx, a.ID, g.ID, a.ID)
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = f.groups.MakeAdmin(f.ctx, owner.ID, g.ID, outsider.ID)
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	_, err = f.groups.MakeAdmin(f.ctx, owner.ID, g.ID, owner.ID)
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	_, err = f.groups.MakeAdmin(f.ctx, owner.ID, "missing", a.ID)
	assert.Equal(t, KindForbidden, KindOf(err))
}

func TestMakeAdminMissingRecord(t *testing.T) {
	f := newFixture(t)
	owner, a := f.user(t), f.user(t)
	require.NoError(t, f.store.SAdd(f.ctx, groupMembersKey("orphan"), owner.ID, a.ID))
	require.NoError(t, f.store.SAdd(f.ctx, groupAdminsKey("orphan"), owner.ID))

	_, err := f.groups.MakeAdmin(f.ctx, owner.ID, "orphan", a.ID)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestRemoveMember(t *testing.T) {
	f := newFixture(t)
	owner, a, b := f.user(t), f.user(t), f.user(t)
	f.befriend(t, owner, a)
	f.befriend(t, owner, b)
	g := f.group(t, owner, a, b)
	_, err := f.groups.MakeAdmin(f.ctx, owner.ID, g.ID, a.ID)
	require.NoError(t, err)
	f.pub.reset()

	updated, err := f.groups.RemoveMember(f.ctx, owner.ID, g.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{owner.ID, b.ID}, updated.Members)
	assert.Equal(t, []string{owner.ID}, updated.Admins)
	assertGroupConsistent(t, f, g.ID)

	inIndex, err := f.store.SIsMember(f.ctx, userGroupsKey(a.ID), g.ID)
	require.NoError(t, err)
	assert.False(t, inIndex)

	removed := f.pub.on(topics.User(a.ID, topics.Groups))
	require.Len(t, removed, 1)
	assert.Equal(t, models.EventRemovedFromGroup, removed[0].event)
	notice := removed[0].payload.(models.RemovedFromGroupEvent)
	assert.Equal(t, g.Name, notice.GroupName)
	assert.Equal(t, owner.ID, notice.RemovedBy.ID)

	for _, u := range []models.User{owner, b} {
		events := f.pub.on(topics.User(u.ID, topics.Groups))
		require.Len(t, events, 1)
		assert.Equal(t, models.EventMemberRemoved, events[0].event)
		assert.Equal(t, a.ID, events[0].payload.(models.MemberRemovedEvent).RemovedUser.ID)
	}
}

func TestRemoveMemberProtectsCreator(t *testing.T) {
	f := newFixture(t)
	owner, a, b := f.user(t), f.user(t), f.user(t)
	f.befriend(t, owner, a)
	f.befriend(t, owner, b)
	g := f.group(t, owner, a, b)
	_, err := f.groups.MakeAdmin(f.ctx, owner.ID, g.ID, a.ID)
	require.NoError(t, err)

	_, err = f.groups.RemoveMember(f.ctx, a.ID, g.ID, owner.ID)
	assert.Equal(t, KindForbidden, KindOf(err))

	// non-creator admin removals keep the creator in place
	_, err = f.groups.RemoveMember(f.ctx, a.ID, g.ID, b.ID)
	require.NoError(t, err)
	stored := assertGroupConsistent(t, f, g.ID)
	assert.Contains(t, stored.Members, stored.CreatedBy)

	_, err = f.groups.RemoveMember(f.ctx, owner.ID, g.ID, owner.ID)
	require.NoError(t, err)
	stored = assertGroupConsistent(t, f, g.ID)
	assert.Equal(t, []string{a.ID}, stored.Members)
}

func TestRemoveMemberPreconditions(t *testing.T) {
	f := newFixture(t)
	owner, a, outsider := f.user(t), f.user(t), f.user(t)
	f.befriend(t, owner, a)
	g := f.group(t, owner, a)

	_, err := f.groups.RemoveMember(f.ctx, a.ID, g.ID, owner.ID)
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = f.groups.RemoveMember(f.ctx, owner.ID, g.ID, outsider.ID)
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	_, err = f.groups.RemoveMember(f.ctx, "", g.ID, a.ID)
	assert.Equal(t, KindUnauthenticated, KindOf(err))
}

func TestGetAndListGroups(t *testing.T) {
	f := newFixture(t)
	owner, a, outsider := f.user(t), f.user(t), f.user(t)
	f.befriend(t, owner, a)
	g1 := f.group(t, owner, a)
	g2 := f.group(t, owner)

	got, err := f.groups.GetGroup(f.ctx, a.ID, g1.ID)
	require.NoError(t, err)
	assert.Equal(t, g1.ID, got.ID)

	_, err = f.groups.GetGroup(f.ctx, outsider.ID, g1.ID)
	assert.Equal(t, KindForbidden, KindOf(err))

	groups, err := f.groups.ListGroups(f.ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, g1.ID, groups[0].ID)
	assert.Equal(t, g2.ID, groups[1].ID)

	groups, err = f.groups.ListGroups(f.ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
}
