package services

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Singhary/chaty/models"
	"github.com/Singhary/chaty/topics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxGroupNameLen        = 50
	maxGroupDescriptionLen = 200
	maxGroupMembers        = 50
)

type CreateGroupInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
}

type GroupService struct {
	store   Store
	users   *UserService
	friends *FriendService
	pub     Publisher
	log     *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewGroupService(store Store, users *UserService, friends *FriendService, pub Publisher, log *zap.Logger) *GroupService {
	return &GroupService{
		store:   store,
		users:   users,
		friends: friends,
		pub:     pub,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (gs *GroupService) IsGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	ok, err := gs.store.SIsMember(ctx, groupMembersKey(groupID), userID)
	if err != nil {
		return false, Upstream("failed to check group membership", err)
	}
	return ok, nil
}

func (gs *GroupService) IsGroupAdmin(ctx context.Context, groupID, userID string) (bool, error) {
	ok, err := gs.store.SIsMember(ctx, groupAdminsKey(groupID), userID)
	if err != nil {
		return false, Upstream("failed to check group admins", err)
	}
	return ok, nil
}

func (gs *GroupService) load(ctx context.Context, groupID string) (*models.Group, error) {
	raw, err := gs.store.Get(ctx, groupKey(groupID))
	if errors.Is(err, ErrNil) {
		return nil, NotFound("group not found")
	}
	if err != nil {
		return nil, Upstream("failed to load group", err)
	}
	var g models.Group
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, Upstream("corrupt group record", err)
	}
	return &g, nil
}

// normalizeMembers trims ids and drops blanks and duplicates, keeping order.
func normalizeMembers(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func validateGroupInput(in CreateGroupInput) (CreateGroupInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Members = normalizeMembers(in.Members)

	if n := utf8.RuneCountInString(in.Name); n == 0 || n > maxGroupNameLen {
		return in, InvalidRequest("group name must be between 1 and 50 characters")
	}
	if utf8.RuneCountInString(in.Description) > maxGroupDescriptionLen {
		return in, InvalidRequest("description must be at most 200 characters")
	}
	if len(in.Members) == 0 || len(in.Members) > maxGroupMembers {
		return in, InvalidRequest("group must have between 1 and 50 members")
	}
	return in, nil
}

// CreateGroup creates a group owned by creatorID. Every other member must be
// a friend of the creator. The creator becomes the only admin.
func (gs *GroupService) CreateGroup(ctx context.Context, creatorID string, in CreateGroupInput) (*models.Group, error) {
	if creatorID == "" {
		return nil, Unauthenticated("unauthorized")
	}
	in, err := validateGroupInput(in)
	if err != nil {
		return nil, err
	}

	invited := make([]string, 0, len(in.Members))
	for _, id := range in.Members {
		if id != creatorID {
			invited = append(invited, id)
		}
	}
	friendship := make([]bool, len(invited))
	eg, egctx := errgroup.WithContext(ctx)
	for i, id := range invited {
		eg.Go(func() (err error) {
			friendship[i], err = gs.friends.IsFriend(egctx, creatorID, id)
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	for _, ok := range friendship {
		if !ok {
			return nil, Forbidden("you can only add friends to a group")
		}
	}

	creator, err := gs.users.Get(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	members := append([]string{creatorID}, invited...)
	group := models.Group{
		ID:          gs.newID(),
		Name:        in.Name,
		Description: in.Description,
		CreatedBy:   creatorID,
		Members:     members,
		Admins:      []string{creatorID},
		CreatedAt:   gs.now().UnixMilli(),
	}
	data, err := json.Marshal(group)
	if err != nil {
		return nil, err
	}

	ops := NewOps().
		Set(groupKey(group.ID), string(data)).
		SAdd(groupMembersKey(group.ID), members...).
		SAdd(groupAdminsKey(group.ID), creatorID)
	for _, id := range members {
		ops.SAdd(userGroupsKey(id), group.ID)
	}
	if err := gs.store.Atomic(ctx, ops); err != nil {
		return nil, Upstream("failed to create group", err)
	}
	gs.log.Info("group created", zap.String("group", group.ID), zap.String("creator", creatorID), zap.Int("members", len(members)))

	event := models.NewGroupEvent{Group: group, CreatedBy: *creator}
	notices := make([]notice, 0, len(members))
	for _, id := range members {
		notices = append(notices, notice{topic: topics.User(id, topics.Groups), event: models.EventNewGroup, payload: event})
	}
	if err := publishAll(ctx, gs.pub, notices...); err != nil {
		return &group, err
	}
	return &group, nil
}

// MakeAdmin promotes a member of groupID to admin.
func (gs *GroupService) MakeAdmin(ctx context.Context, requesterID, groupID, userID string) (*models.Group, error) {
	if requesterID == "" {
		return nil, Unauthenticated("unauthorized")
	}
	if groupID == "" || userID == "" {
		return nil, InvalidRequest("invalid request payload")
	}

	var requesterAdmin, targetMember, targetAdmin bool
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		requesterAdmin, err = gs.IsGroupAdmin(egctx, groupID, requesterID)
		return err
	})
	eg.Go(func() (err error) {
		targetMember, err = gs.IsGroupMember(egctx, groupID, userID)
		return err
	})
	eg.Go(func() (err error) {
		targetAdmin, err = gs.IsGroupAdmin(egctx, groupID, userID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	switch {
	case !requesterAdmin:
		return nil, Forbidden("only admins can promote members")
	case !targetMember:
		return nil, InvalidRequest("user is not a member of this group")
	case targetAdmin:
		return nil, InvalidRequest("user is already an admin")
	}

	group, err := gs.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	parties, err := gs.users.GetMany(ctx, []string{userID, requesterID})
	if err != nil {
		return nil, err
	}

	updated := group.WithAdmin(userID)
	data, err := json.Marshal(updated)
	if err != nil {
		return nil, err
	}
	ops := NewOps().
		Set(groupKey(groupID), string(data)).
		SAdd(groupAdminsKey(groupID), userID)
	if err := gs.store.Atomic(ctx, ops); err != nil {
		return nil, Upstream("failed to update group", err)
	}
	gs.log.Info("group admin added", zap.String("group", groupID), zap.String("admin", userID), zap.String("by", requesterID))

	event := models.NewAdminEvent{GroupID: groupID, NewAdmin: parties[0], PromotedBy: parties[1], Group: updated}
	notices := make([]notice, 0, len(updated.Members))
	for _, id := range updated.Members {
		notices = append(notices, notice{topic: topics.User(id, topics.Groups), event: models.EventNewAdmin, payload: event})
	}
	return &updated, publishAll(ctx, gs.pub, notices...)
}

// RemoveMember strips userID from groupID. The creator can only be removed by
// the creator.
func (gs *GroupService) RemoveMember(ctx context.Context, requesterID, groupID, userID string) (*models.Group, error) {
	if requesterID == "" {
		return nil, Unauthenticated("unauthorized")
	}
	if groupID == "" || userID == "" {
		return nil, InvalidRequest("invalid request payload")
	}

	var requesterAdmin, targetMember bool
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		requesterAdmin, err = gs.IsGroupAdmin(egctx, groupID, requesterID)
		return err
	})
	eg.Go(func() (err error) {
		targetMember, err = gs.IsGroupMember(egctx, groupID, userID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if !requesterAdmin {
		return nil, Forbidden("only admins can remove members")
	}
	if !targetMember {
		return nil, InvalidRequest("user is not a member of this group")
	}

	group, err := gs.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if userID == group.CreatedBy && requesterID != userID {
		return nil, Forbidden("the group creator cannot be removed")
	}
	parties, err := gs.users.GetMany(ctx, []string{userID, requesterID})
	if err != nil {
		return nil, err
	}

	updated := group.Without(userID)
	data, err := json.Marshal(updated)
	if err != nil {
		return nil, err
	}
	ops := NewOps().
		Set(groupKey(groupID), string(data)).
		SRem(groupMembersKey(groupID), userID).
		SRem(groupAdminsKey(groupID), userID).
		SRem(userGroupsKey(userID), groupID)
	if err := gs.store.Atomic(ctx, ops); err != nil {
		return nil, Upstream("failed to update group", err)
	}
	gs.log.Info("group member removed", zap.String("group", groupID), zap.String("member", userID), zap.String("by", requesterID))

	removed, remover := parties[0], parties[1]
	notices := []notice{{
		topic: topics.User(userID, topics.Groups),
		event: models.EventRemovedFromGroup,
		payload: models.RemovedFromGroupEvent{
			GroupID:   groupID,
			GroupName: group.Name,
			RemovedBy: remover,
		},
	}}
	event := models.MemberRemovedEvent{GroupID: groupID, RemovedUser: removed, RemovedBy: remover, Group: updated}
	for _, id := range updated.Members {
		notices = append(notices, notice{topic: topics.User(id, topics.Groups), event: models.EventMemberRemoved, payload: event})
	}
	return &updated, publishAll(ctx, gs.pub, notices...)
}

// GetGroup returns the group record to one of its members.
func (gs *GroupService) GetGroup(ctx context.Context, requesterID, groupID string) (*models.Group, error) {
	member, err := gs.IsGroupMember(ctx, groupID, requesterID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, Forbidden("you are not a member of this group")
	}
	return gs.load(ctx, groupID)
}

// ListGroups returns the groups userID belongs to. Index entries whose record
// is gone are skipped.
func (gs *GroupService) ListGroups(ctx context.Context, userID string) ([]models.Group, error) {
	ids, err := gs.store.SMembers(ctx, userGroupsKey(userID))
	if err != nil {
		return nil, Upstream("failed to load groups", err)
	}
	loaded := make([]*models.Group, len(ids))
	eg, egctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		eg.Go(func() error {
			g, err := gs.load(egctx, id)
			if KindOf(err) == KindNotFound {
				return nil
			}
			loaded[i] = g
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	groups := make([]models.Group, 0, len(loaded))
	for _, g := range loaded {
		if g != nil {
			groups = append(groups, *g)
		}
	}
	slices.SortFunc(groups, func(a, b models.Group) int {
		return cmp.Compare(a.CreatedAt, b.CreatedAt)
	})
	return groups, nil
}
