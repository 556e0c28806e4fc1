package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Singhary/chaty/models"
	"github.com/Singhary/chaty/topics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type MessageService struct {
	store   Store
	users   *UserService
	friends *FriendService
	groups  *GroupService
	pub     Publisher
	log     *zap.Logger

	now   func() time.Time
	newID func() string
	// last is the most recent score handed out; scores never repeat.
	last atomic.Int64
}

func NewMessageService(store Store, users *UserService, friends *FriendService, groups *GroupService, pub Publisher, log *zap.Logger) *MessageService {
	return &MessageService{
		store:   store,
		users:   users,
		friends: friends,
		groups:  groups,
		pub:     pub,
		log:     log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Counterpart returns the other participant of chatKey, or Forbidden when
// userID takes no part in it.
func Counterpart(chatKey, userID string) (string, error) {
	a, b, err := topics.ParseConversationKey(chatKey)
	if err != nil || a == b || topics.ConversationKey(a, b) != chatKey {
		return "", InvalidRequest("invalid chat id")
	}
	switch userID {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return "", Forbidden("you are not part of this chat")
}

// CanAccessChat reports whether userID is a participant of chatKey and still
// a friend of the counterpart.
func (ms *MessageService) CanAccessChat(ctx context.Context, chatKey, userID string) error {
	friendID, err := Counterpart(chatKey, userID)
	if err != nil {
		return err
	}
	ok, err := ms.friends.IsFriend(ctx, userID, friendID)
	if err != nil {
		return err
	}
	if !ok {
		return Forbidden("you can only message friends")
	}
	return nil
}

// nextScore returns the current time in milliseconds, bumped past the
// previous score so messages sent within one millisecond keep send order.
func (ms *MessageService) nextScore() int64 {
	now := ms.now().UnixMilli()
	for {
		last := ms.last.Load()
		next := max(now, last+1)
		if ms.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// SendDirectMessage appends a message to the conversation log and notifies
// the conversation topic and the counterpart's chats topic.
func (ms *MessageService) SendDirectMessage(ctx context.Context, senderID, chatKey, text string) (*models.Message, error) {
	if senderID == "" {
		return nil, Unauthenticated("unauthorized")
	}
	if _, _, err := topics.ParseConversationKey(chatKey); err != nil {
		return nil, InvalidRequest("invalid chat id")
	}
	if strings.TrimSpace(text) == "" {
		return nil, InvalidRequest("message text is required")
	}
	if err := ms.CanAccessChat(ctx, chatKey, senderID); err != nil {
		return nil, err
	}
	friendID, _ := Counterpart(chatKey, senderID)

	sender, err := ms.users.Get(ctx, senderID)
	if err != nil {
		return nil, err
	}

	now := ms.nextScore()
	msg := models.Message{ID: ms.newID(), SenderID: senderID, Text: text, Timestamp: now}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if err := ms.store.ZAdd(ctx, chatMessagesKey(chatKey), float64(now), string(data)); err != nil {
		return nil, Upstream("failed to store message", err)
	}
	ms.log.Debug("message sent", zap.String("chat", chatKey), zap.String("id", msg.ID))

	err = publishAll(ctx, ms.pub,
		notice{topic: topics.Conversation(chatKey), event: models.EventIncomingMessage, payload: msg},
		notice{
			topic: topics.User(friendID, topics.Chats),
			event: models.EventNewMessage,
			payload: models.NewMessageNotification{
				Message:    msg,
				SenderImg:  sender.Image,
				SenderName: sender.Name,
			},
		},
	)
	return &msg, err
}

// SendGroupMessage appends a message to the group log and notifies the group
// topic and every other member.
func (ms *MessageService) SendGroupMessage(ctx context.Context, senderID, groupID, text string) (*models.GroupMessage, error) {
	if senderID == "" {
		return nil, Unauthenticated("unauthorized")
	}
	member, err := ms.groups.IsGroupMember(ctx, groupID, senderID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, Forbidden("you are not a member of this group")
	}

	var (
		group  *models.Group
		sender *models.User
	)
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		group, err = ms.groups.load(egctx, groupID)
		return err
	})
	eg.Go(func() (err error) {
		sender, err = ms.users.Get(egctx, senderID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, InvalidRequest("message text is required")
	}

	now := ms.nextScore()
	msg := models.GroupMessage{ID: ms.newID(), SenderID: senderID, GroupID: groupID, Text: text, Timestamp: now}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if err := ms.store.ZAdd(ctx, groupMessagesKey(groupID), float64(now), string(data)); err != nil {
		return nil, Upstream("failed to store message", err)
	}
	ms.log.Debug("group message sent", zap.String("group", groupID), zap.String("id", msg.ID))

	notification := models.NewGroupMessageNotification{
		GroupMessage: msg,
		SenderImg:    sender.Image,
		SenderName:   sender.Name,
		GroupName:    group.Name,
	}
	notices := []notice{{topic: topics.Group(groupID), event: models.EventIncomingMessage, payload: msg}}
	for _, id := range group.Members {
		if id == senderID {
			continue
		}
		notices = append(notices, notice{topic: topics.User(id, topics.Groups), event: models.EventNewGroupMessage, payload: notification})
	}
	return &msg, publishAll(ctx, ms.pub, notices...)
}

// ListDirectMessages returns the conversation log oldest first. With limit > 0
// only the newest limit messages are returned.
func (ms *MessageService) ListDirectMessages(ctx context.Context, chatKey string, limit int) ([]models.Message, error) {
	return listLog[models.Message](ctx, ms.store, chatMessagesKey(chatKey), limit)
}

// ListGroupMessages is ListDirectMessages for a group log.
func (ms *MessageService) ListGroupMessages(ctx context.Context, groupID string, limit int) ([]models.GroupMessage, error) {
	return listLog[models.GroupMessage](ctx, ms.store, groupMessagesKey(groupID), limit)
}

func listLog[T any](ctx context.Context, store Store, key string, limit int) ([]T, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	raw, err := store.ZRange(ctx, key, start, -1)
	if err != nil {
		return nil, Upstream("failed to load messages", err)
	}
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var m T
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, Upstream("corrupt message", fmt.Errorf("%s: %w", key, err))
		}
		out = append(out, m)
	}
	return out, nil
}

// ForDisplay returns a newest-first copy of a log.
func ForDisplay[T any](log []T) []T {
	out := slices.Clone(log)
	slices.Reverse(out)
	return out
}
