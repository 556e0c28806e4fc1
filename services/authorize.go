package services

import (
	"context"

	"github.com/Singhary/chaty/topics"
)

// TopicAuthorizer decides whether userID may subscribe to topic.
type TopicAuthorizer interface {
	Authorize(ctx context.Context, userID, topic string) error
}

// TopicPolicy checks subscriptions against the store on every call:
// personal topics belong to their owner, chat topics to participants who
// are still friends, group topics to current members.
type TopicPolicy struct {
	friends *FriendService
	groups  *GroupService
}

func NewTopicPolicy(friends *FriendService, groups *GroupService) *TopicPolicy {
	return &TopicPolicy{friends: friends, groups: groups}
}

func (p *TopicPolicy) Authorize(ctx context.Context, userID, topic string) error {
	if userID == "" {
		return Unauthenticated("unauthorized")
	}
	parsed, ok := topics.Parse(topic)
	if !ok {
		return InvalidRequest("unknown topic")
	}
	switch parsed.Kind {
	case topics.KindUser:
		if parsed.ID != userID {
			return Forbidden("topic belongs to another user")
		}
		return nil
	case topics.KindConversation:
		friendID, err := Counterpart(parsed.ID, userID)
		if err != nil {
			return err
		}
		friends, err := p.friends.IsFriend(ctx, userID, friendID)
		if err != nil {
			return err
		}
		if !friends {
			return Forbidden("you can only follow chats with friends")
		}
		return nil
	case topics.KindGroup:
		member, err := p.groups.IsGroupMember(ctx, parsed.ID, userID)
		if err != nil {
			return err
		}
		if !member {
			return Forbidden("you are not a member of this group")
		}
		return nil
	}
	return InvalidRequest("unknown topic")
}
