package client

import (
	"context"
	"fmt"

	"github.com/Singhary/chaty/models"
)

// Session holds the views of one signed-in user. Resync reloads all of them
// over HTTP and is meant to run as Options.OnReconnect.
type Session struct {
	api *API

	Friends   *FriendList
	Groups    *GroupList
	Chat      *Timeline[models.Message]
	GroupChat *Timeline[models.GroupMessage]

	// ChatKey and GroupID select the histories to reload; empty skips them.
	ChatKey      string
	GroupID      string
	HistoryLimit int
}

func NewSession(api *API, userID string) *Session {
	return &Session{
		api:          api,
		Friends:      NewFriendList(userID),
		Groups:       NewGroupList(userID),
		Chat:         NewChatView(),
		GroupChat:    NewGroupChatView(),
		HistoryLimit: 50,
	}
}

func (s *Session) Resync(ctx context.Context) error {
	friends, err := s.api.Friends(ctx)
	if err != nil {
		return fmt.Errorf("friends: %w", err)
	}
	requests, err := s.api.FriendRequests(ctx)
	if err != nil {
		return fmt.Errorf("friend requests: %w", err)
	}
	s.Friends.Reset(friends, requests)

	groups, err := s.api.Groups(ctx)
	if err != nil {
		return fmt.Errorf("groups: %w", err)
	}
	s.Groups.Reset(groups)

	if s.ChatKey != "" {
		history, err := s.api.ChatHistory(ctx, s.ChatKey, s.HistoryLimit)
		if err != nil {
			return fmt.Errorf("chat %s: %w", s.ChatKey, err)
		}
		s.Chat.Reset(history)
	}
	if s.GroupID != "" {
		history, err := s.api.GroupHistory(ctx, s.GroupID, s.HistoryLimit)
		if err != nil {
			return fmt.Errorf("group %s: %w", s.GroupID, err)
		}
		s.GroupChat.Reset(history)
	}
	return nil
}
