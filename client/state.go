package client

import (
	"encoding/json"
	"slices"
	"sync"

	"github.com/Singhary/chaty/models"
	"github.com/Singhary/chaty/topics"
)

// Timeline is a newest-first message list that ignores ids it already holds.
// Live events and a history reload can overlap, so the same message may
// arrive twice.
type Timeline[T any] struct {
	mu    sync.RWMutex
	idOf  func(T) string
	items []T
	seen  map[string]struct{}
}

func NewTimeline[T any](idOf func(T) string) *Timeline[T] {
	return &Timeline[T]{idOf: idOf, seen: make(map[string]struct{})}
}

func NewChatView() *Timeline[models.Message] {
	return NewTimeline(func(m models.Message) string { return m.ID })
}

func NewGroupChatView() *Timeline[models.GroupMessage] {
	return NewTimeline(func(m models.GroupMessage) string { return m.ID })
}

// Add prepends m and reports whether it was new.
func (t *Timeline[T]) Add(m T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.idOf(m)
	if _, ok := t.seen[id]; ok {
		return false
	}
	t.seen[id] = struct{}{}
	t.items = append([]T{m}, t.items...)
	return true
}

// Reset replaces the contents with a newest-first history.
func (t *Timeline[T]) Reset(history []T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make([]T, 0, len(history))
	t.seen = make(map[string]struct{}, len(history))
	for _, m := range history {
		id := t.idOf(m)
		if _, ok := t.seen[id]; ok {
			continue
		}
		t.seen[id] = struct{}{}
		t.items = append(t.items, m)
	}
}

func (t *Timeline[T]) Items() []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.items)
}

func (t *Timeline[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// Follow subscribes t to the incoming-message event of topic.
func (t *Timeline[T]) Follow(c *Conn, topic string) error {
	c.Bind(topic, models.EventIncomingMessage, func(data json.RawMessage) {
		var m T
		if err := json.Unmarshal(data, &m); err != nil {
			c.log.Debug("dropping malformed message")
			return
		}
		t.Add(m)
	})
	return c.Subscribe(topic)
}

// Notification is a one-time notice for the user, for example a removal from
// a group.
type Notification struct {
	Event   string
	GroupID string
	Text    string
}

// GroupList is the sidebar group list of one user.
type GroupList struct {
	mu      sync.RWMutex
	userID  string
	groups  []models.Group
	notices []Notification
	// Evicted is called with the id of a group the user no longer belongs to.
	Evicted func(groupID string)
}

func NewGroupList(userID string) *GroupList {
	return &GroupList{userID: userID}
}

func (l *GroupList) Reset(groups []models.Group) {
	l.mu.Lock()
	l.groups = slices.Clone(groups)
	l.mu.Unlock()
}

func (l *GroupList) Groups() []models.Group {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.groups)
}

func (l *GroupList) Get(groupID string) (models.Group, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i := l.index(groupID)
	if i < 0 {
		return models.Group{}, false
	}
	return l.groups[i], true
}

// index must be called with l.mu held.
func (l *GroupList) index(groupID string) int {
	return slices.IndexFunc(l.groups, func(g models.Group) bool { return g.ID == groupID })
}

// upsert must be called with l.mu held.
func (l *GroupList) upsert(g models.Group) {
	if i := l.index(g.ID); i >= 0 {
		l.groups[i] = g
		return
	}
	l.groups = append(l.groups, g)
}

// evict must be called with l.mu held. It reports whether the group was held.
func (l *GroupList) evict(groupID string) bool {
	i := l.index(groupID)
	if i < 0 {
		return false
	}
	l.groups = slices.Delete(l.groups, i, i+1)
	return true
}

// Apply folds one event from the user's groups topic into the list.
func (l *GroupList) Apply(event string, data json.RawMessage) error {
	var evicted string
	defer func() {
		if evicted != "" && l.Evicted != nil {
			l.Evicted(evicted)
		}
	}()

	l.mu.Lock()
	defer l.mu.Unlock()
	switch event {
	case models.EventNewGroup:
		var e models.NewGroupEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		l.upsert(e.Group)
	case models.EventNewAdmin:
		var e models.NewAdminEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		l.upsert(e.Group)
	case models.EventMemberRemoved:
		var e models.MemberRemovedEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		if e.RemovedUser.ID == l.userID {
			if l.evict(e.GroupID) {
				evicted = e.GroupID
				l.notices = append(l.notices, Notification{Event: event, GroupID: e.GroupID, Text: "You were removed from " + e.Group.Name})
			}
			return nil
		}
		if l.index(e.GroupID) >= 0 {
			l.upsert(e.Group)
		}
	case models.EventRemovedFromGroup:
		var e models.RemovedFromGroupEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		if l.evict(e.GroupID) {
			evicted = e.GroupID
			l.notices = append(l.notices, Notification{Event: event, GroupID: e.GroupID, Text: "You were removed from " + e.GroupName})
		}
	}
	return nil
}

// Notifications returns pending notices and clears them.
func (l *GroupList) Notifications() []Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.notices
	l.notices = nil
	return out
}

// Follow binds the list to the user's groups topic.
func (l *GroupList) Follow(c *Conn) error {
	topic := topics.User(l.userID, topics.Groups)
	for _, event := range []string{models.EventNewGroup, models.EventNewAdmin, models.EventMemberRemoved, models.EventRemovedFromGroup} {
		c.Bind(topic, event, func(data json.RawMessage) {
			if err := l.Apply(event, data); err != nil {
				c.log.Debug("dropping malformed group event")
			}
		})
	}
	return c.Subscribe(topic)
}

// FriendList tracks friends and pending incoming requests of one user.
type FriendList struct {
	mu       sync.RWMutex
	userID   string
	friends  []models.User
	requests []models.IncomingFriendRequest
}

func NewFriendList(userID string) *FriendList {
	return &FriendList{userID: userID}
}

func (l *FriendList) Reset(friends []models.User, requests []models.IncomingFriendRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.friends = slices.Clone(friends)
	l.requests = slices.Clone(requests)
}

func (l *FriendList) Friends() []models.User {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.friends)
}

func (l *FriendList) Requests() []models.IncomingFriendRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.requests)
}

func (l *FriendList) AddFriend(u models.User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = slices.DeleteFunc(l.requests, func(r models.IncomingFriendRequest) bool { return r.SenderID == u.ID })
	if slices.ContainsFunc(l.friends, func(f models.User) bool { return f.ID == u.ID }) {
		return
	}
	l.friends = append(l.friends, u)
}

func (l *FriendList) AddRequest(r models.IncomingFriendRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if slices.ContainsFunc(l.requests, func(x models.IncomingFriendRequest) bool { return x.SenderID == r.SenderID }) {
		return
	}
	l.requests = append(l.requests, r)
}

// Follow binds the list to the user's friends and incoming request topics.
func (l *FriendList) Follow(c *Conn) error {
	friendsTopic := topics.User(l.userID, topics.Friends)
	c.Bind(friendsTopic, models.EventNewFriend, func(data json.RawMessage) {
		var u models.User
		if err := json.Unmarshal(data, &u); err == nil {
			l.AddFriend(u)
		}
	})
	requestsTopic := topics.User(l.userID, topics.IncomingRequests)
	c.Bind(requestsTopic, models.EventIncomingFriendRequests, func(data json.RawMessage) {
		var r models.IncomingFriendRequest
		if err := json.Unmarshal(data, &r); err == nil {
			l.AddRequest(r)
		}
	})
	if err := c.Subscribe(friendsTopic); err != nil {
		return err
	}
	return c.Subscribe(requestsTopic)
}
