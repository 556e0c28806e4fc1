package models

import "encoding/json"

// Event names published on the relay.
const (
	EventIncomingMessage        = "incoming-message"
	EventNewMessage             = "new_message"
	EventNewFriend              = "new_friend"
	EventIncomingFriendRequests = "incoming_friend_requests"
	EventNewGroup               = "new_group"
	EventNewAdmin               = "new_admin"
	EventRemovedFromGroup       = "removed_from_group"
	EventMemberRemoved          = "member_removed"
	EventNewGroupMessage        = "new_group_message"
)

// Envelope is the frame carried by the relay and forwarded to WebSocket subscribers.
type Envelope struct {
	Topic string          `json:"topic"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type NewMessageNotification struct {
	Message
	SenderImg  string `json:"senderImg"`
	SenderName string `json:"senderName"`
}

type NewGroupMessageNotification struct {
	GroupMessage
	SenderImg  string `json:"senderImg"`
	SenderName string `json:"senderName"`
	GroupName  string `json:"groupName"`
}

type NewGroupEvent struct {
	Group     Group `json:"group"`
	CreatedBy User  `json:"createdBy"`
}

type NewAdminEvent struct {
	GroupID    string `json:"groupId"`
	NewAdmin   User   `json:"newAdmin"`
	PromotedBy User   `json:"promotedBy"`
	Group      Group  `json:"group"`
}

type RemovedFromGroupEvent struct {
	GroupID   string `json:"groupId"`
	GroupName string `json:"groupName"`
	RemovedBy User   `json:"removedBy"`
}

type MemberRemovedEvent struct {
	GroupID     string `json:"groupId"`
	RemovedUser User   `json:"removedUser"`
	RemovedBy   User   `json:"removedBy"`
	Group       Group  `json:"group"`
}

// Hub control events sent in reply to a subscribe frame.
const (
	EventSubscriptionSucceeded = "subscription_succeeded"
	EventSubscriptionError     = "subscription_error"
)

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// ClientFrame is sent by WebSocket subscribers to manage their topics.
type ClientFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

type SubscriptionError struct {
	Error string `json:"error"`
}
