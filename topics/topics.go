// Package topics derives relay topic names from entity ids. Subscribers and
// publishers compute the same names independently, so every function here is
// pure.
package topics

import (
	"fmt"
	"sort"
	"strings"
)

const (
	ConversationSeparator = "--"
	separator             = "__"
)

type Kind string

const (
	KindUser         Kind = "user"
	KindConversation Kind = "chat"
	KindGroup        Kind = "group"
)

// Personal topic suffixes under user__{id}__.
const (
	Friends          = "friends"
	Chats            = "chats"
	Groups           = "groups"
	IncomingRequests = "incoming_friend_requests"
)

// FromKey turns a store-style key ("user:1:friends") into a topic name
// ("user__1__friends").
func FromKey(key string) string {
	return strings.ReplaceAll(key, ":", separator)
}

// ConversationKey is the canonical key of the direct conversation between a and b.
func ConversationKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + ConversationSeparator + ids[1]
}

// ParseConversationKey splits a conversation key into its two participants.
func ParseConversationKey(key string) (string, string, error) {
	parts := strings.Split(key, ConversationSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed conversation key %q", key)
	}
	return parts[0], parts[1], nil
}

func Conversation(chatKey string) string {
	return FromKey("chat:" + chatKey)
}

func Group(groupID string) string {
	return FromKey("group:" + groupID)
}

func User(userID, suffix string) string {
	return FromKey("user:" + userID + ":" + suffix)
}

// Parsed is a decomposed topic name.
type Parsed struct {
	Kind   Kind
	ID     string
	Suffix string
}

// Parse decomposes a topic produced by this package.
func Parse(topic string) (Parsed, bool) {
	kind, rest, ok := strings.Cut(topic, separator)
	if !ok || rest == "" {
		return Parsed{}, false
	}
	switch Kind(kind) {
	case KindUser:
		i := strings.LastIndex(rest, separator)
		if i <= 0 || i+len(separator) >= len(rest) {
			return Parsed{}, false
		}
		p := Parsed{Kind: KindUser, ID: rest[:i], Suffix: rest[i+len(separator):]}
		switch p.Suffix {
		case Friends, Chats, Groups, IncomingRequests:
			return p, true
		}
		return Parsed{}, false
	case KindConversation:
		if _, _, err := ParseConversationKey(rest); err != nil {
			return Parsed{}, false
		}
		return Parsed{Kind: KindConversation, ID: rest}, true
	case KindGroup:
		if strings.Contains(rest, separator) {
			return Parsed{}, false
		}
		return Parsed{Kind: KindGroup, ID: rest}, true
	}
	return Parsed{}, false
}
