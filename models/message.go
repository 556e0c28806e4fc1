package models

// Message - direct message in a conversation log
type Message struct {
	ID        string `json:"id"`
	SenderID  string `json:"senderId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// GroupMessage - message in a group log
type GroupMessage struct {
	ID        string `json:"id"`
	SenderID  string `json:"senderId"`
	GroupID   string `json:"groupId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}
