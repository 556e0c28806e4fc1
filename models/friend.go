package models

// IncomingFriendRequest - pending request as shown to the receiver
type IncomingFriendRequest struct {
	SenderID    string `json:"senderId"`
	SenderEmail string `json:"senderEmail"`
	SenderName  string `json:"senderName,omitempty"`
	SenderImage string `json:"senderImage,omitempty"`
}
