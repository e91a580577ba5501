package dto

import "time"

// Contact is the participant identity attached to enriched payloads.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// ChatMessage is the message payload shared by the HTTP facade and the
// realtime gateway (receive_message / new_message_notification events).
type ChatMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	Sender         Contact    `json:"sender"`
	Receiver       Contact    `json:"receiver"`
	Message        string     `json:"message"`
	IsRead         bool       `json:"isRead"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Conversation describes chat thread metadata.
type Conversation struct {
	ID                string    `json:"id"`
	Participants      []string  `json:"participants"`
	ListingID         string    `json:"postId"`
	LastMessage       string    `json:"lastMessage,omitempty"`
	LastMessageTime   time.Time `json:"lastMessageTime"`
	LastMessageSender string    `json:"lastMessageSender,omitempty"`
	UnreadCount       int64     `json:"unreadCount"`
	OtherParticipant  *Contact  `json:"otherParticipant,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// MessagePage is the paginated history response, oldest first.
type MessagePage struct {
	Messages []ChatMessage `json:"messages"`
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	Pages    int64         `json:"pages"`
}
