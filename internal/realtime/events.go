package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bazaar/internal/app/dto"
)

// Client-to-server event names. These are the wire contract and cannot change
// without breaking deployed clients.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventMarkAsRead        = "mark_as_read"
	EventTyping            = "typing"
)

// Server-to-client event names.
const (
	EventJoinedConversation     = "joined_conversation"
	EventReceiveMessage         = "receive_message"
	EventNewMessageNotification = "new_message_notification"
	EventMessagesRead           = "messages_read"
	EventUserTyping             = "user_typing"
	EventError                  = "error"
)

// Frame is the envelope every realtime message travels in, both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// One payload schema per client event, validated before dispatch.

type JoinConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

type LeaveConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

type MarkAsReadPayload struct {
	ConversationID string `json:"conversationId"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// decodePayload unmarshals into out and rejects a blank conversation id,
// which every client event requires.
func decodePayload(data json.RawMessage, out any, conversationID func() string) error {
	if len(data) == 0 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if strings.TrimSpace(conversationID()) == "" {
		return errors.New("conversationId is required")
	}
	return nil
}

// Server payload shapes.

type JoinedConversationPayload struct {
	ConversationID string `json:"conversationId"`
	Success        bool   `json:"success"`
}

type ReceiveMessagePayload struct {
	ConversationID string          `json:"conversationId"`
	Message        dto.ChatMessage `json:"message"`
}

type MessagesReadPayload struct {
	ConversationID string `json:"conversationId"`
	ReadBy         string `json:"readBy"`
}

type UserTypingPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func newFrame(event string, payload any) Frame {
	data, _ := json.Marshal(payload)
	return Frame{Event: event, Data: data}
}

func errorFrame(message string) Frame {
	return newFrame(EventError, ErrorPayload{Message: message})
}
