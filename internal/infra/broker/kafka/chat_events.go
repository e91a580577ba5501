package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"bazaar/internal/domain/chat"
	domainuser "bazaar/internal/domain/user"
)

const (
	eventMessageSent      = "message_sent"
	eventConversationRead = "conversation_read"
	eventSessionOnline    = "session_online"
)

// ChatPublisher feeds persisted chat facts and realtime presence onto the
// broker: the event topic is a downstream integration feed, the presence
// topic is the cross-instance force-disconnect channel.
type ChatPublisher struct {
	Producer      *Producer
	EventTopic    string
	PresenceTopic string
	Logger        *slog.Logger
}

type chatEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	Sender         string `json:"sender,omitempty"`
	Receiver       string `json:"receiver,omitempty"`
	Reader         string `json:"reader,omitempty"`
	At             int64  `json:"at"`
}

type presenceEvent struct {
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	InstanceID string `json:"instance_id"`
	At         int64  `json:"at"`
}

func (p *ChatPublisher) MessageSent(ctx context.Context, msg *chat.Message) {
	p.publish(ctx, p.EventTopic, string(msg.ConversationID), chatEvent{
		Type:           eventMessageSent,
		ConversationID: string(msg.ConversationID),
		MessageID:      string(msg.ID),
		Sender:         string(msg.Sender),
		Receiver:       string(msg.Receiver),
		At:             msg.CreatedAt.UnixMilli(),
	})
}

func (p *ChatPublisher) ConversationRead(ctx context.Context, id chat.ConversationID, reader domainuser.ID) {
	p.publish(ctx, p.EventTopic, string(id), chatEvent{
		Type:           eventConversationRead,
		ConversationID: string(id),
		Reader:         string(reader),
		At:             time.Now().UnixMilli(),
	})
}

func (p *ChatPublisher) SessionOnline(ctx context.Context, userID domainuser.ID, instanceID string) {
	p.publish(ctx, p.PresenceTopic, string(userID), presenceEvent{
		Type:       eventSessionOnline,
		UserID:     string(userID),
		InstanceID: instanceID,
		At:         time.Now().UnixMilli(),
	})
}

func (p *ChatPublisher) publish(ctx context.Context, topic, key string, event any) {
	if p.Producer == nil || topic == "" {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := p.Producer.Publish(ctx, topic, key, payload, nil); err != nil && p.Logger != nil {
		p.Logger.Error("broker publish failed", "topic", topic, "error", err)
	}
}

// SessionEvictor is the gateway hook the presence consumer drives.
type SessionEvictor interface {
	EvictIfElsewhere(userID domainuser.ID, instanceID string)
}

// PresenceHandler consumes presence events and evicts local sessions that
// re-authenticated on another instance.
type PresenceHandler struct {
	Evictor SessionEvictor
	Logger  *slog.Logger
}

func (h PresenceHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event presenceEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("presence event decode failed", "error", err)
		}
		return nil
	}
	if event.Type != eventSessionOnline || event.UserID == "" {
		return nil
	}
	h.Evictor.EvictIfElsewhere(domainuser.ID(event.UserID), event.InstanceID)
	return nil
}

var _ chat.EventPublisher = (*ChatPublisher)(nil)
var _ MessageHandler = PresenceHandler{}
