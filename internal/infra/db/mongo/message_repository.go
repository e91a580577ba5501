package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bazaar/internal/domain/chat"
	domainuser "bazaar/internal/domain/user"
)

type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection("messages")}
}

func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "is_read", Value: 1}}},
	})
	return err
}

func (r *MessageRepository) Insert(ctx context.Context, msg *chat.Message) error {
	_, err := r.col.InsertOne(ctx, newMessageDocument(msg))
	return err
}

// History returns one page of a conversation's messages, oldest first, plus
// the total count for the pagination header.
func (r *MessageRepository) History(ctx context.Context, id chat.ConversationID, page, limit int) ([]*chat.Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	filter := bson.M{"conversation_id": string(id)}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var out []*chat.Message
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, err
		}
		out = append(out, doc.toDomain())
	}
	return out, total, cursor.Err()
}

// MarkConversationRead bulk-flips every unread message addressed to receiver
// in one atomic updateMany.
func (r *MessageRepository) MarkConversationRead(ctx context.Context, id chat.ConversationID, receiver domainuser.ID, at time.Time) (int64, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{"conversation_id": string(id), "receiver": string(receiver), "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": at.UTC().UnixMilli()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MessageRepository) UnreadCount(ctx context.Context, receiver domainuser.ID) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"receiver": string(receiver), "is_read": false})
}

func (r *MessageRepository) UnreadCountInConversation(ctx context.Context, id chat.ConversationID, receiver domainuser.ID) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"conversation_id": string(id), "receiver": string(receiver), "is_read": false})
}

type messageDocument struct {
	ID             string `bson:"_id"`
	ConversationID string `bson:"conversation_id"`
	Sender         string `bson:"sender"`
	Receiver       string `bson:"receiver"`
	Body           string `bson:"body"`
	IsRead         bool   `bson:"is_read"`
	ReadAt         int64  `bson:"read_at,omitempty"`
	CreatedAt      int64  `bson:"created_at"`
}

func newMessageDocument(m *chat.Message) messageDocument {
	doc := messageDocument{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		Sender:         string(m.Sender),
		Receiver:       string(m.Receiver),
		Body:           m.Body,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt.UnixMilli(),
	}
	if !m.ReadAt.IsZero() {
		doc.ReadAt = m.ReadAt.UnixMilli()
	}
	return doc
}

func (d messageDocument) toDomain() *chat.Message {
	return &chat.Message{
		ID:             chat.MessageID(d.ID),
		ConversationID: chat.ConversationID(d.ConversationID),
		Sender:         domainuser.ID(d.Sender),
		Receiver:       domainuser.ID(d.Receiver),
		Body:           d.Body,
		IsRead:         d.IsRead,
		ReadAt:         timestampToTime(d.ReadAt),
		CreatedAt:      timestampToTime(d.CreatedAt),
	}
}

var _ chat.MessageStore = (*MessageRepository)(nil)
