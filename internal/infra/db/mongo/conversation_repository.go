package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bazaar/internal/domain/chat"
	domainlistings "bazaar/internal/domain/listings"
	domainuser "bazaar/internal/domain/user"
)

type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection("conversations")}
}

// EnsureIndexes creates the lookup indexes the chat queries rely on. The
// uniqueness index goes on the scalar pair_key, not on participants: an index
// over the array is multikey and enforces uniqueness per element, which would
// reject any second conversation sharing one participant and listing.
func (r *ConversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pair_key", Value: 1}, {Key: "listing_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "participants", Value: 1}}},
		{Keys: bson.D{{Key: "last_message_time", Value: -1}}},
	})
	return err
}

// FindOrCreate upserts on the canonical (sorted pair, listing) key so that a
// concurrent second attempt lands on the same document.
func (r *ConversationRepository) FindOrCreate(ctx context.Context, a, b domainuser.ID, listingID domainlistings.ListingID) (*chat.Conversation, error) {
	pair, err := chat.ParticipantPair(a, b)
	if err != nil {
		return nil, err
	}
	listing := strings.TrimSpace(string(listingID))
	if listing == "" {
		return nil, chat.ErrListingRequired
	}
	now := time.Now().UTC()
	filter := bson.M{
		"pair_key":   chat.PairKey(pair),
		"listing_id": listing,
	}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":                 primitive.NewObjectID().Hex(),
		"participants":        []string{string(pair[0]), string(pair[1])},
		"last_message":        "",
		"last_message_time":   now.UnixMilli(),
		"last_message_sender": "",
		"created_at":          now.UnixMilli(),
		"updated_at":          now.UnixMilli(),
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc conversationDocument
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, fmt.Errorf("mongo: find-or-create conversation: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *ConversationRepository) ByID(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, chat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *ConversationRepository) ForParticipant(ctx context.Context, id domainuser.ID) ([]*chat.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_message_time", Value: -1}})
	cursor, err := r.col.Find(ctx, bson.M{"participants": string(id)}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*chat.Conversation
	for cursor.Next(ctx) {
		var doc conversationDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain())
	}
	return out, cursor.Err()
}

// UpdateSnapshot overwrites the latest-message preview. The timestamp filter
// keeps interleaved sends from rewinding the snapshot; a stale write is
// silently skipped.
func (r *ConversationRepository) UpdateSnapshot(ctx context.Context, id chat.ConversationID, body string, sender domainuser.ID, at time.Time) error {
	filter := bson.M{"_id": string(id), "last_message_time": bson.M{"$lte": at.UnixMilli()}}
	update := bson.M{"$set": bson.M{
		"last_message":        body,
		"last_message_time":   at.UnixMilli(),
		"last_message_sender": string(sender),
		"updated_at":          at.UnixMilli(),
	}}
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Either the conversation is gone or a newer snapshot won.
		if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Err(); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return chat.ErrConversationNotFound
			}
			return err
		}
	}
	return nil
}

type conversationDocument struct {
	ID                string   `bson:"_id"`
	PairKey           string   `bson:"pair_key"`
	Participants      []string `bson:"participants"`
	ListingID         string   `bson:"listing_id"`
	LastMessage       string   `bson:"last_message"`
	LastMessageTime   int64    `bson:"last_message_time"`
	LastMessageSender string   `bson:"last_message_sender"`
	CreatedAt         int64    `bson:"created_at"`
	UpdatedAt         int64    `bson:"updated_at"`
}

func (d conversationDocument) toDomain() *chat.Conversation {
	participants := make([]domainuser.ID, 0, len(d.Participants))
	for _, p := range d.Participants {
		participants = append(participants, domainuser.ID(p))
	}
	return &chat.Conversation{
		ID:                chat.ConversationID(d.ID),
		Participants:      participants,
		ListingID:         domainlistings.ListingID(d.ListingID),
		LastMessage:       d.LastMessage,
		LastMessageTime:   timestampToTime(d.LastMessageTime),
		LastMessageSender: domainuser.ID(d.LastMessageSender),
		CreatedAt:         timestampToTime(d.CreatedAt),
		UpdatedAt:         timestampToTime(d.UpdatedAt),
	}
}

var _ chat.ConversationStore = (*ConversationRepository)(nil)
