package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainlistings "bazaar/internal/domain/listings"
	domainuser "bazaar/internal/domain/user"
)

type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	return &ListingRepository{col: db.Collection("listings")}
}

func (r *ListingRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "seller", Value: 1}}},
		{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
	})
	return err
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var doc listingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainlistings.ErrNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *ListingRepository) BySeller(ctx context.Context, seller domainuser.ID) ([]*domainlistings.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.col.Find(ctx, bson.M{"seller": string(seller)}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*domainlistings.Listing
	for cursor.Next(ctx) {
		var doc listingDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toDomain())
	}
	return out, cursor.Err()
}

func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	doc := newListingDocument(listing)
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID}, bson.M{"$set": doc}, opts)
	return err
}

type geoPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"`
}

type listingDocument struct {
	ID          string   `bson:"_id"`
	Seller      string   `bson:"seller"`
	Title       string   `bson:"title"`
	Description string   `bson:"description"`
	PriceCents  int64    `bson:"price_cents"`
	Category    string   `bson:"category"`
	Location    geoPoint `bson:"location"`
	Address     string   `bson:"address,omitempty"`
	Photos      []string `bson:"photos"`
	Status      string   `bson:"status"`
	Views       int64    `bson:"views"`
	CreatedAt   int64    `bson:"created_at"`
	UpdatedAt   int64    `bson:"updated_at"`
}

func newListingDocument(l *domainlistings.Listing) listingDocument {
	return listingDocument{
		ID:          string(l.ID),
		Seller:      string(l.Seller),
		Title:       l.Title,
		Description: l.Description,
		PriceCents:  l.PriceCents,
		Category:    l.Category,
		Location:    geoPoint{Type: "Point", Coordinates: []float64{l.Location.Lon, l.Location.Lat}},
		Address:     l.Location.Address,
		Photos:      append([]string(nil), l.Photos...),
		Status:      string(l.Status),
		Views:       l.Views,
		CreatedAt:   l.CreatedAt.UnixMilli(),
		UpdatedAt:   l.UpdatedAt.UnixMilli(),
	}
}

func (d listingDocument) toDomain() *domainlistings.Listing {
	loc := domainlistings.Location{Address: d.Address}
	if len(d.Location.Coordinates) == 2 {
		loc.Lon = d.Location.Coordinates[0]
		loc.Lat = d.Location.Coordinates[1]
	}
	return &domainlistings.Listing{
		ID:          domainlistings.ListingID(d.ID),
		Seller:      domainuser.ID(d.Seller),
		Title:       d.Title,
		Description: d.Description,
		PriceCents:  d.PriceCents,
		Category:    d.Category,
		Location:    loc,
		Photos:      append([]string(nil), d.Photos...),
		Status:      domainlistings.Status(d.Status),
		Views:       d.Views,
		CreatedAt:   timestampToTime(d.CreatedAt),
		UpdatedAt:   timestampToTime(d.UpdatedAt),
	}
}

var _ domainlistings.Repository = (*ListingRepository)(nil)
