package listings

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	domainuser "bazaar/internal/domain/user"
)

var (
	ErrNotFound        = errors.New("listings: not found")
	ErrIDRequired      = errors.New("listings: id is required")
	ErrTitleRequired   = errors.New("listings: title is required")
	ErrTitleTooLong    = errors.New("listings: title cannot exceed 100 characters")
	ErrNegativePrice   = errors.New("listings: price must be non-negative")
	ErrTooManyPhotos   = errors.New("listings: cannot attach more than 10 photos")
	ErrInvalidCategory = errors.New("listings: invalid category")
	ErrNotOwner        = errors.New("listings: not the listing owner")
)

type ListingID string

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusSold     Status = "sold"
	StatusInactive Status = "inactive"
)

// Categories mirrors the fixed category set the marketplace accepts.
var Categories = []string{
	"Electronics", "Furniture", "Vehicles", "Real Estate", "Fashion",
	"Books", "Sports", "Home & Garden", "Toys & Games", "Services", "Other",
}

const (
	maxTitleChars = 100
	maxPhotos     = 10
)

type Location struct {
	Lat     float64
	Lon     float64
	Address string
}

type Listing struct {
	ID          ListingID
	Seller      domainuser.ID
	Title       string
	Description string
	PriceCents  int64
	Category    string
	Location    Location
	Photos      []string
	Status      Status
	Views       int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CreateParams struct {
	ID          ListingID
	Seller      domainuser.ID
	Title       string
	Description string
	PriceCents  int64
	Category    string
	Location    Location
	Photos      []string
	Now         time.Time
}

func NewListing(params CreateParams) (*Listing, error) {
	id := strings.TrimSpace(string(params.ID))
	if id == "" {
		return nil, ErrIDRequired
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > maxTitleChars {
		return nil, ErrTitleTooLong
	}
	if params.PriceCents < 0 {
		return nil, ErrNegativePrice
	}
	if !validCategory(params.Category) {
		return nil, ErrInvalidCategory
	}
	if len(params.Photos) > maxPhotos {
		return nil, ErrTooManyPhotos
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Listing{
		ID:          ListingID(id),
		Seller:      params.Seller,
		Title:       title,
		Description: strings.TrimSpace(params.Description),
		PriceCents:  params.PriceCents,
		Category:    params.Category,
		Location:    params.Location,
		Photos:      append([]string(nil), params.Photos...),
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (l *Listing) AttachPhoto(url string, now time.Time) error {
	if len(l.Photos) >= maxPhotos {
		return ErrTooManyPhotos
	}
	l.Photos = append(l.Photos, url)
	l.UpdatedAt = now.UTC()
	return nil
}

func validCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

type Repository interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
	BySeller(ctx context.Context, seller domainuser.ID) ([]*Listing, error)
	Save(ctx context.Context, listing *Listing) error
}
