package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	domainlistings "bazaar/internal/domain/listings"
	domainuser "bazaar/internal/domain/user"
)

// ListingRepository stores listings in memory. Not suitable for production.
type ListingRepository struct {
	mu   sync.RWMutex
	byID map[domainlistings.ListingID]*domainlistings.Listing
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{byID: make(map[domainlistings.ListingID]*domainlistings.Listing)}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if listing, ok := r.byID[id]; ok {
		return cloneListing(listing), nil
	}
	return nil, domainlistings.ErrNotFound
}

func (r *ListingRepository) BySeller(ctx context.Context, seller domainuser.ID) ([]*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainlistings.Listing
	for _, listing := range r.byID {
		if listing.Seller == seller {
			out = append(out, cloneListing(listing))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	if listing == nil || strings.TrimSpace(string(listing.ID)) == "" {
		return domainlistings.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[listing.ID] = cloneListing(listing)
	return nil
}

func cloneListing(l *domainlistings.Listing) *domainlistings.Listing {
	if l == nil {
		return nil
	}
	out := *l
	out.Photos = append([]string(nil), l.Photos...)
	return &out
}

var _ domainlistings.Repository = (*ListingRepository)(nil)
