package dto

import "time"

// Listing is the public classified-ad shape.
type Listing struct {
	ID          string    `json:"id"`
	Seller      string    `json:"sellerId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	PriceCents  int64     `json:"priceCents"`
	Category    string    `json:"category"`
	Address     string    `json:"address,omitempty"`
	Lat         float64   `json:"lat,omitempty"`
	Lon         float64   `json:"lon,omitempty"`
	Photos      []string  `json:"photos"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// User is the public profile shape.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuthResult carries a fresh token plus the authenticated profile.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
