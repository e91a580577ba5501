package ginserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bazaar/internal/app/dto"
	domainlistings "bazaar/internal/domain/listings"
	domainuser "bazaar/internal/domain/user"
	"bazaar/internal/infra/storage/s3"
)

const maxListingPhotoSizeBytes int64 = 10 * 1024 * 1024

type ListingHTTP interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Mine(c *gin.Context)
	UploadPhoto(c *gin.Context)
}

type ListingHandler struct {
	Listings domainlistings.Repository
	Photos   s3.Uploader
	Logger   *slog.Logger
}

type createListingRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	PriceCents  int64   `json:"priceCents"`
	Category    string  `json:"category"`
	Address     string  `json:"address"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

func (h ListingHandler) Create(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	listing, err := domainlistings.NewListing(domainlistings.CreateParams{
		ID:          domainlistings.ListingID(uuid.NewString()),
		Seller:      domainuser.ID(p.ID),
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Category:    req.Category,
		Location: domainlistings.Location{
			Lat:     req.Lat,
			Lon:     req.Lon,
			Address: strings.TrimSpace(req.Address),
		},
	})
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Listings.Save(c.Request.Context(), listing); err != nil {
		h.serverError(c, err, "save listing")
		return
	}
	respondData(c, http.StatusCreated, toListingDTO(listing))
}

func (h ListingHandler) Get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, http.StatusBadRequest, "Listing id is required")
		return
	}
	listing, err := h.Listings.ByID(c.Request.Context(), domainlistings.ListingID(id))
	if err != nil {
		if errors.Is(err, domainlistings.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Post not found")
			return
		}
		h.serverError(c, err, "load listing")
		return
	}
	respondData(c, http.StatusOK, toListingDTO(listing))
}

func (h ListingHandler) Mine(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	listings, err := h.Listings.BySeller(c.Request.Context(), domainuser.ID(p.ID))
	if err != nil {
		h.serverError(c, err, "list own listings")
		return
	}
	out := make([]dto.Listing, 0, len(listings))
	for _, listing := range listings {
		out = append(out, toListingDTO(listing))
	}
	respondData(c, http.StatusOK, gin.H{"listings": out})
}

// UploadPhoto stores one image in object storage and attaches its URL to the
// caller's listing.
func (h ListingHandler) UploadPhoto(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, http.StatusBadRequest, "Listing id is required")
		return
	}
	listing, err := h.Listings.ByID(c.Request.Context(), domainlistings.ListingID(id))
	if err != nil {
		if errors.Is(err, domainlistings.ErrNotFound) {
			respondError(c, http.StatusNotFound, "Post not found")
			return
		}
		h.serverError(c, err, "load listing")
		return
	}
	if listing.Seller != domainuser.ID(p.ID) {
		respondError(c, http.StatusForbidden, "Not authorized to modify this post")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "File is required")
		return
	}
	if fileHeader.Size <= 0 || fileHeader.Size > maxListingPhotoSizeBytes {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("File must be between 1 byte and %d MB", maxListingPhotoSizeBytes/1024/1024))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "Cannot read file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxListingPhotoSizeBytes+1024))
	if err != nil {
		h.serverError(c, err, "read upload")
		return
	}
	contentType := http.DetectContentType(data)
	if !isAllowedImageType(contentType) {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("Unsupported content type: %s", contentType))
		return
	}

	key := buildPhotoObjectKey(id, fileHeader.Filename, contentType)
	url, err := h.Photos.Upload(c.Request.Context(), key, bytes.NewReader(data), contentType)
	if err != nil {
		h.serverError(c, err, "upload photo")
		return
	}
	if err := listing.AttachPhoto(url, time.Now()); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Listings.Save(c.Request.Context(), listing); err != nil {
		h.serverError(c, err, "save listing")
		return
	}
	respondData(c, http.StatusCreated, gin.H{"url": url, "photos": listing.Photos})
}

func (h ListingHandler) serverError(c *gin.Context, err error, action string) {
	if h.Logger != nil {
		h.Logger.Error("listing request failed", "action", action, "error", err, "path", c.FullPath())
	}
	respondError(c, http.StatusInternalServerError, "Server error")
}

func toListingDTO(listing *domainlistings.Listing) dto.Listing {
	return dto.Listing{
		ID:          string(listing.ID),
		Seller:      string(listing.Seller),
		Title:       listing.Title,
		Description: listing.Description,
		PriceCents:  listing.PriceCents,
		Category:    listing.Category,
		Address:     listing.Location.Address,
		Lat:         listing.Location.Lat,
		Lon:         listing.Location.Lon,
		Photos:      append([]string(nil), listing.Photos...),
		Status:      string(listing.Status),
		CreatedAt:   listing.CreatedAt,
	}
}

func isAllowedImageType(contentType string) bool {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/webp":
		return true
	default:
		return false
	}
}

func extensionForContentType(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}

func buildPhotoObjectKey(listingID, filename, contentType string) string {
	ext := extensionForContentType(contentType)
	if ext == "" {
		ext = strings.ToLower(path.Ext(filename))
	}
	if ext == "" {
		ext = ".img"
	}
	return fmt.Sprintf("listings/%s/%s%s", sanitizePathToken(listingID), uuid.NewString(), ext)
}

func sanitizePathToken(value string) string {
	if strings.TrimSpace(value) == "" {
		return "listing"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	result := strings.Trim(b.String(), "-")
	if result == "" {
		return "listing"
	}
	return result
}

var _ ListingHTTP = (*ListingHandler)(nil)
