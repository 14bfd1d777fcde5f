package mcp

import (
	"time"

	"github.com/estatedesk/listingkeeper/internal/domain/activity"
	"github.com/estatedesk/listingkeeper/internal/domain/listing"
)

// ImageParam carries one photo: either freshly uploaded bytes or a data URI kept from
// an earlier save.
type ImageParam struct {
	DataBase64 string `json:"data_base64,omitempty"`
	URI        string `json:"uri,omitempty"`
}

type ListingFields struct {
	Status       string   `json:"status"`
	Type         string   `json:"type,omitempty"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Price        string   `json:"price"`
	UsableArea   string   `json:"usable_area"`
	LandArea     string   `json:"land_area,omitempty"`
	YearBuilt    string   `json:"year_built,omitempty"`
	Bedrooms     string   `json:"bedrooms,omitempty"`
	Bathrooms    string   `json:"bathrooms,omitempty"`
	Address      string   `json:"address"`
	MapEmbed     string   `json:"map_embed,omitempty"`
	PropertyType string   `json:"property_type,omitempty"`
	Features     []string `json:"features,omitempty"`
	OtherFeature string   `json:"other_feature,omitempty"`
}

func (f ListingFields) input() listing.Input {
	return listing.Input{
		Status:       listing.Status(f.Status),
		Type:         f.Type,
		Title:        f.Title,
		Description:  f.Description,
		Price:        f.Price,
		UsableArea:   f.UsableArea,
		LandArea:     f.LandArea,
		YearBuilt:    f.YearBuilt,
		Bedrooms:     f.Bedrooms,
		Bathrooms:    f.Bathrooms,
		Address:      f.Address,
		MapEmbed:     f.MapEmbed,
		PropertyType: f.PropertyType,
		Features:     f.Features,
		OtherFeature: f.OtherFeature,
	}
}

type ListListingsParams struct {
	Status string `json:"status,omitempty"`
	Query  string `json:"query,omitempty"`
}

type GetListingParams struct {
	ID            string `json:"id"`
	IncludeImages bool   `json:"include_images,omitempty"`
}

type CreateListingParams struct {
	ListingFields
	Images []ImageParam `json:"images"`
}

type UpdateListingParams struct {
	ID string `json:"id"`
	ListingFields
	Images []ImageParam `json:"images"`
}

type ListingIDParams struct {
	ID string `json:"id"`
}

type BulkRepostParams struct {
	IDs        []string `json:"ids,omitempty"`
	AllExpired bool     `json:"all_expired,omitempty"`
}

type GetRecentActivityParams struct {
	ListingID *string `json:"listing_id,omitempty"`
	Type      *string `json:"type,omitempty"`
	Limit     int     `json:"limit,omitempty"`
	Offset    int     `json:"offset,omitempty"`
}

// ListingSummary is the compact browse form of a listing; photos are counted, not returned.
type ListingSummary struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Type       string             `json:"type"`
	Status     listing.Status     `json:"status"`
	Price      string             `json:"price"`
	Address    string             `json:"address"`
	CreatedAt  listing.Timestamp  `json:"created_at"`
	ExpiresAt  *listing.Timestamp `json:"expires_at,omitempty"`
	ClosedAt   *listing.Timestamp `json:"closed_at,omitempty"`
	ImageCount int                `json:"image_count"`
	Display    listing.StatusInfo `json:"display"`
}

type ListListingsResponse struct {
	Listings   []ListingSummary `json:"listings"`
	ExpiredIDs []string         `json:"expired_ids"`
}

type SweepResponse struct {
	Expired int `json:"expired"`
}

type BulkRepostResponse struct {
	Reposted []ListingSummary `json:"reposted"`
}

type ActivityEntryResponse struct {
	Timestamp time.Time     `json:"timestamp"`
	Type      activity.Type `json:"type"`
	ListingID string        `json:"listing_id,omitempty"`
	Summary   string        `json:"summary"`
	Details   string        `json:"details,omitempty"`
}

func summarize(v listing.View) ListingSummary {
	return ListingSummary{
		ID:         v.ID,
		Title:      v.Title,
		Type:       v.Type,
		Status:     v.Status,
		Price:      v.Price,
		Address:    v.Address,
		CreatedAt:  v.CreatedAt,
		ExpiresAt:  v.ExpiresAt,
		ClosedAt:   v.ClosedAt,
		ImageCount: len(v.Images),
		Display:    v.Display,
	}
}
