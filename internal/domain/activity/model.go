package activity

import "time"

// Type represents the kind of listing event that was recorded
type Type string

const (
	TypeListingCreated  Type = "listing_created"
	TypeListingUpdated  Type = "listing_updated"
	TypeListingClosed   Type = "listing_closed"
	TypeListingDeleted  Type = "listing_deleted"
	TypeListingReposted Type = "listing_reposted"
	TypeListingsSwept   Type = "listings_swept"
	TypeListingsEvicted Type = "listings_evicted"
)

// Entry represents an event in the activity log
type Entry struct {
	ID        int64     `json:"id"`
	ListingID *string   `json:"listing_id,omitempty"`
	Type      Type      `json:"type"`
	Summary   string    `json:"summary"`
	Details   string    `json:"details,omitempty"` // JSON string
	CreatedAt time.Time `json:"created_at"`
}
