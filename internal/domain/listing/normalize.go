package listing

import (
	"fmt"

	"github.com/google/uuid"
)

// MaxImages is the most photos a listing may carry.
const MaxImages = 10

// Normalize fills defaults on records read from storage, whose shape may predate
// the current schema. Later duplicates of an id are dropped.
func Normalize(ls []Listing) []Listing {
	out := make([]Listing, 0, len(ls))
	seen := make(map[string]bool, len(ls))
	for _, l := range ls {
		l = normalizeOne(l)
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		out = append(out, l)
	}
	return out
}

func normalizeOne(l Listing) Listing {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.ExpiresAt != nil && l.ExpiresAt.IsZero() {
		l.ExpiresAt = nil
	}
	if l.ClosedAt != nil && l.ClosedAt.IsZero() {
		l.ClosedAt = nil
	}
	if !l.Status.Valid() {
		if l.ExpiresAt != nil {
			l.Status = StatusActive
		} else {
			l.Status = StatusDraft
		}
	}
	if l.Type == "" {
		l.Type = TypeSell
	}
	if l.Images == nil {
		l.Images = []string{}
	}
	if len(l.Images) > MaxImages {
		l.Images = l.Images[:MaxImages]
	}
	if len(l.Images) > 0 {
		l.Image = l.Images[0]
	}
	if l.Features == nil {
		l.Features = []string{}
	}
	return l
}

// validateCollection enforces the invariants every written collection must satisfy.
func validateCollection(ls []Listing) error {
	seen := make(map[string]bool, len(ls))
	for _, l := range ls {
		if l.ID == "" {
			continue
		}
		if seen[l.ID] {
			return fmt.Errorf("%w: duplicate listing id %s", ErrInvalidInput, l.ID)
		}
		seen[l.ID] = true
		if len(l.Images) > MaxImages {
			return fmt.Errorf("%w: listing %s has %d images, at most %d allowed", ErrInvalidInput, l.ID, len(l.Images), MaxImages)
		}
	}
	return nil
}
