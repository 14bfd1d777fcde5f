package listing

import (
	"fmt"
	"strings"
	"time"
)

const (
	// ListingPeriod is how long a published or reposted listing stays active.
	ListingPeriod = 14 * 24 * time.Hour
	// ExpiringWindow is how close to expiry a listing is flagged as expiring soon.
	ExpiringWindow = 7 * 24 * time.Hour

	dateLayout = "Jan 2, 2006"
)

// Classify derives the display status of l at now. It never modifies l.
func Classify(l Listing, now time.Time) StatusInfo {
	switch l.Status {
	case StatusClosed:
		return StatusInfo{
			Status:   StatusClosed,
			Label:    "Closed",
			Color:    "closed",
			DateText: dateText("Closed", l.ClosedAt, now),
		}
	case StatusDraft:
		return StatusInfo{
			Status:   StatusDraft,
			Label:    "Draft",
			Color:    "draft",
			DateText: dateText("Created", &l.CreatedAt, now),
		}
	}

	if (l.ExpiresAt != nil && l.ExpiresAt.Before(now)) || l.Status == StatusExpired {
		return StatusInfo{
			Status:    StatusExpired,
			Label:     "Expired",
			Color:     "expired",
			DateText:  dateText("Expired", l.ExpiresAt, now),
			IsExpired: true,
		}
	}

	// Listings published before expiry tracking existed never expire.
	if l.ExpiresAt == nil {
		return StatusInfo{Status: StatusActive, Label: "Active", Color: "active", DateText: "Active"}
	}

	if remaining := l.ExpiresAt.Sub(now); remaining > 0 && remaining <= ExpiringWindow {
		return StatusInfo{
			Status:   StatusActive,
			Label:    "Expiring Soon",
			Color:    "expiring",
			DateText: dateText("Expires", l.ExpiresAt, now),
		}
	}

	return StatusInfo{
		Status:   StatusActive,
		Label:    "Active",
		Color:    "active",
		DateText: dateText("Expires", l.ExpiresAt, now),
	}
}

// IsExpired reports whether l classifies as expired at now.
func IsExpired(l Listing, now time.Time) bool {
	return Classify(l, now).IsExpired
}

// SweepExpired marks active listings whose expiry has passed as expired.
// When nothing changes it returns ls itself and false, so callers can skip the write.
func SweepExpired(ls []Listing, now time.Time) ([]Listing, bool) {
	var out []Listing
	for i, l := range ls {
		if l.Status != StatusActive || l.ExpiresAt == nil || !l.ExpiresAt.Before(now) {
			continue
		}
		if out == nil {
			out = make([]Listing, len(ls))
			copy(out, ls)
		}
		out[i].Status = StatusExpired
	}
	if out == nil {
		return ls, false
	}
	return out, true
}

// Repost reactivates an expired listing for another ListingPeriod.
func Repost(l Listing, now time.Time) (Listing, error) {
	if !IsExpired(l, now) {
		return Listing{}, fmt.Errorf("repost %s: %w", l.ID, ErrNotRepostable)
	}
	l.Status = StatusActive
	l.ExpiresAt = NewTimestamp(now.Add(ListingPeriod)).Ptr()
	return l, nil
}

// RepostSelected reposts every listing whose id is in ids with one shared expiry.
// Either all selected listings are reposted or ls is returned unchanged with an error.
func RepostSelected(ls []Listing, ids []string, now time.Time) ([]Listing, error) {
	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}

	out := make([]Listing, len(ls))
	found := 0
	for i, l := range ls {
		if !selected[l.ID] {
			out[i] = l
			continue
		}
		reposted, err := Repost(l, now)
		if err != nil {
			return ls, err
		}
		out[i] = reposted
		found++
	}

	if found != len(selected) {
		var missing []string
		for _, id := range ids {
			if !containsID(ls, id) {
				missing = append(missing, id)
			}
		}
		return ls, fmt.Errorf("repost %s: %w", strings.Join(missing, ", "), ErrListingNotFound)
	}
	return out, nil
}

// PublishExpiry returns the expiry a listing gets when saved from the form with status.
// Drafts carry no expiry. Entering active from any other state starts a fresh period;
// staying active keeps the current expiry.
func PublishExpiry(prev *Listing, status Status, now time.Time) *Timestamp {
	switch status {
	case StatusDraft:
		return nil
	case StatusActive:
		if prev != nil && prev.Status == StatusActive && prev.ExpiresAt != nil {
			return prev.ExpiresAt.Ptr()
		}
		return NewTimestamp(now.Add(ListingPeriod)).Ptr()
	default:
		if prev != nil && prev.ExpiresAt != nil {
			return prev.ExpiresAt.Ptr()
		}
		return nil
	}
}

// ExpiredIDs returns the ids of every listing that classifies as expired, in order.
func ExpiredIDs(ls []Listing, now time.Time) []string {
	var ids []string
	for _, l := range ls {
		if IsExpired(l, now) {
			ids = append(ids, l.ID)
		}
	}
	return ids
}

// EvictStale drops closed listings closed more than retention before now.
func EvictStale(ls []Listing, now time.Time, retention time.Duration) ([]Listing, []string) {
	cutoff := now.Add(-retention)
	kept := make([]Listing, 0, len(ls))
	var evicted []string
	for _, l := range ls {
		if l.Status == StatusClosed && l.ClosedAt != nil && l.ClosedAt.Before(cutoff) {
			evicted = append(evicted, l.ID)
			continue
		}
		kept = append(kept, l)
	}
	return kept, evicted
}

func dateText(prefix string, ts *Timestamp, now time.Time) string {
	if ts == nil || ts.IsZero() {
		return prefix
	}
	return prefix + " " + ts.In(now.Location()).Format(dateLayout)
}

func containsID(ls []Listing, id string) bool {
	for _, l := range ls {
		if l.ID == id {
			return true
		}
	}
	return false
}
