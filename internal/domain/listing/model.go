package listing

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Status is the stored lifecycle state of a listing
type Status string

const (
	StatusDraft   Status = "draft"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusClosed  Status = "closed"
)

// Valid reports whether s is one of the known states
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusExpired, StatusClosed:
		return true
	}
	return false
}

// Listing is one property listing as stored in the listings slot
type Listing struct {
	ID        string     `json:"id"`
	Status    Status     `json:"status"`
	CreatedAt Timestamp  `json:"createdAt"`
	ExpiresAt *Timestamp `json:"expiresAt"`
	ClosedAt  *Timestamp `json:"closedAt"`
	Image     string     `json:"image"`
	Images    []string   `json:"images"`

	Type         string   `json:"type"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Price        string   `json:"price"`
	UsableArea   string   `json:"usableArea"`
	LandArea     string   `json:"landArea"`
	YearBuilt    string   `json:"yearBuilt"`
	Bedrooms     string   `json:"bedrooms"`
	Bathrooms    string   `json:"bathrooms"`
	Address      string   `json:"address"`
	MapEmbed     string   `json:"mapEmbed"`
	PropertyType string   `json:"propertyType"`
	Features     []string `json:"features"`
	OtherFeature string   `json:"otherFeature"`
}

// StatusInfo is the display classification of a listing at a point in time
type StatusInfo struct {
	Status    Status `json:"status"`
	Label     string `json:"label"`
	Color     string `json:"color"`
	DateText  string `json:"date_text"`
	IsExpired bool   `json:"is_expired"`
}

// View pairs a listing with its classification
type View struct {
	Listing
	Display StatusInfo `json:"display"`
}

// UnmarshalJSON reads a stored record. Text fields written by older versions as
// numbers or booleans are kept as their literal text.
func (l *Listing) UnmarshalJSON(data []byte) error {
	type plain Listing
	var rec struct {
		plain
		ID           looseString  `json:"id"`
		Status       looseString  `json:"status"`
		Image        looseString  `json:"image"`
		Images       looseStrings `json:"images"`
		Type         looseString  `json:"type"`
		Title        looseString  `json:"title"`
		Description  looseString  `json:"description"`
		Price        looseString  `json:"price"`
		UsableArea   looseString  `json:"usableArea"`
		LandArea     looseString  `json:"landArea"`
		YearBuilt    looseString  `json:"yearBuilt"`
		Bedrooms     looseString  `json:"bedrooms"`
		Bathrooms    looseString  `json:"bathrooms"`
		Address      looseString  `json:"address"`
		MapEmbed     looseString  `json:"mapEmbed"`
		PropertyType looseString  `json:"propertyType"`
		Features     looseStrings `json:"features"`
		OtherFeature looseString  `json:"otherFeature"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	*l = Listing(rec.plain)
	l.ID = string(rec.ID)
	l.Status = Status(rec.Status)
	l.Image = string(rec.Image)
	l.Images = rec.Images
	l.Type = string(rec.Type)
	l.Title = string(rec.Title)
	l.Description = string(rec.Description)
	l.Price = string(rec.Price)
	l.UsableArea = string(rec.UsableArea)
	l.LandArea = string(rec.LandArea)
	l.YearBuilt = string(rec.YearBuilt)
	l.Bedrooms = string(rec.Bedrooms)
	l.Bathrooms = string(rec.Bathrooms)
	l.Address = string(rec.Address)
	l.MapEmbed = string(rec.MapEmbed)
	l.PropertyType = string(rec.PropertyType)
	l.Features = rec.Features
	l.OtherFeature = string(rec.OtherFeature)
	return nil
}

// UnmarshalJSON keeps Listing's lenient decoding from swallowing the display block.
func (v *View) UnmarshalJSON(data []byte) error {
	if err := v.Listing.UnmarshalJSON(data); err != nil {
		return err
	}
	var rest struct {
		Display StatusInfo `json:"display"`
	}
	if err := json.Unmarshal(data, &rest); err != nil {
		return err
	}
	v.Display = rest.Display
	return nil
}

// looseString decodes a JSON string, number or boolean as text. Objects and
// arrays decode as empty.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*s = ""
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
	case '{', '[', 'n':
	default:
		*s = looseString(data)
	}
	return nil
}

// looseStrings decodes an array of loose strings, or a single scalar as a
// one-element list.
type looseStrings []string

func (ss *looseStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*ss = nil
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '[' {
		var one looseString
		if err := one.UnmarshalJSON(data); err != nil {
			return err
		}
		if one != "" {
			*ss = []string{string(one)}
		}
		return nil
	}

	var items []looseString
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item != "" {
			out = append(out, string(item))
		}
	}
	*ss = out
	return nil
}

// isoLayout matches JavaScript's Date.prototype.toISOString.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
}

// Timestamp is a point in time stored as an ISO-8601 string. Decoding is lenient:
// bare dates and epoch milliseconds are accepted, and unreadable values become zero.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// Ptr returns a pointer to a copy of t
func (t Timestamp) Ptr() *Timestamp {
	return &t
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.UTC().Format(isoLayout))), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}

	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] != '"' {
		var ms float64
		if err := json.Unmarshal(data, &ms); err == nil {
			t.Time = time.UnixMilli(int64(ms)).UTC()
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	for _, layout := range parseLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return nil
}
