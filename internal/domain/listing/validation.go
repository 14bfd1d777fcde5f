package listing

import (
	"strconv"
	"strings"
)

const (
	TypeSell = "sell"
	TypeRent = "rent"
)

// Input holds the form fields of a listing. Images are supplied separately to the
// service because they need encoding first.
type Input struct {
	Status       Status
	Type         string
	Title        string
	Description  string
	Price        string
	UsableArea   string
	LandArea     string
	YearBuilt    string
	Bedrooms     string
	Bathrooms    string
	Address      string
	MapEmbed     string
	PropertyType string
	Features     []string
	OtherFeature string
}

// ValidateInput checks the form fields and the number of supplied images.
func ValidateInput(in Input, imageCount int) error {
	var fields []FieldError
	add := func(field, msg string) {
		fields = append(fields, FieldError{Field: field, Message: msg})
	}

	if strings.TrimSpace(in.Title) == "" {
		add("title", "title is required")
	}
	if price := strings.TrimSpace(in.Price); price == "" {
		add("price", "price is required")
	} else if v, ok := ParsePrice(price); !ok || v <= 0 {
		add("price", "price must be a positive number")
	}
	if strings.TrimSpace(in.UsableArea) == "" {
		add("usableArea", "usable area is required")
	}
	if strings.TrimSpace(in.Address) == "" {
		add("address", "address is required")
	}
	if imageCount == 0 {
		add("images", "at least one image is required")
	}
	if imageCount > MaxImages {
		add("images", "at most 10 images are allowed")
	}
	if in.Status != StatusDraft && in.Status != StatusActive {
		add("status", "status must be draft or active")
	}
	if in.Type != "" && in.Type != TypeSell && in.Type != TypeRent {
		add("type", "type must be sell or rent")
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ParsePrice reads a price typed with thousands separators, such as "4,500,000".
func ParsePrice(s string) (float64, bool) {
	clean := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		if r == ',' || r == ' ' {
			return -1
		}
		return 'x'
	}, s)
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (in Input) apply(l Listing) Listing {
	l.Status = in.Status
	l.Type = in.Type
	if l.Type == "" {
		l.Type = TypeSell
	}
	l.Title = strings.TrimSpace(in.Title)
	l.Description = in.Description
	l.Price = strings.TrimSpace(in.Price)
	l.UsableArea = strings.TrimSpace(in.UsableArea)
	l.LandArea = in.LandArea
	l.YearBuilt = in.YearBuilt
	l.Bedrooms = in.Bedrooms
	l.Bathrooms = in.Bathrooms
	l.Address = strings.TrimSpace(in.Address)
	l.MapEmbed = in.MapEmbed
	l.PropertyType = in.PropertyType
	l.Features = append([]string{}, in.Features...)
	l.OtherFeature = in.OtherFeature
	return l
}
