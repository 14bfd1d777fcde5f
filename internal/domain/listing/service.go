package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/estatedesk/listingkeeper/internal/domain/activity"
	"github.com/estatedesk/listingkeeper/internal/imaging"
	"github.com/google/uuid"
)

// Service handles listing business logic.
type Service struct {
	catalog    *Catalog
	images     ImageEncoder
	activities ActivityRecorder
	now        func() time.Time
	logger     *slog.Logger
}

// NewService creates a new listing service. activities may be nil.
func NewService(catalog *Catalog, images ImageEncoder, activities ActivityRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		catalog:    catalog,
		images:     images,
		activities: activities,
		now:        catalog.now,
		logger:     logger,
	}
}

// CreateRequest describes a new listing submitted from the form.
type CreateRequest struct {
	Input
	Images []imaging.Input
}

// UpdateRequest describes an edit of an existing listing. Images replace the
// current set; carried-over photos are passed back as URIs.
type UpdateRequest struct {
	ID string
	Input
	Images []imaging.Input
}

// Catalog exposes the listing view for watchers.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Create validates and stores a new listing.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Listing, error) {
	if err := ValidateInput(req.Input, countImages(req.Images)); err != nil {
		return nil, err
	}

	images, err := s.images.EncodeAll(ctx, req.Images)
	if err != nil {
		return nil, fmt.Errorf("encoding images: %w", err)
	}

	now := s.now()
	created := req.Input.apply(Listing{
		ID:        uuid.NewString(),
		CreatedAt: NewTimestamp(now),
	})
	created.ExpiresAt = PublishExpiry(nil, req.Status, now)
	created.Images = images
	if len(images) > 0 {
		created.Image = images[0]
	}

	res, err := s.catalog.Mutate(ctx, func(ls []Listing) ([]Listing, error) {
		return append(ls, created), nil
	})
	if err != nil {
		return nil, err
	}

	s.afterSave(ctx, res)
	s.record(ctx, created.ID, activity.TypeListingCreated, fmt.Sprintf("created %s listing %q", created.Status, created.Title))
	return findSaved(res, created.ID)
}

// Update replaces the form fields and images of a listing, keeping its id and creation time.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*Listing, error) {
	if strings.TrimSpace(req.ID) == "" {
		return nil, &ValidationError{Fields: []FieldError{{Field: "id", Message: "id is required"}}}
	}
	if err := ValidateInput(req.Input, countImages(req.Images)); err != nil {
		return nil, err
	}

	images, err := s.images.EncodeAll(ctx, req.Images)
	if err != nil {
		return nil, fmt.Errorf("encoding images: %w", err)
	}

	now := s.now()
	res, err := s.catalog.Mutate(ctx, func(ls []Listing) ([]Listing, error) {
		i := indexOf(ls, req.ID)
		if i < 0 {
			return nil, fmt.Errorf("update %s: %w", req.ID, ErrListingNotFound)
		}
		prev := ls[i]
		updated := req.Input.apply(prev)
		updated.ExpiresAt = PublishExpiry(&prev, req.Status, now)
		updated.Images = images
		if len(images) > 0 {
			updated.Image = images[0]
		}
		ls[i] = updated
		return ls, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterSave(ctx, res)
	s.record(ctx, req.ID, activity.TypeListingUpdated, fmt.Sprintf("updated listing %q", req.Title))
	return findSaved(res, req.ID)
}

// Close marks a listing as closed. Closing a closed listing is a no-op.
func (s *Service) Close(ctx context.Context, id string) (*Listing, error) {
	now := s.now()
	res, err := s.catalog.Mutate(ctx, func(ls []Listing) ([]Listing, error) {
		i := indexOf(ls, id)
		if i < 0 {
			return nil, fmt.Errorf("close %s: %w", id, ErrListingNotFound)
		}
		if ls[i].Status != StatusClosed {
			ls[i].Status = StatusClosed
			ls[i].ClosedAt = NewTimestamp(now).Ptr()
		}
		return ls, nil
	})
	if err != nil {
		return nil, err
	}

	s.afterSave(ctx, res)
	s.record(ctx, id, activity.TypeListingClosed, "closed listing")
	return findSaved(res, id)
}

// Delete removes a listing from the collection.
func (s *Service) Delete(ctx context.Context, id string) error {
	res, err := s.catalog.Mutate(ctx, func(ls []Listing) ([]Listing, error) {
		i := indexOf(ls, id)
		if i < 0 {
			return nil, fmt.Errorf("delete %s: %w", id, ErrListingNotFound)
		}
		return append(ls[:i], ls[i+1:]...), nil
	})
	if err != nil {
		return err
	}

	s.afterSave(ctx, res)
	s.record(ctx, id, activity.TypeListingDeleted, "deleted listing")
	return nil
}

// Repost reactivates one expired listing.
func (s *Service) Repost(ctx context.Context, id string) (*Listing, error) {
	listings, err := s.BulkRepost(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return &listings[0], nil
}

// BulkRepost reactivates every selected expired listing with one shared expiry.
// Nothing is changed if any selected listing is missing or not expired.
func (s *Service) BulkRepost(ctx context.Context, ids []string) ([]Listing, error) {
	if len(ids) == 0 {
		return nil, &ValidationError{Fields: []FieldError{{Field: "ids", Message: "select at least one listing"}}}
	}

	now := s.now()
	res, err := s.catalog.Mutate(ctx, func(ls []Listing) ([]Listing, error) {
		return RepostSelected(ls, ids, now)
	})
	if err != nil {
		return nil, err
	}

	s.afterSave(ctx, res)
	reposted := make([]Listing, 0, len(ids))
	for _, id := range ids {
		l, err := findSaved(res, id)
		if err != nil {
			// Evicted by the save that reposted it; closed listings are never reposted.
			continue
		}
		reposted = append(reposted, *l)
		s.record(ctx, id, activity.TypeListingReposted, fmt.Sprintf("reposted until %s", l.ExpiresAt.Format(time.DateOnly)))
	}
	return reposted, nil
}

// Get returns one listing with its classification, read fresh from the store.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	for _, l := range s.catalog.Snapshot() {
		if l.ID == id {
			return &View{Listing: l, Display: Classify(l, s.now())}, nil
		}
	}
	return nil, fmt.Errorf("get %s: %w", id, ErrListingNotFound)
}

// List reloads the collection and returns the classified views matching filter.
func (s *Service) List(ctx context.Context, filter Filter) ([]View, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	return s.catalog.Views(filter), nil
}

// ExpiredIDs returns the ids of every currently expired listing.
func (s *Service) ExpiredIDs(ctx context.Context) ([]string, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	return ExpiredIDs(s.catalog.Snapshot(), s.now()), nil
}

// Sweep reloads the collection, persisting expiry changes, and reports how many
// listings were newly marked expired. If the changes could not be written the
// count is returned with an ErrSaveFailed error and no activity is recorded.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	n, err := s.catalog.Reload(ctx)
	if err != nil {
		return n, err
	}
	s.recordSweep(ctx, n)
	return n, nil
}

// refresh reloads the view for read operations. A failed write of swept expiry
// changes does not fail the read: the view already classifies those listings as
// expired and the next sweep retries the write.
func (s *Service) refresh(ctx context.Context) error {
	n, err := s.catalog.Reload(ctx)
	if errors.Is(err, ErrSaveFailed) {
		s.logger.Warn("persisting expired listings failed", "pending", n, "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	s.recordSweep(ctx, n)
	return nil
}

func (s *Service) recordSweep(ctx context.Context, n int) {
	if n == 0 {
		return
	}
	s.logger.Info("listings expired", "count", n)
	s.record(ctx, "", activity.TypeListingsSwept, fmt.Sprintf("marked %d listings expired", n))
}

func (s *Service) afterSave(ctx context.Context, res SaveResult) {
	if len(res.Evicted) == 0 {
		return
	}
	s.logger.Warn("evicted closed listings to free storage", "count", len(res.Evicted))
	s.record(ctx, "", activity.TypeListingsEvicted,
		fmt.Sprintf("evicted %d closed listings: %s", len(res.Evicted), strings.Join(res.Evicted, ", ")))
}

func (s *Service) record(ctx context.Context, listingID string, typ activity.Type, summary string) {
	if s.activities == nil {
		return
	}
	entry := &activity.Entry{Type: typ, Summary: summary}
	if listingID != "" {
		entry.ListingID = &listingID
	}
	if err := s.activities.Record(ctx, entry); err != nil {
		s.logger.Warn("recording activity failed", "type", typ, "error", err)
	}
}

func findSaved(res SaveResult, id string) (*Listing, error) {
	i := indexOf(res.Listings, id)
	if i < 0 {
		return nil, fmt.Errorf("listing %s missing after save: %w", id, ErrListingNotFound)
	}
	l := res.Listings[i]
	return &l, nil
}

func indexOf(ls []Listing, id string) int {
	for i, l := range ls {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func countImages(inputs []imaging.Input) int {
	n := 0
	for _, in := range inputs {
		if len(in.Data) > 0 || in.URI != "" {
			n++
		}
	}
	return n
}
