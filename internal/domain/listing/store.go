package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/estatedesk/listingkeeper/internal/repository"
	"github.com/google/uuid"
)

// errCorruptSlot marks a slot whose content is not a listing array.
var errCorruptSlot = errors.New("corrupt listing slot")

const (
	DefaultSlotKey        = "listings"
	DefaultRecoveryPrefix = "listing_"

	// DraftRetention bounds how old a draft may be to survive a recovery pass.
	DraftRetention = 30 * 24 * time.Hour
	// ClosedRetention bounds how long closed listings survive an eviction pass.
	ClosedRetention = 60 * 24 * time.Hour
)

// StoreOptions configures a Store.
type StoreOptions struct {
	Key            string
	RecoveryPrefix string
	Now            func() time.Time
}

// SaveResult describes a successful write.
type SaveResult struct {
	Listings []Listing
	Evicted  []string
}

// Store persists the listing collection in a single slot and degrades gracefully
// when the slot is corrupt or the store is full.
type Store struct {
	slots          SlotStore
	key            string
	recoveryPrefix string
	now            func() time.Time
	logger         *slog.Logger
}

// NewStore creates a Store over slots.
func NewStore(slots SlotStore, logger *slog.Logger, opts StoreOptions) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Store{
		slots:          slots,
		key:            opts.Key,
		recoveryPrefix: opts.RecoveryPrefix,
		now:            opts.Now,
		logger:         logger,
	}
	if s.key == "" {
		s.key = DefaultSlotKey
	}
	if s.recoveryPrefix == "" {
		s.recoveryPrefix = DefaultRecoveryPrefix
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Key returns the name of the slot holding the collection.
func (s *Store) Key() string {
	return s.key
}

// Load reads the collection. A missing slot is an empty collection. When the slot
// holds data that is not a listing array a recovery pass runs and the read is
// retried once. A failing backend read never triggers recovery. Either failure
// returns an empty collection and ErrStorageUnavailable.
func (s *Store) Load(ctx context.Context) ([]Listing, error) {
	ls, err := s.read(ctx)
	if err == nil {
		return ls, nil
	}
	if !errors.Is(err, errCorruptSlot) {
		s.logger.Error("listing slot read failed", "key", s.key, "error", err)
		return []Listing{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	s.logger.Warn("listing slot corrupt, running recovery", "key", s.key, "error", err)
	if rerr := s.recover(ctx); rerr != nil {
		s.logger.Error("listing recovery failed", "key", s.key, "error", rerr)
		return []Listing{}, fmt.Errorf("%w: recovery: %w", ErrStorageUnavailable, rerr)
	}

	ls, err = s.read(ctx)
	if err != nil {
		s.logger.Error("listing slot unreadable after recovery", "key", s.key, "error", err)
		return []Listing{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return ls, nil
}

// Save writes the whole collection. When the store is over quota, closed listings
// older than ClosedRetention are evicted and the write is retried once. On failure
// the slot keeps its previous content and ErrSaveFailed is returned.
func (s *Store) Save(ctx context.Context, ls []Listing) (SaveResult, error) {
	if err := validateCollection(ls); err != nil {
		return SaveResult{}, err
	}
	ls = Normalize(ls)

	data, err := encodeCollection(ls)
	if err != nil {
		return SaveResult{}, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	err = s.slots.Set(ctx, s.key, data)
	if err == nil {
		return SaveResult{Listings: ls}, nil
	}
	if !errors.Is(err, repository.ErrQuotaExceeded) {
		return SaveResult{}, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	kept, evicted := EvictStale(ls, s.now(), ClosedRetention)
	s.logger.Warn("listing slot over quota, evicting closed listings",
		"key", s.key, "evicted", len(evicted), "bytes", len(data))

	data, err = encodeCollection(kept)
	if err != nil {
		return SaveResult{}, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	if err := s.slots.Set(ctx, s.key, data); err != nil {
		return SaveResult{}, fmt.Errorf("%w: after evicting %d listings: %w", ErrSaveFailed, len(evicted), err)
	}
	return SaveResult{Listings: kept, Evicted: evicted}, nil
}

func (s *Store) read(ctx context.Context) ([]Listing, error) {
	raw, err := s.slots.Get(ctx, s.key)
	if errors.Is(err, repository.ErrNotFound) {
		return []Listing{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %s: %w", s.key, err)
	}
	ls, dropped, err := decodeCollection(raw)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		s.logger.Warn("skipped unreadable listing records", "key", s.key, "dropped", dropped)
	}
	return ls, nil
}

// recover rewrites every listing slot keeping only active listings and recent
// drafts. Slots whose content is not a listing array are removed. A failing
// backend read stops the pass without touching the slot.
func (s *Store) recover(ctx context.Context) error {
	keys, err := s.slots.Keys(ctx)
	if err != nil {
		return fmt.Errorf("listing slot keys: %w", err)
	}

	cutoff := s.now().Add(-DraftRetention)
	for _, key := range keys {
		if key != s.key && !strings.HasPrefix(key, s.recoveryPrefix) {
			continue
		}

		raw, err := s.slots.Get(ctx, key)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("get slot %s: %w", key, err)
		}
		ls, _, err := decodeCollection(raw)
		if err != nil {
			s.logger.Warn("removing unreadable listing slot", "key", key, "error", err)
			if rerr := s.slots.Remove(ctx, key); rerr != nil {
				return fmt.Errorf("remove slot %s: %w", key, rerr)
			}
			continue
		}

		kept := make([]Listing, 0, len(ls))
		for _, l := range ls {
			if l.Status == StatusActive || (l.Status == StatusDraft && l.CreatedAt.After(cutoff)) {
				kept = append(kept, l)
			}
		}
		data, err := encodeCollection(kept)
		if err != nil {
			return fmt.Errorf("encode slot %s: %w", key, err)
		}
		if err := s.slots.Set(ctx, key, data); err != nil {
			return fmt.Errorf("rewrite slot %s: %w", key, err)
		}
		s.logger.Info("recovered listing slot", "key", key, "kept", len(kept), "dropped", len(ls)-len(kept))
	}
	return nil
}

// decodeCollection decodes a slot record by record. Records that cannot be read
// are dropped and counted; only a slot that is not a JSON array is an error.
// Records stored without an id get one derived from their content, so the id
// stays the same across loads until the record is written back.
func decodeCollection(raw string) ([]Listing, int, error) {
	var records []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", errCorruptSlot, err)
	}

	ls := make([]Listing, 0, len(records))
	dropped := 0
	for _, rec := range records {
		var l Listing
		if len(rec) == 0 || rec[0] != '{' {
			dropped++
			continue
		}
		if err := json.Unmarshal(rec, &l); err != nil {
			dropped++
			continue
		}
		if l.ID == "" {
			l.ID = uuid.NewSHA1(uuid.NameSpaceOID, rec).String()
		}
		ls = append(ls, l)
	}
	return Normalize(ls), dropped, nil
}

func encodeCollection(ls []Listing) (string, error) {
	if ls == nil {
		ls = []Listing{}
	}
	data, err := json.Marshal(ls)
	if err != nil {
		return "", fmt.Errorf("encode listings: %w", err)
	}
	return string(data), nil
}
