package listing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// FilterAll selects listings of every status.
const FilterAll = "all"

// Filter narrows the catalog view.
type Filter struct {
	Status string
	Query  string
}

// Catalog is the in-memory view of the listing collection. Every read-modify-write
// of the store goes through it so writes from one process never interleave.
// Changes made elsewhere replace the view wholesale on Reload.
type Catalog struct {
	store  *Store
	now    func() time.Time
	logger *slog.Logger

	writeMu sync.Mutex

	mu       sync.RWMutex
	listings []Listing
}

// NewCatalog creates a Catalog over store.
func NewCatalog(store *Store, logger *slog.Logger, now func() time.Time) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if now == nil {
		now = time.Now
	}
	return &Catalog{store: store, now: now, logger: logger}
}

// Reload reads the store, marks listings past their expiry as expired, persists
// only if that changed something, and replaces the view. It returns how many
// listings were newly marked expired. When persisting fails the view still shows
// the swept state and the ErrSaveFailed error is returned with the count.
func (c *Catalog) Reload(ctx context.Context) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ls, err := c.store.Load(ctx)
	if err != nil {
		return 0, err
	}

	swept, changed := SweepExpired(ls, c.now())
	if !changed {
		c.replace(ls)
		return 0, nil
	}

	n := countChanged(ls, swept)
	res, err := c.store.Save(ctx, swept)
	if err != nil {
		c.replace(swept)
		return n, err
	}
	c.replace(res.Listings)
	return n, nil
}

// Mutate loads the collection, sweeps it, applies fn and saves the result, so fn
// always sees listings past their expiry as expired. The view is only replaced
// after a successful save.
func (c *Catalog) Mutate(ctx context.Context, fn func([]Listing) ([]Listing, error)) (SaveResult, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ls, err := c.store.Load(ctx)
	if err != nil {
		return SaveResult{}, err
	}
	ls, _ = SweepExpired(ls, c.now())
	next, err := fn(ls)
	if err != nil {
		return SaveResult{}, err
	}
	res, err := c.store.Save(ctx, next)
	if err != nil {
		return SaveResult{}, err
	}
	c.replace(res.Listings)
	return res, nil
}

// Snapshot returns a copy of the current view.
func (c *Catalog) Snapshot() []Listing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Listing(nil), c.listings...)
}

// Views returns classified listings matching filter, newest first.
func (c *Catalog) Views(filter Filter) []View {
	now := c.now()
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	var views []View
	for _, l := range c.Snapshot() {
		if filter.Status != "" && filter.Status != FilterAll && string(l.Status) != filter.Status {
			continue
		}
		if query != "" && !matches(l, query) {
			continue
		}
		views = append(views, View{Listing: l, Display: Classify(l, now)})
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt.Time)
	})
	return views
}

// Watch reloads the view whenever the listing slot changes, until ctx is done.
func (c *Catalog) Watch(ctx context.Context, notifier ChangeNotifier) error {
	changes, err := notifier.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to slot changes: %w", err)
	}

	for key := range changes {
		if key != c.store.Key() {
			continue
		}
		swept, err := c.Reload(ctx)
		if err != nil {
			c.logger.Warn("reload after external change failed", "key", key, "error", err)
			continue
		}
		c.logger.Debug("listings reloaded after external change", "key", key, "swept", swept)
	}
	return ctx.Err()
}

func (c *Catalog) replace(ls []Listing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings = ls
}

func matches(l Listing, query string) bool {
	return strings.Contains(strings.ToLower(l.Title), query) ||
		strings.Contains(strings.ToLower(l.Address), query) ||
		strings.Contains(strings.ToLower(l.Description), query)
}

func countChanged(before, after []Listing) int {
	n := 0
	for i := range before {
		if before[i].Status != after[i].Status {
			n++
		}
	}
	return n
}
