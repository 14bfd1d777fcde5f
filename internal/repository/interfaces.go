package repository

import (
	"context"

	"github.com/estatedesk/listingkeeper/internal/domain/activity"
)

// SlotStore is a size-bounded key-value store holding one string value per slot.
// Set must be atomic: a failed write leaves the previous value in place.
type SlotStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// ChangeNotifier streams the keys of slots written by any writer, including other processes.
// The returned channel is closed once ctx is done.
type ChangeNotifier interface {
	Subscribe(ctx context.Context) (<-chan string, error)
}

// ActivityRepository manages activity log persistence
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.Entry) error
	List(ctx context.Context, opts activity.ListOptions) ([]activity.Entry, error)
}
