package listing

import (
	"context"

	"github.com/estatedesk/listingkeeper/internal/domain/activity"
	"github.com/estatedesk/listingkeeper/internal/imaging"
)

// SlotStore provides the key-value slots listings are persisted in.
type SlotStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// ChangeNotifier reports slots written by other writers.
type ChangeNotifier interface {
	Subscribe(ctx context.Context) (<-chan string, error)
}

// ImageEncoder compresses listing photos before they are saved.
type ImageEncoder interface {
	EncodeAll(ctx context.Context, inputs []imaging.Input) ([]string, error)
}

// ActivityRecorder logs listing events.
type ActivityRecorder interface {
	Record(ctx context.Context, entry *activity.Entry) error
}
