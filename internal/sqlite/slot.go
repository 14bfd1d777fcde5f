package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/estatedesk/listingkeeper/internal/repository"
)

const defaultPollInterval = 2 * time.Second

// SlotRepository implements repository.SlotStore and repository.ChangeNotifier for SQLite
type SlotRepository struct {
	db           *DB
	quotaBytes   int64
	pollInterval time.Duration
	logger       *slog.Logger
}

var (
	_ repository.SlotStore      = (*SlotRepository)(nil)
	_ repository.ChangeNotifier = (*SlotRepository)(nil)
)

// SlotOption customizes a SlotRepository
type SlotOption func(*SlotRepository)

// WithQuota caps the combined size of all keys and values. Zero disables the cap.
func WithQuota(bytes int64) SlotOption {
	return func(r *SlotRepository) { r.quotaBytes = bytes }
}

// WithPollInterval sets how often Subscribe checks for slot changes.
func WithPollInterval(d time.Duration) SlotOption {
	return func(r *SlotRepository) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithLogger sets the logger used by the change poller.
func WithLogger(logger *slog.Logger) SlotOption {
	return func(r *SlotRepository) { r.logger = logger }
}

// NewSlotRepository creates a new SlotRepository
func NewSlotRepository(db *DB, opts ...SlotOption) *SlotRepository {
	r := &SlotRepository{
		db:           db,
		pollInterval: defaultPollInterval,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the value stored under key
func (r *SlotRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM slots WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get slot %q: %w", key, err)
	}
	return value, nil
}

// Set replaces the value under key in a single transaction, enforcing the quota
func (r *SlotRepository) Set(ctx context.Context, key, value string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if r.quotaBytes > 0 {
		var used int64
		err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB))), 0)
			FROM slots
			WHERE key != ?
		`, key).Scan(&used)
		if err != nil {
			return fmt.Errorf("failed to measure slot usage: %w", err)
		}
		if used+int64(len(key))+int64(len(value)) > r.quotaBytes {
			return fmt.Errorf("slot %q needs %d bytes with %d of %d used: %w",
				key, len(key)+len(value), used, r.quotaBytes, repository.ErrQuotaExceeded)
		}
	}

	query := `
		INSERT INTO slots (key, value, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			version = slots.version + 1,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		if isDiskFull(err) {
			return fmt.Errorf("failed to set slot %q: %w", key, repository.ErrQuotaExceeded)
		}
		return fmt.Errorf("failed to set slot %q: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		if isDiskFull(err) {
			return fmt.Errorf("failed to commit slot %q: %w", key, repository.ErrQuotaExceeded)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Remove deletes the slot; removing a missing slot is not an error
func (r *SlotRepository) Remove(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM slots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to remove slot %q: %w", key, err)
	}
	return nil
}

// Keys lists every slot key in lexical order
func (r *SlotRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key FROM slots ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan slot key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slot rows: %w", err)
	}
	return keys, nil
}

// Subscribe polls slot versions and reports every key that was written or removed
// since the previous poll, whichever connection or process made the change.
func (r *SlotRepository) Subscribe(ctx context.Context) (<-chan string, error) {
	last, err := r.versions(ctx)
	if err != nil {
		return nil, err
	}

	changes := make(chan string, 16)
	go func() {
		defer close(changes)

		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			current, err := r.versions(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					return
				}
				r.logger.Warn("slot poll failed", "error", err)
				continue
			}

			for _, key := range diffVersions(last, current) {
				select {
				case changes <- key:
				case <-ctx.Done():
					return
				}
			}
			last = current
		}
	}()

	return changes, nil
}

func (r *SlotRepository) versions(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, version FROM slots`)
	if err != nil {
		return nil, fmt.Errorf("failed to read slot versions: %w", err)
	}
	defer rows.Close()

	versions := make(map[string]int64)
	for rows.Next() {
		var key string
		var version int64
		if err := rows.Scan(&key, &version); err != nil {
			return nil, fmt.Errorf("failed to scan slot version: %w", err)
		}
		versions[key] = version
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating slot versions: %w", err)
	}
	return versions, nil
}

func diffVersions(before, after map[string]int64) []string {
	var changed []string
	for key, version := range after {
		if prev, ok := before[key]; !ok || prev != version {
			changed = append(changed, key)
		}
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			changed = append(changed, key)
		}
	}
	return changed
}
