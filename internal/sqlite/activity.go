package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/estatedesk/listingkeeper/internal/domain/activity"
	"github.com/estatedesk/listingkeeper/internal/repository"
)

// ActivityRepository implements repository.ActivityRepository for SQLite
type ActivityRepository struct {
	db *DB
}

var _ repository.ActivityRepository = (*ActivityRepository)(nil)

// NewActivityRepository creates a new ActivityRepository
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Log appends an entry and fills in its id and timestamp
func (r *ActivityRepository) Log(ctx context.Context, entry *activity.Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	var listingID sql.NullString
	if entry.ListingID != nil {
		listingID = sql.NullString{String: *entry.ListingID, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_log (listing_id, activity_type, summary, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, listingID, entry.Type, entry.Summary, entry.Details, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to log %s activity: %w", entry.Type, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// List returns entries for one listing and/or type, newest first
func (r *ActivityRepository) List(ctx context.Context, opts activity.ListOptions) ([]activity.Entry, error) {
	where, args := activityFilter(opts)
	query := "SELECT id, listing_id, activity_type, summary, details, created_at FROM activity_log" +
		where + " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, max(opts.Offset, 0))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	entries := []activity.Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity rows: %w", err)
	}
	return entries, nil
}

func activityFilter(opts activity.ListOptions) (string, []any) {
	var clauses []string
	var args []any
	if opts.ListingID != nil {
		clauses = append(clauses, "listing_id = ?")
		args = append(args, *opts.ListingID)
	}
	if opts.Type != nil {
		clauses = append(clauses, "activity_type = ?")
		args = append(args, string(*opts.Type))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanEntry(rows *sql.Rows) (activity.Entry, error) {
	var entry activity.Entry
	var listingID sql.NullString
	if err := rows.Scan(&entry.ID, &listingID, &entry.Type, &entry.Summary, &entry.Details, &entry.CreatedAt); err != nil {
		return entry, fmt.Errorf("failed to scan activity entry: %w", err)
	}
	if listingID.Valid {
		entry.ListingID = &listingID.String
	}
	return entry, nil
}
