package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openclinic/fhirsub/pkg/resource"
)

// SQLiteStore keeps resources in a SQLite database, one row per resource
// holding the current version's JSON body.
type SQLiteStore struct {
	db        *sql.DB
	publisher Publisher
}

// OpenSQLite opens or creates the database at path. Use ":memory:" for an
// in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection, so ":memory:" databases are not split per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resources (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		version INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (kind, id)
	);

	CREATE INDEX IF NOT EXISTS idx_resources_kind_status ON resources(kind, status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SetPublisher registers the receiver of change events. It must be called
// before concurrent use.
func (s *SQLiteStore) SetPublisher(p Publisher) {
	s.publisher = p
}

// Put creates or updates r and publishes the resulting event after commit.
func (s *SQLiteStore) Put(ctx context.Context, r *resource.Resource) (resource.Event, error) {
	if r == nil || r.ID == "" {
		return resource.Event{}, ErrNoID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return resource.Event{}, fmt.Errorf("%w: begin: %v", ErrStorage, err)
	}
	defer tx.Rollback()

	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM resources WHERE kind = ? AND id = ?`,
		r.Kind.String(), r.ID).Scan(&version)
	op := resource.OpUpdate
	switch {
	case errors.Is(err, sql.ErrNoRows):
		op = resource.OpCreate
	case err != nil:
		return resource.Event{}, fmt.Errorf("%w: read version: %v", ErrStorage, err)
	}

	now := time.Now().UTC()
	stored := stamp(r, version+1, now)
	body, err := json.Marshal(stored)
	if err != nil {
		return resource.Event{}, fmt.Errorf("encode %s: %w", r.Reference(), err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO resources (kind, id, version, status, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			version = excluded.version,
			status = excluded.status,
			body = excluded.body,
			updated_at = excluded.updated_at
	`, r.Kind.String(), r.ID, version+1, statusOf(stored), string(body), now.Format(time.RFC3339Nano))
	if err != nil {
		return resource.Event{}, fmt.Errorf("%w: write: %v", ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return resource.Event{}, fmt.Errorf("%w: commit: %v", ErrStorage, err)
	}

	ev := resource.NewEvent(op, stored)
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
	return ev, nil
}

// Delete removes ref and publishes a delete event carrying the last version.
func (s *SQLiteStore) Delete(ctx context.Context, ref resource.Reference) (resource.Event, error) {
	prev, err := s.ReadResource(ctx, ref)
	if err != nil {
		return resource.Event{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM resources WHERE kind = ? AND id = ?`, ref.Kind.String(), ref.ID)
	if err != nil {
		return resource.Event{}, fmt.Errorf("%w: delete: %v", ErrStorage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return resource.Event{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}

	ev := resource.NewEvent(resource.OpDelete, prev)
	if s.publisher != nil {
		s.publisher.Publish(ev)
	}
	return ev, nil
}

// ReadResource implements ResourceReader.
func (s *SQLiteStore) ReadResource(ctx context.Context, ref resource.Reference) (*resource.Resource, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM resources WHERE kind = ? AND id = ?`,
		ref.Kind.String(), ref.ID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorage, ref, err)
	}
	return decodeBody(body)
}

// ReadActiveSubscriptions implements SubscriptionStore.
func (s *SQLiteStore) ReadActiveSubscriptions(ctx context.Context) ([]*resource.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM resources
		WHERE kind = ? AND status = ?
		ORDER BY id
	`, resource.KindSubscription.String(), string(resource.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("%w: query subscriptions: %v", ErrStorage, err)
	}
	defer rows.Close()

	var subs []*resource.Subscription
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("%w: scan subscription: %v", ErrStorage, err)
		}
		r, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		sub, err := resource.SubscriptionFromResource(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return subs, nil
}

// Count returns the number of stored resources of kind.
func (s *SQLiteStore) Count(ctx context.Context, kind resource.Kind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM resources WHERE kind = ?`, kind.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrStorage, err)
	}
	return n, nil
}

func decodeBody(body string) (*resource.Resource, error) {
	r := &resource.Resource{}
	if err := json.Unmarshal([]byte(body), r); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrStorage, err)
	}
	return r, nil
}
