// Package catalog is the metadata catalog the path sync engine follows: a
// SQLite database mapping authorizable objects (databases, tables,
// partitions) to their filesystem locations, plus an append-only
// notification log with one entry per mutation.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// EventType names a catalog mutation.
type EventType string

const (
	EventAddPath        EventType = "ADD_PATH"
	EventRemovePath     EventType = "REMOVE_PATH"
	EventRemoveAllPaths EventType = "REMOVE_ALL_PATHS"
	EventRenameObject   EventType = "RENAME_OBJECT"
)

// ErrUnknownEvent is returned when the log holds an event type this build
// does not understand.
var ErrUnknownEvent = errors.New("catalog: unknown event type")

// Event is one notification log entry.
type Event struct {
	ID            int64
	Type          EventType
	ObjectName    string
	Path          string
	NewObjectName string
	NewPath       string
	Children      []string
	CreatedAt     time.Time
}

// Snapshot is the object to location mapping as of LastEventID.
type Snapshot struct {
	Objects     map[string][]string
	LastEventID int64
}

const (
	sqlInsertObject = `INSERT INTO authz_objects (name, location) VALUES (?, ?)
		ON CONFLICT(name, location) DO NOTHING`

	sqlDeleteObjectLocation = `DELETE FROM authz_objects WHERE name = ? AND location = ?`

	sqlDeleteObject = `DELETE FROM authz_objects WHERE name = ?`

	sqlRenameObject = `UPDATE OR REPLACE authz_objects SET name = ? WHERE name = ?`

	sqlAppendEvent = `INSERT INTO notification_log
		(event_type, object_name, path, new_object_name, new_path, children, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	sqlEventsSince = `SELECT event_id, event_type, object_name, path, new_object_name,
		new_path, children, created_at
		FROM notification_log WHERE event_id > ? ORDER BY event_id LIMIT ?`

	sqlLastEventID = `SELECT COALESCE(MAX(event_id), 0) FROM notification_log`

	sqlLoadObjects = `SELECT name, location FROM authz_objects ORDER BY name, location`
)

// Store is the catalog database.
type Store struct {
	db      *sql.DB
	path    string
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the catalog at dbPath and applies
// pending migrations. The database uses WAL mode so the listener can read
// while another process writes.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("catalog opened", slog.String("db_path", dbPath))

	return &Store{
		db:      db,
		path:    dbPath,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("catalog: migration filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("catalog: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("catalog: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied catalog migration",
			slog.String("source", r.Source.Path),
			slog.Duration("duration", r.Duration),
		)
	}

	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddPath records that name gained location.
func (s *Store) AddPath(ctx context.Context, name, location string) (int64, error) {
	return s.mutate(ctx, &Event{Type: EventAddPath, ObjectName: name, Path: location}, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlInsertObject, name, location)
		return err
	})
}

// RemovePath records that name lost location. The location "*" drops
// every location of name.
func (s *Store) RemovePath(ctx context.Context, name, location string) (int64, error) {
	return s.mutate(ctx, &Event{Type: EventRemovePath, ObjectName: name, Path: location}, func(tx *sql.Tx) error {
		if location == "*" {
			_, err := tx.ExecContext(ctx, sqlDeleteObject, name)
			return err
		}

		_, err := tx.ExecContext(ctx, sqlDeleteObjectLocation, name, location)

		return err
	})
}

// RemoveAllPaths drops every location of name and of each child object
// name + "." + child.
func (s *Store) RemoveAllPaths(ctx context.Context, name string, children []string) (int64, error) {
	ev := &Event{Type: EventRemoveAllPaths, ObjectName: name, Children: children}

	return s.mutate(ctx, ev, func(tx *sql.Tx) error {
		for _, child := range children {
			if _, err := tx.ExecContext(ctx, sqlDeleteObject, name+"."+child); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, sqlDeleteObject, name)

		return err
	})
}

// RenameObject moves oldName to newName and replaces oldLocation with
// newLocation. Either location may be empty.
func (s *Store) RenameObject(ctx context.Context, oldName, oldLocation, newName, newLocation string) (int64, error) {
	ev := &Event{
		Type:          EventRenameObject,
		ObjectName:    oldName,
		Path:          oldLocation,
		NewObjectName: newName,
		NewPath:       newLocation,
	}

	return s.mutate(ctx, ev, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sqlRenameObject, newName, oldName); err != nil {
			return err
		}

		if oldLocation != "" {
			if _, err := tx.ExecContext(ctx, sqlDeleteObjectLocation, newName, oldLocation); err != nil {
				return err
			}
		}

		if newLocation != "" {
			if _, err := tx.ExecContext(ctx, sqlInsertObject, newName, newLocation); err != nil {
				return err
			}
		}

		return nil
	})
}

// mutate runs apply and appends ev to the notification log in one
// transaction, returning the new event id.
func (s *Store) mutate(ctx context.Context, ev *Event, apply func(tx *sql.Tx) error) (int64, error) {
	children := ev.Children
	if children == nil {
		children = []string{}
	}

	childrenJSON, err := json.Marshal(children)
	if err != nil {
		return 0, fmt.Errorf("catalog: encoding children: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := apply(tx); err != nil {
		return 0, fmt.Errorf("catalog: %s %s: %w", ev.Type, ev.ObjectName, err)
	}

	res, err := tx.ExecContext(ctx, sqlAppendEvent,
		string(ev.Type), ev.ObjectName, ev.Path, ev.NewObjectName, ev.NewPath,
		string(childrenJSON), s.nowFunc().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("catalog: appending %s event: %w", ev.Type, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("catalog: reading event id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: committing %s: %w", ev.Type, err)
	}

	s.logger.Debug("catalog mutation",
		slog.Int64("event_id", id),
		slog.String("type", string(ev.Type)),
		slog.String("object", ev.ObjectName),
	)

	return id, nil
}

// LastEventID returns the id of the newest notification, or 0.
func (s *Store) LastEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, sqlLastEventID).Scan(&id); err != nil {
		return 0, fmt.Errorf("catalog: reading last event id: %w", err)
	}

	return id, nil
}

// EventsSince returns up to limit events with id greater than after, in
// log order.
func (s *Store) EventsSince(ctx context.Context, after int64, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, sqlEventsSince, after, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading events after %d: %w", after, err)
	}
	defer rows.Close()

	var events []Event

	for rows.Next() {
		var (
			ev           Event
			evType       string
			childrenJSON string
			createdAt    int64
		)

		if err := rows.Scan(&ev.ID, &evType, &ev.ObjectName, &ev.Path,
			&ev.NewObjectName, &ev.NewPath, &childrenJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("catalog: scanning event: %w", err)
		}

		if err := json.Unmarshal([]byte(childrenJSON), &ev.Children); err != nil {
			return nil, fmt.Errorf("catalog: decoding children of event %d: %w", ev.ID, err)
		}

		ev.Type = EventType(evType)
		ev.CreatedAt = time.Unix(0, createdAt)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating events: %w", err)
	}

	return events, nil
}

// Snapshot reads every object location together with the newest event id
// in one read transaction.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("catalog: beginning snapshot: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only

	snap := &Snapshot{Objects: make(map[string][]string)}

	if err := tx.QueryRowContext(ctx, sqlLastEventID).Scan(&snap.LastEventID); err != nil {
		return nil, fmt.Errorf("catalog: reading last event id: %w", err)
	}

	rows, err := tx.QueryContext(ctx, sqlLoadObjects)
	if err != nil {
		return nil, fmt.Errorf("catalog: loading objects: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, location string
		if err := rows.Scan(&name, &location); err != nil {
			return nil, fmt.Errorf("catalog: scanning object: %w", err)
		}

		snap.Objects[name] = append(snap.Objects[name], location)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating objects: %w", err)
	}

	return snap, nil
}
