// Package store is the message store gateway: append-only persistence of
// chat events backed by SQLite, with the point and aggregate queries the
// relay needs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"chatrelay/pkg/types"
)

const (
	maxOpenConns = 10
	retryBackoff = 250 * time.Millisecond
)

// Store implements interfaces.EventStore. All writes funnel through a
// single goroutine; SQLite handles one writer at a time and the funnel
// avoids busy-lock contention under concurrent joins. Reads run directly
// on the pool, WAL keeps them concurrent with the writer.
type Store struct {
	db       *sql.DB
	writeCh  chan writeOp
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
	log      zerolog.Logger
}

type writeOp struct {
	run    func(db *sql.DB) error
	result chan error
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)

	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:       db,
		writeCh:  make(chan writeOp, 100),
		shutdown: make(chan struct{}),
		log:      log.With().Str("component", "store").Logger(),
	}
	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeCh:
			err := op.run(s.db)
			if err != nil {
				s.log.Warn().Err(err).Msg("write failed, retrying once")
				time.Sleep(retryBackoff)
				err = op.run(s.db)
			}
			op.result <- err

		case <-s.shutdown:
			// Drain queued writes before exiting so Close does not lose
			// accepted appends.
			for {
				select {
				case op := <-s.writeCh:
					op.result <- op.run(s.db)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) executeWrite(ctx context.Context, run func(db *sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case s.writeCh <- writeOp{run: run, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return ErrClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Append persists one chat event. A zero ID or CreatedAt is filled in
// server-side; clients never control either.
func (s *Store) Append(ctx context.Context, event *types.ChatEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	return s.executeWrite(ctx, func(db *sql.DB) error {
		const query = `INSERT INTO messages (id, user, room, message, created_at) VALUES (?, ?, ?, ?, ?)`
		_, err := db.ExecContext(ctx, query,
			event.ID, event.User, event.Room, event.Message, event.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		return nil
	})
}

// HistoryByRoom returns every event persisted for a room, oldest first.
// Rowid breaks ties between events created in the same instant.
func (s *Store) HistoryByRoom(ctx context.Context, room string) ([]*types.ChatEvent, error) {
	const query = `
		SELECT id, user, room, message, created_at
		FROM messages
		WHERE room = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, room)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.ChatEvent
	for rows.Next() {
		var event types.ChatEvent
		if err := rows.Scan(&event.ID, &event.User, &event.Room, &event.Message, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}

	return events, nil
}

// DistinctRooms returns every room value ever persisted, sorted.
func (s *Store) DistinctRooms(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT room FROM messages ORDER BY room ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rooms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rooms []string
	for rows.Next() {
		var room string
		if err := rows.Scan(&room); err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read room rows: %w", err)
	}

	return rooms, nil
}

// HealthCheck verifies the database answers a trivial query.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close stops the writer, drains accepted appends, and closes the
// database. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	return s.db.Close()
}
