package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"homechef/internal/recordstore"
	"homechef/pkg/platform/sentinel"
)

// notifyChannel is the LISTEN/NOTIFY channel every mutation is announced on.
const notifyChannel = "records"

const schema = `
CREATE TABLE IF NOT EXISTS records (
	path       TEXT PRIMARY KEY,
	parent     TEXT NOT NULL,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS records_parent_idx ON records (parent);
`

// Store is a PostgreSQL-backed record store. All records live in a single
// table keyed by path; the parent column serves Children.
type Store struct {
	db    *sql.DB
	dsn   string
	clock func() time.Time

	logger *slog.Logger

	mu       sync.Mutex
	listener *pq.Listener
	subs     map[uint64]subscription
	nextSub  uint64
	stop     chan struct{}
	stopped  chan struct{}
}

type subscription struct {
	root recordstore.Path
	fn   recordstore.ChangeFunc
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for updated_at.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a store over db. dsn is used to open the dedicated LISTEN
// connection on first Subscribe; leave it empty to disable subscriptions.
func New(db *sql.DB, dsn string, opts ...Option) *Store {
	s := &Store{
		db:     db,
		dsn:    dsn,
		clock:  time.Now,
		logger: slog.Default(),
		subs:   make(map[uint64]subscription),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Migrate creates the records table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate records: %w", err)
	}
	return nil
}

func (s *Store) Read(ctx context.Context, path recordstore.Path) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE path = $1`, path.String()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return value, nil
}

const upsertQuery = `
	INSERT INTO records (path, parent, value, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (path) DO UPDATE SET
		value = EXCLUDED.value,
		updated_at = EXCLUDED.updated_at
`

// lockQuery takes the per-path advisory lock every mutator of an existing
// record holds until commit.
const lockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

// lockSubtreeQuery takes the advisory lock of every stored record beneath a
// path, in path order so overlapping deletes queue instead of deadlocking.
const lockSubtreeQuery = `
	SELECT pg_advisory_xact_lock(hashtext(path))
	FROM records
	WHERE starts_with(path, $1 || '/')
	ORDER BY path
`

func lockPath(ctx context.Context, tx *sql.Tx, path recordstore.Path) error {
	if _, err := tx.ExecContext(ctx, lockQuery, path.String()); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	return nil
}

// Write takes the same advisory lock as Transact so a plain write cannot land
// between a transaction's read and its write.
func (s *Store) Write(ctx context.Context, path recordstore.Path, value []byte) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := lockPath(ctx, tx, path); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertQuery, path.String(), path.Parent().String(), value, s.clock()); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return notify(ctx, tx, recordstore.Change{Path: path, Kind: recordstore.ChangeWritten})
	})
}

func (s *Store) Create(ctx context.Context, path recordstore.Path, value []byte) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO records (path, parent, value, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (path) DO NOTHING
		`, path.String(), path.Parent().String(), value, s.clock())
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if n == 0 {
			return sentinel.ErrAlreadyExists
		}
		return notify(ctx, tx, recordstore.Change{Path: path, Kind: recordstore.ChangeWritten})
	})
}

// Update merges with the jsonb concatenation operator, which replaces
// top-level keys and keeps the rest.
func (s *Store) Update(ctx context.Context, path recordstore.Path, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode update for %s: %w", path, err)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO records (path, parent, value, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (path) DO UPDATE SET
				value = records.value || EXCLUDED.value,
				updated_at = EXCLUDED.updated_at
		`, path.String(), path.Parent().String(), patch, s.clock()); err != nil {
			return fmt.Errorf("update %s: %w", path, err)
		}
		return notify(ctx, tx, recordstore.Change{Path: path, Kind: recordstore.ChangeWritten})
	})
}

func (s *Store) Push(_ context.Context, collection recordstore.Path) (recordstore.Path, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate push id: %w", err)
	}
	return collection.Child(id.String()), nil
}

// Delete locks path and every record beneath it before removing them.
func (s *Store) Delete(ctx context.Context, path recordstore.Path) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := lockPath(ctx, tx, path); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, lockSubtreeQuery, path.String()); err != nil {
			return fmt.Errorf("lock beneath %s: %w", path, err)
		}
		rows, err := tx.QueryContext(ctx, `
			DELETE FROM records
			WHERE path = $1 OR starts_with(path, $1 || '/')
			RETURNING path
		`, path.String())
		if err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
		var removed []recordstore.Path
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				_ = rows.Close()
				return fmt.Errorf("delete %s: %w", path, err)
			}
			removed = append(removed, recordstore.Path(p))
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
		_ = rows.Close()

		for _, p := range removed {
			if err := notify(ctx, tx, recordstore.Change{Path: p, Kind: recordstore.ChangeDeleted}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Children(ctx context.Context, collection recordstore.Path) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, value FROM records WHERE parent = $1`, collection.String())
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", collection, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			p     string
			value []byte
		)
		if err := rows.Scan(&p, &value); err != nil {
			return nil, fmt.Errorf("list children of %s: %w", collection, err)
		}
		out[recordstore.Path(p).Base()] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list children of %s: %w", collection, err)
	}
	return out, nil
}

// Transact serialises writers of one path with a transaction-scoped advisory
// lock, so the read and the write see no interleaving update.
func (s *Store) Transact(ctx context.Context, path recordstore.Path, fn recordstore.TxFunc) ([]byte, error) {
	var next []byte
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := lockPath(ctx, tx, path); err != nil {
			return err
		}

		var current []byte
		exists := true
		err := tx.QueryRowContext(ctx, `SELECT value FROM records WHERE path = $1`, path.String()).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			exists = false
		} else if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		next, err = fn(current, exists)
		if errors.Is(err, recordstore.ErrRemove) {
			next = nil
			if !exists {
				return nil
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE path = $1`, path.String()); err != nil {
				return fmt.Errorf("delete %s: %w", path, err)
			}
			return notify(ctx, tx, recordstore.Change{Path: path, Kind: recordstore.ChangeDeleted})
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertQuery, path.String(), path.Parent().String(), next, s.clock()); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return notify(ctx, tx, recordstore.Change{Path: path, Kind: recordstore.ChangeWritten})
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// notify queues a change; Postgres delivers it to listeners on commit.
func notify(ctx context.Context, tx *sql.Tx, change recordstore.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("notify %s: %w", change.Path, err)
	}
	return nil
}

// Subscribe registers fn for changes at or beneath path. The first call
// opens the LISTEN connection and returns only after LISTEN has been issued.
func (s *Store) Subscribe(_ context.Context, path recordstore.Path, fn recordstore.ChangeFunc) (recordstore.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		if err := s.startListenerLocked(); err != nil {
			return nil, err
		}
	}

	s.nextSub++
	id := s.nextSub
	s.subs[id] = subscription{root: path, fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}, nil
}

func (s *Store) startListenerLocked() error {
	if s.dsn == "" {
		return errors.New("postgres record store: subscriptions need a DSN")
	}
	listener := pq.NewListener(s.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.logger.Warn("record listener event", "event", int(ev), "error", err)
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		_ = listener.Close()
		return fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	s.listener = listener
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.dispatch(listener, s.stop, s.stopped)
	return nil
}

func (s *Store) dispatch(listener *pq.Listener, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	for {
		select {
		case <-stop:
			return
		case n, ok := <-listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect; notifications sent while disconnected are lost.
			if n == nil {
				continue
			}
			var change recordstore.Change
			if err := json.Unmarshal([]byte(n.Extra), &change); err != nil {
				s.logger.Warn("discarding malformed change notification", "error", err)
				continue
			}
			for _, fn := range s.matching(change.Path) {
				fn(change)
			}
		}
	}
}

func (s *Store) matching(path recordstore.Path) []recordstore.ChangeFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fns []recordstore.ChangeFunc
	for _, sub := range s.subs {
		if path.Within(sub.root) {
			fns = append(fns, sub.fn)
		}
	}
	return fns
}

// Close stops the LISTEN connection. The *sql.DB is owned by the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	listener := s.listener
	stop, stopped := s.stop, s.stopped
	s.listener = nil
	s.mu.Unlock()

	if listener == nil {
		return nil
	}
	close(stop)
	<-stopped
	return listener.Close()
}
