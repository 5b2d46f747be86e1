package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"homechef/internal/recordstore"
	"homechef/pkg/platform/sentinel"
)

// Store is an in-process record store. Change notifications are delivered
// synchronously on the mutating goroutine after the store lock is released.
type Store struct {
	mu      sync.RWMutex
	records map[recordstore.Path][]byte

	subsMu  sync.RWMutex
	subs    map[uint64]subscription
	nextSub atomic.Uint64
}

type subscription struct {
	root recordstore.Path
	fn   recordstore.ChangeFunc
}

func New() *Store {
	return &Store{
		records: make(map[recordstore.Path][]byte),
		subs:    make(map[uint64]subscription),
	}
}

func (s *Store) Read(ctx context.Context, path recordstore.Path) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[path]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(v), nil
}

func (s *Store) Write(ctx context.Context, path recordstore.Path, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.records[path] = clone(value)
	s.mu.Unlock()
	s.notify(recordstore.Change{Path: path, Kind: recordstore.ChangeWritten})
	return nil
}

func (s *Store) Create(ctx context.Context, path recordstore.Path, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.records[path]; ok {
		s.mu.Unlock()
		return sentinel.ErrAlreadyExists
	}
	s.records[path] = clone(value)
	s.mu.Unlock()
	s.notify(recordstore.Change{Path: path, Kind: recordstore.ChangeWritten})
	return nil
}

func (s *Store) Update(ctx context.Context, path recordstore.Path, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	merged, err := recordstore.MergeFields(s.records[path], fields)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.records[path] = merged
	s.mu.Unlock()
	s.notify(recordstore.Change{Path: path, Kind: recordstore.ChangeWritten})
	return nil
}

func (s *Store) Push(ctx context.Context, collection recordstore.Path) (recordstore.Path, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// v7 ids sort by creation time, like the push ids of hosted realtime stores.
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return collection.Child(id.String()), nil
}

func (s *Store) Delete(ctx context.Context, path recordstore.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	var removed []recordstore.Path
	for p := range s.records {
		if p.Within(path) {
			delete(s.records, p)
			removed = append(removed, p)
		}
	}
	s.mu.Unlock()
	for _, p := range removed {
		s.notify(recordstore.Change{Path: p, Kind: recordstore.ChangeDeleted})
	}
	return nil
}

func (s *Store) Children(ctx context.Context, collection recordstore.Path) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte)
	for p, v := range s.records {
		if p.Parent() == collection {
			out[p.Base()] = clone(v)
		}
	}
	return out, nil
}

func (s *Store) Subscribe(ctx context.Context, path recordstore.Path, fn recordstore.ChangeFunc) (recordstore.Unsubscribe, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := s.nextSub.Add(1)
	s.subsMu.Lock()
	s.subs[id] = subscription{root: path, fn: fn}
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}, nil
}

func (s *Store) Transact(ctx context.Context, path recordstore.Path, fn recordstore.TxFunc) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	current, exists := s.records[path]
	next, err := fn(clone(current), exists)
	if errors.Is(err, recordstore.ErrRemove) {
		delete(s.records, path)
		s.mu.Unlock()
		if exists {
			s.notify(recordstore.Change{Path: path, Kind: recordstore.ChangeDeleted})
		}
		return nil, nil
	}
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.records[path] = clone(next)
	s.mu.Unlock()
	s.notify(recordstore.Change{Path: path, Kind: recordstore.ChangeWritten})
	return clone(next), nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) notify(change recordstore.Change) {
	s.subsMu.RLock()
	var fns []recordstore.ChangeFunc
	for _, sub := range s.subs {
		if change.Path.Within(sub.root) {
			fns = append(fns, sub.fn)
		}
	}
	s.subsMu.RUnlock()
	for _, fn := range fns {
		fn(change)
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
