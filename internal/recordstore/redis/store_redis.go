package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"homechef/internal/recordstore"
	"homechef/pkg/platform/sentinel"
)

const (
	// valueKeyPrefix holds the JSON document for a path.
	valueKeyPrefix = "rs:v:"
	// childKeyPrefix holds the set of child segments of a path.
	childKeyPrefix = "rs:c:"
	// channelPrefix is the Pub/Sub channel a path's changes are published on.
	channelPrefix = "rs:ch:"

	defaultMaxRetries = 16
)

// Store is a Redis-backed record store. Values are plain string keys and
// every ancestor of a written path carries a set of its child segments, so
// Children and Delete never scan the keyspace.
//
// Path segments must not contain glob metacharacters; Subscribe builds
// PSUBSCRIBE patterns from them.
type Store struct {
	client     *redis.Client
	maxRetries int
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRetries bounds optimistic retries for Transact.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
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

func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client:     client,
		maxRetries: defaultMaxRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func valueKey(p recordstore.Path) string { return valueKeyPrefix + string(p) }
func childKey(p recordstore.Path) string { return childKeyPrefix + string(p) }
func channel(p recordstore.Path) string  { return channelPrefix + string(p) }

func (s *Store) Read(ctx context.Context, path recordstore.Path) ([]byte, error) {
	raw, err := s.client.Get(ctx, valueKey(path)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return raw, nil
}

func (s *Store) Write(ctx context.Context, path recordstore.Path, value []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, valueKey(path), value, 0)
		index(ctx, pipe, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.publish(ctx, recordstore.Change{Path: path, Kind: recordstore.ChangeWritten})
	return nil
}

func (s *Store) Create(ctx context.Context, path recordstore.Path, value []byte) error {
	created, err := s.client.SetNX(ctx, valueKey(path), value, 0).Result()
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if !created {
		return sentinel.ErrAlreadyExists
	}
	if _, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		index(ctx, pipe, path)
		return nil
	}); err != nil {
		return fmt.Errorf("index %s: %w", path, err)
	}
	s.publish(ctx, recordstore.Change{Path: path, Kind: recordstore.ChangeWritten})
	return nil
}

func (s *Store) Update(ctx context.Context, path recordstore.Path, fields map[string]any) error {
	_, err := s.Transact(ctx, path, func(current []byte, _ bool) ([]byte, error) {
		return recordstore.MergeFields(current, fields)
	})
	return err
}

func (s *Store) Push(_ context.Context, collection recordstore.Path) (recordstore.Path, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate push id: %w", err)
	}
	return collection.Child(id.String()), nil
}

func (s *Store) Delete(ctx context.Context, path recordstore.Path) error {
	subtree, err := s.subtree(ctx, path)
	if err != nil {
		return err
	}

	dels := make([]*redis.IntCmd, len(subtree))
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, p := range subtree {
			dels[i] = pipe.Del(ctx, valueKey(p))
			pipe.Del(ctx, childKey(p))
		}
		if parent := path.Parent(); parent != "" {
			pipe.SRem(ctx, childKey(parent), path.Base())
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}

	for i, p := range subtree {
		if dels[i].Val() > 0 {
			s.publish(ctx, recordstore.Change{Path: p, Kind: recordstore.ChangeDeleted})
		}
	}
	return nil
}

// subtree walks the child index breadth-first from root.
func (s *Store) subtree(ctx context.Context, root recordstore.Path) ([]recordstore.Path, error) {
	out := []recordstore.Path{root}
	for i := 0; i < len(out); i++ {
		children, err := s.client.SMembers(ctx, childKey(out[i])).Result()
		if err != nil {
			return nil, fmt.Errorf("list children of %s: %w", out[i], err)
		}
		for _, c := range children {
			out = append(out, out[i].Child(c))
		}
	}
	return out, nil
}

func (s *Store) Children(ctx context.Context, collection recordstore.Path) (map[string][]byte, error) {
	segments, err := s.client.SMembers(ctx, childKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", collection, err)
	}
	out := make(map[string][]byte, len(segments))
	if len(segments) == 0 {
		return out, nil
	}

	keys := make([]string, len(segments))
	for i, seg := range segments {
		keys[i] = valueKey(collection.Child(seg))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read children of %s: %w", collection, err)
	}
	for i, v := range values {
		// Segments that only exist as ancestors of deeper records have no value.
		str, ok := v.(string)
		if !ok {
			continue
		}
		out[segments[i]] = []byte(str)
	}
	return out, nil
}

// Subscribe listens on the path's own channel and on every channel beneath
// it. It returns once Redis has confirmed both patterns, so writes issued
// after Subscribe returns are observed.
func (s *Store) Subscribe(ctx context.Context, path recordstore.Path, fn recordstore.ChangeFunc) (recordstore.Unsubscribe, error) {
	patterns := []string{channel(path), channel(path) + "/*"}
	ps := s.client.PSubscribe(ctx, patterns...)
	for range patterns {
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("subscribe %s: %w", path, err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var change recordstore.Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				s.logger.Warn("discarding malformed change notification",
					"channel", msg.Channel,
					"error", err,
				)
				continue
			}
			fn(change)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = ps.Close()
			<-done
		})
	}, nil
}

// Transact runs fn under WATCH on the value key and commits with MULTI/EXEC.
// A concurrent writer aborts the EXEC and fn is retried on fresh data; after
// maxRetries aborts sentinel.ErrConflict is returned.
func (s *Store) Transact(ctx context.Context, path recordstore.Path, fn recordstore.TxFunc) ([]byte, error) {
	key := valueKey(path)
	var (
		next    []byte
		removed bool
	)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists, current = false, nil
		} else if err != nil {
			return err
		}

		next, err = fn(current, exists)
		removed = false
		if errors.Is(err, recordstore.ErrRemove) {
			next = nil
			if !exists {
				return nil
			}
			removed = true
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			return err
		}
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			index(ctx, pipe, path)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		switch {
		case removed:
			s.publish(ctx, recordstore.Change{Path: path, Kind: recordstore.ChangeDeleted})
		case next != nil:
			s.publish(ctx, recordstore.Change{Path: path, Kind: recordstore.ChangeWritten})
		}
		return next, nil
	}
	return nil, fmt.Errorf("transact %s: %w", path, sentinel.ErrConflict)
}

// index registers path in the child set of each of its ancestors.
func index(ctx context.Context, pipe redis.Pipeliner, path recordstore.Path) {
	for cur := path; cur.Parent() != ""; cur = cur.Parent() {
		pipe.SAdd(ctx, childKey(cur.Parent()), cur.Base())
	}
}

// publish is best effort: the write already succeeded and subscribers
// resynchronise on the next change.
func (s *Store) publish(ctx context.Context, change recordstore.Change) {
	payload, err := json.Marshal(change)
	if err != nil {
		return
	}
	if err := s.client.Publish(ctx, channel(change.Path), payload).Err(); err != nil {
		s.logger.WarnContext(ctx, "failed to publish change notification",
			"path", change.Path.String(),
			"error", err,
		)
	}
}
