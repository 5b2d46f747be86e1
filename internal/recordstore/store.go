// Package recordstore is the path-addressed document store the cart and order
// services persist through. Values are JSON documents; paths are slash-joined
// segments such as "users/{uid}/cart/{itemID}".
//
// Backends live in subpackages (memory, redis, postgres) and share the
// contract below. There are no transactions across paths; Transact is atomic
// for a single path only.
package recordstore

import (
	"context"
	"errors"
	"strings"
)

// Path addresses one record or a collection of records.
type Path string

// Join builds a path from segments, skipping empty ones.
func Join(segments ...string) Path {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return Path(strings.Join(parts, "/"))
}

// Child returns the path of a direct child.
func (p Path) Child(segment string) Path {
	return Join(string(p), segment)
}

// Parent returns the enclosing collection, or "" for a top-level path.
func (p Path) Parent() Path {
	i := strings.LastIndexByte(string(p), '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}

// Base returns the last segment.
func (p Path) Base() string {
	i := strings.LastIndexByte(string(p), '/')
	return string(p[i+1:])
}

// Within reports whether p equals root or lies beneath it.
func (p Path) Within(root Path) bool {
	if root == "" || p == root {
		return true
	}
	return strings.HasPrefix(string(p), string(root)+"/")
}

// Ancestors returns every proper ancestor, nearest first.
func (p Path) Ancestors() []Path {
	var out []Path
	for cur := p.Parent(); cur != ""; cur = cur.Parent() {
		out = append(out, cur)
	}
	return out
}

func (p Path) String() string { return string(p) }

// ChangeKind distinguishes writes from deletions in change notifications.
type ChangeKind string

const (
	ChangeWritten ChangeKind = "written"
	ChangeDeleted ChangeKind = "deleted"
)

// Change describes one record mutation. Subscribers re-read the path when they
// need the value.
type Change struct {
	Path Path       `json:"path"`
	Kind ChangeKind `json:"kind"`
}

// ChangeFunc receives change notifications. It runs on the backend's
// notification goroutine and must not block on store writes to the same path.
type ChangeFunc func(Change)

// Unsubscribe stops a subscription. Safe to call more than once.
type Unsubscribe func()

// TxFunc computes the next value of a record from its current value.
// Returning an error aborts the transaction and is passed back unchanged,
// except ErrRemove, which deletes the record instead of writing it.
type TxFunc func(current []byte, exists bool) ([]byte, error)

// ErrRemove is returned by a TxFunc to delete the record at the transacted
// path. Only that record goes; records beneath it are kept. Transact then
// returns a nil value and a nil error.
var ErrRemove = errors.New("remove record")

// Store is the record store contract.
type Store interface {
	// Read returns the value at path or sentinel.ErrNotFound.
	Read(ctx context.Context, path Path) ([]byte, error)
	// Write replaces the value at path.
	Write(ctx context.Context, path Path, value []byte) error
	// Create writes value only when path is empty, else sentinel.ErrAlreadyExists.
	Create(ctx context.Context, path Path, value []byte) error
	// Update merges top-level fields into the JSON object at path, creating it when absent.
	Update(ctx context.Context, path Path, fields map[string]any) error
	// Push returns a new unique child path of collection without writing it.
	Push(ctx context.Context, collection Path) (Path, error)
	// Delete removes path and everything beneath it. Deleting nothing is not an error.
	Delete(ctx context.Context, path Path) error
	// Children returns the values of the direct children of collection keyed by segment.
	Children(ctx context.Context, collection Path) (map[string][]byte, error)
	// Subscribe calls fn for every change at or beneath path until unsubscribed.
	Subscribe(ctx context.Context, path Path, fn ChangeFunc) (Unsubscribe, error)
	// Transact atomically replaces the value at path with fn's result and returns it.
	Transact(ctx context.Context, path Path, fn TxFunc) ([]byte, error)
}
