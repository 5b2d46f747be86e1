package storetest

import (
	"context"
	"sync"

	"homechef/internal/recordstore"
)

// Op names a Store method for fault injection.
type Op string

const (
	OpRead     Op = "read"
	OpWrite    Op = "write"
	OpCreate   Op = "create"
	OpUpdate   Op = "update"
	OpPush     Op = "push"
	OpDelete   Op = "delete"
	OpChildren Op = "children"
	OpTransact Op = "transact"
)

// Faulty wraps a Store and fails chosen calls. Faults are keyed by operation
// and fire on the nth call (1-based) or on every call when n is 0.
type Faulty struct {
	recordstore.Store

	mu     sync.Mutex
	calls  map[Op]int
	faults map[Op]fault
}

type fault struct {
	nth int
	err error
}

func NewFaulty(inner recordstore.Store) *Faulty {
	return &Faulty{
		Store:  inner,
		calls:  make(map[Op]int),
		faults: make(map[Op]fault),
	}
}

// FailOn makes the nth call of op return err; n == 0 fails every call.
func (f *Faulty) FailOn(op Op, nth int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = fault{nth: nth, err: err}
}

// Heal removes every injected fault.
func (f *Faulty) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = make(map[Op]fault)
}

// Calls returns how many times op was invoked.
func (f *Faulty) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Faulty) check(op Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	ft, ok := f.faults[op]
	if !ok {
		return nil
	}
	if ft.nth == 0 || ft.nth == f.calls[op] {
		return ft.err
	}
	return nil
}

func (f *Faulty) Read(ctx context.Context, path recordstore.Path) ([]byte, error) {
	if err := f.check(OpRead); err != nil {
		return nil, err
	}
	return f.Store.Read(ctx, path)
}

func (f *Faulty) Write(ctx context.Context, path recordstore.Path, value []byte) error {
	if err := f.check(OpWrite); err != nil {
		return err
	}
	return f.Store.Write(ctx, path, value)
}

func (f *Faulty) Create(ctx context.Context, path recordstore.Path, value []byte) error {
	if err := f.check(OpCreate); err != nil {
		return err
	}
	return f.Store.Create(ctx, path, value)
}

func (f *Faulty) Update(ctx context.Context, path recordstore.Path, fields map[string]any) error {
	if err := f.check(OpUpdate); err != nil {
		return err
	}
	return f.Store.Update(ctx, path, fields)
}

func (f *Faulty) Push(ctx context.Context, collection recordstore.Path) (recordstore.Path, error) {
	if err := f.check(OpPush); err != nil {
		return "", err
	}
	return f.Store.Push(ctx, collection)
}

func (f *Faulty) Delete(ctx context.Context, path recordstore.Path) error {
	if err := f.check(OpDelete); err != nil {
		return err
	}
	return f.Store.Delete(ctx, path)
}

func (f *Faulty) Children(ctx context.Context, collection recordstore.Path) (map[string][]byte, error) {
	if err := f.check(OpChildren); err != nil {
		return nil, err
	}
	return f.Store.Children(ctx, collection)
}

func (f *Faulty) Transact(ctx context.Context, path recordstore.Path, fn recordstore.TxFunc) ([]byte, error) {
	if err := f.check(OpTransact); err != nil {
		return nil, err
	}
	return f.Store.Transact(ctx, path, fn)
}
