// Package storetest holds the behavioural contract every record store backend
// must satisfy. Backend test files embed ContractSuite and supply NewStore.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"homechef/internal/recordstore"
	"homechef/pkg/platform/sentinel"
)

// ContractSuite exercises a recordstore.Store. NewStore must return an empty
// store for every test.
type ContractSuite struct {
	suite.Suite
	NewStore func() recordstore.Store

	store recordstore.Store
	ctx   context.Context
}

func (s *ContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore()
}

func (s *ContractSuite) TestReadWrite() {
	s.Run("missing path is not found", func() {
		_, err := s.store.Read(s.ctx, "orders/missing")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("write replaces value", func() {
		path := recordstore.Join("orders", "o-1")
		s.Require().NoError(s.store.Write(s.ctx, path, []byte(`{"status":"pending","total":"10"}`)))
		s.Require().NoError(s.store.Write(s.ctx, path, []byte(`{"status":"shipping"}`)))

		got, err := s.store.Read(s.ctx, path)
		s.Require().NoError(err)
		s.JSONEq(`{"status":"shipping"}`, string(got))
	})
}

func (s *ContractSuite) TestCreate() {
	path := recordstore.Join("orders", "o-create")
	s.Require().NoError(s.store.Create(s.ctx, path, []byte(`{"n":1}`)))

	err := s.store.Create(s.ctx, path, []byte(`{"n":2}`))
	s.Require().ErrorIs(err, sentinel.ErrAlreadyExists)

	got, err := s.store.Read(s.ctx, path)
	s.Require().NoError(err)
	s.JSONEq(`{"n":1}`, string(got))
}

func (s *ContractSuite) TestUpdate() {
	path := recordstore.Join("users", "u1", "cart", "item-1")

	s.Run("creates missing record", func() {
		s.Require().NoError(s.store.Update(s.ctx, path, map[string]any{"quantity": 1}))
		got, err := s.store.Read(s.ctx, path)
		s.Require().NoError(err)
		s.JSONEq(`{"quantity":1}`, string(got))
	})

	s.Run("merges top-level fields", func() {
		s.Require().NoError(s.store.Update(s.ctx, path, map[string]any{"name": "Rajma"}))
		s.Require().NoError(s.store.Update(s.ctx, path, map[string]any{"quantity": 4}))
		got, err := s.store.Read(s.ctx, path)
		s.Require().NoError(err)
		s.JSONEq(`{"quantity":4,"name":"Rajma"}`, string(got))
	})
}

func (s *ContractSuite) TestDeleteSubtree() {
	a := recordstore.Join("users", "u1", "cart", "a")
	b := recordstore.Join("users", "u1", "cart", "b")
	profile := recordstore.Join("users", "u1", "profile")
	other := recordstore.Join("users", "u10", "cart", "a")
	for _, p := range []recordstore.Path{a, b, profile, other} {
		s.Require().NoError(s.store.Write(s.ctx, p, []byte(`{}`)))
	}

	s.Require().NoError(s.store.Delete(s.ctx, recordstore.Join("users", "u1", "cart")))

	children, err := s.store.Children(s.ctx, recordstore.Join("users", "u1", "cart"))
	s.Require().NoError(err)
	s.Empty(children)

	_, err = s.store.Read(s.ctx, profile)
	s.NoError(err, "sibling subtree must survive")
	_, err = s.store.Read(s.ctx, other)
	s.NoError(err, "paths sharing a string prefix must survive")

	s.NoError(s.store.Delete(s.ctx, "nothing/here"))
}

func (s *ContractSuite) TestChildren() {
	s.Require().NoError(s.store.Write(s.ctx, "orders/o1", []byte(`{"id":"o1"}`)))
	s.Require().NoError(s.store.Write(s.ctx, "orders/o2", []byte(`{"id":"o2"}`)))
	s.Require().NoError(s.store.Write(s.ctx, "orders/o2/notes/n1", []byte(`{}`)))
	s.Require().NoError(s.store.Write(s.ctx, "ordersx/o3", []byte(`{}`)))

	children, err := s.store.Children(s.ctx, "orders")
	s.Require().NoError(err)
	s.Len(children, 2)
	s.JSONEq(`{"id":"o1"}`, string(children["o1"]))
	s.JSONEq(`{"id":"o2"}`, string(children["o2"]))
}

func (s *ContractSuite) TestPush() {
	p1, err := s.store.Push(s.ctx, "orders")
	s.Require().NoError(err)
	p2, err := s.store.Push(s.ctx, "orders")
	s.Require().NoError(err)

	s.NotEqual(p1, p2)
	s.Equal(recordstore.Path("orders"), p1.Parent())
	_, err = s.store.Read(s.ctx, p1)
	s.ErrorIs(err, sentinel.ErrNotFound, "push must not write")
}

func (s *ContractSuite) TestTransact() {
	path := recordstore.Join("providers", "p1", "stats")

	s.Run("serialises concurrent increments", func() {
		const writers = 20
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := recordstore.TransactJSON(s.ctx, s.store, path, func(cur counter, _ bool) (counter, error) {
					cur.N++
					return cur, nil
				})
				s.NoError(err)
			}()
		}
		wg.Wait()

		got, err := recordstore.ReadJSON[counter](s.ctx, s.store, path)
		s.Require().NoError(err)
		s.Equal(writers, got.N)
	})

	s.Run("abort leaves value unchanged", func() {
		boom := errors.New("boom")
		_, err := s.store.Transact(s.ctx, path, func([]byte, bool) ([]byte, error) {
			return nil, boom
		})
		s.Require().ErrorIs(err, boom)

		got, err := recordstore.ReadJSON[counter](s.ctx, s.store, path)
		s.Require().NoError(err)
		s.Equal(20, got.N)
	})

	s.Run("reports absence", func() {
		var sawExists bool
		out, err := s.store.Transact(s.ctx, "providers/p2/stats", func(_ []byte, exists bool) ([]byte, error) {
			sawExists = exists
			return json.Marshal(counter{N: 1})
		})
		s.Require().NoError(err)
		s.False(sawExists)
		s.JSONEq(`{"n":1}`, string(out))
	})
}

func (s *ContractSuite) TestTransactRemove() {
	line := recordstore.Join("users", "u1", "cart", "a")
	nested := line.Child("note")
	s.Require().NoError(s.store.Write(s.ctx, line, []byte(`{"n":1}`)))
	s.Require().NoError(s.store.Write(s.ctx, nested, []byte(`{"n":2}`)))

	s.Run("removes only the record", func() {
		out, err := s.store.Transact(s.ctx, line, func(current []byte, exists bool) ([]byte, error) {
			s.True(exists)
			return nil, recordstore.ErrRemove
		})
		s.Require().NoError(err)
		s.Nil(out)

		_, err = s.store.Read(s.ctx, line)
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.Read(s.ctx, nested)
		s.NoError(err)
	})

	s.Run("typed remove returns the zero value", func() {
		got, err := recordstore.TransactJSON(s.ctx, s.store, nested, func(counter, bool) (counter, error) {
			return counter{}, recordstore.ErrRemove
		})
		s.Require().NoError(err)
		s.Zero(got.N)
		_, err = s.store.Read(s.ctx, nested)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("removing nothing succeeds", func() {
		_, err := s.store.Transact(s.ctx, "users/u1/cart/missing", func(_ []byte, exists bool) ([]byte, error) {
			s.False(exists)
			return nil, recordstore.ErrRemove
		})
		s.NoError(err)
	})
}

func (s *ContractSuite) TestSubscribe() {
	var (
		mu      sync.Mutex
		changes []recordstore.Change
	)
	unsubscribe, err := s.store.Subscribe(s.ctx, recordstore.Join("users", "u1", "cart"), func(c recordstore.Change) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c)
	})
	s.Require().NoError(err)

	s.Require().NoError(s.store.Write(s.ctx, "users/u1/cart/a", []byte(`{}`)))
	s.Require().NoError(s.store.Write(s.ctx, "users/u2/cart/a", []byte(`{}`)))
	s.Require().NoError(s.store.Delete(s.ctx, "users/u1/cart/a"))

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) == 2
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	s.Equal(recordstore.Change{Path: "users/u1/cart/a", Kind: recordstore.ChangeWritten}, changes[0])
	s.Equal(recordstore.Change{Path: "users/u1/cart/a", Kind: recordstore.ChangeDeleted}, changes[1])
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	s.Require().NoError(s.store.Write(s.ctx, "users/u1/cart/b", []byte(`{}`)))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	s.Len(changes, 2, "no delivery after unsubscribe")
}

type counter struct {
	N int `json:"n"`
}
