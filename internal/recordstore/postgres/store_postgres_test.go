package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/suite"

	"homechef/internal/recordstore"
	"homechef/pkg/platform/sentinel"
)

type PostgresStoreSuite struct {
	suite.Suite
	mock  sqlmock.Sqlmock
	store *Store
	now   time.Time
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })

	s.mock = mock
	s.now = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	s.store = New(db, "", WithClock(func() time.Time { return s.now }))
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
}

func (s *PostgresStoreSuite) TestReadMissing() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`SELECT value FROM records WHERE path = $1`)).
		WithArgs("orders/o1").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, err := s.store.Read(s.ctx, "orders/o1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestCreateExisting() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(`INSERT INTO records .* ON CONFLICT \(path\) DO NOTHING`).
		WithArgs("orders/o1", "orders", []byte(`{}`), s.now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectRollback()

	err := s.store.Create(s.ctx, "orders/o1", []byte(`{}`))
	s.ErrorIs(err, sentinel.ErrAlreadyExists)
}

func (s *PostgresStoreSuite) TestWriteNotifiesInTransaction() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(`pg_advisory_xact_lock`).
		WithArgs("users/u1/cart/i1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectExec(`INSERT INTO records`).
		WithArgs("users/u1/cart/i1", "users/u1/cart", []byte(`{"quantity":1}`), s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_notify($1, $2)`)).
		WithArgs("records", `{"path":"users/u1/cart/i1","kind":"written"}`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectCommit()

	s.Require().NoError(s.store.Write(s.ctx, "users/u1/cart/i1", []byte(`{"quantity":1}`)))
}

func (s *PostgresStoreSuite) TestDeleteNotifiesEveryRemovedPath() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)).
		WithArgs("users/u1/cart").
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectExec(`pg_advisory_xact_lock\(hashtext\(path\)\)`).
		WithArgs("users/u1/cart").
		WillReturnResult(sqlmock.NewResult(0, 2))
	s.mock.ExpectQuery(`DELETE FROM records`).
		WithArgs("users/u1/cart").
		WillReturnRows(sqlmock.NewRows([]string{"path"}).
			AddRow("users/u1/cart/a").
			AddRow("users/u1/cart/b"))
	for _, p := range []string{"users/u1/cart/a", "users/u1/cart/b"} {
		s.mock.ExpectExec(`pg_notify`).
			WithArgs("records", `{"path":"`+p+`","kind":"deleted"}`).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	s.mock.ExpectCommit()

	s.Require().NoError(s.store.Delete(s.ctx, "users/u1/cart"))
}

func (s *PostgresStoreSuite) TestWriteLockFailureWritesNothing() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(`pg_advisory_xact_lock`).
		WithArgs("users/u1/cart/i1").
		WillReturnError(errors.New("canceling statement due to lock timeout"))
	s.mock.ExpectRollback()

	err := s.store.Write(s.ctx, "users/u1/cart/i1", []byte(`{"quantity":1}`))
	s.ErrorContains(err, "lock users/u1/cart/i1")
}

func (s *PostgresStoreSuite) TestTransact() {
	path := recordstore.Path("providers/p1/stats")

	s.Run("writes computed value under advisory lock", func() {
		s.mock.ExpectBegin()
		s.mock.ExpectExec(`pg_advisory_xact_lock`).
			WithArgs(path.String()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectQuery(`SELECT value FROM records`).
			WithArgs(path.String()).
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"n":1}`)))
		s.mock.ExpectExec(`INSERT INTO records`).
			WithArgs(path.String(), "providers/p1", []byte(`{"n":2}`), s.now).
			WillReturnResult(sqlmock.NewResult(0, 1))
		s.mock.ExpectExec(`pg_notify`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectCommit()

		out, err := s.store.Transact(s.ctx, path, func(current []byte, exists bool) ([]byte, error) {
			s.True(exists)
			s.JSONEq(`{"n":1}`, string(current))
			return []byte(`{"n":2}`), nil
		})
		s.Require().NoError(err)
		s.JSONEq(`{"n":2}`, string(out))
	})

	s.Run("abort rolls back and returns the callback error", func() {
		boom := errors.New("boom")
		s.mock.ExpectBegin()
		s.mock.ExpectExec(`pg_advisory_xact_lock`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectQuery(`SELECT value FROM records`).
			WillReturnRows(sqlmock.NewRows([]string{"value"}))
		s.mock.ExpectRollback()

		_, err := s.store.Transact(s.ctx, path, func(_ []byte, exists bool) ([]byte, error) {
			s.False(exists)
			return nil, boom
		})
		s.ErrorIs(err, boom)
	})
}

func (s *PostgresStoreSuite) TestTransactRemove() {
	path := recordstore.Path("users/u1/cart/a")

	s.Run("deletes the record under the lock", func() {
		s.mock.ExpectBegin()
		s.mock.ExpectExec(`pg_advisory_xact_lock`).
			WithArgs(path.String()).
			WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectQuery(`SELECT value FROM records`).
			WithArgs(path.String()).
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`{"quantity":1}`)))
		s.mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM records WHERE path = $1`)).
			WithArgs(path.String()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		s.mock.ExpectExec(`pg_notify`).
			WithArgs("records", `{"path":"users/u1/cart/a","kind":"deleted"}`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectCommit()

		out, err := s.store.Transact(s.ctx, path, func([]byte, bool) ([]byte, error) {
			return nil, recordstore.ErrRemove
		})
		s.Require().NoError(err)
		s.Nil(out)
	})

	s.Run("missing record commits without a statement", func() {
		s.mock.ExpectBegin()
		s.mock.ExpectExec(`pg_advisory_xact_lock`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		s.mock.ExpectQuery(`SELECT value FROM records`).
			WillReturnRows(sqlmock.NewRows([]string{"value"}))
		s.mock.ExpectCommit()

		out, err := s.store.Transact(s.ctx, path, func([]byte, bool) ([]byte, error) {
			return nil, recordstore.ErrRemove
		})
		s.Require().NoError(err)
		s.Nil(out)
	})
}

func (s *PostgresStoreSuite) TestSubscribeWithoutDSN() {
	_, err := s.store.Subscribe(s.ctx, "users/u1/cart", func(recordstore.Change) {})
	s.Error(err)
}
