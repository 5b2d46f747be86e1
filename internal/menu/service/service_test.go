package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"homechef/internal/menu/models"
	"homechef/internal/platform/metrics"
	"homechef/internal/recordstore"
	"homechef/internal/recordstore/memory"
	"homechef/internal/recordstore/storetest"
	id "homechef/pkg/domain"
	dErrors "homechef/pkg/domain-errors"
	"homechef/pkg/platform/sentinel"
	"homechef/pkg/requestcontext"
)

type MenuServiceSuite struct {
	suite.Suite
	records *storetest.Faulty
	metrics *metrics.Metrics
	service *Service
	ctx     context.Context
	now     time.Time
}

func TestMenuServiceSuite(t *testing.T) {
	suite.Run(t, new(MenuServiceSuite))
}

func (s *MenuServiceSuite) SetupTest() {
	s.records = storetest.NewFaulty(memory.New())
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.now = time.Date(2025, 5, 3, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.service = New(s.records,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
	)
}

func details(name string) models.Details {
	return models.Details{
		Name:        name,
		Description: name + " made fresh",
		Price:       decimal.RequireFromString("9.50"),
		Category:    models.CategoryMainCourse,
		ImageURL:    "https://img.example.com/dish.jpg",
	}
}

func (s *MenuServiceSuite) create(providerID id.UserID, name string) models.MenuItem {
	item, err := s.service.Create(s.ctx, providerID, details(name))
	s.Require().NoError(err)
	return item
}

func (s *MenuServiceSuite) TestCreateStoresUnderMenuItems() {
	item := s.create("chef-1", "Egusi")

	s.False(item.ID.IsNil())
	s.Equal(models.StatusActive, item.Status)
	s.True(s.now.Equal(item.CreatedAt))

	stored, err := recordstore.ReadJSON[models.MenuItem](s.ctx, s.records, ItemsPath.Child(item.ID.String()))
	s.Require().NoError(err)
	s.Equal(id.UserID("chef-1"), stored.ProviderID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.MenuChanges.WithLabelValues("create")))
}

func (s *MenuServiceSuite) TestCreateValidates() {
	bad := details("Egusi")
	bad.Price = decimal.Zero

	_, err := s.service.Create(s.ctx, "chef-1", bad)

	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Zero(s.records.Calls(storetest.OpCreate))
}

func (s *MenuServiceSuite) TestCreateWriteFailureIsInternal() {
	s.records.FailOn(storetest.OpCreate, 0, errors.New("disk full"))

	_, err := s.service.Create(s.ctx, "chef-1", details("Egusi"))

	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *MenuServiceSuite) TestUpdate() {
	item := s.create("chef-1", "Egusi")
	price := decimal.RequireFromString("11")

	s.Run("owner changes price", func() {
		later := requestcontext.WithTime(s.ctx, s.now.Add(time.Hour))
		got, err := s.service.Update(later, "chef-1", item.ID, models.Patch{Price: &price})
		s.Require().NoError(err)
		s.True(price.Equal(got.Price))
		s.True(s.now.Add(time.Hour).Equal(got.UpdatedAt))
	})

	s.Run("another provider is forbidden", func() {
		_, err := s.service.Update(s.ctx, "chef-2", item.ID, models.Patch{Price: &price})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("missing item is not found", func() {
		_, err := s.service.Update(s.ctx, "chef-1", "nope", models.Patch{Price: &price})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("invalid patch is a validation error", func() {
		blank := " "
		_, err := s.service.Update(s.ctx, "chef-1", item.ID, models.Patch{Name: &blank})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *MenuServiceSuite) TestDelete() {
	item := s.create("chef-1", "Egusi")

	err := s.service.Delete(s.ctx, "chef-2", item.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.Require().NoError(s.service.Delete(s.ctx, "chef-1", item.ID))
	_, err = s.records.Read(s.ctx, Path(item.ID))
	s.ErrorIs(err, sentinel.ErrNotFound)

	err = s.service.Delete(s.ctx, "chef-1", item.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *MenuServiceSuite) TestList() {
	a := s.create("chef-1", "Egusi")
	b := s.create("chef-2", "Suya")
	c := s.create("chef-1", "Puff puff")
	inactive := models.StatusInactive
	_, err := s.service.Update(s.ctx, "chef-1", c.ID, models.Patch{Status: &inactive})
	s.Require().NoError(err)

	tests := []struct {
		name   string
		filter Filter
		want   []id.ItemID
	}{
		{"everyone's active items", Filter{}, []id.ItemID{a.ID, b.ID}},
		{"one provider", Filter{ProviderID: "chef-1"}, []id.ItemID{a.ID}},
		{"provider dashboard", Filter{ProviderID: "chef-1", IncludeInactive: true}, []id.ItemID{a.ID, c.ID}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			items, err := s.service.List(s.ctx, tt.filter)
			s.Require().NoError(err)
			got := make([]id.ItemID, len(items))
			for i, item := range items {
				got[i] = item.ID
			}
			s.Equal(tt.want, got)
		})
	}
}

func (s *MenuServiceSuite) TestCartItem() {
	item := s.create("chef-1", "Egusi")

	s.Run("active item resolves", func() {
		line, err := s.service.CartItem(s.ctx, item.ID)
		s.Require().NoError(err)
		s.Equal(item.ID, line.ID)
		s.Equal(id.UserID("chef-1"), line.ProviderID)
		s.True(decimal.RequireFromString("9.50").Equal(line.Price))
	})

	s.Run("inactive item is unavailable", func() {
		inactive := models.StatusInactive
		_, err := s.service.Update(s.ctx, "chef-1", item.ID, models.Patch{Status: &inactive})
		s.Require().NoError(err)

		_, err = s.service.CartItem(s.ctx, item.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unknown item is not found", func() {
		_, err := s.service.CartItem(s.ctx, "nope")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
