package models

import (
	"time"

	orderModels "homechef/internal/order/models"
	id "homechef/pkg/domain"
)

// monthLayout keys the monthly window.
const monthLayout = "2006-01"

// ProviderStats is the incrementally maintained per-provider aggregate.
type ProviderStats struct {
	TotalOrders     int64     `json:"totalOrders"`
	TotalRevenue    id.Money  `json:"totalRevenue"`
	MonthlyOrders   int64     `json:"monthlyOrders"`
	MonthlyRevenue  id.Money  `json:"monthlyRevenue"`
	PendingOrders   int64     `json:"pendingOrders"`
	CompletedOrders int64     `json:"completedOrders"`
	CancelledOrders int64     `json:"cancelledOrders"`
	Month           string    `json:"month,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// MonthKey returns the monthly window key for t, in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format(monthLayout)
}

// AsOf returns the stats as they read at instant at: monthly counters from
// an earlier month read as zero.
func (s ProviderStats) AsOf(at time.Time) ProviderStats {
	if s.Month != MonthKey(at) {
		s.MonthlyOrders = 0
		s.MonthlyRevenue = id.ZeroMoney
	}
	return s
}

// ApplyPlaced counts one new pending order worth amount, rolling the monthly
// window over when at falls in a new month.
func (s *ProviderStats) ApplyPlaced(amount id.Money, at time.Time) {
	s.rollover(at)
	s.TotalOrders++
	s.TotalRevenue = s.TotalRevenue.Add(amount)
	s.MonthlyOrders++
	s.MonthlyRevenue = s.MonthlyRevenue.Add(amount)
	s.PendingOrders++
	s.UpdatedAt = at
}

// ApplyTransition adjusts status counters for an order moving from -> to.
// Counters never drop below zero.
func (s *ProviderStats) ApplyTransition(from, to orderModels.Status, at time.Time) {
	if from == orderModels.StatusPending && to != orderModels.StatusPending && s.PendingOrders > 0 {
		s.PendingOrders--
	}
	switch to {
	case orderModels.StatusCompleted:
		s.CompletedOrders++
	case orderModels.StatusCancelled:
		s.CancelledOrders++
	}
	s.UpdatedAt = at
}

func (s *ProviderStats) rollover(at time.Time) {
	month := MonthKey(at)
	if s.Month == month {
		return
	}
	s.Month = month
	s.MonthlyOrders = 0
	s.MonthlyRevenue = id.ZeroMoney
}
