// Package events publishes order lifecycle events to downstream consumers.
//
// Publishing is best-effort: a failed publish is logged and counted but never
// fails the order operation that produced the event.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	orderModels "homechef/internal/order/models"
	id "homechef/pkg/domain"
)

// Type names an event.
type Type string

const (
	TypeOrderPlaced        Type = "order.placed"
	TypeOrderStatusChanged Type = "order.status_changed"
)

// Event is the wire shape shared by every backend.
type Event struct {
	ID             string             `json:"id"`
	Type           Type               `json:"type"`
	OrderID        id.OrderID         `json:"orderId"`
	UserID         id.UserID          `json:"userId"`
	ProviderID     id.UserID          `json:"providerId"`
	Status         orderModels.Status `json:"status"`
	PreviousStatus orderModels.Status `json:"previousStatus,omitempty"`
	TotalAmount    id.Money           `json:"totalAmount"`
	OccurredAt     time.Time          `json:"occurredAt"`
}

// Key partitions events so one order's events stay ordered.
func (e Event) Key() string {
	return e.OrderID.String()
}

// OrderPlaced builds the event for a newly created order.
func OrderPlaced(order orderModels.Order, at time.Time) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        TypeOrderPlaced,
		OrderID:     order.ID,
		UserID:      order.UserID,
		ProviderID:  order.ProviderID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		OccurredAt:  at,
	}
}

// StatusChanged builds the event for a status transition.
func StatusChanged(order orderModels.Order, previous orderModels.Status, at time.Time) Event {
	e := OrderPlaced(order, at)
	e.Type = TypeOrderStatusChanged
	e.PreviousStatus = previous
	return e
}

// Publisher delivers events to one backend.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// LogPublisher writes events to the structured log. It is the default when no
// broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.InfoContext(ctx, "order event",
		"event_id", event.ID,
		"type", string(event.Type),
		"order_id", event.OrderID.String(),
		"provider_id", event.ProviderID.String(),
		"status", event.Status.String(),
		"previous_status", event.PreviousStatus.String(),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
