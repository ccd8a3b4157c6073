package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OrderEvent describes a committed change to an order.
type OrderEvent struct {
	Type       string    `json:"type"`
	OrderID    uuid.UUID `json:"order_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	Status     string    `json:"status"`
	TotalPrice string    `json:"total_price"`
	At         time.Time `json:"at"`
}

// EventPublisher receives order events after commit. Publish must not block.
type EventPublisher interface {
	Publish(ctx context.Context, ev OrderEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, OrderEvent) {}

func (s *OrderService) publish(ctx context.Context, typ string, d *OrderDetail) {
	if d == nil {
		return
	}
	s.events.Publish(ctx, OrderEvent{
		Type:       typ,
		OrderID:    d.Order.ID,
		OwnerID:    d.Order.OwnerID,
		Status:     string(d.Order.Status),
		TotalPrice: d.Total().StringFixed(MoneyPlaces),
		At:         time.Now().UTC(),
	})
}
