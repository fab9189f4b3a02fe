package realtime

import (
	"context"
	"encoding/json"
	"time"

	"orderbridge/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher is what the order core calls to announce changes.
type Publisher interface {
	LockChanged(ctx context.Context, order *models.Order, reason string)
	StatusChanged(ctx context.Context, order *models.Order, from models.OrderStatus)
	Notify(ctx context.Context, n *models.Notification)
}

// LockPayload describes an edit lease change
type LockPayload struct {
	IsEditing        bool       `json:"is_editing"`
	EditingByUserID  *uuid.UUID `json:"editing_by_user_id,omitempty"`
	EditingStartedAt *time.Time `json:"editing_started_at,omitempty"`
	Reason           string     `json:"reason"`
}

// StatusPayload describes a lifecycle transition
type StatusPayload struct {
	OrderNumber string             `json:"order_number"`
	From        models.OrderStatus `json:"from"`
	To          models.OrderStatus `json:"to"`
	ExternalRef *string            `json:"external_ref,omitempty"`
}

// Broadcaster encodes events and publishes them on the bus. Failures are logged, never returned.
type Broadcaster struct {
	bus Bus
	log *zap.Logger
	now func() time.Time
}

func NewBroadcaster(bus Bus, log *zap.Logger) *Broadcaster {
	return &Broadcaster{bus: bus, log: log.Named("broadcaster"), now: time.Now}
}

func (b *Broadcaster) publish(ctx context.Context, eventType string, orderID *uuid.UUID, payload interface{}, channels ...string) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.log.Warn("failed to encode realtime payload", zap.String("type", eventType), zap.Error(err))
		return
	}
	for _, ch := range channels {
		frame, err := json.Marshal(Event{Type: eventType, Channel: ch, OrderID: orderID, Payload: raw, At: b.now()})
		if err != nil {
			continue
		}
		if err := b.bus.Publish(ctx, ch, frame); err != nil {
			b.log.Warn("failed to publish realtime event",
				zap.String("type", eventType), zap.String("channel", ch), zap.Error(err))
		}
	}
}

func (b *Broadcaster) LockChanged(ctx context.Context, order *models.Order, reason string) {
	id := order.ID
	b.publish(ctx, EventLockChanged, &id, LockPayload{
		IsEditing:        order.IsEditing,
		EditingByUserID:  order.EditingByUserID,
		EditingStartedAt: order.EditingStartedAt,
		Reason:           reason,
	}, ChannelSupervisors, OrderChannel(order.ID))
}

func (b *Broadcaster) StatusChanged(ctx context.Context, order *models.Order, from models.OrderStatus) {
	id := order.ID
	b.publish(ctx, EventStatusChanged, &id, StatusPayload{
		OrderNumber: order.OrderNumber,
		From:        from,
		To:          order.Status,
		ExternalRef: order.ExternalRef,
	}, ChannelSupervisors, OrderChannel(order.ID))
}

func (b *Broadcaster) Notify(ctx context.Context, n *models.Notification) {
	b.publish(ctx, EventNotification, n.RelatedEntityID, n, UserChannel(n.UserID))
}
