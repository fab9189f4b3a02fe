package services

import (
	"context"
	"fmt"

	"orderbridge/internal/models"
	"orderbridge/internal/realtime"
	"orderbridge/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatusAnnouncer fans a status transition out to the audit trail, the
// real-time channels and every user of the owning company.
type StatusAnnouncer struct {
	users         repositories.UserRepository
	notifications NotificationService
	publisher     realtime.Publisher
	auditor       *Auditor
	log           *zap.Logger
}

func NewStatusAnnouncer(users repositories.UserRepository, notifications NotificationService, publisher realtime.Publisher, auditor *Auditor, log *zap.Logger) *StatusAnnouncer {
	return &StatusAnnouncer{
		users:         users,
		notifications: notifications,
		publisher:     publisher,
		auditor:       auditor,
		log:           log.Named("status"),
	}
}

// Announce records order's move from `from` to its current status.
func (a *StatusAnnouncer) Announce(ctx context.Context, order *models.Order, from models.OrderStatus, changedBy *uuid.UUID, action string) {
	a.auditor.Record("order", order.ID.String(), action, changedBy,
		models.JSONB{"status": string(from)},
		models.JSONB{"status": string(order.Status), "external_ref": order.ExternalRef})
	a.publisher.StatusChanged(ctx, order, from)

	userIDs, err := a.users.ListIDsByCompany(ctx, order.CompanyID)
	if err != nil {
		a.log.Warn("failed to list company users for notification",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		return
	}

	orderID := order.ID
	notificationType := models.NotificationOrderStatus
	if action == models.ActionOrderReconcile {
		notificationType = models.NotificationOrderSynced
	}
	for _, userID := range userIDs {
		_, err := a.notifications.Dispatch(ctx, NotificationInput{
			TargetUserID:      userID,
			Type:              notificationType,
			Title:             fmt.Sprintf("Order %s is now %s", order.OrderNumber, order.Status),
			Message:           fmt.Sprintf("Order %s moved from %s to %s.", order.OrderNumber, from, order.Status),
			RelatedEntityType: "order",
			RelatedEntityID:   &orderID,
		})
		if err != nil {
			a.log.Warn("failed to notify user of status change",
				zap.String("order_id", order.ID.String()), zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
}
