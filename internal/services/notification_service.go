package services

import (
	"context"
	"fmt"

	"orderbridge/internal/common"
	"orderbridge/internal/models"
	"orderbridge/internal/realtime"
	"orderbridge/internal/repositories"

	"github.com/google/uuid"
)

// NotificationInput is a message addressed to one user.
type NotificationInput struct {
	TargetUserID      uuid.UUID
	Type              string
	Title             string
	Message           string
	RelatedEntityType string
	RelatedEntityID   *uuid.UUID
}

// NotificationService persists notifications and pushes them in real time.
type NotificationService interface {
	Dispatch(ctx context.Context, in NotificationInput) (*models.Notification, error)
	ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
}

type notificationService struct {
	repo      repositories.NotificationRepository
	publisher realtime.Publisher
}

func NewNotificationService(repo repositories.NotificationRepository, publisher realtime.Publisher) NotificationService {
	return &notificationService{repo: repo, publisher: publisher}
}

func (s *notificationService) Dispatch(ctx context.Context, in NotificationInput) (*models.Notification, error) {
	if in.TargetUserID == uuid.Nil {
		return nil, common.InvalidInput("dispatch notification", "target user is required")
	}
	n := &models.Notification{
		UserID:          in.TargetUserID,
		Type:            in.Type,
		Title:           in.Title,
		Message:         in.Message,
		RelatedEntityID: in.RelatedEntityID,
	}
	if in.RelatedEntityType != "" {
		entityType := in.RelatedEntityType
		n.RelatedEntityType = &entityType
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}
	s.publisher.Notify(ctx, n)
	return n, nil
}

func (s *notificationService) ListForUser(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, common.SecureErrorMessage("list notifications", err)
	}
	return notifications, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}
