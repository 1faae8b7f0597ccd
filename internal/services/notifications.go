package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"relaychat/internal/models"
	"relaychat/internal/ports"
)

// NotificationsRoom is the single well-known broadcast room for
// externally-sourced notifications. It is global, not tenant-scoped.
const NotificationsRoom = "notifications"

// NotificationService fans ad-hoc notifications out to every connection
// joined to the well-known room and replays the bounded recent history to
// newly joined connections.
type NotificationService struct {
	repo        ports.NotificationRepository
	broadcaster ports.Broadcaster
	historyCap  int
	logger      *slog.Logger
}

func NewNotificationService(repo ports.NotificationRepository, broadcaster ports.Broadcaster, historyCap int, logger *slog.Logger) *NotificationService {
	if historyCap <= 0 || historyCap > 100 {
		historyCap = 100
	}
	return &NotificationService{
		repo:        repo,
		broadcaster: broadcaster,
		historyCap:  historyCap,
		logger:      logger,
	}
}

// Join subscribes the connection and replays the recent history to that
// connection only.
func (s *NotificationService) Join(ctx context.Context, connID string) error {
	s.broadcaster.JoinGroup(connID, NotificationsRoom)

	recent, err := s.repo.Recent(ctx, s.historyCap)
	if err != nil {
		s.logger.Error("notification history read failed", "error", err)
		return err
	}
	s.broadcaster.EmitToConn(connID, models.EventRecentNotifications,
		models.RecentNotificationsEvent{Notifications: recent})
	return nil
}

// Publish is invoked by the REST facade; it stores the notification in the
// bounded history and fans it out to the room.
func (s *NotificationService) Publish(ctx context.Context, typ, message string, data map[string]any) (models.Notification, error) {
	if message == "" {
		return models.Notification{}, ErrValidation
	}
	if typ == "" {
		typ = models.NotificationInfo
	}
	if !models.ValidNotificationType(typ) {
		return models.Notification{}, fmt.Errorf("%w: unknown notification type %q", ErrValidation, typ)
	}

	n := models.Notification{
		ID:        uuid.New().String(),
		Type:      typ,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now(),
	}

	if err := s.repo.Append(ctx, n, s.historyCap); err != nil {
		s.logger.Error("notification append failed", "error", err)
		return models.Notification{}, err
	}

	s.broadcaster.EmitToGroup(NotificationsRoom, models.EventNotification, n)
	s.logger.Info("notification published", "id", n.ID, "type", n.Type)
	return n, nil
}

// List pages through the stored history for the REST facade.
func (s *NotificationService) List(ctx context.Context, offset, limit int) ([]models.Notification, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > s.historyCap {
		limit = s.historyCap
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, offset, limit)
}
