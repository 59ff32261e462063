package lifecycle

import (
	"context"
	"errors"

	"github.com/terra-clan/gigboard/internal/models"
	"github.com/terra-clan/gigboard/internal/storage"
)

// ListNotifications returns the actor's notifications, newest first
func (e *Engine) ListNotifications(ctx context.Context, actor models.Actor, unreadOnly bool, limit int) ([]*models.Notification, error) {
	return run(ctx, e, "list_notifications", func(ctx context.Context) ([]*models.Notification, error) {
		if limit <= 0 || limit > maxListLimit {
			limit = maxListLimit
		}
		list, err := e.repo.ListNotifications(ctx, models.NotificationFilters{
			RecipientID: actor.ID,
			UnreadOnly:  unreadOnly,
			Limit:       limit,
		})
		if err != nil {
			return nil, unavailable(err, "failed to list notifications")
		}
		if list == nil {
			list = []*models.Notification{}
		}
		return list, nil
	})
}

// MarkNotificationRead flags one of the actor's notifications as read
func (e *Engine) MarkNotificationRead(ctx context.Context, actor models.Actor, notificationID string) error {
	_, err := run(ctx, e, "mark_notification_read", func(ctx context.Context) (struct{}, error) {
		n, err := e.repo.GetNotification(ctx, notificationID)
		if err != nil {
			return struct{}{}, unavailable(err, "failed to load notification")
		}
		if n == nil {
			return struct{}{}, notFound("notification %s not found", notificationID)
		}
		if n.RecipientID != actor.ID {
			return struct{}{}, forbidden("notification %s belongs to another user", notificationID)
		}
		if n.IsRead {
			return struct{}{}, nil
		}

		if err := e.repo.MarkNotificationRead(ctx, notificationID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return struct{}{}, notFound("notification %s not found", notificationID)
			}
			return struct{}{}, unavailable(err, "failed to mark notification read")
		}
		return struct{}{}, nil
	})
	return err
}
