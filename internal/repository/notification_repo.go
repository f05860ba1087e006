package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/church-events-api/internal/models"
)

// ErrNotificationNotFound is returned when the notification is missing or not addressed to the caller.
var ErrNotificationNotFound = errors.New("notification not found")

// NotificationRepository handles persistence for notification entities.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListForRecipient(ctx context.Context, userID, role string, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID, role string, at time.Time) (models.Notification, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository constructs a repository backed by GORM.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// ListForRecipient returns notifications addressed to the user plus those addressed to the user's role pool.
func (r *notificationRepository) ListForRecipient(ctx context.Context, userID, role string, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var notifications []models.Notification
	if err := r.recipientScope(r.db.WithContext(ctx), userID, role).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&notifications).Error; err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id, userID, role string, at time.Time) (models.Notification, error) {
	var notification models.Notification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.recipientScope(tx, userID, role).Where("id = ?", id).First(&notification).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotificationNotFound
			}
			return err
		}

		if notification.ReadAt != nil {
			return nil
		}

		notification.ReadAt = &at
		return tx.Model(&models.Notification{}).Where("id = ?", id).Update("read_at", at).Error
	})
	if err != nil {
		return models.Notification{}, err
	}
	return notification, nil
}

func (r *notificationRepository) recipientScope(db *gorm.DB, userID, role string) *gorm.DB {
	if role == "" {
		return db.Where("recipient_id = ?", userID)
	}
	return db.Where("recipient_id = ? OR (recipient_id = '' AND recipient_role = ?)", userID, role)
}
