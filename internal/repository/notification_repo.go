package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/kpi-ops-api/internal/models"
)

const (
	defaultInboxLimit = 50
	maxInboxLimit     = 100
)

// NotificationFilter pages through one user's inbox.
type NotificationFilter struct {
	UserID     uint
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationRepository persists in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, filter NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID uint) (int64, error)
	MarkRead(ctx context.Context, id uint, userID uint, at time.Time) (models.Notification, error)
	MarkAllRead(ctx context.Context, userID uint, at time.Time) (int64, error)
	ExistsForKPI(ctx context.Context, userID uint, notificationType string, kpiScoreID uint) (bool, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository constructs the notification repository.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) inbox(ctx context.Context, userID uint) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
}

func (r *notificationRepository) ListByUser(ctx context.Context, filter NotificationFilter) ([]models.Notification, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxInboxLimit {
		limit = defaultInboxLimit
	}

	query := r.inbox(ctx, filter.UserID)
	if filter.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var notifications []models.Notification
	err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&notifications).Error
	return notifications, err
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.inbox(ctx, userID).Where("is_read = ?", false).Count(&count).Error
	return count, err
}

// MarkRead flags one notification owned by userID. Marking an already read notification keeps its read_at.
func (r *notificationRepository) MarkRead(ctx context.Context, id uint, userID uint, at time.Time) (models.Notification, error) {
	var notification models.Notification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&notification).Error; err != nil {
			return err
		}
		if notification.IsRead {
			return nil
		}
		notification.IsRead = true
		notification.ReadAt = &at
		return tx.Model(&notification).Updates(map[string]interface{}{"is_read": true, "read_at": at}).Error
	})
	if err != nil {
		return models.Notification{}, err
	}
	return notification, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uint, at time.Time) (int64, error) {
	result := r.inbox(ctx, userID).
		Where("is_read = ?", false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at})
	return result.RowsAffected, result.Error
}

func (r *notificationRepository) ExistsForKPI(ctx context.Context, userID uint, notificationType string, kpiScoreID uint) (bool, error) {
	var count int64
	err := r.inbox(ctx, userID).
		Where("type = ? AND kpi_score_id = ?", notificationType, kpiScoreID).
		Count(&count).Error
	return count > 0, err
}
