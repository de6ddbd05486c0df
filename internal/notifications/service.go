package notifications

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hugh/dealdesk/internal/database/models"
	"github.com/hugh/dealdesk/pkg/util"
	"gorm.io/gorm"
)

var ErrNotificationNotFound = errors.New("notification not found")

// Create records a notification inside tx so it commits with the change it describes.
func Create(tx *gorm.DB, userID uuid.UUID, typ models.NotificationType, message string) error {
	return tx.Create(&models.Notification{
		UserID:  userID,
		Type:    typ,
		Message: message,
	}).Error
}

type Service struct {
	db    *gorm.DB
	clock util.Clock
}

func NewService(db *gorm.DB, clock util.Clock) *Service {
	if clock == nil {
		clock = util.SystemClock()
	}
	return &Service{db: db, clock: clock}
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, offset, limit int) ([]models.Notification, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.Notification
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Where("read_at IS NULL").
		Update("read_at", s.clock.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	return count, err
}
