package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/church-events-api/internal/models"
)

// PublishedEventFilter bounds the calendar feed by event date (YYYY-MM-DD, inclusive).
type PublishedEventFilter struct {
	From string
	To   string
}

// PublishedEventRepository reads public calendar entries. Entries are written by the request repository on approval.
type PublishedEventRepository interface {
	List(ctx context.Context, filter PublishedEventFilter) ([]models.PublishedEvent, error)
	FindByRequestID(ctx context.Context, requestID string) (models.PublishedEvent, error)
}

type publishedEventRepository struct {
	db *gorm.DB
}

// NewPublishedEventRepository constructs the calendar repository.
func NewPublishedEventRepository(db *gorm.DB) PublishedEventRepository {
	return &publishedEventRepository{db: db}
}

func (r *publishedEventRepository) List(ctx context.Context, filter PublishedEventFilter) ([]models.PublishedEvent, error) {
	query := r.db.WithContext(ctx).Model(&models.PublishedEvent{})
	if filter.From != "" {
		query = query.Where("event_date >= ?", filter.From)
	}
	if filter.To != "" {
		query = query.Where("event_date <= ?", filter.To)
	}

	var events []models.PublishedEvent
	if err := query.Order("event_date ASC").Order("start_time ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *publishedEventRepository) FindByRequestID(ctx context.Context, requestID string) (models.PublishedEvent, error) {
	var event models.PublishedEvent
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.PublishedEvent{}, ErrRequestNotFound
		}
		return models.PublishedEvent{}, err
	}
	return event, nil
}
