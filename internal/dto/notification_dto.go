package dto

import (
	"time"

	"github.com/noah-isme/church-events-api/internal/models"
)

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Message      string     `json:"message"`
	Type         string     `json:"type"`
	ResourceType string     `json:"resourceType"`
	ResourceID   string     `json:"resourceId"`
	Pooled       bool       `json:"pooled"`
	Read         bool       `json:"read"`
	CreatedAt    time.Time  `json:"createdAt"`
	ReadAt       *time.Time `json:"readAt"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:           model.ID,
		Title:        model.Title,
		Message:      model.Message,
		Type:         model.Type,
		ResourceType: model.ResourceType,
		ResourceID:   model.ResourceID,
		Pooled:       model.Pooled(),
		Read:         model.ReadAt != nil,
		CreatedAt:    model.CreatedAt,
		ReadAt:       model.ReadAt,
	}
}

// NewNotificationResponseSlice converts notifications into DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}

// CalendarQuery bounds the public calendar feed by event date.
type CalendarQuery struct {
	From string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `query:"to" validate:"omitempty,datetime=2006-01-02"`
}
