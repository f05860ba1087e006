package models

import "time"

// PublishedEvent is the public calendar entry created when a request is approved.
type PublishedEvent struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	RequestID     string    `gorm:"size:36;uniqueIndex;not null" json:"requestId"`
	RequestNumber string    `gorm:"size:32;not null" json:"requestNumber"`
	Title         string    `gorm:"size:255;not null" json:"title"`
	EventType     string    `gorm:"size:16;not null" json:"eventType"`
	DepartmentID  string    `gorm:"size:64;index" json:"departmentId"`
	EventDate     string    `gorm:"size:10;index;not null" json:"eventDate"`
	StartTime     string    `gorm:"size:5" json:"startTime"`
	EndTime       string    `gorm:"size:5" json:"endTime"`
	Location      string    `gorm:"size:255" json:"location"`
	Description   string    `gorm:"type:text" json:"description"`
	PublishedAt   time.Time `json:"publishedAt"`
}

// AllModels lists every table managed by the service, in migration order.
func AllModels() []any {
	return []any{
		&EventRequest{},
		&RequestSequence{},
		&AuditLog{},
		&Notification{},
		&PublishedEvent{},
	}
}
