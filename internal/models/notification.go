package models

import "time"

// Notification types.
const (
	NotificationInfo    = "info"
	NotificationSuccess = "success"
	NotificationWarning = "warning"
)

// Notification targets either a single user or every user holding a role.
type Notification struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	RecipientID   string     `gorm:"size:64;index" json:"recipientId,omitempty"`
	RecipientRole string     `gorm:"size:32;index" json:"recipientRole,omitempty"`
	Title         string     `gorm:"size:255;not null" json:"title"`
	Message       string     `gorm:"type:text" json:"message"`
	Type          string     `gorm:"size:16;not null" json:"type"`
	ResourceType  string     `gorm:"size:64" json:"resourceType"`
	ResourceID    string     `gorm:"size:36;index" json:"resourceId"`
	CreatedAt     time.Time  `json:"createdAt"`
	ReadAt        *time.Time `json:"readAt"`
}

// Pooled reports whether the notification is addressed to a role rather than a user.
func (n Notification) Pooled() bool {
	return n.RecipientID == "" && n.RecipientRole != ""
}
