package models

import (
	"time"

	"gorm.io/datatypes"
)

// ResourceEventRequest is the resource type recorded for event request audit entries and notifications.
const ResourceEventRequest = "event_request"

// AuditLog is an append-only record of a mutating operation. The user fields are snapshots.
type AuditLog struct {
	ID            string            `gorm:"primaryKey;size:36" json:"id"`
	UserID        string            `gorm:"size:64;index;not null" json:"userId"`
	UserName      string            `gorm:"size:255" json:"userName"`
	UserRole      string            `gorm:"size:32;not null" json:"userRole"`
	Action        string            `gorm:"size:32;index;not null" json:"action"`
	ResourceType  string            `gorm:"size:64;not null" json:"resourceType"`
	ResourceID    string            `gorm:"size:36;index;not null" json:"resourceId"`
	Changes       datatypes.JSONMap `gorm:"type:json" json:"changes"`
	Reason        string            `gorm:"type:text" json:"reason,omitempty"`
	IPAddress     string            `gorm:"size:64" json:"ipAddress"`
	CorrelationID string            `gorm:"size:64" json:"correlationId,omitempty"`
	CreatedAt     time.Time         `gorm:"index" json:"createdAt"`
}
