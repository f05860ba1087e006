package dto

import (
	"time"

	"github.com/noah-isme/church-events-api/internal/models"
)

// AuditLogQuery captures the filters of the superadmin audit listing.
type AuditLogQuery struct {
	Page       int    `query:"page"`
	PageSize   int    `query:"pageSize"`
	UserID     string `query:"userId"`
	Action     string `query:"action"`
	ResourceID string `query:"resourceId"`
}

// AuditLogResponse is the serialized audit entry.
type AuditLogResponse struct {
	ID            string                 `json:"id"`
	UserID        string                 `json:"userId"`
	UserName      string                 `json:"userName"`
	UserRole      string                 `json:"userRole"`
	Action        string                 `json:"action"`
	ResourceType  string                 `json:"resourceType"`
	ResourceID    string                 `json:"resourceId"`
	Changes       map[string]interface{} `json:"changes"`
	Reason        string                 `json:"reason,omitempty"`
	IPAddress     string                 `json:"ipAddress,omitempty"`
	CorrelationID string                 `json:"correlationId,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
}

// NewAuditLogResponse converts an audit entry.
func NewAuditLogResponse(entry models.AuditLog) AuditLogResponse {
	return AuditLogResponse{
		ID:            entry.ID,
		UserID:        entry.UserID,
		UserName:      entry.UserName,
		UserRole:      entry.UserRole,
		Action:        entry.Action,
		ResourceType:  entry.ResourceType,
		ResourceID:    entry.ResourceID,
		Changes:       entry.Changes,
		Reason:        entry.Reason,
		IPAddress:     entry.IPAddress,
		CorrelationID: entry.CorrelationID,
		CreatedAt:     entry.CreatedAt,
	}
}

// NewAuditLogResponseSlice converts a slice of audit entries.
func NewAuditLogResponseSlice(entries []models.AuditLog) []AuditLogResponse {
	out := make([]AuditLogResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, NewAuditLogResponse(entry))
	}
	return out
}
