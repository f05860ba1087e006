package models

import (
	"time"

	"github.com/noah-isme/church-events-api/internal/workflow"
)

// Event types accepted on a request.
const (
	EventTypeSunday   = "sunday"
	EventTypeRegional = "regional"
	EventTypeLocal    = "local"
)

// EventRequest is a department's request to hold an event, tracked through the approval workflow.
type EventRequest struct {
	ID                  string          `gorm:"primaryKey;size:36" json:"id"`
	RequestNumber       string          `gorm:"size:32;uniqueIndex;not null" json:"requestNumber"`
	Title               string          `gorm:"size:255;not null" json:"title"`
	EventType           string          `gorm:"size:16;not null" json:"eventType"`
	DepartmentID        string          `gorm:"size:64;index;not null" json:"departmentId"`
	CreatorID           string          `gorm:"size:64;index;not null" json:"creatorId"`
	CreatorName         string          `gorm:"size:255" json:"creatorName"`
	AdminID             *string         `gorm:"size:64;index" json:"adminId"`
	AdminName           *string         `gorm:"size:255" json:"adminName"`
	ApprovedBy          *string         `gorm:"size:64" json:"approvedBy"`
	EventDate           string          `gorm:"size:10;index;not null" json:"eventDate"`
	StartTime           string          `gorm:"size:5;not null" json:"startTime"`
	EndTime             string          `gorm:"size:5;not null" json:"endTime"`
	Location            string          `gorm:"size:255;not null" json:"location"`
	Description         string          `gorm:"type:text" json:"description"`
	ExpectedAttendance  *int            `json:"expectedAttendance"`
	Budget              *float64        `json:"budget"`
	SpecialRequirements string          `gorm:"type:text" json:"specialRequirements"`
	Status              workflow.Status `gorm:"size:32;index;not null" json:"status"`
	Feedback            string          `gorm:"type:text" json:"feedback"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	SubmittedAt         *time.Time      `json:"submittedAt"`
	ReviewedAt          *time.Time      `json:"reviewedAt"`
	ApprovedAt          *time.Time      `json:"approvedAt"`
}

// Subject projects the fields the transition rules inspect.
func (r EventRequest) Subject() workflow.Subject {
	subject := workflow.Subject{
		ID:        r.ID,
		Status:    r.Status,
		CreatorID: r.CreatorID,
	}
	if r.AdminID != nil {
		subject.AdminID = *r.AdminID
	}
	return subject
}

// RequestSequence stores the last issued request number per year.
type RequestSequence struct {
	Year       int `gorm:"primaryKey;autoIncrement:false"`
	LastNumber int `gorm:"not null"`
}
