package dto

import (
	"time"

	"github.com/noah-isme/church-events-api/internal/models"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

// ProtectedFields can never be set through a create or update body.
var ProtectedFields = []string{"status", "approvedBy", "approvedAt", "adminId", "creatorId", "id", "requestNumber"}

// EventRequestPayload is the editable part of an event request.
type EventRequestPayload struct {
	Title               string   `json:"title" validate:"required,max=255"`
	EventType           string   `json:"eventType" validate:"required,oneof=sunday regional local"`
	DepartmentID        string   `json:"departmentId" validate:"required,max=64"`
	EventDate           string   `json:"eventDate" validate:"required,datetime=2006-01-02"`
	StartTime           string   `json:"startTime" validate:"required,datetime=15:04"`
	EndTime             string   `json:"endTime" validate:"required,datetime=15:04"`
	Location            string   `json:"location" validate:"required,max=255"`
	Description         string   `json:"description" validate:"omitempty,max=4000"`
	ExpectedAttendance  *int     `json:"expectedAttendance" validate:"omitempty,min=0"`
	Budget              *float64 `json:"budget" validate:"omitempty,min=0"`
	SpecialRequirements string   `json:"specialRequirements" validate:"omitempty,max=4000"`
}

// Apply copies the payload onto a request.
func (p EventRequestPayload) Apply(request *models.EventRequest) {
	request.Title = p.Title
	request.EventType = p.EventType
	request.DepartmentID = p.DepartmentID
	request.EventDate = p.EventDate
	request.StartTime = p.StartTime
	request.EndTime = p.EndTime
	request.Location = p.Location
	request.Description = p.Description
	request.ExpectedAttendance = p.ExpectedAttendance
	request.Budget = p.Budget
	request.SpecialRequirements = p.SpecialRequirements
}

// ReturnRequest carries the mandatory feedback of a return transition.
type ReturnRequest struct {
	Message string `json:"message"`
}

// RequestListQuery represents the list filters accepted on GET /requests.
type RequestListQuery struct {
	Status       string `query:"status"`
	DepartmentID string `query:"departmentId"`
	Page         int    `query:"page"`
	PageSize     int    `query:"pageSize"`
}

// EventRequestResponse is the serialized request with the actions the caller may take next.
type EventRequestResponse struct {
	ID                  string            `json:"id"`
	RequestNumber       string            `json:"requestNumber"`
	Title               string            `json:"title"`
	EventType           string            `json:"eventType"`
	DepartmentID        string            `json:"departmentId"`
	CreatorID           string            `json:"creatorId"`
	CreatorName         string            `json:"creatorName"`
	AdminID             *string           `json:"adminId"`
	AdminName           *string           `json:"adminName"`
	ApprovedBy          *string           `json:"approvedBy"`
	EventDate           string            `json:"eventDate"`
	StartTime           string            `json:"startTime"`
	EndTime             string            `json:"endTime"`
	Location            string            `json:"location"`
	Description         string            `json:"description"`
	ExpectedAttendance  *int              `json:"expectedAttendance"`
	Budget              *float64          `json:"budget"`
	SpecialRequirements string            `json:"specialRequirements"`
	Status              workflow.Status   `json:"status"`
	Feedback            string            `json:"feedback,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
	SubmittedAt         *time.Time        `json:"submittedAt"`
	ReviewedAt          *time.Time        `json:"reviewedAt"`
	ApprovedAt          *time.Time        `json:"approvedAt"`
	AllowedActions      []workflow.Action `json:"allowedActions"`
}

// NewEventRequestResponse converts a request model into a DTO.
func NewEventRequestResponse(request models.EventRequest, allowed []workflow.Action) EventRequestResponse {
	if allowed == nil {
		allowed = []workflow.Action{}
	}
	return EventRequestResponse{
		ID:                  request.ID,
		RequestNumber:       request.RequestNumber,
		Title:               request.Title,
		EventType:           request.EventType,
		DepartmentID:        request.DepartmentID,
		CreatorID:           request.CreatorID,
		CreatorName:         request.CreatorName,
		AdminID:             request.AdminID,
		AdminName:           request.AdminName,
		ApprovedBy:          request.ApprovedBy,
		EventDate:           request.EventDate,
		StartTime:           request.StartTime,
		EndTime:             request.EndTime,
		Location:            request.Location,
		Description:         request.Description,
		ExpectedAttendance:  request.ExpectedAttendance,
		Budget:              request.Budget,
		SpecialRequirements: request.SpecialRequirements,
		Status:              request.Status,
		Feedback:            request.Feedback,
		CreatedAt:           request.CreatedAt,
		UpdatedAt:           request.UpdatedAt,
		SubmittedAt:         request.SubmittedAt,
		ReviewedAt:          request.ReviewedAt,
		ApprovedAt:          request.ApprovedAt,
		AllowedActions:      allowed,
	}
}

// PaginationMeta summarises a paged listing.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

// NewPaginationMeta computes the page count for a listing.
func NewPaginationMeta(page, pageSize int, total int64) PaginationMeta {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return PaginationMeta{Page: page, PageSize: pageSize, TotalItems: total, TotalPages: totalPages}
}

// EventRequestListResponse is the paged list payload. It is also the cached representation.
type EventRequestListResponse struct {
	Items []models.EventRequest `json:"items"`
	Meta  PaginationMeta        `json:"meta"`
}
