package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/church-events-api/internal/models"
	"github.com/noah-isme/church-events-api/internal/repository"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

// memoryRequestStore mirrors the compare-and-swap contract of the gorm repository.
type memoryRequestStore struct {
	mu        sync.Mutex
	requests  map[string]models.EventRequest
	audits    []models.AuditLog
	events    []models.PublishedEvent
	sequence  int
	listCalls int
	updateErr error
	// afterList runs once, outside the lock, after a listing has been read.
	afterList func()
	// beforeUpdate runs once, outside the lock, before a conditional write is checked.
	beforeUpdate func()
}

func newMemoryRequestStore() *memoryRequestStore {
	return &memoryRequestStore{requests: make(map[string]models.EventRequest)}
}

func (m *memoryRequestStore) GetByID(_ context.Context, id string) (models.EventRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	request, ok := m.requests[id]
	if !ok {
		return models.EventRequest{}, repository.ErrRequestNotFound
	}
	return request, nil
}

func (m *memoryRequestStore) Create(_ context.Context, request *models.EventRequest, audit *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sequence++
	request.RequestNumber = fmt.Sprintf("EVT-%d-%04d", request.CreatedAt.Year(), m.sequence)
	m.requests[request.ID] = *request
	if audit != nil {
		audit.ResourceID = request.ID
		m.audits = append(m.audits, *audit)
	}
	return nil
}

func (m *memoryRequestStore) ConditionalUpdate(_ context.Context, id string, expected repository.RequestPrecondition, patch repository.RequestPatch) (models.EventRequest, error) {
	m.mu.Lock()
	hook := m.beforeUpdate
	m.beforeUpdate = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return models.EventRequest{}, m.updateErr
	}

	request, ok := m.requests[id]
	if !ok {
		return models.EventRequest{}, repository.ErrRequestNotFound
	}
	if !matches(request, expected) {
		return models.EventRequest{}, repository.ErrPreconditionFailed
	}
	if patch.Event != nil {
		for _, event := range m.events {
			if event.RequestID == patch.Event.RequestID {
				return models.EventRequest{}, errors.New("UNIQUE constraint failed: published_events.request_id")
			}
		}
	}

	applyFields(&request, patch.Fields)
	m.requests[id] = request
	if patch.Audit != nil {
		m.audits = append(m.audits, *patch.Audit)
	}
	if patch.Event != nil {
		m.events = append(m.events, *patch.Event)
	}
	return request, nil
}

func (m *memoryRequestStore) Delete(_ context.Context, id string, expected repository.RequestPrecondition, audit *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	request, ok := m.requests[id]
	if !ok {
		return repository.ErrRequestNotFound
	}
	if !matches(request, expected) {
		return repository.ErrPreconditionFailed
	}
	delete(m.requests, id)
	if audit != nil {
		m.audits = append(m.audits, *audit)
	}
	return nil
}

func (m *memoryRequestStore) List(_ context.Context, filter repository.RequestListFilter) ([]models.EventRequest, int64, error) {
	items, total := m.list(filter)

	m.mu.Lock()
	hook := m.afterList
	m.afterList = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return items, total, nil
}

func (m *memoryRequestStore) list(filter repository.RequestListFilter) ([]models.EventRequest, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++

	var matched []models.EventRequest
	if !filter.Scope.Empty() {
		for _, request := range m.requests {
			if filter.Scope.Matches(request.Subject(), request.DepartmentID) {
				matched = append(matched, request)
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	if filter.PageSize > 0 {
		start := (filter.Page - 1) * filter.PageSize
		if start > len(matched) {
			start = len(matched)
		}
		end := start + filter.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		matched = matched[start:end]
	}
	return matched, total
}

func (m *memoryRequestStore) AuditTrail(_ context.Context, id string) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.AuditLog
	for _, entry := range m.audits {
		if entry.ResourceID == id {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memoryRequestStore) auditCount(id string) int {
	trail, _ := m.AuditTrail(context.Background(), id)
	return len(trail)
}

func (m *memoryRequestStore) publishedEvents() []models.PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PublishedEvent(nil), m.events...)
}

func matches(request models.EventRequest, expected repository.RequestPrecondition) bool {
	if request.Status != expected.Status {
		return false
	}
	if request.AdminID == nil || expected.AdminID == nil {
		return request.AdminID == nil && expected.AdminID == nil
	}
	return *request.AdminID == *expected.AdminID
}

func applyFields(request *models.EventRequest, fields map[string]interface{}) {
	for column, value := range fields {
		switch column {
		case "status":
			request.Status = value.(workflow.Status)
		case "admin_id":
			request.AdminID = optionalString(value)
		case "admin_name":
			request.AdminName = optionalString(value)
		case "approved_by":
			request.ApprovedBy = optionalString(value)
		case "approved_at":
			request.ApprovedAt = optionalTime(value)
		case "submitted_at":
			request.SubmittedAt = optionalTime(value)
		case "reviewed_at":
			request.ReviewedAt = optionalTime(value)
		case "updated_at":
			request.UpdatedAt = value.(time.Time)
		case "feedback":
			request.Feedback = value.(string)
		case "title":
			request.Title = value.(string)
		case "event_type":
			request.EventType = value.(string)
		case "event_date":
			request.EventDate = value.(string)
		case "start_time":
			request.StartTime = value.(string)
		case "end_time":
			request.EndTime = value.(string)
		case "location":
			request.Location = value.(string)
		case "description":
			request.Description = value.(string)
		case "special_requirements":
			request.SpecialRequirements = value.(string)
		case "expected_attendance":
			request.ExpectedAttendance = value.(*int)
		case "budget":
			request.Budget = value.(*float64)
		default:
			panic("unexpected column " + column)
		}
	}
}

func optionalString(value interface{}) *string {
	if value == nil {
		return nil
	}
	s := value.(string)
	return &s
}

func optionalTime(value interface{}) *time.Time {
	if value == nil {
		return nil
	}
	t := value.(time.Time)
	return &t
}

// recordingDispatcher captures enqueued notifications.
type recordingDispatcher struct {
	mu            sync.Mutex
	notifications []models.Notification
}

func (d *recordingDispatcher) Enqueue(_ context.Context, notification models.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = append(d.notifications, notification)
}

func (d *recordingDispatcher) all() []models.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Notification(nil), d.notifications...)
}

func (d *recordingDispatcher) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = nil
}

// memoryNotificationRepo fails the first failures Create calls.
type memoryNotificationRepo struct {
	mu       sync.Mutex
	items    []models.Notification
	failures int
	attempts int
}

func (r *memoryNotificationRepo) Create(_ context.Context, notification *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.failures < 0 || r.attempts <= r.failures {
		return errors.New("database unavailable")
	}
	r.items = append(r.items, *notification)
	return nil
}

func (r *memoryNotificationRepo) ListForRecipient(_ context.Context, userID, role string, _, _ int) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for _, item := range r.items {
		if item.RecipientID == userID || (item.RecipientID == "" && item.RecipientRole == role) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *memoryNotificationRepo) MarkRead(_ context.Context, id, userID, role string, at time.Time) (models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, item := range r.items {
		if item.ID != id {
			continue
		}
		if item.RecipientID != userID && !(item.RecipientID == "" && item.RecipientRole == role) {
			break
		}
		if r.items[i].ReadAt == nil {
			r.items[i].ReadAt = &at
		}
		return r.items[i], nil
	}
	return models.Notification{}, repository.ErrNotificationNotFound
}

func (r *memoryNotificationRepo) stored() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.items...)
}

func (r *memoryNotificationRepo) attemptCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}
