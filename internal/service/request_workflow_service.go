package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/wI2L/jsondiff"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/church-events-api/internal/authz"
	"github.com/noah-isme/church-events-api/internal/dto"
	"github.com/noah-isme/church-events-api/internal/middleware"
	"github.com/noah-isme/church-events-api/internal/models"
	"github.com/noah-isme/church-events-api/internal/observability"
	"github.com/noah-isme/church-events-api/internal/repository"
	"github.com/noah-isme/church-events-api/internal/utils"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

// RequestWorkflowService executes every mutating operation on event requests.
// Each call either applies the state change together with its audit entry or returns a *workflow.Error and writes nothing.
type RequestWorkflowService interface {
	Create(ctx context.Context, actor workflow.Actor, payload dto.EventRequestPayload) (models.EventRequest, error)
	Update(ctx context.Context, actor workflow.Actor, id string, payload dto.EventRequestPayload) (models.EventRequest, error)
	Submit(ctx context.Context, actor workflow.Actor, id string) (models.EventRequest, error)
	Claim(ctx context.Context, actor workflow.Actor, id string) (models.EventRequest, error)
	Forward(ctx context.Context, actor workflow.Actor, id string) (models.EventRequest, error)
	Approve(ctx context.Context, actor workflow.Actor, id string) (models.EventRequest, error)
	Return(ctx context.Context, actor workflow.Actor, id string, feedback string) (models.EventRequest, error)
	Withdraw(ctx context.Context, actor workflow.Actor, id string) (models.EventRequest, error)
	Reopen(ctx context.Context, actor workflow.Actor, id string) (models.EventRequest, error)
	Delete(ctx context.Context, actor workflow.Actor, id string) error
	// Authorize applies only the role gate, for callers that must reject a role before reading input.
	Authorize(actor workflow.Actor, action workflow.Action) error
	AllowedActions(actor workflow.Actor, request models.EventRequest) []workflow.Action
}

type requestWorkflowService struct {
	repo       repository.RequestRepository
	authorizer authz.Authorizer
	table      *workflow.Table
	dispatcher NotificationDispatcher
	cache      RequestCache
	validator  *validator.Validate
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
	tracer     trace.Tracer
	clock      func() time.Time
	newID      func() string
}

// transitionPlan is what an action writes on top of the status change.
type transitionPlan struct {
	fields        map[string]interface{}
	changes       datatypes.JSONMap
	reason        string
	event         *models.PublishedEvent
	notifications []models.Notification
}

type planFunc func(current models.EventRequest, rule workflow.Rule, now time.Time) (transitionPlan, error)

// NewRequestWorkflowService constructs the workflow engine.
func NewRequestWorkflowService(
	repo repository.RequestRepository,
	authorizer authz.Authorizer,
	table *workflow.Table,
	dispatcher NotificationDispatcher,
	cache RequestCache,
	validate *validator.Validate,
	logger zerolog.Logger,
) RequestWorkflowService {
	if cache == nil {
		cache = noopRequestCache{}
	}
	return &requestWorkflowService{
		repo:       repo,
		authorizer: authorizer,
		table:      table,
		dispatcher: dispatcher,
		cache:      cache,
		validator:  validate,
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     logger.With().Str("component", "request_workflow_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/church-events-api/internal/service/request_workflow"),
		clock:      time.Now,
		newID:      uuid.NewString,
	}
}

func (s *requestWorkflowService) Authorize(actor workflow.Actor, action workflow.Action) error {
	return s.authorizer.Require(actor, action)
}

func (s *requestWorkflowService) AllowedActions(actor workflow.Actor, request models.EventRequest) []workflow.Action {
	return s.table.PermittedActions(actor, request.Subject())
}

func (s *requestWorkflowService) Create(ctx context.Context, actor workflow.Actor, payload dto.EventRequestPayload) (result models.EventRequest, err error) {
	ctx, span := s.startSpan(ctx, actor, workflow.ActionCreate, "")
	defer func() { s.finish(ctx, span, actor, result.ID, workflow.ActionCreate, err) }()

	if err = s.authorizer.Require(actor, workflow.ActionCreate); err != nil {
		return models.EventRequest{}, err
	}
	rule, err := s.table.Resolve(actor, workflow.ActionCreate, workflow.Subject{})
	if err != nil {
		return models.EventRequest{}, err
	}

	payload = s.sanitizePayload(payload)
	if err = s.validatePayload(payload); err != nil {
		return models.EventRequest{}, err
	}

	now := s.clock().UTC()
	request := models.EventRequest{
		ID:          s.newID(),
		CreatorID:   actor.ID,
		CreatorName: actor.Name,
		Status:      rule.Target(""),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	payload.Apply(&request)

	audit := s.auditEntry(ctx, actor, workflow.ActionCreate, request.ID, datatypes.JSONMap{
		"status": statusChange("", request.Status),
	}, "", now)

	if repoErr := s.repo.Create(ctx, &request, audit); repoErr != nil {
		return models.EventRequest{}, workflow.Internal(repoErr)
	}

	s.cache.Invalidate(ctx)
	return request, nil
}

func (s *requestWorkflowService) Update(ctx context.Context, actor workflow.Actor, id string, payload dto.EventRequestPayload) (models.EventRequest, error) {
	return s.transition(ctx, actor, id, workflow.ActionUpdate, func(current models.EventRequest, _ workflow.Rule, _ time.Time) (transitionPlan, error) {
		payload = s.sanitizePayload(payload)
		if err := s.validatePayload(payload); err != nil {
			return transitionPlan{}, err
		}
		if payload.DepartmentID != current.DepartmentID {
			return transitionPlan{}, workflow.Validation("invalid event request", map[string]string{"departmentId": "cannot change after creation"})
		}

		changes, err := payloadDiff(payloadOf(current), payload)
		if err != nil {
			return transitionPlan{}, workflow.Internal(err)
		}

		plan := newPlan()
		for column, value := range payloadColumns(payload) {
			plan.fields[column] = value
		}
		plan.changes = changes
		return plan, nil
	})
}

func (s *requestWorkflowService) Submit(ctx context.Context, actor workflow.Actor, id string) (models.EventRequest, error) {
	return s.transition(ctx, actor, id, workflow.ActionSubmit, func(current models.EventRequest, _ workflow.Rule, now time.Time) (transitionPlan, error) {
		plan := newPlan()
		if current.SubmittedAt == nil {
			plan.fields["submitted_at"] = now
		}
		plan.notify(models.Notification{
			RecipientRole: string(workflow.RoleAdmin),
			Title:         "Event request submitted",
			Message:       fmt.Sprintf("%s %q from %s is waiting for review.", current.RequestNumber, current.Title, current.CreatorName),
			Type:          models.NotificationInfo,
		})
		return plan, nil
	})
}

func (s *requestWorkflowService) Claim(ctx context.Context, actor workflow.Actor, id string) (models.EventRequest, error) {
	return s.transition(ctx, actor, id, workflow.ActionClaim, func(current models.EventRequest, _ workflow.Rule, now time.Time) (transitionPlan, error) {
		plan := newPlan()
		plan.fields["admin_id"] = actor.ID
		plan.fields["admin_name"] = actor.Name
		plan.changes["adminId"] = change(deref(current.AdminID), actor.ID)
		if current.ReviewedAt == nil {
			plan.fields["reviewed_at"] = now
		}
		plan.notify(models.Notification{
			RecipientID: current.CreatorID,
			Title:       "Event request under review",
			Message:     fmt.Sprintf("%s %q is being reviewed by %s.", current.RequestNumber, current.Title, displayName(actor)),
			Type:        models.NotificationInfo,
		})
		return plan, nil
	})
}

func (s *requestWorkflowService) Forward(ctx context.Context, actor workflow.Actor, id string) (models.EventRequest, error) {
	return s.transition(ctx, actor, id, workflow.ActionForward, func(current models.EventRequest, _ workflow.Rule, _ time.Time) (transitionPlan, error) {
		plan := newPlan()
		plan.notify(models.Notification{
			RecipientRole: string(workflow.RoleSuperAdmin),
			Title:         "Event request ready for approval",
			Message:       fmt.Sprintf("%s %q was forwarded by %s.", current.RequestNumber, current.Title, displayName(actor)),
			Type:          models.NotificationInfo,
		})
		return plan, nil
	})
}

func (s *requestWorkflowService) Approve(ctx context.Context, actor workflow.Actor, id string) (models.EventRequest, error) {
	return s.transition(ctx, actor, id, workflow.ActionApprove, func(current models.EventRequest, _ workflow.Rule, now time.Time) (transitionPlan, error) {
		plan := newPlan()
		plan.fields["approved_by"] = actor.ID
		if current.ApprovedAt == nil {
			plan.fields["approved_at"] = now
		}
		plan.changes["approvedBy"] = change(deref(current.ApprovedBy), actor.ID)
		plan.releaseClaim(current)

		plan.event = &models.PublishedEvent{
			ID:            s.newID(),
			RequestID:     current.ID,
			RequestNumber: current.RequestNumber,
			Title:         current.Title,
			EventType:     current.EventType,
			DepartmentID:  current.DepartmentID,
			EventDate:     current.EventDate,
			StartTime:     current.StartTime,
			EndTime:       current.EndTime,
			Location:      current.Location,
			Description:   current.Description,
			PublishedAt:   now,
		}

		message := fmt.Sprintf("%s %q was approved and published to the calendar.", current.RequestNumber, current.Title)
		plan.notify(models.Notification{
			RecipientID: current.CreatorID,
			Title:       "Event request approved",
			Message:     message,
			Type:        models.NotificationSuccess,
		})
		if current.AdminID != nil && *current.AdminID != "" {
			plan.notify(models.Notification{
				RecipientID: *current.AdminID,
				Title:       "Event request approved",
				Message:     message,
				Type:        models.NotificationSuccess,
			})
		}
		return plan, nil
	})
}

func (s *requestWorkflowService) Return(ctx context.Context, actor workflow.Actor, id string, feedback string) (models.EventRequest, error) {
	return s.transition(ctx, actor, id, workflow.ActionReturn, func(current models.EventRequest, rule workflow.Rule, _ time.Time) (transitionPlan, error) {
		feedback = strings.TrimSpace(s.sanitizer.Sanitize(feedback))
		if rule.RequiresFeedback && feedback == "" {
			return transitionPlan{}, workflow.Validation("feedback message is required", map[string]string{"message": "is required"})
		}

		plan := newPlan()
		plan.fields["feedback"] = feedback
		plan.reason = feedback

		notification := models.Notification{
			Title:   "Event request returned",
			Message: fmt.Sprintf("%s %q was returned by %s: %s", current.RequestNumber, current.Title, displayName(actor), feedback),
			Type:    models.NotificationWarning,
		}

		switch rule.Role {
		case workflow.RoleAdmin:
			plan.releaseClaim(current)
			notification.RecipientID = current.CreatorID
			plan.notify(notification)
		case workflow.RoleSuperAdmin:
			if current.AdminID != nil && *current.AdminID != "" {
				notification.RecipientID = *current.AdminID
			} else {
				notification.RecipientRole = string(workflow.RoleAdmin)
			}
			plan.notify(notification)
		}
		return plan, nil
	})
}

func (s *requestWorkflowService) Withdraw(ctx context.Context, actor workflow.Actor, id string) (models.EventRequest, error) {
	return s.transition(ctx, actor, id, workflow.ActionWithdraw, func(current models.EventRequest, _ workflow.Rule, _ time.Time) (transitionPlan, error) {
		plan := newPlan()
		plan.releaseClaim(current)

		notification := models.Notification{
			Title:   "Event request withdrawn",
			Message: fmt.Sprintf("%s %q was withdrawn by %s.", current.RequestNumber, current.Title, displayName(actor)),
			Type:    models.NotificationInfo,
		}
		if current.AdminID != nil && *current.AdminID != "" {
			notification.RecipientID = *current.AdminID
		} else {
			notification.RecipientRole = string(workflow.RoleAdmin)
		}
		plan.notify(notification)
		return plan, nil
	})
}

func (s *requestWorkflowService) Reopen(ctx context.Context, actor workflow.Actor, id string) (models.EventRequest, error) {
	return s.transition(ctx, actor, id, workflow.ActionReopen, func(models.EventRequest, workflow.Rule, time.Time) (transitionPlan, error) {
		return newPlan(), nil
	})
}

func (s *requestWorkflowService) Delete(ctx context.Context, actor workflow.Actor, id string) (err error) {
	ctx, span := s.startSpan(ctx, actor, workflow.ActionDelete, id)
	defer func() { s.finish(ctx, span, actor, id, workflow.ActionDelete, err) }()

	current, err := s.load(ctx, actor, workflow.ActionDelete, id)
	if err != nil {
		return err
	}
	if _, err = s.table.Resolve(actor, workflow.ActionDelete, current.Subject()); err != nil {
		return err
	}

	record, err := snapshot(current)
	if err != nil {
		return workflow.Internal(err)
	}

	now := s.clock().UTC()
	audit := s.auditEntry(ctx, actor, workflow.ActionDelete, current.ID, datatypes.JSONMap{
		"status": change(string(current.Status), "deleted"),
		"record": record,
	}, "", now)

	if repoErr := s.repo.Delete(ctx, current.ID, repository.PreconditionOf(current), audit); repoErr != nil {
		return s.storeError(workflow.ActionDelete, id, repoErr)
	}

	s.cache.Invalidate(ctx)
	return nil
}

// transition runs the shared evaluation order: role gate, lookup, status and ownership, payload, then the conditional write.
// The write expects the status and claim that ownership was checked against.
func (s *requestWorkflowService) transition(ctx context.Context, actor workflow.Actor, id string, action workflow.Action, plan planFunc) (result models.EventRequest, err error) {
	ctx, span := s.startSpan(ctx, actor, action, id)
	defer func() { s.finish(ctx, span, actor, id, action, err) }()

	current, err := s.load(ctx, actor, action, id)
	if err != nil {
		return models.EventRequest{}, err
	}

	rule, err := s.table.Resolve(actor, action, current.Subject())
	if err != nil {
		return models.EventRequest{}, err
	}

	now := s.clock().UTC()
	p, err := plan(current, rule, now)
	if err != nil {
		return models.EventRequest{}, err
	}

	target := rule.Target(current.Status)
	p.fields["status"] = target
	p.fields["updated_at"] = now
	if target != current.Status {
		p.changes["status"] = statusChange(current.Status, target)
	}

	if p.event != nil {
		span.SetAttributes(attribute.String("published_event.id", p.event.ID))
	}

	updated, repoErr := s.repo.ConditionalUpdate(ctx, current.ID, repository.PreconditionOf(current), repository.RequestPatch{
		Fields: p.fields,
		Audit:  s.auditEntry(ctx, actor, action, current.ID, p.changes, p.reason, now),
		Event:  p.event,
	})
	if repoErr != nil {
		return models.EventRequest{}, s.storeError(action, id, repoErr)
	}

	s.afterCommit(ctx, updated, p.notifications)
	s.logger.Info().
		Str("request_id", updated.ID).
		Str("action", string(action)).
		Str("from", string(current.Status)).
		Str("to", string(updated.Status)).
		Str("user_id", actor.ID).
		Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).
		Msg("event request transitioned")

	return updated, nil
}

// load applies the role gate before touching the store, so a wrong role never learns whether the id exists.
func (s *requestWorkflowService) load(ctx context.Context, actor workflow.Actor, action workflow.Action, id string) (models.EventRequest, error) {
	if err := s.authorizer.Require(actor, action); err != nil {
		return models.EventRequest{}, err
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return models.EventRequest{}, workflow.NotFound(id)
		}
		return models.EventRequest{}, workflow.Internal(err)
	}
	return current, nil
}

func (s *requestWorkflowService) storeError(action workflow.Action, id string, err error) error {
	switch {
	case errors.Is(err, repository.ErrPreconditionFailed):
		return workflow.Conflict(action, id, err)
	case errors.Is(err, repository.ErrRequestNotFound):
		return workflow.NotFound(id)
	default:
		return workflow.Internal(err)
	}
}

// afterCommit runs the side effects that must never undo a committed transition.
func (s *requestWorkflowService) afterCommit(ctx context.Context, request models.EventRequest, notifications []models.Notification) {
	if s.dispatcher != nil {
		for _, notification := range notifications {
			notification.ResourceType = models.ResourceEventRequest
			notification.ResourceID = request.ID
			s.dispatcher.Enqueue(ctx, notification)
		}
	}
	s.cache.Invalidate(ctx)
}

func (s *requestWorkflowService) startSpan(ctx context.Context, actor workflow.Actor, action workflow.Action, id string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "requests."+string(action), trace.WithAttributes(
		attribute.String("request.id", id),
		attribute.String("workflow.action", string(action)),
		attribute.String("actor.id", actor.ID),
		attribute.String("actor.role", string(actor.Role)),
	))
}

func (s *requestWorkflowService) finish(ctx context.Context, span trace.Span, actor workflow.Actor, id string, action workflow.Action, err error) {
	defer span.End()

	outcome := "ok"
	if err != nil {
		kind := workflow.KindOf(err)
		outcome = string(kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)

		event := s.logger.Info()
		msg := "event request operation rejected"
		if kind == workflow.KindInternal {
			event = s.logger.Error()
			msg = "event request operation failed"
		}
		event.
			Err(err).
			Str("kind", outcome).
			Str("user_id", actor.ID).
			Str("role", string(actor.Role)).
			Str("request_id", id).
			Str("action", string(action)).
			Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).
			Msg(msg)
	}

	observability.WorkflowTransitions().WithLabelValues(string(action), outcome).Inc()
}

func (s *requestWorkflowService) auditEntry(ctx context.Context, actor workflow.Actor, action workflow.Action, resourceID string, changes datatypes.JSONMap, reason string, now time.Time) *models.AuditLog {
	if changes == nil {
		changes = datatypes.JSONMap{}
	}
	return &models.AuditLog{
		ID:            s.newID(),
		UserID:        actor.ID,
		UserName:      actor.Name,
		UserRole:      string(actor.Role),
		Action:        string(action),
		ResourceType:  models.ResourceEventRequest,
		ResourceID:    resourceID,
		Changes:       changes,
		Reason:        reason,
		IPAddress:     actor.IPAddress,
		CorrelationID: middleware.CorrelationIDFromContext(ctx),
		CreatedAt:     now,
	}
}

func (s *requestWorkflowService) sanitizePayload(payload dto.EventRequestPayload) dto.EventRequestPayload {
	clean := func(value string) string {
		return strings.TrimSpace(s.sanitizer.Sanitize(value))
	}
	payload.Title = clean(payload.Title)
	payload.EventType = strings.ToLower(strings.TrimSpace(payload.EventType))
	payload.DepartmentID = strings.TrimSpace(payload.DepartmentID)
	payload.EventDate = strings.TrimSpace(payload.EventDate)
	payload.StartTime = strings.TrimSpace(payload.StartTime)
	payload.EndTime = strings.TrimSpace(payload.EndTime)
	payload.Location = clean(payload.Location)
	payload.Description = clean(payload.Description)
	payload.SpecialRequirements = clean(payload.SpecialRequirements)
	return payload
}

func (s *requestWorkflowService) validatePayload(payload dto.EventRequestPayload) error {
	if err := s.validator.Struct(payload); err != nil {
		if fields := utils.ValidationErrors(err); fields != nil {
			return workflow.Validation("invalid event request", fields)
		}
		return workflow.Internal(err)
	}
	// HH:MM compares correctly as a string once the format is validated.
	if payload.EndTime <= payload.StartTime {
		return workflow.Validation("invalid event request", map[string]string{"endTime": "must be after startTime"})
	}
	return nil
}

func newPlan() transitionPlan {
	return transitionPlan{fields: map[string]interface{}{}, changes: datatypes.JSONMap{}}
}

func (p *transitionPlan) notify(notification models.Notification) {
	p.notifications = append(p.notifications, notification)
}

// releaseClaim clears the assigned admin when the request leaves the review queue.
func (p *transitionPlan) releaseClaim(current models.EventRequest) {
	p.fields["admin_id"] = nil
	p.fields["admin_name"] = nil
	if current.AdminID != nil {
		p.changes["adminId"] = change(*current.AdminID, nil)
	}
}

func change(from, to interface{}) map[string]interface{} {
	return map[string]interface{}{"from": from, "to": to}
}

func statusChange(from, to workflow.Status) map[string]interface{} {
	var previous interface{}
	if from != "" {
		previous = string(from)
	}
	return change(previous, string(to))
}

func deref(value *string) interface{} {
	if value == nil {
		return nil
	}
	return *value
}

func displayName(actor workflow.Actor) string {
	if strings.TrimSpace(actor.Name) != "" {
		return actor.Name
	}
	return actor.ID
}

func payloadOf(request models.EventRequest) dto.EventRequestPayload {
	return dto.EventRequestPayload{
		Title:               request.Title,
		EventType:           request.EventType,
		DepartmentID:        request.DepartmentID,
		EventDate:           request.EventDate,
		StartTime:           request.StartTime,
		EndTime:             request.EndTime,
		Location:            request.Location,
		Description:         request.Description,
		ExpectedAttendance:  request.ExpectedAttendance,
		Budget:              request.Budget,
		SpecialRequirements: request.SpecialRequirements,
	}
}

func payloadColumns(payload dto.EventRequestPayload) map[string]interface{} {
	return map[string]interface{}{
		"title":                payload.Title,
		"event_type":           payload.EventType,
		"event_date":           payload.EventDate,
		"start_time":           payload.StartTime,
		"end_time":             payload.EndTime,
		"location":             payload.Location,
		"description":          payload.Description,
		"expected_attendance":  payload.ExpectedAttendance,
		"budget":               payload.Budget,
		"special_requirements": payload.SpecialRequirements,
	}
}

// payloadDiff records {from, to} for every top-level field the update changes.
func payloadDiff(before, after dto.EventRequestPayload) (datatypes.JSONMap, error) {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return nil, err
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return nil, err
	}

	patch, err := jsondiff.CompareJSON(beforeJSON, afterJSON)
	if err != nil {
		return nil, err
	}

	var beforeFields, afterFields map[string]interface{}
	if err := json.Unmarshal(beforeJSON, &beforeFields); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(afterJSON, &afterFields); err != nil {
		return nil, err
	}

	changes := datatypes.JSONMap{}
	for _, op := range patch {
		field := strings.SplitN(strings.TrimPrefix(string(op.Path), "/"), "/", 2)[0]
		if field == "" {
			continue
		}
		changes[field] = change(beforeFields[field], afterFields[field])
	}
	return changes, nil
}

func snapshot(request models.EventRequest) (map[string]interface{}, error) {
	raw, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}
	var record map[string]interface{}
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return record, nil
}
