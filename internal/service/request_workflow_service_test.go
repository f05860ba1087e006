package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/church-events-api/internal/authz"
	"github.com/noah-isme/church-events-api/internal/dto"
	"github.com/noah-isme/church-events-api/internal/models"
	"github.com/noah-isme/church-events-api/internal/repository"
	"github.com/noah-isme/church-events-api/internal/utils"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

var (
	leadActor       = workflow.Actor{ID: "lead-1", Name: "Lydia", Role: workflow.RoleLead, DepartmentID: "music"}
	otherLeadActor  = workflow.Actor{ID: "lead-2", Name: "Lois", Role: workflow.RoleLead, DepartmentID: "youth"}
	adminActor      = workflow.Actor{ID: "admin-1", Name: "Aquila", Role: workflow.RoleAdmin}
	otherAdminActor = workflow.Actor{ID: "admin-2", Name: "Apollos", Role: workflow.RoleAdmin}
	superActor      = workflow.Actor{ID: "super-1", Name: "Silas", Role: workflow.RoleSuperAdmin}
)

type workflowFixture struct {
	engine     RequestWorkflowService
	store      *memoryRequestStore
	dispatcher *recordingDispatcher
	now        time.Time
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()

	table := workflow.DefaultTable()
	authorizer, err := authz.NewAuthorizer(table, zerolog.Nop())
	require.NoError(t, err)

	store := newMemoryRequestStore()
	dispatcher := &recordingDispatcher{}
	engine := NewRequestWorkflowService(store, authorizer, table, dispatcher, nil, utils.NewValidator(), zerolog.Nop())

	fixture := &workflowFixture{
		engine:     engine,
		store:      store,
		dispatcher: dispatcher,
		now:        time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	}

	impl := engine.(*requestWorkflowService)
	impl.clock = func() time.Time { return fixture.now }
	var (
		mu   sync.Mutex
		next int
	)
	impl.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("id-%03d", next)
	}

	return fixture
}

func validPayload() dto.EventRequestPayload {
	attendance := 120
	return dto.EventRequestPayload{
		Title:              "Harvest Thanksgiving",
		EventType:          models.EventTypeSunday,
		DepartmentID:       "music",
		EventDate:          "2026-11-22",
		StartTime:          "09:30",
		EndTime:            "12:00",
		Location:           "Main sanctuary",
		Description:        "Combined choirs",
		ExpectedAttendance: &attendance,
	}
}

// advance walks a fresh request to the requested status.
func (f *workflowFixture) advance(t *testing.T, target workflow.Status) models.EventRequest {
	t.Helper()
	ctx := context.Background()

	request, err := f.engine.Create(ctx, leadActor, validPayload())
	require.NoError(t, err)

	steps := []struct {
		status workflow.Status
		run    func() (models.EventRequest, error)
	}{
		{workflow.StatusSubmitted, func() (models.EventRequest, error) { return f.engine.Submit(ctx, leadActor, request.ID) }},
		{workflow.StatusUnderReview, func() (models.EventRequest, error) { return f.engine.Claim(ctx, adminActor, request.ID) }},
		{workflow.StatusReadyForApproval, func() (models.EventRequest, error) { return f.engine.Forward(ctx, adminActor, request.ID) }},
		{workflow.StatusApproved, func() (models.EventRequest, error) { return f.engine.Approve(ctx, superActor, request.ID) }},
	}

	for _, step := range steps {
		if request.Status == target {
			break
		}
		request, err = step.run()
		require.NoError(t, err)
		require.Equal(t, step.status, request.Status)
	}
	require.Equal(t, target, request.Status)
	f.dispatcher.reset()
	return request
}

func TestCreateStartsDraftOwnedByLead(t *testing.T) {
	f := newWorkflowFixture(t)

	request, err := f.engine.Create(context.Background(), leadActor, validPayload())
	require.NoError(t, err)
	require.Equal(t, workflow.StatusDraft, request.Status)
	require.Equal(t, leadActor.ID, request.CreatorID)
	require.Equal(t, leadActor.Name, request.CreatorName)
	require.Equal(t, "EVT-2026-0001", request.RequestNumber)
	require.Nil(t, request.AdminID)

	trail, err := f.store.AuditTrail(context.Background(), request.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	require.Equal(t, "create", trail[0].Action)
	require.Equal(t, map[string]interface{}{"from": nil, "to": "draft"}, trail[0].Changes["status"])
}

func TestCreateRejectsInvalidPayloads(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	payload := validPayload()
	payload.EventType = "weekly"
	payload.EventDate = "22/11/2026"
	_, err := f.engine.Create(ctx, leadActor, payload)
	require.ErrorIs(t, err, workflow.ErrValidation)

	var wfErr *workflow.Error
	require.True(t, errors.As(err, &wfErr))
	require.Contains(t, wfErr.Fields, "eventType")
	require.Contains(t, wfErr.Fields, "eventDate")

	payload = validPayload()
	payload.EndTime = "08:00"
	_, err = f.engine.Create(ctx, leadActor, payload)
	require.ErrorIs(t, err, workflow.ErrValidation)

	payload = validPayload()
	payload.Title = "<script>alert(1)</script>"
	_, err = f.engine.Create(ctx, leadActor, payload)
	require.ErrorIs(t, err, workflow.ErrValidation, "title empty after sanitizing")

	_, err = f.engine.Create(ctx, adminActor, validPayload())
	require.ErrorIs(t, err, workflow.ErrForbidden)

	_, err = f.engine.Create(ctx, workflow.Actor{}, validPayload())
	require.ErrorIs(t, err, workflow.ErrUnauthenticated)

	require.Empty(t, f.store.requests)
	require.Empty(t, f.store.audits)
}

func TestSubmitNotifiesAdminPool(t *testing.T) {
	f := newWorkflowFixture(t)
	request := f.advance(t, workflow.StatusDraft)

	submitted, err := f.engine.Submit(context.Background(), leadActor, request.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)

	notifications := f.dispatcher.all()
	require.Len(t, notifications, 1)
	require.Equal(t, string(workflow.RoleAdmin), notifications[0].RecipientRole)
	require.Empty(t, notifications[0].RecipientID)
	require.Equal(t, request.ID, notifications[0].ResourceID)
	require.Equal(t, models.ResourceEventRequest, notifications[0].ResourceType)

	trail, err := f.store.AuditTrail(context.Background(), request.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	require.Equal(t, map[string]interface{}{"from": "draft", "to": "submitted"}, trail[1].Changes["status"])
}

func TestSubmitByAnotherLeadIsForbidden(t *testing.T) {
	f := newWorkflowFixture(t)
	request := f.advance(t, workflow.StatusDraft)

	_, err := f.engine.Submit(context.Background(), otherLeadActor, request.ID)
	require.ErrorIs(t, err, workflow.ErrForbidden)
}

func TestClaimRecordsSingleClaimant(t *testing.T) {
	f := newWorkflowFixture(t)
	request := f.advance(t, workflow.StatusSubmitted)

	claimed, err := f.engine.Claim(context.Background(), adminActor, request.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusUnderReview, claimed.Status)
	require.Equal(t, adminActor.ID, *claimed.AdminID)
	require.Equal(t, adminActor.Name, *claimed.AdminName)
	require.NotNil(t, claimed.ReviewedAt)

	notifications := f.dispatcher.all()
	require.Len(t, notifications, 1)
	require.Equal(t, leadActor.ID, notifications[0].RecipientID)

	_, err = f.engine.Claim(context.Background(), otherAdminActor, request.ID)
	require.ErrorIs(t, err, workflow.ErrInvalidState)

	stored, err := f.store.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, adminActor.ID, *stored.AdminID)
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	f := newWorkflowFixture(t)
	request := f.advance(t, workflow.StatusSubmitted)

	const admins = 10
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		winners    []string
		rejected   int
		unexpected []error
	)
	for i := 0; i < admins; i++ {
		wg.Add(1)
		go func(actor workflow.Actor) {
			defer wg.Done()
			_, err := f.engine.Claim(context.Background(), actor, request.ID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, actor.ID)
			case errors.Is(err, workflow.ErrConflict), errors.Is(err, workflow.ErrInvalidState):
				rejected++
				var wfErr *workflow.Error
				if errors.As(err, &wfErr) && wfErr.Code() != "invalid_state_transition" {
					unexpected = append(unexpected, err)
				}
			default:
				unexpected = append(unexpected, err)
			}
		}(workflow.Actor{ID: fmt.Sprintf("admin-%02d", i), Role: workflow.RoleAdmin})
	}
	wg.Wait()

	require.Empty(t, unexpected)
	require.Len(t, winners, 1)
	require.Equal(t, admins-1, rejected)

	stored, err := f.store.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, winners[0], *stored.AdminID)
	require.Equal(t, 3, f.store.auditCount(request.ID), "create, submit and exactly one claim")
	require.Len(t, f.dispatcher.all(), 1)
}

func TestForwardRequiresClaimingAdmin(t *testing.T) {
	f := newWorkflowFixture(t)
	request := f.advance(t, workflow.StatusUnderReview)

	_, err := f.engine.Forward(context.Background(), otherAdminActor, request.ID)
	require.ErrorIs(t, err, workflow.ErrForbidden)

	forwarded, err := f.engine.Forward(context.Background(), adminActor, request.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusReadyForApproval, forwarded.Status)

	notifications := f.dispatcher.all()
	require.Len(t, notifications, 1)
	require.Equal(t, string(workflow.RoleSuperAdmin), notifications[0].RecipientRole)
}

func TestApprovePublishesOnceAndIsNotRepeatable(t *testing.T) {
	f := newWorkflowFixture(t)
	request := f.advance(t, workflow.StatusReadyForApproval)

	approved, err := f.engine.Approve(context.Background(), superActor, request.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusApproved, approved.Status)
	require.Equal(t, superActor.ID, *approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	require.Nil(t, approved.AdminID)

	events := f.store.publishedEvents()
	require.Len(t, events, 1)
	require.Equal(t, request.ID, events[0].RequestID)
	require.Equal(t, request.EventDate, events[0].EventDate)
	require.Equal(t, request.StartTime, events[0].StartTime)
	require.Equal(t, request.EndTime, events[0].EndTime)
	require.Equal(t, request.Location, events[0].Location)

	recipients := []string{}
	for _, n := range f.dispatcher.all() {
		recipients = append(recipients, n.RecipientID)
	}
	require.ElementsMatch(t, []string{leadActor.ID, adminActor.ID}, recipients)

	_, err = f.engine.Approve(context.Background(), superActor, request.ID)
	require.ErrorIs(t, err, workflow.ErrInvalidState)
	require.Len(t, f.store.publishedEvents(), 1)
	require.Len(t, f.dispatcher.all(), 2)
}

func TestApproveByAdminIsForbiddenBeforeLookup(t *testing.T) {
	f := newWorkflowFixture(t)

	_, err := f.engine.Approve(context.Background(), adminActor, "missing")
	require.ErrorIs(t, err, workflow.ErrForbidden)

	_, err = f.engine.Approve(context.Background(), superActor, "missing")
	require.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestReturnRequiresFeedback(t *testing.T) {
	f := newWorkflowFixture(t)
	request := f.advance(t, workflow.StatusUnderReview)
	before := f.store.auditCount(request.ID)

	_, err := f.engine.Return(context.Background(), adminActor, request.ID, "   ")
	require.ErrorIs(t, err, workflow.ErrValidation)

	_, err = f.engine.Return(context.Background(), adminActor, request.ID, "<b></b>")
	require.ErrorIs(t, err, workflow.ErrValidation)

	stored, err := f.store.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusUnderReview, stored.Status)
	require.Equal(t, before, f.store.auditCount(request.ID))
	require.Empty(t, f.dispatcher.all())
}

func TestAdminReturnReleasesClaim(t *testing.T) {
	f := newWorkflowFixture(t)
	request := f.advance(t, workflow.StatusUnderReview)

	returned, err := f.engine.Return(context.Background(), adminActor, request.ID, "Please add a budget")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusReturned, returned.Status)
	require.Nil(t, returned.AdminID)
	require.Equal(t, "Please add a budget", returned.Feedback)

	notifications := f.dispatcher.all()
	require.Len(t, notifications, 1)
	require.Equal(t, leadActor.ID, notifications[0].RecipientID)
	require.Equal(t, models.NotificationWarning, notifications[0].Type)

	trail, err := f.store.AuditTrail(context.Background(), request.ID)
	require.NoError(t, err)
	last := trail[len(trail)-1]
	require.Equal(t, "Please add a budget", last.Reason)
	require.Equal(t, map[string]interface{}{"from": "admin-1", "to": nil}, last.Changes["adminId"])

	reopened, err := f.engine.Reopen(context.Background(), leadActor, request.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusDraft, reopened.Status)
}

func TestSuperAdminReturnGoesBackToClaimant(t *testing.T) {
	f := newWorkflowFixture(t)
	request := f.advance(t, workflow.StatusReadyForApproval)

	returned, err := f.engine.Return(context.Background(), superActor, request.ID, "Date clashes with synod")
	require.NoError(t, err)
	require.Equal(t, workflow.StatusUnderReview, returned.Status)
	require.Equal(t, adminActor.ID, *returned.AdminID)

	notifications := f.dispatcher.all()
	require.Len(t, notifications, 1)
	require.Equal(t, adminActor.ID, notifications[0].RecipientID)
}

func TestWithdrawNotifiesClaimantOrPool(t *testing.T) {
	f := newWorkflowFixture(t)

	claimed := f.advance(t, workflow.StatusUnderReview)
	withdrawn, err := f.engine.Withdraw(context.Background(), leadActor, claimed.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusWithdrawn, withdrawn.Status)
	require.Nil(t, withdrawn.AdminID)
	require.Equal(t, adminActor.ID, f.dispatcher.all()[0].RecipientID)

	f.dispatcher.reset()
	unclaimed := f.advance(t, workflow.StatusSubmitted)
	_, err = f.engine.Withdraw(context.Background(), leadActor, unclaimed.ID)
	require.NoError(t, err)
	require.Equal(t, string(workflow.RoleAdmin), f.dispatcher.all()[0].RecipientRole)

	_, err = f.engine.Withdraw(context.Background(), leadActor, unclaimed.ID)
	require.ErrorIs(t, err, workflow.ErrInvalidState)
}

func TestUpdateRecordsFieldDiff(t *testing.T) {
	f := newWorkflowFixture(t)
	request := f.advance(t, workflow.StatusDraft)

	payload := validPayload()
	payload.Location = "Fellowship hall"
	budget := 250.0
	payload.Budget = &budget

	updated, err := f.engine.Update(context.Background(), leadActor, request.ID, payload)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusDraft, updated.Status)
	require.Equal(t, "Fellowship hall", updated.Location)

	trail, err := f.store.AuditTrail(context.Background(), request.ID)
	require.NoError(t, err)
	changes := trail[len(trail)-1].Changes
	require.NotContains(t, changes, "status")
	require.Equal(t, map[string]interface{}{"from": "Main sanctuary", "to": "Fellowship hall"}, changes["location"])
	require.Equal(t, map[string]interface{}{"from": nil, "to": 250.0}, changes["budget"])
	require.NotContains(t, changes, "title")

	submitted := f.advance(t, workflow.StatusSubmitted)
	_, err = f.engine.Update(context.Background(), leadActor, submitted.ID, payload)
	require.ErrorIs(t, err, workflow.ErrInvalidState)

	_, err = f.engine.Update(context.Background(), adminActor, submitted.ID, payload)
	require.NoError(t, err)
}

func TestUpdateKeepsDepartmentAndCreator(t *testing.T) {
	f := newWorkflowFixture(t)
	request := f.advance(t, workflow.StatusDraft)
	before := f.store.auditCount(request.ID)

	payload := validPayload()
	payload.DepartmentID = "youth"
	_, err := f.engine.Update(context.Background(), leadActor, request.ID, payload)
	require.ErrorIs(t, err, workflow.ErrValidation)

	var wfErr *workflow.Error
	require.True(t, errors.As(err, &wfErr))
	require.Equal(t, "cannot change after creation", wfErr.Fields["departmentId"])

	stored, err := f.store.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, "music", stored.DepartmentID)
	require.Equal(t, before, f.store.auditCount(request.ID))

	submitted := f.advance(t, workflow.StatusSubmitted)
	updated, err := f.engine.Update(context.Background(), adminActor, submitted.ID, validPayload())
	require.NoError(t, err)
	require.Equal(t, "music", updated.DepartmentID)
	require.Equal(t, leadActor.ID, updated.CreatorID)
	require.Equal(t, leadActor.Name, updated.CreatorName)
}

func TestStaleClaimantCannotActOnNewClaim(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()
	request := f.advance(t, workflow.StatusUnderReview)

	// admin-1 has already passed the claimant check when the request is
	// returned, resubmitted and claimed by admin-2.
	f.store.beforeUpdate = func() {
		_, err := f.engine.Return(ctx, adminActor, request.ID, "Add the sound plan")
		require.NoError(t, err)
		_, err = f.engine.Reopen(ctx, leadActor, request.ID)
		require.NoError(t, err)
		_, err = f.engine.Submit(ctx, leadActor, request.ID)
		require.NoError(t, err)
		_, err = f.engine.Claim(ctx, otherAdminActor, request.ID)
		require.NoError(t, err)
	}

	_, err := f.engine.Forward(ctx, adminActor, request.ID)
	require.ErrorIs(t, err, workflow.ErrConflict)

	stored, err := f.store.GetByID(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusUnderReview, stored.Status)
	require.Equal(t, otherAdminActor.ID, *stored.AdminID)

	_, err = f.engine.Forward(ctx, adminActor, request.ID)
	require.ErrorIs(t, err, workflow.ErrForbidden)
}

func TestDeleteCapturesRecord(t *testing.T) {
	f := newWorkflowFixture(t)
	request := f.advance(t, workflow.StatusApproved)

	require.ErrorIs(t, f.engine.Delete(context.Background(), adminActor, request.ID), workflow.ErrForbidden)
	require.NoError(t, f.engine.Delete(context.Background(), superActor, request.ID))

	_, err := f.store.GetByID(context.Background(), request.ID)
	require.Error(t, err)

	trail, err := f.store.AuditTrail(context.Background(), request.ID)
	require.NoError(t, err)
	last := trail[len(trail)-1]
	require.Equal(t, "delete", last.Action)
	require.Equal(t, map[string]interface{}{"from": "approved", "to": "deleted"}, last.Changes["status"])
	record, ok := last.Changes["record"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, request.RequestNumber, record["requestNumber"])

	require.ErrorIs(t, f.engine.Delete(context.Background(), superActor, request.ID), workflow.ErrNotFound)
}

func TestLostRaceSurfacesAsConflict(t *testing.T) {
	f := newWorkflowFixture(t)
	request := f.advance(t, workflow.StatusSubmitted)
	f.store.updateErr = fmt.Errorf("wrapped: %w", repository.ErrPreconditionFailed)

	_, err := f.engine.Claim(context.Background(), adminActor, request.ID)
	require.ErrorIs(t, err, workflow.ErrConflict)

	var wfErr *workflow.Error
	require.True(t, errors.As(err, &wfErr))
	require.Equal(t, "invalid_state_transition", wfErr.Code())
	require.Empty(t, f.dispatcher.all())
}

func TestStoreFailureIsInternal(t *testing.T) {
	f := newWorkflowFixture(t)
	request := f.advance(t, workflow.StatusSubmitted)
	f.store.updateErr = errors.New("connection reset by peer")

	_, err := f.engine.Claim(context.Background(), adminActor, request.ID)
	require.ErrorIs(t, err, workflow.ErrInternal)
	require.NotContains(t, err.Error(), "connection reset")
}

func TestAllowedActionsFollowTable(t *testing.T) {
	f := newWorkflowFixture(t)
	request := f.advance(t, workflow.StatusUnderReview)

	require.ElementsMatch(t, []workflow.Action{workflow.ActionUpdate, workflow.ActionForward, workflow.ActionReturn}, f.engine.AllowedActions(adminActor, request))
	require.ElementsMatch(t, []workflow.Action{workflow.ActionWithdraw}, f.engine.AllowedActions(leadActor, request))
	require.ElementsMatch(t, []workflow.Action{workflow.ActionDelete}, f.engine.AllowedActions(superActor, request))
}

func TestFailedNotificationDoesNotRollBackTransition(t *testing.T) {
	f := newWorkflowFixture(t)
	notificationRepo := &memoryNotificationRepo{failures: -1}
	notifications := NewNotificationService(notificationRepo, nil, nil, NotificationOptions{
		QueueSize:   4,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	}, zerolog.Nop())
	f.engine.(*requestWorkflowService).dispatcher = notifications
	notifications.Start(context.Background())

	request := f.advance(t, workflow.StatusDraft)
	submitted, err := f.engine.Submit(context.Background(), leadActor, request.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, notifications.Drain(ctx))

	require.Equal(t, 3, notificationRepo.attemptCount())
	require.Empty(t, notificationRepo.stored())

	stored, err := f.store.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StatusSubmitted, stored.Status)
	require.Equal(t, submitted.SubmittedAt, stored.SubmittedAt)
}
