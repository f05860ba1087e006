package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/church-events-api/internal/dto"
	"github.com/noah-isme/church-events-api/internal/middleware"
	"github.com/noah-isme/church-events-api/internal/models"
	"github.com/noah-isme/church-events-api/internal/observability"
	"github.com/noah-isme/church-events-api/internal/repository"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

// NotificationDispatcher accepts notifications produced by workflow transitions. Enqueue never blocks.
type NotificationDispatcher interface {
	Enqueue(ctx context.Context, notification models.Notification)
}

// NotificationService persists queued notifications in the background and serves the read-acknowledgement path.
type NotificationService interface {
	NotificationDispatcher
	List(ctx context.Context, actor workflow.Actor, limit, offset int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, actor workflow.Actor, id string) (dto.NotificationResponse, error)
	Start(ctx context.Context)
	Drain(ctx context.Context) error
}

// NotificationOptions tunes the background dispatcher.
type NotificationOptions struct {
	QueueSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	ChannelBase string
}

type queuedNotification struct {
	notification  models.Notification
	correlationID string
}

type notificationEvent struct {
	Source        string                   `json:"source"`
	RecipientID   string                   `json:"recipient_id,omitempty"`
	RecipientRole string                   `json:"recipient_role,omitempty"`
	Notification  dto.NotificationResponse `json:"notification"`
	CorrelationID string                   `json:"correlation_id,omitempty"`
	SentAt        time.Time                `json:"sent_at"`
}

type notificationService struct {
	repo         repository.NotificationRepository
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	tracer       trace.Tracer
	sanitizer    *bluemonday.Policy
	nodeID       string
	opts         NotificationOptions

	mu      sync.RWMutex
	closed  bool
	queue   chan queuedNotification
	done    chan struct{}
	started sync.Once
	random  *rand.Rand
	clock   func() time.Time
}

// NewNotificationService constructs the notification dispatcher. Redis and NATS are optional fan-out targets.
func NewNotificationService(repo repository.NotificationRepository, redisClient *redis.Client, natsConn *nats.Conn, opts NotificationOptions, logger zerolog.Logger) NotificationService {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}

	channel := ""
	subject := ""
	if opts.ChannelBase != "" {
		channel = opts.ChannelBase + ":notifications"
		subject = strings.ReplaceAll(opts.ChannelBase, ":", ".") + ".notifications"
	}

	return &notificationService{
		repo:         repo,
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "notification_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/church-events-api/internal/service/notification"),
		sanitizer:    bluemonday.StrictPolicy(),
		nodeID:       uuid.NewString(),
		opts:         opts,
		queue:        make(chan queuedNotification, opts.QueueSize),
		done:         make(chan struct{}),
		random:       rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec
		clock:        time.Now,
	}
}

func (s *notificationService) Enqueue(ctx context.Context, notification models.Notification) {
	notification.Title = strings.TrimSpace(s.sanitizer.Sanitize(notification.Title))
	notification.Message = strings.TrimSpace(s.sanitizer.Sanitize(notification.Message))
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = s.clock().UTC()
	}
	if notification.Type == "" {
		notification.Type = models.NotificationInfo
	}

	item := queuedNotification{notification: notification, correlationID: middleware.CorrelationIDFromContext(ctx)}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped(item, "dispatcher closed")
		return
	}

	select {
	case s.queue <- item:
		observability.NotificationQueueDepth().Inc()
	default:
		s.dropped(item, "queue full")
	}
}

func (s *notificationService) dropped(item queuedNotification, reason string) {
	observability.NotificationsDispatched().WithLabelValues(item.notification.Type, "dropped").Inc()
	s.logger.Error().
		Str("notification_id", item.notification.ID).
		Str("resource_id", item.notification.ResourceID).
		Str("correlation_id", item.correlationID).
		Str("reason", reason).
		Msg("notification dropped")
}

// Start runs the delivery worker until Drain is called.
func (s *notificationService) Start(ctx context.Context) {
	s.started.Do(func() {
		go func() {
			defer close(s.done)
			for item := range s.queue {
				observability.NotificationQueueDepth().Dec()
				s.deliver(ctx, item)
			}
		}()
	})
}

// Drain stops accepting notifications and waits for queued ones to be delivered.
func (s *notificationService) Drain(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	// Start the worker if nobody did so the backlog still gets flushed.
	s.Start(context.WithoutCancel(ctx))

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *notificationService) deliver(ctx context.Context, item queuedNotification) {
	notification := item.notification
	spanCtx, span := s.tracer.Start(ctx, "notifications.deliver", trace.WithAttributes(
		attribute.String("notification.id", notification.ID),
		attribute.String("notification.type", notification.Type),
		attribute.String("notification.resource_id", notification.ResourceID),
	))
	defer span.End()

	var err error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		record := notification
		if err = s.repo.Create(spanCtx, &record); err == nil {
			break
		}

		s.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("notification_id", notification.ID).
			Str("correlation_id", item.correlationID).
			Msg("notification persist failed")

		if attempt == s.opts.MaxAttempts {
			break
		}
		if !s.wait(ctx, attempt) {
			err = ctx.Err()
			break
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "notification_delivery_failed")
		observability.NotificationsDispatched().WithLabelValues(notification.Type, "failed").Inc()
		s.logger.Error().
			Err(err).
			Str("notification_id", notification.ID).
			Str("recipient_id", notification.RecipientID).
			Str("recipient_role", notification.RecipientRole).
			Str("resource_id", notification.ResourceID).
			Str("correlation_id", item.correlationID).
			Msg("notification delivery gave up")
		return
	}

	observability.NotificationsDispatched().WithLabelValues(notification.Type, "delivered").Inc()
	if err := s.publish(spanCtx, item); err != nil {
		s.logger.Warn().Err(err).Str("notification_id", notification.ID).Msg("failed to publish notification to broker")
	}
}

func (s *notificationService) wait(ctx context.Context, attempt int) bool {
	delay := backoff(attempt, s.opts.BaseBackoff, s.opts.MaxBackoff) + jitter(s.random, s.opts.BaseBackoff/2)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *notificationService) publish(ctx context.Context, item queuedNotification) error {
	event := notificationEvent{
		Source:        s.nodeID,
		RecipientID:   item.notification.RecipientID,
		RecipientRole: item.notification.RecipientRole,
		Notification:  dto.NewNotificationResponse(item.notification),
		CorrelationID: item.correlationID,
		SentAt:        s.clock().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var errs []error
	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *notificationService) List(ctx context.Context, actor workflow.Actor, limit, offset int) ([]dto.NotificationResponse, error) {
	if !actor.Authenticated() {
		return nil, workflow.Unauthenticated()
	}

	notifications, err := s.repo.ListForRecipient(ctx, actor.ID, string(actor.Role), limit, offset)
	if err != nil {
		return nil, workflow.Internal(err)
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) MarkRead(ctx context.Context, actor workflow.Actor, id string) (dto.NotificationResponse, error) {
	if !actor.Authenticated() {
		return dto.NotificationResponse{}, workflow.Unauthenticated()
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.String("notification.user_id", actor.ID),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, actor.ID, string(actor.Role), s.clock().UTC())
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return dto.NotificationResponse{}, &workflow.Error{Kind: workflow.KindNotFound, Message: "notification " + id + " not found"}
		}
		return dto.NotificationResponse{}, workflow.Internal(err)
	}

	return dto.NewNotificationResponse(notification), nil
}

// backoff returns base * 2^(attempt-1), capped at maxBackoff.
func backoff(attempt int, base, maxBackoff time.Duration) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := time.Duration(math.Pow(2, float64(attempt-1)) * float64(base))
	if d > maxBackoff || d <= 0 {
		return maxBackoff
	}
	return d
}

func jitter(r *rand.Rand, maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 || r == nil {
		return 0
	}
	return time.Duration(r.Int63n(int64(maxJitter) + 1)) //nolint:gosec
}
