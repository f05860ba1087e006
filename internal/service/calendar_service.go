package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/church-events-api/internal/dto"
	"github.com/noah-isme/church-events-api/internal/models"
	"github.com/noah-isme/church-events-api/internal/repository"
	"github.com/noah-isme/church-events-api/internal/utils"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

// CalendarService lists approved events for the public calendar.
type CalendarService interface {
	List(ctx context.Context, query dto.CalendarQuery) ([]models.PublishedEvent, error)
}

type calendarService struct {
	repo      repository.PublishedEventRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewCalendarService constructs the calendar feed service.
func NewCalendarService(repo repository.PublishedEventRepository, validate *validator.Validate, logger zerolog.Logger) CalendarService {
	return &calendarService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "calendar_service").Logger(),
	}
}

func (s *calendarService) List(ctx context.Context, query dto.CalendarQuery) ([]models.PublishedEvent, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, workflow.Validation("invalid calendar range", utils.ValidationErrors(err))
	}
	if query.From != "" && query.To != "" && query.To < query.From {
		return nil, workflow.Validation("invalid calendar range", map[string]string{"to": "must not be before from"})
	}

	events, err := s.repo.List(ctx, repository.PublishedEventFilter{From: query.From, To: query.To})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list published events")
		return nil, workflow.Internal(err)
	}
	if events == nil {
		events = []models.PublishedEvent{}
	}
	return events, nil
}
