package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/church-events-api/internal/authz"
	"github.com/noah-isme/church-events-api/internal/dto"
	"github.com/noah-isme/church-events-api/internal/models"
	"github.com/noah-isme/church-events-api/internal/repository"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

const (
	defaultRequestPageSize = 20
	maxRequestPageSize     = 100
)

// RequestQueryService serves the role-scoped read path.
type RequestQueryService interface {
	List(ctx context.Context, actor workflow.Actor, query dto.RequestListQuery) (dto.EventRequestListResponse, error)
	Get(ctx context.Context, actor workflow.Actor, id string) (models.EventRequest, error)
	AuditTrail(ctx context.Context, actor workflow.Actor, id string) ([]models.AuditLog, error)
}

type requestQueryService struct {
	repo       repository.RequestRepository
	authorizer authz.Authorizer
	cache      RequestCache
	logger     zerolog.Logger
}

// NewRequestQueryService constructs the read side of the request workflow.
func NewRequestQueryService(repo repository.RequestRepository, authorizer authz.Authorizer, cache RequestCache, logger zerolog.Logger) RequestQueryService {
	if cache == nil {
		cache = noopRequestCache{}
	}
	return &requestQueryService{
		repo:       repo,
		authorizer: authorizer,
		cache:      cache,
		logger:     logger.With().Str("component", "request_query_service").Logger(),
	}
}

func (s *requestQueryService) List(ctx context.Context, actor workflow.Actor, query dto.RequestListQuery) (dto.EventRequestListResponse, error) {
	if err := s.authorizer.Require(actor, workflow.ActionList); err != nil {
		return dto.EventRequestListResponse{}, err
	}

	scope, err := workflow.ScopeFor(actor, workflow.ListFilter{
		Statuses:     parseStatuses(query.Status),
		DepartmentID: query.DepartmentID,
	})
	if err != nil {
		return dto.EventRequestListResponse{}, err
	}

	page := query.Page
	if page <= 0 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = defaultRequestPageSize
	}
	if pageSize > maxRequestPageSize {
		pageSize = maxRequestPageSize
	}

	filter := repository.RequestListFilter{Scope: scope, Page: page, PageSize: pageSize}

	var cached dto.EventRequestListResponse
	cacheKey, hit := s.cache.Get(ctx, filter, &cached)
	if hit {
		return cached, nil
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", actor.ID).Msg("failed to list event requests")
		return dto.EventRequestListResponse{}, workflow.Internal(err)
	}
	if items == nil {
		items = []models.EventRequest{}
	}

	response := dto.EventRequestListResponse{
		Items: items,
		Meta:  dto.NewPaginationMeta(page, pageSize, total),
	}
	s.cache.Set(ctx, cacheKey, response)

	return response, nil
}

func (s *requestQueryService) Get(ctx context.Context, actor workflow.Actor, id string) (models.EventRequest, error) {
	if err := s.authorizer.Require(actor, workflow.ActionView); err != nil {
		return models.EventRequest{}, err
	}

	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return models.EventRequest{}, workflow.NotFound(id)
		}
		return models.EventRequest{}, workflow.Internal(err)
	}

	if err := workflow.CanView(actor, request.Subject()); err != nil {
		return models.EventRequest{}, err
	}
	return request, nil
}

func (s *requestQueryService) AuditTrail(ctx context.Context, actor workflow.Actor, id string) ([]models.AuditLog, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}

	entries, err := s.repo.AuditTrail(ctx, id)
	if err != nil {
		return nil, workflow.Internal(err)
	}
	return entries, nil
}

func parseStatuses(raw string) []workflow.Status {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	statuses := make([]workflow.Status, 0, len(parts))
	for _, part := range parts {
		statuses = append(statuses, workflow.Status(part))
	}
	return statuses
}
