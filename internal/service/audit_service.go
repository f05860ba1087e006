package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/church-events-api/internal/authz"
	"github.com/noah-isme/church-events-api/internal/dto"
	"github.com/noah-isme/church-events-api/internal/repository"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

// AuditService exposes the audit trail to super-administrators.
type AuditService interface {
	List(ctx context.Context, actor workflow.Actor, query dto.AuditLogQuery) ([]dto.AuditLogResponse, dto.PaginationMeta, error)
}

type auditService struct {
	repo       repository.AuditLogRepository
	authorizer authz.Authorizer
	logger     zerolog.Logger
}

// NewAuditService constructs the audit log service.
func NewAuditService(repo repository.AuditLogRepository, authorizer authz.Authorizer, logger zerolog.Logger) AuditService {
	return &auditService{
		repo:       repo,
		authorizer: authorizer,
		logger:     logger.With().Str("component", "audit_service").Logger(),
	}
}

func (s *auditService) List(ctx context.Context, actor workflow.Actor, query dto.AuditLogQuery) ([]dto.AuditLogResponse, dto.PaginationMeta, error) {
	if err := s.authorizer.Require(actor, workflow.ActionAuditList); err != nil {
		return nil, dto.PaginationMeta{}, err
	}

	page := query.Page
	if page <= 0 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}

	entries, total, err := s.repo.List(ctx, repository.AuditLogFilter{
		Page:       page,
		PageSize:   pageSize,
		UserID:     query.UserID,
		Action:     query.Action,
		ResourceID: query.ResourceID,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list audit logs")
		return nil, dto.PaginationMeta{}, workflow.Internal(err)
	}

	return dto.NewAuditLogResponseSlice(entries), dto.NewPaginationMeta(page, pageSize, total), nil
}
