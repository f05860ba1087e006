package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/church-events-api/internal/models"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

var (
	// ErrRequestNotFound is returned when no request carries the given id.
	ErrRequestNotFound = errors.New("event request not found")
	// ErrPreconditionFailed is returned when the stored status or claim no longer matches the expected one.
	ErrPreconditionFailed = errors.New("event request status precondition failed")
)

// RequestPrecondition is the state a conditional write expects to find. The claim is part of it,
// so a request that was released and claimed again by someone else no longer matches.
type RequestPrecondition struct {
	Status  workflow.Status
	AdminID *string
}

// PreconditionOf captures the precondition from a previously read request.
func PreconditionOf(request models.EventRequest) RequestPrecondition {
	return RequestPrecondition{Status: request.Status, AdminID: request.AdminID}
}

func (p RequestPrecondition) scope(query *gorm.DB) *gorm.DB {
	query = query.Where("status = ?", p.Status)
	if p.AdminID == nil {
		return query.Where("admin_id IS NULL")
	}
	return query.Where("admin_id = ?", *p.AdminID)
}

// RequestPatch is applied atomically by ConditionalUpdate.
type RequestPatch struct {
	// Fields maps column names to new values. A nil value clears the column.
	Fields map[string]interface{}
	Audit  *models.AuditLog
	// Event is inserted in the same transaction when set.
	Event *models.PublishedEvent
}

// RequestListFilter narrows request listings.
type RequestListFilter struct {
	Scope    workflow.Scope
	Page     int
	PageSize int
}

// RequestRepository persists event requests. Every write goes through a compare-and-swap on status and claim.
type RequestRepository interface {
	GetByID(ctx context.Context, id string) (models.EventRequest, error)
	Create(ctx context.Context, request *models.EventRequest, audit *models.AuditLog) error
	ConditionalUpdate(ctx context.Context, id string, expected RequestPrecondition, patch RequestPatch) (models.EventRequest, error)
	Delete(ctx context.Context, id string, expected RequestPrecondition, audit *models.AuditLog) error
	List(ctx context.Context, filter RequestListFilter) ([]models.EventRequest, int64, error)
	AuditTrail(ctx context.Context, id string) ([]models.AuditLog, error)
}

type requestRepository struct {
	db *gorm.DB
}

// NewRequestRepository constructs a repository backed by GORM.
func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (models.EventRequest, error) {
	var request models.EventRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.EventRequest{}, ErrRequestNotFound
		}
		return models.EventRequest{}, err
	}
	return request, nil
}

// Create assigns the next request number for the creation year and stores the request with its audit entry.
func (r *requestRepository) Create(ctx context.Context, request *models.EventRequest, audit *models.AuditLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		year := request.CreatedAt.Year()

		sequence := models.RequestSequence{Year: year, LastNumber: 1}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "year"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"last_number": gorm.Expr("request_sequences.last_number + 1")}),
		}).Create(&sequence).Error; err != nil {
			return fmt.Errorf("advance request sequence: %w", err)
		}
		if err := tx.Where("year = ?", year).First(&sequence).Error; err != nil {
			return fmt.Errorf("read request sequence: %w", err)
		}

		request.RequestNumber = fmt.Sprintf("EVT-%d-%04d", year, sequence.LastNumber)
		if err := tx.Create(request).Error; err != nil {
			return err
		}

		if audit != nil {
			audit.ResourceID = request.ID
			if err := tx.Create(audit).Error; err != nil {
				return fmt.Errorf("append audit entry: %w", err)
			}
		}
		return nil
	})
}

func (r *requestRepository) ConditionalUpdate(ctx context.Context, id string, expected RequestPrecondition, patch RequestPatch) (models.EventRequest, error) {
	var updated models.EventRequest
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := expected.scope(tx.Model(&models.EventRequest{}).Where("id = ?", id)).
			Updates(patch.Fields)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return missingOrChanged(tx, id)
		}

		if patch.Audit != nil {
			if err := tx.Create(patch.Audit).Error; err != nil {
				return fmt.Errorf("append audit entry: %w", err)
			}
		}
		if patch.Event != nil {
			if err := tx.Create(patch.Event).Error; err != nil {
				return fmt.Errorf("publish event: %w", err)
			}
		}

		return tx.Where("id = ?", id).First(&updated).Error
	})
	if err != nil {
		return models.EventRequest{}, err
	}
	return updated, nil
}

func (r *requestRepository) Delete(ctx context.Context, id string, expected RequestPrecondition, audit *models.AuditLog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := expected.scope(tx.Where("id = ?", id)).Delete(&models.EventRequest{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return missingOrChanged(tx, id)
		}

		if audit != nil {
			if err := tx.Create(audit).Error; err != nil {
				return fmt.Errorf("append audit entry: %w", err)
			}
		}
		return nil
	})
}

func (r *requestRepository) List(ctx context.Context, filter RequestListFilter) ([]models.EventRequest, int64, error) {
	if filter.Scope.Empty() {
		return []models.EventRequest{}, 0, nil
	}

	query := r.db.WithContext(ctx).Model(&models.EventRequest{})

	if filter.Scope.CreatorID != "" {
		query = query.Where("creator_id = ?", filter.Scope.CreatorID)
	}
	if filter.Scope.Statuses != nil {
		query = query.Where("status IN ?", filter.Scope.Statuses)
	}
	if filter.Scope.DepartmentID != "" {
		query = query.Where("department_id = ?", filter.Scope.DepartmentID)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var requests []models.EventRequest
	if err := query.Order("created_at DESC").Order("request_number DESC").Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *requestRepository) AuditTrail(ctx context.Context, id string) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	if err := r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", models.ResourceEventRequest, id).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// missingOrChanged tells apart a deleted row from a precondition mismatch after a zero-row write.
func missingOrChanged(tx *gorm.DB, id string) error {
	var count int64
	if err := tx.Model(&models.EventRequest{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrRequestNotFound
	}
	return ErrPreconditionFailed
}
