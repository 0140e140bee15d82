package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Sb253/tenantguard/internal/core/domain"
	"github.com/Sb253/tenantguard/internal/core/ports"
	"github.com/Sb253/tenantguard/internal/core/validation"
)

// RecordService runs the intake pipeline: sanitize, validate against the
// schema, check tenant isolation, and persist only records that pass both
// checks. The merged ValidationResult is always returned so the boundary can
// shape a field-addressed response.
type RecordService struct {
	repo    ports.RecordRepository
	schemas *SchemaService
	checker *validation.IsolationChecker
}

func NewRecordService(repo ports.RecordRepository, schemas *SchemaService, checker *validation.IsolationChecker) *RecordService {
	return &RecordService{repo: repo, schemas: schemas, checker: checker}
}

// Check runs the pipeline without persisting anything. Returns the sanitized
// payload alongside the merged result.
func (s *RecordService) Check(ctx context.Context, tenantID, schemaName string, raw json.RawMessage, tc domain.TenantContext) (json.RawMessage, domain.ValidationResult, error) {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return nil, domain.ValidationResult{}, err
	}
	if err := domain.ValidateSchemaName(schemaName); err != nil {
		return nil, domain.ValidationResult{}, err
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, domain.ValidationResult{}, domain.ErrInvalidJSON
	}

	cleaned := validation.Sanitize(value, validation.RulesFor(schemaName))

	structural, err := s.schemas.Validate(ctx, tenantID, schemaName, cleaned)
	if err != nil {
		return nil, domain.ValidationResult{}, err
	}
	isolation := s.checker.Check(ctx, cleaned, tenantID, tc)
	merged := structural.Merge(isolation)

	encoded, err := json.Marshal(cleaned)
	if err != nil {
		return nil, domain.ValidationResult{}, fmt.Errorf("encode sanitized payload: %w", err)
	}
	return encoded, merged, nil
}

// Submit runs the pipeline and persists the sanitized record when the merged
// result is valid. The returned record is the zero value when it is not.
func (s *RecordService) Submit(ctx context.Context, tenantID, schemaName, id string, raw json.RawMessage, tc domain.TenantContext) (domain.Record, domain.ValidationResult, error) {
	if err := domain.ValidateRecordID(id); err != nil {
		return domain.Record{}, domain.ValidationResult{}, err
	}

	cleaned, result, err := s.Check(ctx, tenantID, schemaName, raw, tc)
	if err != nil {
		return domain.Record{}, domain.ValidationResult{}, err
	}
	if !result.Valid {
		return domain.Record{}, result, nil
	}

	rec, err := s.repo.Upsert(ctx, domain.Record{
		TenantID:   tenantID,
		Collection: schemaName,
		ID:         id,
		Data:       cleaned,
	})
	if err != nil {
		return domain.Record{}, domain.ValidationResult{}, err
	}
	return rec, result, nil
}

func (s *RecordService) Get(ctx context.Context, tenantID, collection, id string) (domain.Record, error) {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return domain.Record{}, err
	}
	if err := domain.ValidateSchemaName(collection); err != nil {
		return domain.Record{}, err
	}
	if err := domain.ValidateRecordID(id); err != nil {
		return domain.Record{}, err
	}
	return s.repo.Get(ctx, tenantID, collection, id)
}

func (s *RecordService) Delete(ctx context.Context, tenantID, collection, id string) (bool, error) {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return false, err
	}
	if err := domain.ValidateSchemaName(collection); err != nil {
		return false, err
	}
	if err := domain.ValidateRecordID(id); err != nil {
		return false, err
	}
	return s.repo.Delete(ctx, tenantID, collection, id)
}

func (s *RecordService) List(ctx context.Context, tenantID, collection string, filter domain.RecordListFilter) ([]domain.Record, error) {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := domain.ValidateSchemaName(collection); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.List(ctx, tenantID, collection, filter)
}
