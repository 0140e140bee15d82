package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Sb253/tenantguard/internal/core/domain"
	"github.com/Sb253/tenantguard/internal/core/ports"
	"github.com/Sb253/tenantguard/internal/core/validation"
)

// SchemaService resolves the schema a payload is validated against: a
// per-tenant override when one is stored, otherwise the builtin registry.
// Compiled overrides are cached per tenant/name and invalidated on write.
type SchemaService struct {
	repo      ports.TenantSchemaRepository
	validator *validation.Validator
	cache     sync.Map // key: "tenantID/name" → *domain.Schema
}

func NewSchemaService(repo ports.TenantSchemaRepository, validator *validation.Validator) *SchemaService {
	return &SchemaService{repo: repo, validator: validator}
}

// Upsert stores (overwriting) a tenant schema override. The document must
// compile as draft-7 JSON Schema and decode into the engine's keyword subset.
func (s *SchemaService) Upsert(ctx context.Context, tenantID, name string, doc json.RawMessage) (domain.TenantSchema, error) {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return domain.TenantSchema{}, err
	}
	if err := domain.ValidateSchemaName(name); err != nil {
		return domain.TenantSchema{}, err
	}
	if _, err := validation.ParseSchemaDocument(name, doc); err != nil {
		return domain.TenantSchema{}, fmt.Errorf("%w: %s", domain.ErrInvalidSchemaDoc, err)
	}
	s.cache.Delete(tenantID + "/" + name)
	return s.repo.Upsert(ctx, domain.TenantSchema{
		TenantID: tenantID,
		Name:     name,
		Document: doc,
	})
}

// BuiltinNames lists the names in the builtin schema registry, sorted.
// Tenant overrides shadow builtins by name, so the index is the same for
// every tenant.
func (s *SchemaService) BuiltinNames() []string {
	return s.validator.Names()
}

func (s *SchemaService) Get(ctx context.Context, tenantID, name string) (domain.TenantSchema, error) {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return domain.TenantSchema{}, err
	}
	if err := domain.ValidateSchemaName(name); err != nil {
		return domain.TenantSchema{}, err
	}
	return s.repo.Get(ctx, tenantID, name)
}

func (s *SchemaService) Delete(ctx context.Context, tenantID, name string) (bool, error) {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return false, err
	}
	if err := domain.ValidateSchemaName(name); err != nil {
		return false, err
	}
	s.cache.Delete(tenantID + "/" + name)
	return s.repo.Delete(ctx, tenantID, name)
}

// Validate checks data against the schema resolved for tenantID/name. An
// unknown name is reported inside the result (SCHEMA_NOT_FOUND), never as an
// error return; the error return is reserved for repository failures.
func (s *SchemaService) Validate(ctx context.Context, tenantID, name string, data any) (domain.ValidationResult, error) {
	cacheKey := tenantID + "/" + name

	if cached, ok := s.cache.Load(cacheKey); ok {
		return validation.ValidateAgainst(data, cached.(*domain.Schema)), nil
	}

	ts, err := s.repo.Get(ctx, tenantID, name)
	if errors.Is(err, domain.ErrNotFound) {
		return s.validator.Validate(data, name), nil
	}
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("load tenant schema: %w", err)
	}

	schema, err := validation.ParseSchemaDocument(name, ts.Document)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("compile tenant schema: %w", err)
	}
	s.cache.Store(cacheKey, schema)
	return validation.ValidateAgainst(data, schema), nil
}
