package ports

import (
	"context"

	"github.com/Sb253/tenantguard/internal/core/domain"
)

type TenantSchemaRepository interface {
	Upsert(ctx context.Context, schema domain.TenantSchema) (domain.TenantSchema, error)
	Get(ctx context.Context, tenantID, name string) (domain.TenantSchema, error)
	Delete(ctx context.Context, tenantID, name string) (bool, error)
}
