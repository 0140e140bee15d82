package ports

import (
	"context"

	"github.com/Sb253/tenantguard/internal/core/domain"
)

type RecordRepository interface {
	Upsert(ctx context.Context, rec domain.Record) (domain.Record, error)
	Get(ctx context.Context, tenantID, collection, id string) (domain.Record, error)
	Delete(ctx context.Context, tenantID, collection, id string) (bool, error)
	List(ctx context.Context, tenantID, collection string, filter domain.RecordListFilter) ([]domain.Record, error)
}
