package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Sb253/tenantguard/internal/adapters/sqlite/gormsqlite"
	"github.com/Sb253/tenantguard/internal/core/domain"
)

type tenantSchemaModel struct {
	TenantID     string    `gorm:"column:tenant_id;primaryKey"`
	Name         string    `gorm:"column:name;primaryKey"`
	DocumentJSON string    `gorm:"column:document_json;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

func (tenantSchemaModel) TableName() string {
	return "tenant_schemas"
}

type SchemaRepository struct {
	db *gormsqlite.DB
}

func NewSchemaRepository(db *gormsqlite.DB) *SchemaRepository {
	return &SchemaRepository{db: db}
}

func (r *SchemaRepository) Upsert(ctx context.Context, schema domain.TenantSchema) (domain.TenantSchema, error) {
	now := time.Now().UTC()
	model := tenantSchemaModel{
		TenantID:     schema.TenantID,
		Name:         schema.Name,
		DocumentJSON: string(schema.Document),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var saved tenantSchemaModel
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"document_json", "updated_at"}),
		}).Create(&model).Error
		if err != nil {
			return fmt.Errorf("upsert tenant schema: %w", err)
		}
		return tx.Where("tenant_id = ? AND name = ?", schema.TenantID, schema.Name).First(&saved).Error
	})
	if err != nil {
		return domain.TenantSchema{}, err
	}
	return toTenantSchemaDomain(saved), nil
}

func (r *SchemaRepository) Get(ctx context.Context, tenantID, name string) (domain.TenantSchema, error) {
	var model tenantSchemaModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("tenant_id = ? AND name = ?", tenantID, name).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TenantSchema{}, domain.ErrNotFound
		}
		return domain.TenantSchema{}, fmt.Errorf("get tenant schema: %w", err)
	}
	return toTenantSchemaDomain(model), nil
}

func (r *SchemaRepository) Delete(ctx context.Context, tenantID, name string) (bool, error) {
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("tenant_id = ? AND name = ?", tenantID, name).Delete(&tenantSchemaModel{})
		if res.Error != nil {
			return fmt.Errorf("delete tenant schema: %w", res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func toTenantSchemaDomain(model tenantSchemaModel) domain.TenantSchema {
	return domain.TenantSchema{
		TenantID:  model.TenantID,
		Name:      model.Name,
		Document:  json.RawMessage(model.DocumentJSON),
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
