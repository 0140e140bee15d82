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

type recordModel struct {
	TenantID   string    `gorm:"column:tenant_id;primaryKey"`
	Collection string    `gorm:"column:collection;primaryKey"`
	RecordID   string    `gorm:"column:record_id;primaryKey"`
	Data       string    `gorm:"column:data;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

func (recordModel) TableName() string {
	return "records"
}

type RecordRepository struct {
	db *gormsqlite.DB
}

func NewRecordRepository(db *gormsqlite.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Upsert(ctx context.Context, rec domain.Record) (domain.Record, error) {
	now := time.Now().UTC()
	model := recordModel{
		TenantID:   rec.TenantID,
		Collection: rec.Collection,
		RecordID:   rec.ID,
		Data:       string(rec.Data),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var saved recordModel
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "collection"}, {Name: "record_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).Create(&model).Error
		if err != nil {
			return fmt.Errorf("upsert record: %w", err)
		}
		return tx.Where("tenant_id = ? AND collection = ? AND record_id = ?",
			rec.TenantID, rec.Collection, rec.ID).First(&saved).Error
	})
	if err != nil {
		return domain.Record{}, err
	}
	return toRecordDomain(saved), nil
}

func (r *RecordRepository) Get(ctx context.Context, tenantID, collection, id string) (domain.Record, error) {
	var model recordModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("tenant_id = ? AND collection = ? AND record_id = ?",
			tenantID, collection, id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Record{}, domain.ErrNotFound
		}
		return domain.Record{}, fmt.Errorf("get record: %w", err)
	}
	return toRecordDomain(model), nil
}

func (r *RecordRepository) Delete(ctx context.Context, tenantID, collection, id string) (bool, error) {
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("tenant_id = ? AND collection = ? AND record_id = ?",
			tenantID, collection, id).Delete(&recordModel{})
		if res.Error != nil {
			return fmt.Errorf("delete record: %w", res.Error)
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *RecordRepository) List(ctx context.Context, tenantID, collection string, filter domain.RecordListFilter) ([]domain.Record, error) {
	var models []recordModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&recordModel{}).
			Where("tenant_id = ? AND collection = ?", tenantID, collection)
		if filter.IDPrefix != "" {
			query = query.Where("record_id >= ? AND record_id < ?", filter.IDPrefix, filter.IDPrefix+"￿")
		}
		if filter.AfterID != "" {
			query = query.Where("record_id > ?", filter.AfterID)
		}
		return query.Order("record_id ASC").Limit(filter.Limit).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	records := make([]domain.Record, 0, len(models))
	for _, model := range models {
		records = append(records, toRecordDomain(model))
	}
	return records, nil
}

func toRecordDomain(model recordModel) domain.Record {
	return domain.Record{
		TenantID:   model.TenantID,
		Collection: model.Collection,
		ID:         model.RecordID,
		Data:       json.RawMessage(model.Data),
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}
}
