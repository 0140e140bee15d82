package domain

import (
	"encoding/json"
	"errors"
	"regexp"
	"time"
)

var (
	ErrInvalidTenant     = errors.New("invalid tenant id")
	ErrInvalidSchemaName = errors.New("invalid schema name")
	ErrInvalidRecordID   = errors.New("invalid record id")
	ErrInvalidJSON       = errors.New("data must be valid json")
	ErrInvalidSchemaDoc  = errors.New("invalid schema document")
	ErrNotFound          = errors.New("not found")
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9._:-]+$`)

// Record is a tenant-scoped entity payload that survived the intake pipeline.
// Collection is the schema name it was validated against.
type Record struct {
	TenantID   string
	Collection string
	ID         string
	Data       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r Record) Validate() error {
	if err := ValidateTenantID(r.TenantID); err != nil {
		return err
	}
	if err := ValidateSchemaName(r.Collection); err != nil {
		return err
	}
	if err := ValidateRecordID(r.ID); err != nil {
		return err
	}
	if !json.Valid(r.Data) {
		return ErrInvalidJSON
	}
	return nil
}

func ValidateTenantID(tenantID string) error {
	if tenantID == "" || !keyPattern.MatchString(tenantID) {
		return ErrInvalidTenant
	}
	return nil
}

func ValidateSchemaName(name string) error {
	if name == "" || !keyPattern.MatchString(name) {
		return ErrInvalidSchemaName
	}
	return nil
}

func ValidateRecordID(id string) error {
	if id == "" || !keyPattern.MatchString(id) {
		return ErrInvalidRecordID
	}
	return nil
}

// RecordListFilter narrows record listings within one tenant and collection.
type RecordListFilter struct {
	IDPrefix string
	AfterID  string
	Limit    int
}

func (f RecordListFilter) Validate() error {
	if f.IDPrefix != "" && !keyPattern.MatchString(f.IDPrefix) {
		return ErrInvalidRecordID
	}
	if f.AfterID != "" {
		return ValidateRecordID(f.AfterID)
	}
	return nil
}
