package domain

import (
	"encoding/json"
	"time"
)

// TenantSchema is a per-tenant schema document that overrides the builtin
// schema of the same name. The raw document is persisted; the compiled form
// lives in the schema service cache.
type TenantSchema struct {
	TenantID  string
	Name      string
	Document  json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}
