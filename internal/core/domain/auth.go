package domain

import "time"

// APIKey binds an authenticated caller to exactly one tenant. The HTTP layer
// resolves it and hands the TenantID to the isolation checker as the expected
// tenant; the engine never derives the tenant itself.
type APIKey struct {
	TokenHash string
	TenantID  string
	Name      string
	Active    bool
	CreatedAt time.Time
}
