package models

import "time"

// StorageQuota is the per-tenant storage ceiling and running usage.
// UsedBytes counts committed uploads only and is mutated exclusively
// through atomic conditional arithmetic in the quotas repository.
type StorageQuota struct {
	TenantID   string
	LimitBytes int64
	UsedBytes  int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UsageInfo is the caller-facing usage summary for a tenant.
type UsageInfo struct {
	UsedBytes      int64   `json:"used_bytes"`
	LimitBytes     int64   `json:"limit_bytes"`
	AvailableBytes int64   `json:"available_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
}
