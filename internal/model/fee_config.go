package model

import "time"

// FeeConfig is one version of the platform fee configuration. Updates
// insert a new row rather than mutating the current one, so every
// historical computation can be traced back to the version in force at
// the time. The current config is the newest row by id.
type FeeConfig struct {
	ID         uint64    // fee_configs.id
	PercentBps uint32    // fee_configs.percent_bps (0..10000)
	CreatedBy  uint64    // fee_configs.created_by (admin user id)
	CreatedAt  time.Time // fee_configs.created_at
}
