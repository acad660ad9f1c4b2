// Package domain defines retention tagging types and ports.
// Each durable datum the pipeline produces gets one record naming its
// data class; the retention windows themselves are applied by a
// downstream janitor, not here
package domain

import (
	"context"
	"time"
)

// DataType classifies a durable datum for retention purposes
type DataType string

const (
	DataScreeningResult  DataType = "screening-result"
	DataScreeningFinding DataType = "screening-finding"
	DataScreeningRaw     DataType = "screening-raw-data"
	DataAuditLog         DataType = "audit-log"
	DataConsentRecord    DataType = "consent-record"
)

// Record tags one stored datum with its retention class
type Record struct {
	ID          string         `json:"id"`
	DataType    DataType       `json:"data_type"`
	RefID       string         `json:"ref_id"`
	TenantID    string         `json:"tenant_id,omitempty"`
	ScreeningID string         `json:"screening_id,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// RecorderPort stores retention records
type RecorderPort interface {
	Put(ctx context.Context, rec Record) error
}

// StorageRepo is the persistence surface for retention records
type StorageRepo interface {
	Insert(ctx context.Context, rec Record) error
}
