// Package service implements the retention tagging shim
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"backcheck/internal/modkit"
	"backcheck/internal/modkit/repokit"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/services/retention/domain"
	rrepo "backcheck/internal/services/retention/repo"
)

// Svc implements domain.RecorderPort
type Svc struct {
	repo domain.StorageRepo
	now  func() time.Time
}

// New constructs the retention service
func New(deps modkit.Deps) *Svc {
	var repo domain.StorageRepo
	if deps.PG != nil {
		repo = repokit.MustBind(rrepo.NewPG(), deps.PG)
	}
	return &Svc{repo: repo, now: time.Now}
}

// Put stores one retention record, filling id and timestamp when zero
func (s *Svc) Put(ctx context.Context, rec domain.Record) error {
	if rec.DataType == "" || rec.RefID == "" {
		return perr.InvalidArgf("retention record needs data_type and ref_id")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	if s.repo == nil {
		return nil
	}
	return s.repo.Insert(ctx, rec)
}
