// Package service implements the tenant registry
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"backcheck/internal/modkit"
	"backcheck/internal/modkit/repokit"
	perr "backcheck/internal/platform/errors"
	"backcheck/internal/platform/logger"
	"backcheck/internal/services/tenants/domain"
	trepo "backcheck/internal/services/tenants/repo"
)

// HashAPIKey returns the stored form of a bearer token. Tokens are never
// persisted raw; provisioning and lookup both go through this
func HashAPIKey(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// Svc implements domain.RegistryPort
type Svc struct {
	repo domain.StorageRepo
	log  logger.Logger
}

// New constructs the tenant registry service
func New(deps modkit.Deps) *Svc {
	var repo domain.StorageRepo
	if deps.PG != nil {
		repo = repokit.MustBind(trepo.NewPG(), deps.PG)
	}
	return &Svc{
		repo: repo,
		log:  deps.Log.With().Str("component", "tenants").Logger(),
	}
}

// Get returns the tenant row by id
func (s *Svc) Get(ctx context.Context, id string) (domain.Tenant, error) {
	if id == "" {
		return domain.Tenant{}, perr.InvalidArgf("tenant id required")
	}
	if s.repo == nil {
		return domain.Tenant{}, perr.Unavailablef("tenant storage not configured")
	}
	return s.repo.Get(ctx, id)
}

// RequireActive returns the tenant iff it exists and is enabled
func (s *Svc) RequireActive(ctx context.Context, id string) (domain.Tenant, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return domain.Tenant{}, err
	}
	if !t.Enabled {
		return domain.Tenant{}, perr.Forbiddenf("tenant %q is disabled", id)
	}
	return t, nil
}

// Authenticate resolves a bearer token to its tenant. Unknown tokens are
// unauthorized; a known token for a disabled tenant is forbidden
func (s *Svc) Authenticate(ctx context.Context, token string) (domain.Tenant, error) {
	if strings.TrimSpace(token) == "" {
		return domain.Tenant{}, perr.Unauthorizedf("missing bearer token")
	}
	if s.repo == nil {
		return domain.Tenant{}, perr.Unavailablef("tenant storage not configured")
	}

	t, err := s.repo.ByAPIKeyHash(ctx, HashAPIKey(token))
	if err != nil {
		if perr.IsCode(err, perr.ErrorCodeNotFound) {
			return domain.Tenant{}, perr.Unauthorizedf("invalid bearer token")
		}
		return domain.Tenant{}, err
	}
	if !t.Enabled {
		return domain.Tenant{}, perr.Forbiddenf("tenant %q is disabled", t.ID)
	}
	return t, nil
}
