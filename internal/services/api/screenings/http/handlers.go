// Package http provides the screening REST transport
package http

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"

	"backcheck/internal/modkit/httpkit"
	screeningdom "backcheck/internal/services/screening/domain"
)

// Register mounts the screening endpoints. Every route here runs behind
// bearer auth; the tenant on the request context is authoritative and
// any tenant field in a body is overwritten
func Register(r httpkit.Router, scr screeningdom.ScreeningPort) {
	h := &handlers{scr: scr}
	httpkit.PostJSON[screeningdom.Request](r, "/", h.submit)
	httpkit.Get(r, "/{id}", h.get)
	httpkit.Delete(r, "/{id}", h.cancel)
	httpkit.Get(r, "/{id}/report", h.report)
}

type handlers struct{ scr screeningdom.ScreeningPort }

// swagger:route POST /v1/screenings Screenings screeningsSubmit
// @Summary Submit a screening for a subject
// @Tags Screenings
// @Accept json
// @Produce json
// @Param payload body screeningdom.Request true "Screening request"
// @Success 202 {object} screeningdom.Screening "accepted"
// @Failure 400 {object} httpkit.Envelope "every requested check blocked"
// @Failure 403 {object} httpkit.Envelope "consent missing"
// @Router /v1/screenings [post]
func (h *handlers) submit(r *stdhttp.Request, in screeningdom.Request) (any, error) {
	tenant, err := httpkit.Tenant(r)
	if err != nil {
		return nil, err
	}
	in.TenantID = tenant
	scr, err := h.scr.Submit(r.Context(), in)
	if err != nil {
		return nil, err
	}
	return httpkit.Accepted(scr), nil
}

// swagger:route GET /v1/screenings/{id} Screenings screeningsGet
// @Summary Screening status and partial results
// @Tags Screenings
// @Produce json
// @Param id path string true "Screening id"
// @Success 200 {object} screeningdom.Screening "ok"
// @Router /v1/screenings/{id} [get]
func (h *handlers) get(r *stdhttp.Request) (any, error) {
	tenant, err := httpkit.Tenant(r)
	if err != nil {
		return nil, err
	}
	return h.scr.Get(r.Context(), tenant, chi.URLParam(r, "id"))
}

// swagger:route DELETE /v1/screenings/{id} Screenings screeningsCancel
// @Summary Cooperatively cancel a screening
// @Tags Screenings
// @Produce json
// @Param id path string true "Screening id"
// @Success 200 {object} screeningdom.Screening "cancelled or already terminal"
// @Router /v1/screenings/{id} [delete]
func (h *handlers) cancel(r *stdhttp.Request) (any, error) {
	tenant, err := httpkit.Tenant(r)
	if err != nil {
		return nil, err
	}
	return h.scr.Cancel(r.Context(), tenant, chi.URLParam(r, "id"))
}

// swagger:route GET /v1/screenings/{id}/report Screenings screeningsReport
// @Summary Final risk report for a complete screening
// @Tags Screenings
// @Produce json
// @Param id path string true "Screening id"
// @Success 200 {object} screeningdom.Report "ok"
// @Failure 409 {object} httpkit.Envelope "screening not complete"
// @Router /v1/screenings/{id}/report [get]
func (h *handlers) report(r *stdhttp.Request) (any, error) {
	tenant, err := httpkit.Tenant(r)
	if err != nil {
		return nil, err
	}
	return h.scr.Report(r.Context(), tenant, chi.URLParam(r, "id"))
}
