// Package http provides the HRIS webhook transport. It hands the raw
// body and signature headers to the processor untouched; decoding
// before verification would invite mismatched MACs
package http

import (
	"io"
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"

	"backcheck/internal/modkit/httpkit"
	perr "backcheck/internal/platform/errors"
	hrisdom "backcheck/internal/services/hris/domain"
)

// maxBody bounds webhook payloads. HRIS events are small; anything
// past this is junk or abuse
const maxBody = 1 << 20

// Register mounts the webhook endpoint
func Register(r httpkit.Router, hook hrisdom.WebhookPort) {
	h := &handlers{hook: hook}
	httpkit.Post(r, "/webhooks/{tenant}", h.deliver)
}

type handlers struct{ hook hrisdom.WebhookPort }

// swagger:route POST /v1/hris/webhooks/{tenant} HRIS hrisDeliver
// @Summary Receive one HRIS webhook delivery
// @Tags HRIS
// @Accept json
// @Produce json
// @Param tenant path string true "Tenant id"
// @Param X-Signature header string false "HMAC-SHA256 of the body, hex"
// @Param X-Event-Type header string false "Event type hint"
// @Success 200 {object} hrisdom.Ack "processed"
// @Failure 400 {object} httpkit.Envelope "invalid json or unroutable event"
// @Failure 401 {object} httpkit.Envelope "signature invalid"
// @Failure 404 {object} httpkit.Envelope "unknown tenant or hris disabled"
// @Failure 429 {object} httpkit.Envelope "tenant over webhook rate"
// @Router /v1/hris/webhooks/{tenant} [post]
func (h *handlers) deliver(r *stdhttp.Request) (any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		return nil, perr.Newf(perr.ErrorCodeValidation, "webhook body unreadable")
	}
	if len(body) > maxBody {
		return nil, perr.Newf(perr.ErrorCodeValidation, "webhook body exceeds %d bytes", maxBody)
	}
	return h.hook.Process(r.Context(), hrisdom.Delivery{
		TenantID:   chi.URLParam(r, "tenant"),
		Body:       body,
		Signatures: headerValues(r, "X-Signature", "X-Webhook-Signature"),
		TypeHints:  headerValues(r, "X-Event-Type", "X-Webhook-Event-Type"),
	})
}

func headerValues(r *stdhttp.Request, names ...string) []string {
	var out []string
	for _, n := range names {
		out = append(out, r.Header.Values(n)...)
	}
	return out
}
