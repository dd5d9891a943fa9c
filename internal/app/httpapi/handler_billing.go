package httpapi

import (
	"net/http"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/feedback"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/httputil"
)

// maxWebhookBytes bounds Stripe event payloads.
const maxWebhookBytes = 256 << 10

func (h *handler) listFeedback(w http.ResponseWriter, r *http.Request, u user.User) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	target := feedback.TargetType(r.URL.Query().Get("target"))
	list, err := h.app.Feedback.List(r.Context(), u.ID, target, limit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) getFeedback(w http.ResponseWriter, r *http.Request, u user.User) {
	f, err := h.app.Feedback.Get(r.Context(), u, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, f)
}

func (h *handler) getSubscription(w http.ResponseWriter, r *http.Request, u user.User) {
	sub, err := h.app.Subscriptions.Get(r.Context(), u.ID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}

func (h *handler) checkout(w http.ResponseWriter, r *http.Request, u user.User) {
	session, err := h.app.Subscriptions.Checkout(r.Context(), u)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

func (h *handler) cancelSubscription(w http.ResponseWriter, r *http.Request, u user.User) {
	sub, err := h.app.Subscriptions.Cancel(r.Context(), u)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}

// stripeWebhook needs the raw body for signature verification, so it must
// not go through DecodeJSON.
func (h *handler) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := httputil.ReadAllStrict(r.Body, maxWebhookBytes)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidFormat(err))
		return
	}
	if err := h.app.Subscriptions.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
