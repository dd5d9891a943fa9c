package httpapi

import (
	"net/http"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/drill"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/services/drills"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/httputil"
)

type drillRequest struct {
	Title            string           `json:"title"`
	Type             drill.Type       `json:"type"`
	Difficulty       drill.Difficulty `json:"difficulty"`
	Prompt           string           `json:"prompt"`
	TimeLimitSeconds int              `json:"time_limit_seconds"`
	Premium          bool             `json:"premium"`
	Tags             []string         `json:"tags"`
}

type drillPatchRequest struct {
	Title            *string           `json:"title"`
	Type             *drill.Type       `json:"type"`
	Difficulty       *drill.Difficulty `json:"difficulty"`
	Prompt           *string           `json:"prompt"`
	TimeLimitSeconds *int              `json:"time_limit_seconds"`
	Premium          *bool             `json:"premium"`
	Tags             []string          `json:"tags"`
}

func (h *handler) listDrills(w http.ResponseWriter, r *http.Request, _ user.User) {
	q := r.URL.Query()
	filter := drill.Filter{
		Type:       drill.Type(q.Get("type")),
		Difficulty: drill.Difficulty(q.Get("difficulty")),
	}
	var err error
	if filter.Premium, err = queryBool(r, "premium"); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	list, err := h.app.Drills.ListDrills(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) createDrill(w http.ResponseWriter, r *http.Request, _ user.User) {
	var payload drillRequest
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	created, err := h.app.Drills.CreateDrill(r.Context(), drills.Input{
		Title:            payload.Title,
		Type:             payload.Type,
		Difficulty:       payload.Difficulty,
		Prompt:           payload.Prompt,
		TimeLimitSeconds: payload.TimeLimitSeconds,
		Premium:          payload.Premium,
		Tags:             payload.Tags,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) getDrill(w http.ResponseWriter, r *http.Request, _ user.User) {
	d, err := h.app.Drills.GetDrill(r.Context(), pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *handler) updateDrill(w http.ResponseWriter, r *http.Request, _ user.User) {
	var payload drillPatchRequest
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	updated, err := h.app.Drills.UpdateDrill(r.Context(), pathVar(r, "id"), drills.Patch{
		Title:            payload.Title,
		Type:             payload.Type,
		Difficulty:       payload.Difficulty,
		Prompt:           payload.Prompt,
		TimeLimitSeconds: payload.TimeLimitSeconds,
		Premium:          payload.Premium,
		Tags:             payload.Tags,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteDrill(w http.ResponseWriter, r *http.Request, _ user.User) {
	if err := h.app.Drills.DeleteDrill(r.Context(), pathVar(r, "id")); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) startAttempt(w http.ResponseWriter, r *http.Request, u user.User) {
	attempt, err := h.app.Drills.StartAttempt(r.Context(), u, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, attempt)
}

func (h *handler) listAttempts(w http.ResponseWriter, r *http.Request, u user.User) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	list, err := h.app.Drills.ListAttempts(r.Context(), u.ID, limit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) getAttempt(w http.ResponseWriter, r *http.Request, u user.User) {
	attempt, err := h.app.Drills.GetAttempt(r.Context(), u, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, attempt)
}

func (h *handler) submitAttempt(w http.ResponseWriter, r *http.Request, u user.User) {
	var payload struct {
		Response string `json:"response"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	sub, err := h.app.Drills.SubmitAttempt(r.Context(), u, pathVar(r, "id"), payload.Response)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sub)
}
