package httpapi

import (
	"net/http"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/httputil"
)

func (h *handler) getMe(w http.ResponseWriter, r *http.Request, u user.User) {
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *handler) updateMe(w http.ResponseWriter, r *http.Request, u user.User) {
	var payload struct {
		DisplayName *string `json:"display_name"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	updated, err := h.app.Users.UpdateProfile(r.Context(), u.ID, payload.DisplayName)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request, _ user.User) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	list, err := h.app.Users.List(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request, _ user.User) {
	u, err := h.app.Users.Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request, caller user.User) {
	id := pathVar(r, "id")
	if id == caller.ID {
		httputil.WriteError(w, r, apperrors.Conflict("administrators cannot delete their own account"))
		return
	}
	if err := h.app.Users.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) setRole(w http.ResponseWriter, r *http.Request, _ user.User) {
	var payload struct {
		Role user.Role `json:"role"`
	}
	if err := httputil.DecodeJSON(r.Body, &payload); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	updated, err := h.app.Users.SetRole(r.Context(), pathVar(r, "id"), payload.Role)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}
