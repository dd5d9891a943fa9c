package httpapi

import (
	"net/http"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/services/simulations"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/ecosystem"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/httputil"
)

func (h *handler) listSimulations(w http.ResponseWriter, r *http.Request, u user.User) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	list, err := h.app.Simulations.List(r.Context(), u.ID, limit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, list)
}

func (h *handler) createSimulation(w http.ResponseWriter, r *http.Request, u user.User) {
	var payload struct {
		Species     []ecosystem.Species    `json:"species"`
		Environment *ecosystem.Environment `json:"environment"`
	}
	if err := decodeOptional(r, &payload); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	a, err := h.app.Simulations.Create(r.Context(), u, simulations.CreateInput{
		Species:     payload.Species,
		Environment: payload.Environment,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (h *handler) simulationPresets(w http.ResponseWriter, r *http.Request, _ user.User) {
	cfg := h.app.Simulations.Config()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"species":            h.app.Simulations.Presets(),
		"environment":        ecosystem.DefaultEnvironment(cfg),
		"min_species":        cfg.MinSpecies,
		"max_species":        cfg.MaxSpecies,
		"time_limit_seconds": int(cfg.TimeLimit.Seconds()),
	})
}

func (h *handler) getSimulation(w http.ResponseWriter, r *http.Request, u user.User) {
	a, err := h.app.Simulations.Get(r.Context(), u, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *handler) updateEnvironment(w http.ResponseWriter, r *http.Request, u user.User) {
	var env ecosystem.Environment
	if err := httputil.DecodeJSON(r.Body, &env); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	a, err := h.app.Simulations.UpdateEnvironment(r.Context(), u, pathVar(r, "id"), env)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *handler) addSpecies(w http.ResponseWriter, r *http.Request, u user.User) {
	var sp ecosystem.Species
	if err := httputil.DecodeJSON(r.Body, &sp); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	a, err := h.app.Simulations.AddSpecies(r.Context(), u, pathVar(r, "id"), sp)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *handler) removeSpecies(w http.ResponseWriter, r *http.Request, u user.User) {
	a, err := h.app.Simulations.RemoveSpecies(r.Context(), u, pathVar(r, "id"), pathVar(r, "speciesID"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *handler) startSimulation(w http.ResponseWriter, r *http.Request, u user.User) {
	a, err := h.app.Simulations.Start(r.Context(), u, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *handler) stepSimulation(w http.ResponseWriter, r *http.Request, u user.User) {
	var payload struct {
		Steps int `json:"steps"`
	}
	if err := decodeOptional(r, &payload); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	out, err := h.app.Simulations.Step(r.Context(), u, pathVar(r, "id"), payload.Steps)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *handler) simulationResult(w http.ResponseWriter, r *http.Request, u user.User) {
	res, err := h.app.Simulations.Result(r.Context(), u, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *handler) simulationFeedback(w http.ResponseWriter, r *http.Request, u user.User) {
	f, err := h.app.Simulations.RequestFeedback(r.Context(), u, pathVar(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, f)
}
