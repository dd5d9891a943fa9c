// Package httpapi exposes the application services over HTTP.
package httpapi

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/metrics"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/services/users"
	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/httputil"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/middleware"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

const maxBodyBytes = 1 << 20

// publicPaths bypass token verification.
var publicPaths = []string{"/healthz", "/metrics", "/webhooks/stripe"}

// Options configures the HTTP surface.
type Options struct {
	Auth           middleware.AuthConfig
	AllowedOrigins []string
	// RateLimiter is optional; its janitor is expected to be attached to the
	// application lifecycle by the caller.
	RateLimiter *middleware.RateLimiter
	AuditSize   int
	Log         *logger.Logger
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	audit *auditLog
	log   *logger.Logger
}

// userHandler is an endpoint that needs the resolved caller.
type userHandler func(w http.ResponseWriter, r *http.Request, u user.User)

// NewHandler returns the API router wrapped in the middleware chain:
// tracing, recovery, metrics, CORS, authentication and rate limiting.
func NewHandler(application *app.Application, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{
		app:   application,
		audit: newAuditLog(opts.AuditSize, logAuditSink{log: log.Named("audit")}),
		log:   log,
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorResponse(w, r, http.StatusNotFound, string(apperrors.CodeNotFound), "route not found", nil)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.MethodNotAllowed(w)
	})
	h.routes(router)

	authCfg := opts.Auth
	authCfg.SkipPaths = append(append([]string(nil), authCfg.SkipPaths...), publicPaths...)

	var next http.Handler = router
	if opts.RateLimiter != nil {
		next = opts.RateLimiter.Handler(next)
	}
	next = middleware.NewAuthMiddleware(authCfg, log.Named("auth")).Handler(next)
	next = middleware.NewCORSMiddleware(opts.AllowedOrigins).Handler(next)
	next = metrics.InstrumentHandler(next)
	next = middleware.Recovery(log)(next)
	next = middleware.NewTracingMiddleware(log).Handler(next)
	return next
}

func (h *handler) routes(r *mux.Router) {
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/webhooks/stripe", h.stripeWebhook).Methods(http.MethodPost)

	r.HandleFunc("/me", h.authed(h.getMe)).Methods(http.MethodGet)
	r.HandleFunc("/me", h.authed(h.updateMe)).Methods(http.MethodPatch)

	r.HandleFunc("/users", h.admin(h.listUsers)).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", h.admin(h.getUser)).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", h.admin(h.deleteUser)).Methods(http.MethodDelete)
	r.HandleFunc("/users/{id}/role", h.admin(h.setRole)).Methods(http.MethodPut)
	r.HandleFunc("/audit", h.admin(h.listAudit)).Methods(http.MethodGet)

	r.HandleFunc("/drills", h.authed(h.listDrills)).Methods(http.MethodGet)
	r.HandleFunc("/drills", h.admin(h.createDrill)).Methods(http.MethodPost)
	r.HandleFunc("/drills/{id}", h.authed(h.getDrill)).Methods(http.MethodGet)
	r.HandleFunc("/drills/{id}", h.admin(h.updateDrill)).Methods(http.MethodPatch)
	r.HandleFunc("/drills/{id}", h.admin(h.deleteDrill)).Methods(http.MethodDelete)
	r.HandleFunc("/drills/{id}/attempts", h.authed(h.startAttempt)).Methods(http.MethodPost)

	r.HandleFunc("/attempts", h.authed(h.listAttempts)).Methods(http.MethodGet)
	r.HandleFunc("/attempts/{id}", h.authed(h.getAttempt)).Methods(http.MethodGet)
	r.HandleFunc("/attempts/{id}/submit", h.authed(h.submitAttempt)).Methods(http.MethodPost)

	r.HandleFunc("/simulations", h.authed(h.listSimulations)).Methods(http.MethodGet)
	r.HandleFunc("/simulations", h.authed(h.createSimulation)).Methods(http.MethodPost)
	r.HandleFunc("/simulations/presets", h.authed(h.simulationPresets)).Methods(http.MethodGet)
	r.HandleFunc("/simulations/{id}", h.authed(h.getSimulation)).Methods(http.MethodGet)
	r.HandleFunc("/simulations/{id}/environment", h.authed(h.updateEnvironment)).Methods(http.MethodPut)
	r.HandleFunc("/simulations/{id}/species", h.authed(h.addSpecies)).Methods(http.MethodPost)
	r.HandleFunc("/simulations/{id}/species/{speciesID}", h.authed(h.removeSpecies)).Methods(http.MethodDelete)
	r.HandleFunc("/simulations/{id}/start", h.authed(h.startSimulation)).Methods(http.MethodPost)
	r.HandleFunc("/simulations/{id}/step", h.authed(h.stepSimulation)).Methods(http.MethodPost)
	r.HandleFunc("/simulations/{id}/result", h.authed(h.simulationResult)).Methods(http.MethodGet)
	r.HandleFunc("/simulations/{id}/feedback", h.authed(h.simulationFeedback)).Methods(http.MethodPost)

	r.HandleFunc("/feedback", h.authed(h.listFeedback)).Methods(http.MethodGet)
	r.HandleFunc("/feedback/{id}", h.authed(h.getFeedback)).Methods(http.MethodGet)

	r.HandleFunc("/subscription", h.authed(h.getSubscription)).Methods(http.MethodGet)
	r.HandleFunc("/subscription/checkout", h.authed(h.checkout)).Methods(http.MethodPost)
	r.HandleFunc("/subscription/cancel", h.authed(h.cancelSubscription)).Methods(http.MethodPost)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"services": h.app.Services(),
	})
}

// authed resolves the caller from the verified token, registering first-time
// users. An admin role in the token's app metadata elevates the caller for
// the request.
func (h *handler) authed(fn userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.ClaimsFromContext(r.Context())
		if !ok {
			httputil.Unauthorized(w, r, "authentication required")
			return
		}
		u, err := h.app.Users.EnsureUser(r.Context(), users.Identity{ID: claims.Subject, Email: claims.Email})
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		if strings.EqualFold(claims.AppMetadata.Role, string(user.RoleAdmin)) {
			u.Role = user.RoleAdmin
		}
		fn(w, r, u)
	}
}

// admin restricts fn to administrators and records mutating calls in the
// audit log.
func (h *handler) admin(fn userHandler) http.HandlerFunc {
	return h.authed(func(w http.ResponseWriter, r *http.Request, u user.User) {
		if !u.IsAdmin() {
			httputil.WriteError(w, r, apperrors.Forbidden("admin role required"))
			return
		}
		if r.Method == http.MethodGet {
			fn(w, r, u)
			return
		}
		rec := &auditWriter{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r, u)
		h.audit.add(entryFor(r, u, rec.status))
	})
}

func pathVar(r *http.Request, name string) string {
	return strings.TrimSpace(mux.Vars(r)[name])
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.Validationf("%s must be a non-negative integer", name)
	}
	return n, nil
}

// queryBool parses an optional boolean query parameter; nil means absent.
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperrors.Validationf("%s must be a boolean", name)
	}
	return &v, nil
}

// decodeOptional decodes a JSON body when one is present.
func decodeOptional(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	raw, err := httputil.ReadAllStrict(r.Body, maxBodyBytes)
	if err != nil {
		return apperrors.InvalidFormat(err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return httputil.DecodeJSON(bytes.NewReader(raw), dst)
}
