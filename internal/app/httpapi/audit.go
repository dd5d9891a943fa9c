package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/user"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/httputil"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

const defaultAuditSize = 200

// auditEntry records one administrative change.
type auditEntry struct {
	Time    time.Time `json:"time"`
	UserID  string    `json:"user_id"`
	Role    string    `json:"role"`
	Method  string    `json:"method"`
	Path    string    `json:"path"`
	Status  int       `json:"status"`
	TraceID string    `json:"trace_id,omitempty"`
}

type auditSink interface {
	Write(entry auditEntry) error
}

// auditLog keeps the most recent entries in memory and forwards each one to
// the sink.
type auditLog struct {
	mu      sync.Mutex
	entries []auditEntry
	max     int
	sink    auditSink
}

func newAuditLog(max int, sink auditSink) *auditLog {
	if max <= 0 {
		max = defaultAuditSize
	}
	return &auditLog{max: max, sink: sink}
}

func (l *auditLog) add(entry auditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	if l.sink != nil {
		_ = l.sink.Write(entry)
	}
}

// listLimit returns up to limit entries, newest first.
func (l *auditLog) listLimit(limit int) []auditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]auditEntry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// logAuditSink writes entries as structured log lines.
type logAuditSink struct {
	log *logger.Logger
}

func (s logAuditSink) Write(entry auditEntry) error {
	s.log.WithField("user_id", entry.UserID).
		WithField("method", entry.Method).
		WithField("path", entry.Path).
		WithField("status", entry.Status).
		WithField("trace_id", entry.TraceID).
		Info("admin action")
	return nil
}

func entryFor(r *http.Request, u user.User, status int) auditEntry {
	return auditEntry{
		Time:    time.Now().UTC(),
		UserID:  u.ID,
		Role:    string(u.Role),
		Method:  r.Method,
		Path:    r.URL.Path,
		Status:  status,
		TraceID: logger.TraceID(r.Context()),
	}
}

// auditWriter captures the response status for the audit entry.
type auditWriter struct {
	http.ResponseWriter
	status int
}

func (w *auditWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (h *handler) listAudit(w http.ResponseWriter, r *http.Request, _ user.User) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.audit.listLimit(limit))
}
