package middleware

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// accessLogEntry is one JSON line per request. Query text and tokens never appear in it.
type accessLogEntry struct {
	Time       string `json:"time"`
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Route      string `json:"route,omitempty"`
	Status     int    `json:"status"`
	Bytes      int    `json:"bytes"`
	DurationMS int64  `json:"duration_ms"`
	Remote     string `json:"remote,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	OrgID      string `json:"org_id,omitempty"`
	KeyID      string `json:"key_id,omitempty"`
	Refusal    string `json:"refusal,omitempty"`
}

const requestNotesKey contextKey = "request_notes"

// requestNotes carries facts learned by inner handlers back out to AccessLog and the
// Sentry middleware, which only hold the original request.
type requestNotes struct {
	key     *domain.APIKey
	refusal string
}

func notesFrom(ctx context.Context) *requestNotes {
	notes, _ := ctx.Value(requestNotesKey).(*requestNotes)
	return notes
}

func recordPrincipal(ctx context.Context, key *domain.APIKey) {
	if notes := notesFrom(ctx); notes != nil {
		notes.key = key
	}
}

func observedPrincipal(ctx context.Context) *domain.APIKey {
	if notes := notesFrom(ctx); notes != nil {
		return notes.key
	}
	return nil
}

// NoteRefusal records why a question was refused so the access log line carries it.
func NoteRefusal(ctx context.Context, reason string) {
	if notes := notesFrom(ctx); notes != nil {
		notes.refusal = reason
	}
}

// AccessLog writes an accessLogEntry through the standard logger once the request has
// been served. Mount it after chi's RealIP so Remote is the client address.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		notes := &requestNotes{}

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestNotesKey, notes)))

		entry := accessLogEntry{
			Time:       start.UTC().Format(time.RFC3339Nano),
			RequestID:  GetRequestID(r.Context()),
			Method:     r.Method,
			Path:       r.URL.Path,
			Route:      routePattern(r),
			Status:     writtenStatus(ww),
			Bytes:      ww.BytesWritten(),
			DurationMS: time.Since(start).Milliseconds(),
			Remote:     remoteHost(r.RemoteAddr),
			UserAgent:  r.UserAgent(),
			Refusal:    notes.refusal,
		}
		if key := notes.key; key != nil {
			entry.OrgID, entry.KeyID = key.OrgID, key.ID
		}

		line, err := json.Marshal(entry)
		if err != nil {
			log.Printf("access log: %v", err)
			return
		}
		log.Println(string(line))
	})
}

// writtenStatus treats a handler that never wrote as 200, which is what net/http sends.
func writtenStatus(ww chimw.WrapResponseWriter) int {
	if status := ww.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
