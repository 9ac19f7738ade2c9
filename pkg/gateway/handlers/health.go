package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/vango-go/vai-duet/pkg/gateway/config"
	"github.com/vango-go/vai-duet/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-duet/pkg/gateway/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Pinger is a dependency that can report its own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.State
	Sessions  *sessions.Registry
	Journal   Pinger
	Now       func() time.Time
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK             bool     `json:"ok"`
		Draining       bool     `json:"draining"`
		Sessions       int      `json:"sessions"`
		JournalEnabled bool     `json:"journal_enabled"`
		UptimeSeconds  int64    `json:"uptime_seconds"`
		Issues         []string `json:"issues,omitempty"`
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	var issues []string
	draining := h.Lifecycle.Draining()
	if draining {
		issues = append(issues, "server is draining")
	}
	if h.Config.GeminiAPIKey == "" {
		issues = append(issues, "gemini api key is not configured")
	}
	if h.Journal != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.Journal.Ping(ctx)
		cancel()
		if err != nil {
			issues = append(issues, "journal database unreachable")
		}
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:             ok,
		Draining:       draining,
		Sessions:       h.Sessions.Count(),
		JournalEnabled: h.Journal != nil,
		UptimeSeconds:  int64(h.Lifecycle.Uptime(now()) / time.Second),
		Issues:         issues,
	})
}
