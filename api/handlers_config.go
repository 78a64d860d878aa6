package api

import (
	"context"
	"net/http"
	"time"
)

// handleHealth reports ok when every backing store answers a ping
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	checks := make(map[string]string, len(s.deps.Health))
	for name, checker := range s.deps.Health {
		if err := checker.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{"status": status, "checks": checks})
}
