package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mercatus/blackboard/internal/resolver"
	"github.com/mercatus/blackboard/pkg/blackboard"
)

// HealthResponse is the JSON body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store,omitempty"`
	Cache  string `json:"cache,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handler builds the daemon's HTTP surface.
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", d.healthHandler)
	mux.HandleFunc("/dashboard", d.dashboardHandler)
	mux.HandleFunc("/overview", d.overviewHandler)
	return mux
}

// serve runs the HTTP server until the context is cancelled.
func (d *Daemon) serve(ctx context.Context) error {
	server := &http.Server{
		Addr:         d.cfg.Daemon.ListenAddr,
		Handler:      d.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// healthHandler reports daemon health. The durable store is authoritative:
// its failure makes the daemon unhealthy, a cache failure only degrades.
func (d *Daemon) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{Status: "healthy", Store: "connected", Cache: "connected"}
	status := http.StatusOK

	if _, err := d.repo.Store().ListTeams(ctx); err != nil {
		response.Status = "unhealthy"
		response.Store = "disconnected"
		response.Error = err.Error()
		status = http.StatusServiceUnavailable
	} else if err := d.mirror.Ping(ctx); err != nil {
		response.Status = "degraded"
		response.Cache = "disconnected"
		response.Error = err.Error()
	}

	writeJSON(w, status, response)
}

// dashboardHandler serves GET /dashboard?team=<id>. The team parameter
// accepts a short ID prefix.
func (d *Daemon) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	param := r.URL.Query().Get("team")
	if param == "" {
		http.Error(w, "team query parameter is required", http.StatusBadRequest)
		return
	}

	teamID, err := resolver.ResolveTeamID(r.Context(), d.repo, param)
	if err != nil {
		switch {
		case errors.Is(err, blackboard.ErrNotFound):
			http.Error(w, "team not found", http.StatusNotFound)
		case resolver.IsAmbiguousError(err) || errors.Is(err, blackboard.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	dash, err := d.manager.Dashboard(r.Context(), teamID)
	if err != nil {
		if errors.Is(err, blackboard.ErrNotFound) {
			http.Error(w, "team not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// overviewHandler serves GET /overview?org=<id>.
func (d *Daemon) overviewHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	orgID := r.URL.Query().Get("org")
	if orgID == "" {
		http.Error(w, "org query parameter is required", http.StatusBadRequest)
		return
	}

	overview, err := d.manager.OrganizationOverview(r.Context(), orgID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
