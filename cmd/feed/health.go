package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/rickgao/arb-feed/internal/journal"
	"github.com/rickgao/arb-feed/internal/manager"
	"github.com/rickgao/arb-feed/internal/model"
	"github.com/rickgao/arb-feed/internal/publish"
	"github.com/rickgao/arb-feed/internal/version"
)

// feedState is what the health endpoints read from the manager.
type feedState interface {
	Stats() []manager.VenueStats
	GetCommonSymbols(ctx context.Context) ([]string, error)
}

// healthHandler serves /health and the debug endpoints. journal and
// publisher are nil when disabled.
type healthHandler struct {
	feed      feedState
	journal   *journal.Journal
	publisher *publish.Publisher
	logger    *slog.Logger
}

type healthResponse struct {
	Status    string               `json:"status"`
	Version   version.Info         `json:"version"`
	Venues    []manager.VenueStats `json:"venues"`
	Journal   *journal.Stats       `json:"journal,omitempty"`
	Publisher *publish.Stats       `json:"publisher,omitempty"`
}

func (h *healthHandler) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.health)
	mux.HandleFunc("/debug/symbols", h.symbols)
	mux.HandleFunc("/debug/latest", h.latest)
	return mux
}

// health is healthy when every venue is connected, degraded when some are
// not, and unhealthy (503) when none are.
func (h *healthHandler) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "healthy",
		Version: version.Current(),
		Venues:  h.feed.Stats(),
	}

	connected := 0
	for _, v := range resp.Venues {
		if v.State == "connected" {
			connected++
		}
	}
	switch {
	case connected == 0:
		resp.Status = "unhealthy"
	case connected < len(resp.Venues):
		resp.Status = "degraded"
	}

	if h.journal != nil {
		s := h.journal.Stats()
		resp.Journal = &s
	}
	if h.publisher != nil {
		s := h.publisher.Stats()
		resp.Publisher = &s
	}

	code := http.StatusOK
	if resp.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, resp)
}

func (h *healthHandler) symbols(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	common, err := h.feed.GetCommonSymbols(ctx)
	if err != nil {
		h.writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(common),
		"symbols": common,
	})
}

func (h *healthHandler) latest(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "publisher disabled"})
		return
	}

	venue, err := model.ParseVenue(r.URL.Query().Get("venue"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	symbol := model.NormalizeSymbol(r.URL.Query().Get("symbol"))
	if symbol == "" {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "symbol is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	q, err := h.publisher.Latest(ctx, venue, symbol)
	switch {
	case errors.Is(err, publish.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case err != nil:
		h.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		h.writeJSON(w, http.StatusOK, q)
	}
}

func (h *healthHandler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("write response failed", "error", err)
	}
}
