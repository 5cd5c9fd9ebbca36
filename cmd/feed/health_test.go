package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/rickgao/arb-feed/internal/config"
	"github.com/rickgao/arb-feed/internal/exchange"
	"github.com/rickgao/arb-feed/internal/manager"
	"github.com/rickgao/arb-feed/internal/model"
)

type stubFeed struct {
	stats  []manager.VenueStats
	common []string
	err    error
}

func (s *stubFeed) Stats() []manager.VenueStats { return s.stats }

func (s *stubFeed) GetCommonSymbols(context.Context) ([]string, error) {
	return s.common, s.err
}

func venueStats(v model.Venue, state string) manager.VenueStats {
	return manager.VenueStats{Status: exchange.Status{Venue: v, State: state}}
}

func TestHealth_Status(t *testing.T) {
	tests := []struct {
		name     string
		stats    []manager.VenueStats
		want     string
		wantCode int
	}{
		{
			name:     "all connected",
			stats:    []manager.VenueStats{venueStats(model.Binance, "connected"), venueStats(model.OKX, "connected")},
			want:     "healthy",
			wantCode: http.StatusOK,
		},
		{
			name:     "one reconnecting",
			stats:    []manager.VenueStats{venueStats(model.Binance, "connected"), venueStats(model.OKX, "connecting")},
			want:     "degraded",
			wantCode: http.StatusOK,
		},
		{
			name:     "none connected",
			stats:    []manager.VenueStats{venueStats(model.Gate, "disconnected")},
			want:     "unhealthy",
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &healthHandler{feed: &stubFeed{stats: tt.stats}, logger: newLogger(&bytes.Buffer{}, config.LogConfig{})}
			rec := httptest.NewRecorder()
			h.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}

			var body struct {
				Status string `json:"status"`
				Venues []struct {
					Venue string `json:"venue"`
					State string `json:"state"`
				} `json:"venues"`
				Journal *struct{} `json:"journal"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.want {
				t.Errorf("status = %q, want %q", body.Status, tt.want)
			}
			if len(body.Venues) != len(tt.stats) {
				t.Errorf("venues = %d, want %d", len(body.Venues), len(tt.stats))
			}
			if body.Journal != nil {
				t.Error("journal block present while disabled")
			}
		})
	}
}

func TestHealth_Symbols(t *testing.T) {
	h := &healthHandler{
		feed:   &stubFeed{common: []string{"BTC-USDT", "ETH-USDT"}},
		logger: newLogger(&bytes.Buffer{}, config.LogConfig{}),
	}
	rec := httptest.NewRecorder()
	h.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/symbols", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var body struct {
		Count   int      `json:"count"`
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 || body.Symbols[0] != "BTC-USDT" {
		t.Errorf("body = %+v", body)
	}

	h.feed = &stubFeed{err: errors.New("context deadline exceeded")}
	rec = httptest.NewRecorder()
	h.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/symbols", nil))
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusGatewayTimeout)
	}
}

func TestHealth_LatestDisabled(t *testing.T) {
	h := &healthHandler{feed: &stubFeed{}, logger: newLogger(&bytes.Buffer{}, config.LogConfig{})}
	rec := httptest.NewRecorder()
	h.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/latest?venue=binance&symbol=BTC-USDT", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"}).Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %s", buf.String())
	}

	newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"}).Warn("venue down", "venue", "okx")
	if !strings.Contains(buf.String(), `"msg":"venue down"`) || !strings.Contains(buf.String(), `"venue":"okx"`) {
		t.Errorf("json output = %s", buf.String())
	}

	buf.Reset()
	newLogger(&buf, config.LogConfig{Level: "debug", Format: "text"}).Debug("tick")
	if !strings.Contains(buf.String(), "msg=tick") {
		t.Errorf("text output = %s", buf.String())
	}
}
