package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakePending struct {
	n   int
	err error
}

func (f fakePending) Pending(context.Context) (int, error) { return f.n, f.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		ping       error
		pending    fakePending
		wantCode   int
		wantStatus string
	}{
		{"healthy", nil, fakePending{}, http.StatusOK, "healthy"},
		{"ping fails", errors.New("connection refused"), fakePending{}, http.StatusServiceUnavailable, "unhealthy"},
		{"pending migrations", nil, fakePending{n: 1}, http.StatusServiceUnavailable, "degraded"},
		{"status query fails", nil, fakePending{err: errors.New("permission denied")}, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &health{
				pinger:  fakePinger{err: tt.ping},
				pending: tt.pending,
				stats:   func() PoolStats { return PoolStats{TotalConns: 3, MaxConns: 10} },
			}
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)

			if err := h.serve(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}

			var body map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["status"] != tt.wantStatus {
				t.Errorf("expected status %s, got %v", tt.wantStatus, body["status"])
			}
			pool, _ := body["pool"].(map[string]interface{})
			if pool["max_conns"] != float64(10) {
				t.Errorf("expected pool stats in body, got %v", body["pool"])
			}
		})
	}
}
