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

func callHealth(t *testing.T, h echo.HandlerFunc) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec, body
}

func TestHealthHandler_Healthy(t *testing.T) {
	rec, body := callHealth(t, HealthHandler(fakePinger{}, func() *PoolStats {
		return &PoolStats{TotalConns: 2, MaxConns: 10, Healthy: true}
	}))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", body["status"])
	}
	pool, ok := body["pool"].(map[string]interface{})
	if !ok {
		t.Fatal("expected pool stats in body")
	}
	if pool["max_conns"] != float64(10) {
		t.Errorf("expected max_conns 10, got %v", pool["max_conns"])
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	rec, body := callHealth(t, HealthHandler(fakePinger{err: errors.New("connection refused")}, func() *PoolStats {
		return &PoolStats{Healthy: true}
	}))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("expected unhealthy, got %v", body["status"])
	}
	if body["error"] != "connection refused" {
		t.Errorf("expected error message, got %v", body["error"])
	}
	pool := body["pool"].(map[string]interface{})
	if pool["healthy"] != false {
		t.Error("expected pool to be marked unhealthy")
	}
}

func TestHealthHandler_NoPool(t *testing.T) {
	rec, body := callHealth(t, HealthHandler(fakePinger{}, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if _, ok := body["pool"]; ok {
		t.Error("expected no pool stats without a pool")
	}
}
