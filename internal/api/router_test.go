package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/colombo-hci/slopdetect/internal/api/handler"
	"github.com/colombo-hci/slopdetect/internal/registry"
)

func testRouter() http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	detect := handler.NewDetectHandler(nil, logger)
	health := handler.NewHealthHandler(registry.New())
	return NewRouter(detect, health, "router-key")
}

func TestHealthEndpointOpen(t *testing.T) {
	srv := httptest.NewServer(testRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 without credentials", resp.StatusCode)
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	srv := httptest.NewServer(testRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAPIAcceptsKey(t *testing.T) {
	srv := httptest.NewServer(testRouter())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/stats", nil)
	req.Header.Set("X-API-Key", "router-key")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestUnknownRouteNotFound(t *testing.T) {
	srv := httptest.NewServer(testRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
