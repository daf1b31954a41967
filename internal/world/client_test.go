package world

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GarageLink/GarageLink/internal/common/config"
	"github.com/GarageLink/GarageLink/internal/garage"
)

func TestSpawnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/spawn" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req spawnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.VehicleID != 7 {
			t.Fatalf("vehicle id mismatch: %d", req.VehicleID)
		}
		_ = json.NewEncoder(w).Encode(spawnResponse{NetID: 1007})
	}))
	defer srv.Close()

	c := NewClient(config.WorldConfig{BaseURL: srv.URL}, nil, nil)
	handle, err := c.Spawn(context.Background(), 7, garage.Position{X: 1, Y: 2, Z: 3})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if handle.NetID != 1007 {
		t.Fatalf("expected net id 1007, got %d", handle.NetID)
	}
}

func TestSpawnRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(spawnResponse{Error: "no free slot"})
	}))
	defer srv.Close()

	c := NewClient(config.WorldConfig{BaseURL: srv.URL}, nil, nil)
	_, err := c.Spawn(context.Background(), 7, garage.Position{})
	if !errors.Is(err, garage.ErrPlacementFailed) {
		t.Fatalf("expected ErrPlacementFailed, got %v", err)
	}
}

func TestSpawnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bridge down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(config.WorldConfig{BaseURL: srv.URL}, nil, nil)
	_, err := c.Spawn(context.Background(), 7, garage.Position{})
	if !errors.Is(err, garage.ErrPlacementFailed) {
		t.Fatalf("expected ErrPlacementFailed, got %v", err)
	}
}

func TestSpawnBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "bridge down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(config.WorldConfig{BaseURL: srv.URL, BreakerMaxFail: 2, BreakerResetMS: 60_000}, nil, nil)
	for i := 0; i < 2; i++ {
		if _, err := c.Spawn(context.Background(), 7, garage.Position{}); err == nil {
			t.Fatalf("expected failure")
		}
	}
	// 第三次应被熔断器拦下，不再打到下游
	if _, err := c.Spawn(context.Background(), 7, garage.Position{}); !errors.Is(err, garage.ErrPlacementFailed) {
		t.Fatalf("expected ErrPlacementFailed, got %v", err)
	}
	if hits != 2 {
		t.Fatalf("expected 2 downstream hits, got %d", hits)
	}
}
