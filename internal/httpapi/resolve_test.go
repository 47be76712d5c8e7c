package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dealeriq/priorityd/internal/cache"
	"github.com/dealeriq/priorityd/internal/jobs"
	"github.com/dealeriq/priorityd/internal/places"
)

type staticProvider struct {
	candidates []places.Place
	details    *places.Place
}

func (p *staticProvider) FindPlace(context.Context, string) ([]places.Place, error) {
	return p.candidates, nil
}

func (p *staticProvider) PlaceDetails(context.Context, string) (*places.Place, error) {
	return p.details, nil
}

func newResolveServer(provider places.Provider) *Server {
	resolver := places.NewResolver(places.ResolverOptions{
		Provider: provider,
		Cache:    cache.NewMemoryStore(),
	})
	return NewServer(jobs.NewMemoryStore(), resolver, nil, ServerConfig{}, nil)
}

func getResolve(handler http.Handler, target, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func TestResolveRequiresInput(t *testing.T) {
	handler := newResolveServer(&staticProvider{}).Router()
	recorder := getResolve(handler, "/v1/resolve", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing input, got %d", recorder.Code)
	}
	var reply map[string]any
	_ = json.Unmarshal(recorder.Body.Bytes(), &reply)
	if reply["ok"] != false || reply["error"] != "missing input" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestResolveWithoutProviderConfigured(t *testing.T) {
	handler := NewServer(jobs.NewMemoryStore(), nil, nil, ServerConfig{}, nil).Router()
	recorder := getResolve(handler, "/v1/resolve?input=smythe", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a provider, got %d", recorder.Code)
	}
}

func TestResolveReturnsMergedProfile(t *testing.T) {
	handler := newResolveServer(&staticProvider{
		candidates: []places.Place{{
			PlaceID:          "pl_1",
			Name:             "Smythe Motors",
			FormattedAddress: "1 High St",
		}},
	}).Router()

	recorder := getResolve(handler, "/v1/resolve?input=smythe+motors&dealer=smythe", "5.6.7.8:1234")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", recorder.Code, recorder.Body.String())
	}
	var reply map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if reply["ok"] != true || reply["place_id"] != "pl_1" || reply["dealer"] != "smythe" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if recorder.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("expected rate limit headers on success")
	}
}

func TestResolveRateLimitsByClientIP(t *testing.T) {
	handler := newResolveServer(&staticProvider{
		candidates: []places.Place{{PlaceID: "pl_1", Name: "Smythe Motors"}},
	}).Router()

	first := getResolve(handler, "/v1/resolve?input=smythe", "5.6.7.8:1234")
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := getResolve(handler, "/v1/resolve?input=smythe", "5.6.7.8:5678")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request from the same ip to be limited, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if second.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("expected X-RateLimit-Remaining header")
	}
	if second.Header().Get("X-RateLimit-Reset") == "" {
		t.Fatalf("expected X-RateLimit-Reset header")
	}
	var reply map[string]any
	_ = json.Unmarshal(second.Body.Bytes(), &reply)
	if reply["error"] != "rate_limited" {
		t.Fatalf("unexpected limited reply: %+v", reply)
	}
	if _, ok := reply["retry_after_sec"]; !ok {
		t.Fatalf("expected retry_after_sec in reply: %+v", reply)
	}

	// A different caller is a fresh window.
	other := getResolve(handler, "/v1/resolve?input=smythe", "9.9.9.9:1234")
	if other.Code != http.StatusOK {
		t.Fatalf("expected other ip to pass, got %d", other.Code)
	}
}

func TestResolveUsesForwardedForWhenPresent(t *testing.T) {
	handler := newResolveServer(&staticProvider{
		candidates: []places.Place{{PlaceID: "pl_1", Name: "Smythe Motors"}},
	}).Router()

	req := httptest.NewRequest(http.MethodGet, "/v1/resolve?input=smythe", nil)
	req.RemoteAddr = "10.0.0.1:1000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	// Same forwarded identity behind a different proxy hop is still limited.
	req = httptest.NewRequest(http.MethodGet, "/v1/resolve?input=smythe", nil)
	req.RemoteAddr = "10.0.0.2:2000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("expected forwarded identity to be limited, got %d", recorder.Code)
	}
}

func TestResolveNotFoundStillReturnsOK(t *testing.T) {
	handler := newResolveServer(&staticProvider{}).Router()

	recorder := getResolve(handler, "/v1/resolve?input=https%3A%2F%2Fmaps.google.com%2F%3Fcid%3D777", "5.6.7.8:1234")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for not-found resolution, got %d", recorder.Code)
	}
	var reply map[string]any
	_ = json.Unmarshal(recorder.Body.Bytes(), &reply)
	if reply["ok"] != true || reply["cid"] != "777" {
		t.Fatalf("expected cid-only resolution, got %+v", reply)
	}
	if reply["dealer_key"] == "" {
		t.Fatalf("expected dealer key even without a match")
	}
}
