package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tunecrate/tunecrate-backend/pkg/config"
)

type fakeWindowStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (f *fakeWindowStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[scope]++
	count := f.counts[scope]
	return count <= limit, count, nil
}

func TestPurchaseRateLimitBlocksAfterLimit(t *testing.T) {
	store := &fakeWindowStore{}
	cfg := config.PurchaseRateLimitConfig{Window: time.Minute, Limit: 2}
	handler := PurchaseRateLimit(cfg, store, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/purchases", nil)
		req = req.WithContext(WithIdentity(req.Context(), "idp|user-1", "", "user"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/purchases", nil)
	req = req.WithContext(WithIdentity(req.Context(), "idp|user-1", "", "user"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", rec.Code)
	}
}

func TestPurchaseRateLimitIsolatesSubjects(t *testing.T) {
	store := &fakeWindowStore{}
	cfg := config.PurchaseRateLimitConfig{Window: time.Minute, Limit: 1}
	handler := PurchaseRateLimit(cfg, store, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, subject := range []string{"idp|a", "idp|b"} {
		req := httptest.NewRequest(http.MethodPost, "/purchases", nil)
		req = req.WithContext(WithIdentity(req.Context(), subject, "", "user"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("subject %s: expected 204, got %d", subject, rec.Code)
		}
	}
}

func TestPurchaseRateLimitDisabledPassesThrough(t *testing.T) {
	handler := PurchaseRateLimit(config.PurchaseRateLimitConfig{}, nil, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/purchases", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}
