package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	pkgAuth "github.com/tunecrate/tunecrate-backend/pkg/auth"
	"github.com/tunecrate/tunecrate-backend/pkg/config"
	"github.com/tunecrate/tunecrate-backend/pkg/enums"
	"github.com/tunecrate/tunecrate-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Level: zerolog.Disabled, Output: io.Discard})
}

func identityConfig() config.IdentityConfig {
	return config.IdentityConfig{Secret: "test-secret", Issuer: "tunecrate-identity"}
}

func mintToken(t *testing.T, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintIdentityToken(identityConfig(), time.Now(), time.Hour, pkgAuth.IdentityTokenPayload{
		SubjectID: "idp|user-1",
		Email:     "listener@example.com",
		Role:      role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestAuthSeedsContext(t *testing.T) {
	var gotSubject, gotEmail, gotRole string
	handler := Auth(identityConfig(), testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSubject = SubjectIDFromContext(r.Context())
		gotEmail = EmailFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/library", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, enums.UserRoleUser))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if gotSubject != "idp|user-1" {
		t.Fatalf("unexpected subject %q", gotSubject)
	}
	if gotEmail != "listener@example.com" {
		t.Fatalf("unexpected email %q", gotEmail)
	}
	if gotRole != string(enums.UserRoleUser) {
		t.Fatalf("unexpected role %q", gotRole)
	}
}

func TestAuthRejectsMissingOrMalformedToken(t *testing.T) {
	handler := Auth(identityConfig(), testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	cases := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "empty bearer", header: "Bearer "},
		{name: "garbage token", header: "Bearer not.a.jwt"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/library", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", tc.name, rec.Code)
		}
	}
}

func TestRequireRoleBlocksMismatch(t *testing.T) {
	handler := RequireRole(string(enums.UserRoleAdmin), testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/admin/songs", nil)
	req = req.WithContext(WithIdentity(req.Context(), "idp|user-1", "", string(enums.UserRoleUser)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/songs", nil)
	req = req.WithContext(WithIdentity(req.Context(), "idp|admin-1", "", string(enums.UserRoleAdmin)))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for matching role, got %d", rec.Code)
	}
}
