package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"grana/internal/log"
)

type stubVerifier struct {
	uid string
	err error
}

func (v *stubVerifier) Verify(_ context.Context, idToken string) (string, error) {
	if v.err != nil {
		return "", v.err
	}
	if idToken != "valid-token" {
		return "", errors.New("unknown token")
	}
	return v.uid, nil
}

func echoOwner() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(OwnerID(r.Context())))
	})
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	handler := Middleware(&stubVerifier{uid: "user-123"}, log.New(log.DefaultConfig()))(echoOwner())

	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "user-123" {
		t.Errorf("owner id = %q, want user-123", rec.Body.String())
	}
}

func TestMiddlewareRejectsMissingOrInvalidToken(t *testing.T) {
	handler := Middleware(&stubVerifier{uid: "user-123"}, log.New(log.DefaultConfig()))(echoOwner())

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic abc"},
		{"invalid token", "Bearer bad-token"},
		{"empty bearer", "Bearer "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestMiddlewareDisabledAssumesDevIdentity(t *testing.T) {
	handler := Middleware(nil, log.New(log.DefaultConfig()))(echoOwner())

	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != devOwnerID {
		t.Errorf("owner id = %q, want %q", rec.Body.String(), devOwnerID)
	}
}

func TestOwnerIDMissing(t *testing.T) {
	if got := OwnerID(context.Background()); got != "" {
		t.Errorf("OwnerID on bare context = %q, want empty", got)
	}
}
