package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	iss, err := NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return iss
}

func serve(t *testing.T, iss *Issuer, token string, next http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	handler := Middleware(iss, nil)(next)
	req := httptest.NewRequest("POST", "/predict", nil)
	if token != "" {
		req.Header.Set(HeaderToken, token)
	}
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "test-req")
	handler.ServeHTTP(w, req)
	return w
}

func TestMiddleware_Rejects(t *testing.T) {
	iss := newTestIssuer(t)

	expired, _ := NewIssuer("test-secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expiredToken, _, _ := expired.Issue("admin")

	tests := []struct {
		name     string
		token    string
		wantBody string
	}{
		{"missing token", "", "{\"error\":\"token is missing\"}\n"},
		{"invalid token", "abc.def.ghi", "{\"error\":\"invalid token\"}\n"},
		{"expired token", expiredToken, "{\"error\":\"token expired\"}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, iss, tt.token, func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			})
			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestMiddleware_ValidToken(t *testing.T) {
	iss := newTestIssuer(t)
	token, _, _ := iss.Issue("admin")

	var called bool
	w := serve(t, iss, token, func(w http.ResponseWriter, r *http.Request) {
		called = true
		info, ok := AuthFromContext(r.Context())
		if !ok {
			t.Fatal("auth info not found in context")
		}
		if info.User != "admin" {
			t.Errorf("expected user admin, got %s", info.User)
		}
		w.WriteHeader(http.StatusOK)
	})

	if !called {
		t.Error("handler should have been called")
	}
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
