package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestService_Enabled(t *testing.T) {
	if (&Service{}).Enabled() {
		t.Error("a Service with no secret should be disabled")
	}
	if !NewService("secret", time.Hour).Enabled() {
		t.Error("a Service with a secret should be enabled")
	}
}

func TestService_GenerateAndValidate(t *testing.T) {
	svc := NewService("super-secret", time.Hour)

	token, err := svc.Generate("user-1")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	subject, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if subject != "user-1" {
		t.Errorf("subject = %q, want %q", subject, "user-1")
	}
}

func TestService_Validate_WrongSecret(t *testing.T) {
	issuer := NewService("secret-a", time.Hour)
	verifier := NewService("secret-b", time.Hour)

	token, _ := issuer.Generate("user-1")
	if _, err := verifier.Validate(token); err != ErrInvalidToken {
		t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
	}
}

func TestService_Validate_Expired(t *testing.T) {
	svc := NewService("secret", -time.Hour) // already expired
	token, _ := svc.Generate("user-1")
	if _, err := svc.Validate(token); err != ErrInvalidToken {
		t.Errorf("Validate() error = %v, want ErrInvalidToken for an expired token", err)
	}
}

func TestService_Generate_Disabled(t *testing.T) {
	svc := &Service{}
	if _, err := svc.Generate("user-1"); err != ErrDisabled {
		t.Errorf("Generate() error = %v, want ErrDisabled", err)
	}
}

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("passes every request through when auth is disabled", func(t *testing.T) {
		handler := Middleware(nil)(ok)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/start_conversation", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	svc := NewService("secret", time.Hour)

	t.Run("rejects a request with no bearer token", func(t *testing.T) {
		handler := Middleware(svc)(ok)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/start_conversation", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("rejects an invalid token", func(t *testing.T) {
		handler := Middleware(svc)(ok)
		req := httptest.NewRequest(http.MethodPost, "/v1/start_conversation", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("accepts a valid bearer token", func(t *testing.T) {
		token, _ := svc.Generate("user-1")
		handler := Middleware(svc)(ok)
		req := httptest.NewRequest(http.MethodPost, "/v1/start_conversation", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})
}
