// auth_test.go — Tests for JWT generation/parsing and the rate limiter.
package middleware

import (
	"testing"

	"github.com/veritube/factcheck-api/internal/models"
)

func TestJWTRoundTrip(t *testing.T) {
	user := &models.User{ID: "user-123", Email: "test@example.com", Name: "Test"}

	token, err := GenerateJWT(user, "test-secret")
	if err != nil {
		t.Fatalf("GenerateJWT() error: %v", err)
	}

	claims, err := ParseJWT(token, "test-secret")
	if err != nil {
		t.Fatalf("ParseJWT() error: %v", err)
	}
	if claims.UserID != "user-123" || claims.Email != "test@example.com" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestJWTWrongSecret(t *testing.T) {
	user := &models.User{ID: "user-123", Email: "test@example.com"}

	token, err := GenerateJWT(user, "correct-secret")
	if err != nil {
		t.Fatalf("GenerateJWT() error: %v", err)
	}

	if _, err := ParseJWT(token, "wrong-secret"); err == nil {
		t.Error("ParseJWT() should reject tokens signed with a different secret")
	}
}

func TestJWTGarbageToken(t *testing.T) {
	if _, err := ParseJWT("not.a.token", "secret"); err == nil {
		t.Error("ParseJWT() should reject malformed tokens")
	}
}

func TestRateLimiterConsumesTokens(t *testing.T) {
	rl := &RateLimiter{buckets: make(map[string]*bucket), limit: 3}

	for i := 0; i < 3; i++ {
		if result := rl.allow("10.0.0.1"); !result.allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if result := rl.allow("10.0.0.1"); result.allowed {
		t.Error("fourth request should be rejected")
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	rl := &RateLimiter{buckets: make(map[string]*bucket), limit: 1}

	if result := rl.allow("10.0.0.1"); !result.allowed {
		t.Fatal("first client's first request should be allowed")
	}
	if result := rl.allow("10.0.0.1"); result.allowed {
		t.Fatal("first client's second request should be rejected")
	}
	if result := rl.allow("10.0.0.2"); !result.allowed {
		t.Error("a different client must have its own bucket")
	}
}

func TestRateLimiterReportsRemaining(t *testing.T) {
	rl := &RateLimiter{buckets: make(map[string]*bucket), limit: 10}

	result := rl.allow("10.0.0.1")
	if result.limit != 10 {
		t.Errorf("limit = %v, want 10", result.limit)
	}
	if result.remaining > 9 || result.remaining < 8.9 {
		t.Errorf("remaining = %v, want ~9", result.remaining)
	}
}
