package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func testAuthConfig() AuthConfig {
	return AuthConfig{
		Secret:    testSecret,
		Issuer:    "https://project.supabase.co/auth/v1",
		Audience:  "authenticated",
		SkipPaths: []string{"/healthz"},
	}
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod, mutate func(*Claims)) string {
	t.Helper()
	claims := &Claims{
		Email: "ada@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "https://project.supabase.co/auth/v1",
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	if mutate != nil {
		mutate(claims)
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func serve(t *testing.T, m *AuthMiddleware, path, header string) (*httptest.ResponseRecorder, *Claims) {
	t.Helper()
	var captured *Claims
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, captured
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body.Error.Code
}

func TestAuthMiddleware_SkipPaths(t *testing.T) {
	m := NewAuthMiddleware(testAuthConfig(), logger.Discard())
	rec, _ := serve(t, m, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthMiddleware_MissingOrMalformedHeader(t *testing.T) {
	m := NewAuthMiddleware(testAuthConfig(), logger.Discard())
	for name, header := range map[string]string{
		"missing":      "",
		"no prefix":    "token123",
		"wrong scheme": "Basic token123",
		"empty token":  "Bearer ",
	} {
		t.Run(name, func(t *testing.T) {
			rec, _ := serve(t, m, "/me", header)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if code := errorCode(t, rec); code != "UNAUTHORIZED" {
				t.Fatalf("code = %s", code)
			}
		})
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	m := NewAuthMiddleware(testAuthConfig(), logger.Discard())
	token := signToken(t, testSecret, jwt.SigningMethodHS256, func(c *Claims) {
		c.AppMetadata.Role = "admin"
	})

	var userID string
	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID = GetUserID(r.Context())
		if logger.Role(r.Context()) != "admin" {
			t.Errorf("role = %q", logger.Role(r.Context()))
		}
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims.Email != "ada@example.com" {
			t.Errorf("claims = %+v", claims)
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if userID != "user-123" {
		t.Fatalf("user id = %q", userID)
	}
}

func TestAuthMiddleware_RejectsBadTokens(t *testing.T) {
	m := NewAuthMiddleware(testAuthConfig(), logger.Discard())
	cases := map[string]string{
		"expired": signToken(t, testSecret, jwt.SigningMethodHS256, func(c *Claims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		}),
		"no expiry": signToken(t, testSecret, jwt.SigningMethodHS256, func(c *Claims) {
			c.ExpiresAt = nil
		}),
		"wrong secret":    signToken(t, "another-secret", jwt.SigningMethodHS256, nil),
		"wrong algorithm": signToken(t, testSecret, jwt.SigningMethodHS512, nil),
		"wrong audience": signToken(t, testSecret, jwt.SigningMethodHS256, func(c *Claims) {
			c.Audience = jwt.ClaimStrings{"anon"}
		}),
		"wrong issuer": signToken(t, testSecret, jwt.SigningMethodHS256, func(c *Claims) {
			c.Issuer = "https://evil.example"
		}),
		"no subject": signToken(t, testSecret, jwt.SigningMethodHS256, func(c *Claims) {
			c.Subject = ""
		}),
		"garbage": "not.a.jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			rec, claims := serve(t, m, "/me", "Bearer "+token)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if code := errorCode(t, rec); code != "INVALID_TOKEN" {
				t.Fatalf("code = %s", code)
			}
			if claims != nil {
				t.Fatal("handler must not run")
			}
		})
	}
}
