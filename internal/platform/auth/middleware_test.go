package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func runMiddleware(mw echo.MiddlewareFunc, req *http.Request) (Identity, error) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got Identity
	handler := mw(func(c echo.Context) error {
		got = IdentityFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	return got, handler(c)
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:       "Casey Manager",
		Email:      "casey@example.com",
		Role:       "case-manager",
		EmployerID: "emp-42",
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, claims))

	got, err := runMiddleware(JWTMiddleware(JWTConfig{Secret: testSecret}), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "user-1" || got.Role != "case-manager" || got.EmployerID != "emp-42" {
		t.Errorf("unexpected identity: %+v", got)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := runMiddleware(JWTMiddleware(JWTConfig{Secret: testSecret}), req)
	if err == nil {
		t.Error("expected error for missing header")
	}
}

func TestJWTMiddleware_WrongSecret(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, claims))

	_, err := runMiddleware(JWTMiddleware(JWTConfig{Secret: []byte("other")}), req)
	if err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestJWTMiddleware_Expired(t *testing.T) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, claims))

	_, err := runMiddleware(JWTMiddleware(JWTConfig{Secret: testSecret}), req)
	if err == nil {
		t.Error("expected error for expired token")
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	got, err := runMiddleware(DevAuthMiddleware(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Role != "admin" {
		t.Errorf("expected admin role, got %q", got.Role)
	}
}

func TestIdentityFromContext_Empty(t *testing.T) {
	ident := IdentityFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	if ident.ID != "" {
		t.Errorf("expected zero identity, got %+v", ident)
	}
}
