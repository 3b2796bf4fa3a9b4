package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"collabsync/backend/internal/authservice"
)

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", Auth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"participantId": c.GetString("participantId")})
	})
	return r
}

func TestAuthAcceptsBearerHeader(t *testing.T) {
	authservice.SetSecret("test-secret")
	t.Cleanup(func() { authservice.SetSecret("") })

	token, _, err := authservice.SignToken("p-1", "Alice", "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	testRouter().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
}

func TestAuthAcceptsQueryToken(t *testing.T) {
	authservice.SetSecret("test-secret")
	t.Cleanup(func() { authservice.SetSecret("") })

	token, _, err := authservice.SignToken("p-1", "Alice", "alice@example.com", time.Hour)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/whoami?token="+token, nil)
	w := httptest.NewRecorder()
	testRouter().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", w.Code)
	}
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	authservice.SetSecret("test-secret")
	t.Cleanup(func() { authservice.SetSecret("") })

	r := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/whoami?token=garbage", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token: status %d, want 401", w.Code)
	}
}
