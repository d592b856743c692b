package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/utils"
)

func newAuthRouter(cfg *config.EnvConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id"), "username": c.GetString("username")})
	})
	return r
}

func testJWTConfig() *config.EnvConfig {
	cfg := config.LoadEnvConfig()
	cfg.JWT.SecretKey = "test-secret"
	cfg.JWT.Algorithm = "HS256"
	return cfg
}

func TestAuthMiddlewareRequiresToken(t *testing.T) {
	r := newAuthRouter(testJWTConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareRejectsForeignSignature(t *testing.T) {
	cfg := testJWTConfig()
	r := newAuthRouter(cfg)

	other := *cfg
	other.JWT.SecretKey = "another-secret"
	token, err := utils.GenerateToken(uuid.New(), "alice", &other)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareInjectsClaims(t *testing.T) {
	cfg := testJWTConfig()
	r := newAuthRouter(cfg)
	userID := uuid.New()
	token, err := utils.GenerateToken(userID, "alice", cfg)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me?access_token="+token, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID.String())
	assert.Contains(t, w.Body.String(), "alice")
}

func TestCORSMiddlewareAllowsConfiguredOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.LoadEnvConfig()
	cfg.CORS.AllowDomains = "http://localhost:3000"
	cfg.CORS.GlobalDomain = "example.com"

	r := gin.New()
	r.Use(CORSMiddleware(cfg))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for origin, allowed := range map[string]bool{
		"http://localhost:3000":   true,
		"https://app.example.com": true,
		"https://evil.com":        false,
	} {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Origin", origin)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if allowed {
			assert.Equal(t, origin, w.Header().Get("Access-Control-Allow-Origin"), origin)
		} else {
			assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"), origin)
		}
	}
}
