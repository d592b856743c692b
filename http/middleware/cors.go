package middlewares

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-property-media/config"
)

// CORSMiddleware allows the comma separated ALLOWED_DOMAINS plus any subdomain of GLOBAL_DOMAIN.
func CORSMiddleware(cfg *config.EnvConfig) gin.HandlerFunc {
	allowed := map[string]bool{}
	for _, origin := range strings.Split(cfg.CORS.AllowDomains, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = true
		}
	}
	global := strings.TrimPrefix(strings.TrimSpace(cfg.CORS.GlobalDomain), ".")

	return cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			if allowed[origin] {
				return true
			}
			if global == "" {
				return false
			}
			host := origin
			if i := strings.Index(host, "://"); i >= 0 {
				host = host[i+3:]
			}
			return host == global || strings.HasSuffix(host, "."+global)
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "X-Request-Id"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}
