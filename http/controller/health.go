package controller

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-property-media/utils"
)

const healthTimeout = 3 * time.Second

// CheckHealth probes Redis, Postgres and the object storage backend.
func (ctrl *Controller) CheckHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	checks := map[string]func(context.Context) error{
		"redis":    ctrl.Infra.Redis.Ping,
		"postgres": ctrl.Infra.Postgres.Ping,
		"storage":  ctrl.Infra.Storage.Health,
	}

	status := gin.H{}
	healthy := true
	for name, check := range checks {
		if err := check(ctx); err != nil {
			ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Health] %s check failed: %v", name, err)
			status[name] = "unhealthy: " + err.Error()
			healthy = false
			continue
		}
		status[name] = "healthy"
	}
	status["storage_backend"] = ctrl.Infra.Storage.Name()

	if !healthy {
		status["status"] = "unhealthy"
		utils.JSON503(c, status)
		return
	}
	status["status"] = "healthy"
	utils.JSON200(c, status)
}
