package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/http/controller"
	middlewares "github.com/tnqbao/gau-property-media/http/middleware"
)

func SetupRouter(ctrl *controller.Controller) *gin.Engine {
	r := gin.Default()
	middles, err := middlewares.NewMiddlewares(ctrl)
	if err != nil {
		panic(err)
	}
	r.Use(middles.CORSMiddleware)

	r.GET("/health", ctrl.CheckHealth)

	// Local disk backend serves processed images itself.
	storage := ctrl.Config.EnvConfig.Storage
	if storage.Backend == config.StorageBackendLocalDisk && len(storage.LocalBaseURL) > 0 && storage.LocalBaseURL[0] == '/' {
		r.Static(storage.LocalBaseURL, storage.LocalPath)
	}

	apiRoutes := r.Group("/api/v1")
	{
		propertyRoutes := apiRoutes.Group("/properties")
		{
			propertyRoutes.GET("", ctrl.ListProperties)
			propertyRoutes.GET("/:id", ctrl.GetProperty)

			authed := propertyRoutes.Group("")
			authed.Use(middles.AuthMiddleware)
			authed.POST("", ctrl.CreateProperty)
			authed.PUT("/:id", ctrl.UpdateProperty)
			authed.PUT("/:id/images", ctrl.ReplacePropertyImages)
			authed.GET("/:id/batches", ctrl.ListPropertyBatches)
			authed.DELETE("/:id", ctrl.DeleteProperty)
		}

		userRoutes := apiRoutes.Group("/users/me")
		{
			userRoutes.Use(middles.AuthMiddleware)
			userRoutes.GET("", ctrl.GetMe)
			userRoutes.PUT("/profile-photo", ctrl.UpdateProfilePhoto)
			userRoutes.DELETE("/profile-photo", ctrl.DeleteProfilePhoto)
			userRoutes.PUT("/cover-photo", ctrl.UpdateCoverPhoto)
			userRoutes.DELETE("/cover-photo", ctrl.DeleteCoverPhoto)
		}

		batchRoutes := apiRoutes.Group("/batches")
		{
			batchRoutes.Use(middles.AuthMiddleware)
			batchRoutes.GET("/:id", ctrl.GetBatch)
		}
	}
	return r
}
