package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func JSON200(c *gin.Context, data gin.H) {
	c.JSON(http.StatusOK, data)
}

func JSON201(c *gin.Context, data gin.H) {
	c.JSON(http.StatusCreated, data)
}

func JSON202(c *gin.Context, data gin.H) {
	c.JSON(http.StatusAccepted, data)
}

func JSON400(c *gin.Context, message string) {
	jsonError(c, http.StatusBadRequest, message)
}

func JSON401(c *gin.Context, message string) {
	jsonError(c, http.StatusUnauthorized, message)
}

func JSON403(c *gin.Context, message string) {
	jsonError(c, http.StatusForbidden, message)
}

func JSON404(c *gin.Context, message string) {
	jsonError(c, http.StatusNotFound, message)
}

func JSON409(c *gin.Context, message string) {
	jsonError(c, http.StatusConflict, message)
}

func JSON413(c *gin.Context, message string) {
	jsonError(c, http.StatusRequestEntityTooLarge, message)
}

func JSON500(c *gin.Context, message string) {
	jsonError(c, http.StatusInternalServerError, message)
}

func JSON503(c *gin.Context, data gin.H) {
	c.JSON(http.StatusServiceUnavailable, data)
}

func jsonError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"status": status, "error": message})
}
