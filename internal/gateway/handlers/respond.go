package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rentora-system/internal/apperr"
	"rentora-system/internal/database/models"
	"rentora-system/internal/gateway/middleware"
)

// Helper functions shared by the HTTP handlers.

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    data,
	})
}

func failErr(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{
		"success": false,
		"error":   apperr.Message(err),
	})
}

func fail(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

func parseIDParam(c *gin.Context, param string) (int64, bool) {
	val, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || val <= 0 {
		fail(c, http.StatusBadRequest, "invalid "+param)
		return 0, false
	}
	return val, true
}

func actor(c *gin.Context) (models.Actor, bool) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		fail(c, http.StatusUnauthorized, "missing authentication context")
	}
	return a, ok
}
