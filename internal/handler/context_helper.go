package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-reschedule-api/internal/middleware"
	"github.com/noah-isme/sma-reschedule-api/internal/models"
	appErrors "github.com/noah-isme/sma-reschedule-api/pkg/errors"
	"github.com/noah-isme/sma-reschedule-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return nil
	}
	return claims
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message))
		return false
	}
	return true
}

func respondWithMeta(c *gin.Context, status int, data interface{}, pagination *models.Pagination, cacheHit bool) {
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, status, data, pagination, middleware.ExtractMeta(c))
}
