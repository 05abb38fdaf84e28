package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-reschedule-api/internal/models"
	appErrors "github.com/noah-isme/sma-reschedule-api/pkg/errors"
)

type tokenStub struct {
	claims map[string]*models.JWTClaims
}

func (s tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s.claims[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

func newAuthRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	tokens := tokenStub{claims: map[string]*models.JWTClaims{
		"admin":   {UserID: "u-admin", Role: models.RoleAdmin},
		"teacher": {UserID: "t-1", Role: models.RoleTeacher},
	}}
	router := gin.New()
	chain := append([]gin.HandlerFunc{JWT(tokens)}, handlers...)
	chain = append(chain, func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.POST("/teachers/:teacherId/availability", chain...)
	return router
}

func serve(router *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	router := newAuthRouter()

	assert.Equal(t, http.StatusUnauthorized, serve(router, "/teachers/t-1/availability", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/teachers/t-1/availability", "Token admin").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, "/teachers/t-1/availability", "Bearer nope").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, "/teachers/t-1/availability", "bearer admin").Code)
}

func TestRBACAllowsRolesAndSelf(t *testing.T) {
	router := newAuthRouter(RBAC(string(models.RoleAdmin), "SELF"))

	assert.Equal(t, http.StatusNoContent, serve(router, "/teachers/t-9/availability", "Bearer admin").Code)
	assert.Equal(t, http.StatusNoContent, serve(router, "/teachers/t-1/availability", "Bearer teacher").Code)
	assert.Equal(t, http.StatusForbidden, serve(router, "/teachers/t-9/availability", "Bearer teacher").Code)
}

func TestOptionalJWTNeverBlocks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", OptionalJWT(tokenStub{claims: map[string]*models.JWTClaims{"ok": {UserID: "u"}}}), func(c *gin.Context) {
		if claims, ok := CurrentClaims(c); ok {
			c.String(http.StatusOK, claims.UserID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})

	for header, want := range map[string]string{"": "anonymous", "Bearer bad": "anonymous", "Bearer ok": "u"} {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(recorder, req)
		assert.Equal(t, want, recorder.Body.String(), header)
	}
}

func TestAuditLogsOnlySuccessfulRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	router := gin.New()
	router.POST("/classes/:classId/ok", Audit(zap.New(core), "reschedule.submit", "class"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.POST("/classes/:classId/fail", Audit(zap.New(core), "reschedule.submit", "class"), func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	serve(router, "/classes/c1/fail", "")
	serve(router, "/classes/c1/ok", "")

	entries := logs.FilterMessage("audit").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "c1", fields["resource_id"])
		assert.Equal(t, "reschedule.submit", fields["action"])
	}
}

func TestResponseMetaRecordsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	var meta map[string]interface{}
	router.GET("/", WithResponseMeta(), func(c *gin.Context) {
		SetCacheHit(c, true)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, true, meta["cache_hit"])
	_, timed := meta["processing_time_ms"]
	assert.True(t, timed)
}
