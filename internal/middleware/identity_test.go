package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityRouter() (*gin.Engine, *struct{ userID *uint }) {
	gin.SetMode(gin.TestMode)
	captured := &struct{ userID *uint }{}
	r := gin.New()
	r.Use(Identity())
	r.GET("/probe", func(c *gin.Context) {
		captured.userID = UserIDFrom(c)
		c.Status(http.StatusOK)
	})
	return r, captured
}

func TestIdentityAnonymous(t *testing.T) {
	r, captured := identityRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, captured.userID)
}

func TestIdentityResolved(t *testing.T) {
	r, captured := identityRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set(UserIDHeader, "17")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, captured.userID)
	assert.Equal(t, uint(17), *captured.userID)
}

func TestIdentityMalformed(t *testing.T) {
	r, captured := identityRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set(UserIDHeader, "not-a-number")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, captured.userID)
}
