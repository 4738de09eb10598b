package routeguard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/Zachkp/cosmic-portfolio/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(token string) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		g := session.New(memStore{})
		g.Login(token)
		c.Request = c.Request.WithContext(session.NewContext(c.Request.Context(), g))
		c.Next()
	})
	admin := r.Group("/admin", RequireAuth())
	admin.GET("/dashboard", func(c *gin.Context) {
		c.String(http.StatusOK, "secret")
	})
	return r
}

func TestRequireAuth_ServesAuthenticated(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	newRouter("tok").ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "secret", w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRequireAuth_RedirectsWithSeeOther(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	newRouter("").ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, LoginPath, w.Header().Get("Location"))
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestRequireAuth_HtmxGetsHXRedirect(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	req.Header.Set("HX-Request", "true")
	newRouter("").ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, LoginPath, w.Header().Get("HX-Redirect"))
	assert.Empty(t, w.Body.String())
}

func TestRequireAuth_PanicsWithoutProvider(t *testing.T) {
	r := gin.New()
	r.GET("/x", RequireAuth(), func(c *gin.Context) {})

	assert.PanicsWithError(t, session.ErrNoProvider.Error(), func() {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	})
}
