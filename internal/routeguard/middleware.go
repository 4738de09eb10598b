package routeguard

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Zachkp/cosmic-portfolio/internal/session"
)

// HTTPNavigator answers the request with a redirect. A 303 leaves no history
// entry for the protected URL; htmx requests get HX-Redirect instead, since
// htmx would otherwise swap the login page into the fragment target.
func HTTPNavigator(c *gin.Context) Navigator {
	return NavigatorFunc(func(path string) {
		if strings.EqualFold(c.GetHeader("HX-Request"), "true") {
			c.Header("HX-Redirect", path)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Redirect(http.StatusSeeOther, path)
		c.Abort()
	})
}

// RequireAuth gates the rest of the handler chain behind the request's
// session guard. The guard must have been provided earlier in the chain.
func RequireAuth(opts ...Option) gin.HandlerFunc {
	return func(c *gin.Context) {
		guard := session.MustFromContext(c.Request.Context())
		c.Header("Cache-Control", "no-store")

		gate := New(guard, HTTPNavigator(c), opts...)
		gate.Render(c.Next)
	}
}
