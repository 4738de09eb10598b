package site

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/Zachkp/cosmic-portfolio/internal/session"
	"github.com/Zachkp/cosmic-portfolio/internal/tokenstore"
)

const (
	profileCookie = "profile"
	profileKey    = "profile"
	profileMaxAge = 365 * 24 * time.Hour
)

// profile gives every browser a stable id. All of its tabs share it, so it
// names their token store namespace.
func profile(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ""
		if v, err := c.Cookie(profileCookie); err == nil {
			if parsed, err := ulid.ParseStrict(v); err == nil {
				id = parsed.String()
			}
		}
		if id == "" {
			id = ulid.Make().String()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(profileCookie, id, int(profileMaxAge.Seconds()), "/", "", secure, true)
		}
		c.Set(profileKey, id)
		c.Next()
	}
}

// provideSession gives the request its own guard over the browser's token
// store namespace. The guard is mounted before any handler runs, so an
// absence past the timeout ends the session before protected content renders.
func provideSession(hub *tokenstore.Hub, opts ...session.Option) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := hub.Open(c.GetString(profileKey))
		defer scope.Close()

		ctx, _, teardown := session.Provide(c.Request.Context(), scope, opts...)
		defer teardown()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
