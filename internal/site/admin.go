package site

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Zachkp/cosmic-portfolio/internal/routeguard"
	"github.com/Zachkp/cosmic-portfolio/internal/session"
	"github.com/Zachkp/cosmic-portfolio/internal/visits"
)

const dashboardPath = "/admin/dashboard"

func (s *Server) registerAdmin(r *gin.RouterGroup) {
	r.GET(routeguard.LoginPath, s.loginPage)
	r.POST(routeguard.LoginPath, s.login)
	r.GET("/admin/logout", s.logout)
	r.POST("/admin/logout", s.logout)

	admin := r.Group("/admin", routeguard.RequireAuth(), s.verifySession)
	admin.GET("/dashboard", s.dashboard)
	admin.GET("/visitors", s.visitorsPage)
	admin.GET("/api/stats", s.apiStats)
	admin.GET("/export/stats", s.exportStats)
	admin.POST("/privacy/cleanup", s.privacyCleanup)
}

func (s *Server) loginPage(c *gin.Context) {
	if session.MustFromContext(c.Request.Context()).IsAuthenticated() {
		c.Redirect(http.StatusSeeOther, dashboardPath)
		return
	}
	c.HTML(http.StatusOK, "admin-login.html", gin.H{
		"title": "Admin Login",
	})
}

func (s *Server) login(c *gin.Context) {
	client := s.clientHash(c)
	if !s.limiter.Allow(c.ClientIP()) {
		s.metrics.LoginResult("limited")
		s.log.Warn("admin.login.limited", "client", client)
		c.HTML(http.StatusTooManyRequests, "admin-login.html", gin.H{
			"title": "Admin Login",
			"error": "Too many attempts. Wait a moment and try again.",
		})
		return
	}

	username := c.PostForm("username")
	if err := s.creds.Verify(username, c.PostForm("password")); err != nil {
		s.metrics.LoginResult("invalid")
		s.log.Warn("admin.login.failed", "client", client)
		c.HTML(http.StatusUnauthorized, "admin-login.html", gin.H{
			"title": "Admin Login",
			"error": "Invalid credentials",
		})
		return
	}

	tok, err := s.issuer.Issue(s.creds.Username)
	if err != nil {
		s.log.Error("admin.login.issue", "err", err)
		c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
			"error": "Could not start a session",
		})
		return
	}

	session.MustFromContext(c.Request.Context()).Login(tok)
	s.metrics.LoginResult("ok")
	s.log.Info("admin.login.ok", "client", client)
	c.Redirect(http.StatusSeeOther, dashboardPath)
}

func (s *Server) logout(c *gin.Context) {
	session.MustFromContext(c.Request.Context()).Logout()
	s.log.Info("admin.logout", "client", s.clientHash(c))
	routeguard.HTTPNavigator(c).Replace(routeguard.LoginPath)
}

// verifySession drops a session whose token the issuer no longer accepts,
// e.g. after it expired or the secret rotated.
func (s *Server) verifySession(c *gin.Context) {
	guard := session.MustFromContext(c.Request.Context())
	tok, _ := guard.Token()
	if _, err := s.issuer.Verify(tok); err != nil {
		s.log.Info("admin.token.rejected", "err", err)
		guard.Logout()
		routeguard.HTTPNavigator(c).Replace(routeguard.LoginPath)
		return
	}
	c.Next()
}

func (s *Server) dashboard(c *gin.Context) {
	stats, err := s.stats(c)
	if err != nil {
		s.log.Error("admin.stats", "err", err)
		c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
			"error": "Failed to load statistics",
		})
		return
	}

	guard := session.MustFromContext(c.Request.Context())
	c.HTML(http.StatusOK, "admin-dashboard.html", gin.H{
		"title":        "Dashboard",
		"stats":        stats,
		"sessionState": guard.State().String(),
		// The request itself holds one scope.
		"otherTabs": s.hub.OpenScopes(c.GetString(profileKey)) - 1,
	})
}

func (s *Server) visitorsPage(c *gin.Context) {
	var recent []visits.Visit
	if s.visits != nil {
		var err error
		recent, err = s.visits.Recent(c.Request.Context(), 200)
		if err != nil {
			s.log.Error("admin.visitors", "err", err)
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
				"error": "Failed to load visitors",
			})
			return
		}
	}
	c.HTML(http.StatusOK, "admin-visitors.html", gin.H{
		"title":    "Visitors",
		"visitors": recent,
	})
}

func (s *Server) apiStats(c *gin.Context) {
	stats, err := s.stats(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) exportStats(c *gin.Context) {
	stats, err := s.stats(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", "attachment; filename=admin-stats.json")
	s.log.Info("admin.stats.export", "client", s.clientHash(c))
	c.JSON(http.StatusOK, stats)
}

func (s *Server) privacyCleanup(c *gin.Context) {
	if s.visits == nil || s.opts.VisitRetention <= 0 {
		c.JSON(http.StatusOK, gin.H{"message": "Nothing to clean up", "deleted": 0})
		return
	}
	n, err := s.visits.Cleanup(c.Request.Context(), s.opts.VisitRetention)
	if err != nil {
		s.log.Error("admin.privacy.cleanup", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Privacy cleanup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Privacy cleanup complete", "deleted": n})
}

func (s *Server) stats(c *gin.Context) (*visits.Stats, error) {
	if s.visits == nil {
		return &visits.Stats{}, nil
	}
	return s.visits.Stats(c.Request.Context())
}

func (s *Server) clientHash(c *gin.Context) string {
	if s.visits == nil {
		return ""
	}
	return s.visits.HashIP(c.ClientIP())
}
