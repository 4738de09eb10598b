// Package site serves the portfolio: public pages, the contact form, the
// admin area behind the session guard, and the tab socket.
package site

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Zachkp/cosmic-portfolio/internal/adminauth"
	"github.com/Zachkp/cosmic-portfolio/internal/logging"
	"github.com/Zachkp/cosmic-portfolio/internal/metrics"
	"github.com/Zachkp/cosmic-portfolio/internal/session"
	"github.com/Zachkp/cosmic-portfolio/internal/tabs"
	"github.com/Zachkp/cosmic-portfolio/internal/tokenstore"
	"github.com/Zachkp/cosmic-portfolio/internal/visits"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Options wires the server's collaborators.
type Options struct {
	Log     *slog.Logger
	DB      *sql.DB
	Hub     *tokenstore.Hub
	Visits  *visits.Tracker
	Metrics *metrics.Metrics
	Content Content
	Mailer  Mailer

	Credentials adminauth.Credentials
	Issuer      *adminauth.Issuer
	Limiter     *adminauth.Limiter

	CookieSecure   bool
	AllowedOrigins []string
	VisitRetention time.Duration
	// ImagesDir is served under /images when set.
	ImagesDir string
	// SessionTimeout overrides session.Timeout.
	SessionTimeout time.Duration

	// Tab socket tuning; zero values keep the gateway defaults.
	TabHeartbeat        time.Duration
	TabHeartbeatTimeout time.Duration
	TabRateInterval     time.Duration
	TabRateBurst        int
}

// Server holds the routes' dependencies.
type Server struct {
	log      *slog.Logger
	db       *sql.DB
	hub      *tokenstore.Hub
	visits   *visits.Tracker
	metrics  *metrics.Metrics
	content  Content
	mailer   Mailer
	creds    adminauth.Credentials
	issuer   *adminauth.Issuer
	limiter  *adminauth.Limiter
	gateway  *tabs.Gateway
	opts     Options
	sessions []session.Option
}

// New validates opts and builds a server.
func New(opts Options) (*Server, error) {
	if opts.Hub == nil {
		return nil, errors.New("site: token store hub is required")
	}
	if opts.Issuer == nil {
		return nil, errors.New("site: token issuer is required")
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Mailer == nil {
		opts.Mailer = DisabledMailer
	}
	if opts.Limiter == nil {
		opts.Limiter = adminauth.NewLimiter(5, 12*time.Second)
	}
	if opts.Content.Name == "" {
		opts.Content = DefaultContent()
	}

	s := &Server{
		log:     opts.Log,
		db:      opts.DB,
		hub:     opts.Hub,
		visits:  opts.Visits,
		metrics: opts.Metrics,
		content: opts.Content,
		mailer:  opts.Mailer,
		creds:   opts.Credentials,
		issuer:  opts.Issuer,
		limiter: opts.Limiter,
		opts:    opts,
	}
	s.sessions = []session.Option{
		session.WithLogger(opts.Log),
		session.WithObserver(opts.Metrics.ObserveSession),
		session.WithTimeout(opts.SessionTimeout),
	}
	s.gateway = tabs.NewGateway(
		tabs.WithLogger(opts.Log),
		tabs.WithOriginPatterns(opts.AllowedOrigins),
		tabs.WithConnHooks(opts.Metrics.OpenTabs.Inc, opts.Metrics.OpenTabs.Dec),
		tabs.WithHeartbeat(opts.TabHeartbeat, opts.TabHeartbeatTimeout),
		tabs.WithRateLimit(opts.TabRateInterval, opts.TabRateBurst),
	)
	return s, nil
}

// Router builds the gin engine.
func (s *Server) Router() (*gin.Engine, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestID(), logging.Requests(s.log))
	r.SetHTMLTemplate(tmpl)

	r.StaticFS("/static", http.FS(static))
	if s.opts.ImagesDir != "" {
		r.Static("/images", s.opts.ImagesDir)
	}

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	public := r.Group("/")
	if s.visits != nil {
		public.Use(s.visits.Middleware())
	}
	s.registerPages(public)

	guarded := r.Group("/", profile(s.opts.CookieSecure), provideSession(s.hub, s.sessions...))
	guarded.GET("/tabs", s.gateway.Handle)
	s.registerAdmin(guarded)

	return r, nil
}

// RunMaintenance sweeps the login limiter and prunes old visits until ctx is done.
func (s *Server) RunMaintenance(ctx context.Context) error {
	go s.limiter.RunSweeper(ctx, time.Minute)

	if s.visits == nil || s.opts.VisitRetention <= 0 {
		<-ctx.Done()
		return nil
	}

	prune := func() {
		cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if _, err := s.visits.Cleanup(cctx, s.opts.VisitRetention); err != nil && ctx.Err() == nil {
			s.log.Error("visits.cleanup", "err", err)
		}
	}
	prune()

	t := time.NewTicker(6 * time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			prune()
		}
	}
}

func (s *Server) health(c *gin.Context) {
	status := gin.H{"status": "ok"}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.log.Error("health.db", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, status)
}

var templateFuncs = template.FuncMap{
	// oneline joins hard-wrapped text.
	"oneline": func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	},
	"datetime": func(t time.Time) string {
		return t.Format("2006-01-02 15:04")
	},
	"fixed": func(f float64) string {
		return strconv.FormatFloat(f, 'f', 2, 64)
	},
	"seconds": func(d time.Duration) string {
		return strconv.FormatFloat(d.Seconds(), 'f', 2, 64)
	},
}
