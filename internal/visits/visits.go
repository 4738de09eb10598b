// Package visits keeps a privacy-conscious log of page visits: client IPs are
// only stored as salted hashes and Do-Not-Track is honoured.
package visits

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Visit is one recorded page view.
type Visit struct {
	ID        int64     `json:"id"`
	HashedIP  string    `json:"hashed_ip"`
	UserAgent string    `json:"user_agent"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats feeds the admin dashboard.
type Stats struct {
	TotalVisitors    int64   `json:"total_visitors"`
	UniqueVisitors   int64   `json:"unique_visitors"`
	VisitorsToday    int64   `json:"visitors_today"`
	VisitorsThisWeek int64   `json:"visitors_this_week"`
	RecentVisitors   []Visit `json:"recent_visitors"`
}

// Paths that are never tracked.
var skipPrefixes = []string{
	"/static/",
	"/images/",
	"/admin/",
	"/favicon",
	"/privacy",
	"/metrics",
	"/healthz",
	"/tabs",
}

// Tracker writes visits to the visitors table.
type Tracker struct {
	db       *sql.DB
	log      *slog.Logger
	salt     string
	now      func() time.Time
	recorded func()

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker logger.
func WithLogger(log *slog.Logger) Option {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithSalt fixes the IP hashing salt. By default a random salt is drawn, so
// hashes are only comparable within one process lifetime.
func WithSalt(salt string) Option {
	return func(t *Tracker) { t.salt = salt }
}

// WithRecordHook is called after every stored visit.
func WithRecordHook(fn func()) Option {
	return func(t *Tracker) { t.recorded = fn }
}

// New creates a tracker over db. The visitors table must exist.
func New(db *sql.DB, opts ...Option) (*Tracker, error) {
	if db == nil {
		return nil, errors.New("visits: nil db")
	}
	t := &Tracker{db: db, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	if t.salt == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		t.salt = hex.EncodeToString(b)
	}
	return t, nil
}

// HashIP returns the stored form of ip: 16 hex chars of sha256(ip+salt).
func (t *Tracker) HashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip + t.salt))
	return hex.EncodeToString(sum[:])[:16]
}

// Middleware records the request in the background.
func (t *Tracker) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if c.Request.Method != http.MethodGet || skipped(path) || c.GetHeader("DNT") == "1" {
			c.Next()
			return
		}
		t.Record(c.ClientIP(), c.Request.UserAgent(), path)
		c.Next()
	}
}

func skipped(path string) bool {
	for _, p := range skipPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Record stores a visit asynchronously. It is a no-op after Close.
func (t *Tracker) Record(ip, userAgent, path string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()

	hashed := t.HashIP(ip)
	ts := t.now()
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := t.insert(ctx, hashed, userAgent, path, ts); err != nil {
			t.log.Error("visits.record", "err", err)
			return
		}
		if t.recorded != nil {
			t.recorded()
		}
	}()
}

func (t *Tracker) insert(ctx context.Context, hashed, ua, path string, ts time.Time) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO visitors (hashed_ip, user_agent, path, timestamp) VALUES (?, ?, ?, ?)`,
		hashed, ua, path, ts.UnixMilli())
	return err
}

// Wait blocks until pending records are written.
func (t *Tracker) Wait() { t.wg.Wait() }

// Close stops accepting records and waits for pending ones.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.wg.Wait()
}

// Stats computes the dashboard numbers. "Today" starts at local midnight.
func (t *Tracker) Stats(ctx context.Context) (*Stats, error) {
	now := t.now()
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).UnixMilli()
	weekAgo := now.Add(-7 * 24 * time.Hour).UnixMilli()

	stats := &Stats{}
	err := t.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(DISTINCT hashed_ip),
			COALESCE(SUM(CASE WHEN timestamp >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN timestamp >= ? THEN 1 ELSE 0 END), 0)
		FROM visitors`, midnight, weekAgo).
		Scan(&stats.TotalVisitors, &stats.UniqueVisitors, &stats.VisitorsToday, &stats.VisitorsThisWeek)
	if err != nil {
		return nil, fmt.Errorf("query visitor counts: %w", err)
	}

	stats.RecentVisitors, err = t.Recent(ctx, 50)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Recent returns the newest visits first.
func (t *Tracker) Recent(ctx context.Context, limit int) ([]Visit, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, hashed_ip, user_agent, path, timestamp
		FROM visitors
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent visitors: %w", err)
	}
	defer rows.Close()

	var out []Visit
	for rows.Next() {
		var (
			v  Visit
			ms int64
		)
		if err := rows.Scan(&v.ID, &v.HashedIP, &v.UserAgent, &v.Path, &ms); err != nil {
			return nil, fmt.Errorf("scan visitor: %w", err)
		}
		v.Timestamp = time.UnixMilli(ms)
		out = append(out, v)
	}
	return out, rows.Err()
}

// Cleanup deletes visits older than retention and returns how many went.
func (t *Tracker) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := t.now().Add(-retention).UnixMilli()
	res, err := t.db.ExecContext(ctx, `DELETE FROM visitors WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old visitors: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		t.log.Info("visits.cleanup", "deleted", n, "retention", retention.String())
	}
	return n, nil
}
