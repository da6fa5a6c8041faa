package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/ah-its-andy/convertbot/internal/converter"
	"github.com/ah-its-andy/convertbot/internal/db"
	"github.com/ah-its-andy/convertbot/internal/notify"
	"github.com/ah-its-andy/convertbot/internal/session"
	"github.com/ah-its-andy/convertbot/internal/storage"
	"github.com/ah-its-andy/convertbot/internal/worker"
)

// TaskStore is the read side of the task history.
type TaskStore interface {
	ListTasks(userID string, limit, offset int) ([]*db.TaskHistory, error)
	GetStats() (*db.Stats, error)
}

// Diagnoser reports on the external transcoder.
type Diagnoser interface {
	Locate(ctx context.Context) (string, error)
	Version(ctx context.Context) (string, error)
}

type Deps struct {
	Orchestrator *worker.Orchestrator
	Store        *session.Store
	Queue        *worker.Queue
	Blobs        *storage.BlobStore
	Registry     *converter.Registry
	Events       *notify.EventBus
	Outbox       *notify.Outbox
	Tasks        TaskStore
	FFmpeg       Diagnoser

	CloudAvailable bool
	RateLimit      rate.Limit
	RateBurst      int
}

type Server struct {
	Router *gin.Engine
	deps   Deps
	limits *userLimiter
}

func NewServer(d Deps) *Server {
	g := gin.Default()
	s := &Server{Router: g, deps: d, limits: newUserLimiter(d.RateLimit, d.RateBurst)}

	api := g.Group("/api")
	api.GET("/kinds", s.listKinds)
	api.GET("/converters", s.listConverters)
	api.POST("/converters/:name/enable", s.enableConverter)
	api.POST("/converters/:name/disable", s.disableConverter)
	api.GET("/tasks", s.listTasks)
	api.GET("/stats", s.getStats)
	api.GET("/diagnostics", s.diagnostics)

	users := api.Group("/users/:user", s.rateLimit)
	users.POST("/consent", s.consent)
	users.POST("/cloud", s.setCloud)
	users.POST("/job", s.selectKind)
	users.GET("/job", s.jobStatus)
	users.DELETE("/job", s.cancelJob)
	users.POST("/files", s.uploadFile)
	users.POST("/convert", s.convert)
	users.GET("/events", s.events)
	users.GET("/results/:id", s.downloadResult)

	return s
}

// userLimiter hands out one token bucket per user.
type userLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newUserLimiter(limit rate.Limit, burst int) *userLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &userLimiter{limit: limit, burst: burst, limiters: map[string]*rate.Limiter{}}
}

func (u *userLimiter) allow(user string) bool {
	if u.limit <= 0 {
		return true
	}
	u.mu.Lock()
	l, ok := u.limiters[user]
	if !ok {
		l = rate.NewLimiter(u.limit, u.burst)
		u.limiters[user] = l
	}
	u.mu.Unlock()
	return l.Allow()
}

func (s *Server) rateLimit(c *gin.Context) {
	if !s.limits.allow(c.Param("user")) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return
	}
	c.Next()
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
