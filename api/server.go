package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/annoq/annoq/logging"
	"github.com/annoq/annoq/queue"
	"github.com/annoq/annoq/ratelimit"
	"github.com/annoq/annoq/roles"
)

// Server exposes the task queue over REST.
type Server struct {
	svc     *queue.Service
	guard   roles.Guard
	limiter ratelimit.Limiter
	log     *logging.Logger

	engine *gin.Engine
	http   *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLimiter throttles claim polling per actor. Without it the claim
// endpoint is unthrottled.
func WithLimiter(limiter ratelimit.Limiter) ServerOption {
	return func(s *Server) { s.limiter = limiter }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ServerOption {
	return func(s *Server) { s.log = l.WithComponent("api") }
}

// NewServer builds the REST server. Every route except /healthz requires
// a bearer token the Role Guard can resolve.
func NewServer(svc *queue.Service, guard roles.Guard, opts ...ServerOption) *Server {
	s := &Server{
		svc:   svc,
		guard: guard,
		log:   logging.New().WithComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLog())
	s.engine = engine
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.health)

	authed := s.engine.Group("/", s.authenticate())

	q := authed.Group("queue")
	q.GET("next", s.requireRole(roles.RoleRater), s.claimLimit(), s.claimNext)
	q.GET("my-tasks", s.requireRole(roles.RoleRater), s.myTasks)
	q.POST("tasks/:id/submit", s.requireRole(roles.RoleRater), s.submit)
	q.POST("tasks/:id/release", s.requireRole(roles.RoleOps), s.release)
	q.GET("review", s.requireRole(roles.RoleReviewer), s.reviewQueue)
	q.POST("review/:id/approve", s.requireRole(roles.RoleReviewer), s.approve)
	q.POST("review/:id/submit", s.requireRole(roles.RoleReviewer), s.reviewSubmit)

	t := authed.Group("tasks")
	t.GET("", s.requireRole(roles.RoleOps), s.listTasks)
	t.POST("", s.requireRole(roles.RoleOps), s.ingest)
	t.GET(":id/annotations", s.annotations)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until Shutdown. Blocks.
func (s *Server) ListenAndServe(addr string, readTimeout, writeTimeout time.Duration) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	s.log.Info("listening", map[string]interface{}{"addr": addr})
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
