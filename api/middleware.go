package api

import (
	stderrors "errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/annoq/annoq/errors"
	"github.com/annoq/annoq/roles"
)

const actorKey = "annoq.actor"

// requestLog logs completed requests; 5xx responses log at error level.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Request(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// authenticate resolves the bearer token to an actor via the Role Guard.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			renderError(c, errors.Unauthorized("missing bearer token"))
			return
		}

		actor, err := s.guard.Resolve(c.Request.Context(), token)
		if stderrors.Is(err, roles.ErrUnknownToken) {
			renderError(c, errors.Unauthorized("unknown token"))
			return
		}
		if err != nil {
			renderError(c, errors.Internal("resolving token", errors.WithCause(err)))
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// requireRole rejects callers whose role is not in the allowed set.
func (s *Server) requireRole(allowed ...roles.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := currentActor(c)
		for _, role := range allowed {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		renderError(c, errors.Forbidden(
			"role "+actor.Role.String()+" may not call this endpoint",
			errors.WithActorID(actor.ID),
		))
	}
}

// claimLimit throttles claim polling per actor.
func (s *Server) claimLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		actor := currentActor(c)
		if !s.limiter.Allow(actor.ID) {
			renderError(c, errors.RateLimited("claim budget exhausted, back off",
				errors.WithActorID(actor.ID)))
			return
		}
		c.Next()
	}
}

// currentActor returns the authenticated actor. Only valid on routes
// behind the authenticate middleware.
func currentActor(c *gin.Context) *roles.Actor {
	return c.MustGet(actorKey).(*roles.Actor)
}

// renderError writes the structured error body with its mapped HTTP
// status and aborts the handler chain.
func renderError(c *gin.Context, err error) {
	var e *errors.Error
	if !stderrors.As(err, &e) {
		e = errors.Internal("internal error", errors.WithCause(err))
	}
	c.AbortWithStatusJSON(e.Code().HTTPStatus(), e)
}
