package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"review-api/internal/core/access"
	"review-api/internal/core/auth"
	"review-api/internal/domain"
	resp "review-api/internal/transport/http/response"
)

const (
	KeyCaller = "caller"
	KeyUID    = "uid"
)

// Authenticate resolves the bearer token, if any, into an access.Caller. A
// request without Authorization proceeds as anonymous; a present but bad token
// is rejected with 401. The role is reloaded from the store on every request,
// so a role change takes effect without re-issuing tokens.
func Authenticate(j *auth.JWTer, users domain.UserRepository, l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ah := strings.TrimSpace(c.GetHeader("Authorization"))
		if ah == "" {
			c.Set(KeyCaller, access.Anonymous())
			c.Next()
			return
		}
		scheme, tok, ok := strings.Cut(ah, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
			resp.Abort(c, resp.CodeUnauthorized, "missing bearer token")
			return
		}
		claims, err := j.Parse(strings.TrimSpace(tok))
		if err != nil {
			resp.Abort(c, resp.CodeUnauthorized, "invalid token")
			return
		}
		u, err := users.FindByID(c.Request.Context(), claims.UID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			resp.Abort(c, resp.CodeUnauthorized, "user not found")
			return
		case err != nil:
			l.Error("load caller", zap.Uint("uid", claims.UID), zap.Error(err))
			resp.Abort(c, resp.CodeServerError, "internal error")
			return
		}
		c.Set(KeyCaller, access.FromUser(u))
		c.Set(KeyUID, u.ID)
		c.Next()
	}
}

// CallerOf returns the caller stored by Authenticate, anonymous if none.
func CallerOf(c *gin.Context) access.Caller {
	if v, ok := c.Get(KeyCaller); ok {
		if caller, ok := v.(access.Caller); ok {
			return caller
		}
	}
	return access.Anonymous()
}

// RequireAuth admits any authenticated caller regardless of role.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CallerOf(c).Authenticated {
			resp.Abort(c, resp.CodeUnauthorized, "authentication required")
			return
		}
		c.Next()
	}
}

// Permit runs the collection-level check of p before any store access.
func Permit(p access.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := p.Check(CallerOf(c), access.VerbOf(c.Request.Method), nil)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, domain.ErrUnauthenticated):
			resp.Abort(c, resp.CodeUnauthorized, "authentication required")
		default:
			resp.Abort(c, resp.CodeForbidden, "permission denied")
		}
	}
}
