package auth

import (
	"context"
	"net/http"
	"strings"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/config"
	"chatline/backend/internal/logger"
	"chatline/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// ContextUserKey is where RequireAuth stores the *models.User.
const ContextUserKey = "auth_user"

// UserLookup resolves the user behind a verified token. Errors are
// expected to be classified already.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// TokenFromRequest returns the session token from the jwt cookie, an
// Authorization bearer header or the token query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(config.SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("token")
}

// ErrorWriter renders a failure; the request layer supplies its envelope.
type ErrorWriter func(c *gin.Context, err error)

// RequireAuth rejects requests without a valid session and stores the
// authenticated user in the gin context.
func RequireAuth(tokens *TokenManager, users UserLookup, writeErr ErrorWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := TokenFromRequest(c.Request)
		if raw == "" {
			writeErr(c, apperr.Authentication(apperr.CodeUnauthorized, "unauthorized - no token provided"))
			c.Abort()
			return
		}
		userID, err := tokens.Verify(raw)
		if err != nil {
			writeErr(c, apperr.Authentication(apperr.CodeTokenInvalid, "unauthorized - invalid token"))
			c.Abort()
			return
		}
		user, err := users.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			writeErr(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Set(logger.FieldUserID, user.ID)
		c.Request = c.Request.WithContext(logger.WithLogger(
			c.Request.Context(),
			logger.Ctx(c.Request.Context()).With().Str(logger.FieldUserID, user.ID).Logger(),
		))
		c.Next()
	}
}

// CurrentUser returns the user stored by RequireAuth.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(ContextUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}
