package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)

	tok, err := m.Issue("user-1")
	require.NoError(t, err)

	id, err := m.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)
}

func TestVerifyRejects(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	tok, err := m.Issue("user-1")
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokenManager("other", time.Hour).Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		late := NewTokenManager("secret", time.Hour)
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.Verify("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)

	assert.NotEqual(t, "hunter22", hash)
	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=q", nil)
	assert.Equal(t, "q", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: "jwt", Value: "c"})
	assert.Equal(t, "c", TokenFromRequest(r))
}

type stubUsers map[string]*models.User

func (s stubUsers) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, apperr.NotFound(apperr.CodeUserNotFound, "user not found")
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := NewTokenManager("secret", time.Hour)
	users := stubUsers{"u1": {ID: "u1", FullName: "One"}}

	writeErr := func(c *gin.Context, err error) {
		c.JSON(http.StatusUnauthorized, gin.H{"code": apperr.From(err).Code})
	}

	r := gin.New()
	r.GET("/me", RequireAuth(tokens, users, writeErr), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).FullName)
	})

	tests := []struct {
		name     string
		token    string
		wantCode int
		wantBody string
	}{
		{name: "no token", wantCode: http.StatusUnauthorized, wantBody: apperr.CodeUnauthorized},
		{name: "bad token", token: "junk", wantCode: http.StatusUnauthorized, wantBody: apperr.CodeTokenInvalid},
		{name: "unknown user", token: mustIssue(t, tokens, "ghost"), wantCode: http.StatusUnauthorized, wantBody: apperr.CodeUserNotFound},
		{name: "ok", token: mustIssue(t, tokens, "u1"), wantCode: http.StatusOK, wantBody: "One"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func mustIssue(t *testing.T, m *TokenManager, id string) string {
	t.Helper()
	tok, err := m.Issue(id)
	require.NoError(t, err)
	return tok
}
