package handler

import (
	"errors"
	"fmt"
	"net/http"

	"chatline/backend/internal/account"
	"chatline/backend/internal/apperr"
	"chatline/backend/internal/assets"
	"chatline/backend/internal/auth"
	"chatline/backend/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type signupRequest struct {
	FullName   string `json:"fullName" binding:"required,min=2,max=50"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=6"`
	ProfilePic string `json:"profilePic"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type profileRequest struct {
	ProfilePic string `json:"profilePic"`
}

func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindErr(err))
		return
	}
	pic, err := decodeImage(req.ProfilePic)
	if err != nil {
		h.fail(c, err)
		return
	}

	sess, err := h.accounts.Signup(c.Request.Context(), account.SignupInput{
		FullName:   req.FullName,
		Email:      req.Email,
		Password:   req.Password,
		ProfilePic: pic,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setSession(c, sess.Token)
	created(c, sess.User)
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindErr(err))
		return
	}
	sess, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setSession(c, sess.Token)
	success(c, sess.User)
}

func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(config.SessionCookieName, "", -1, "/", "", h.cfg.Auth.CookieSecure, true)
	success(c, gin.H{"message": "logged out successfully"})
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindErr(err))
		return
	}
	pic, err := decodeImage(req.ProfilePic)
	if err != nil {
		h.fail(c, err)
		return
	}
	user, err := h.accounts.UpdateProfile(c.Request.Context(), auth.CurrentUser(c).ID, pic)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, user)
}

func (h *Handler) Check(c *gin.Context) {
	success(c, auth.CurrentUser(c))
}

func (h *Handler) setSession(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(config.SessionCookieName, token, int(h.tokens.TTL().Seconds()), "/", "", h.cfg.Auth.CookieSecure, true)
}

func decodeImage(s string) ([]byte, error) {
	data, err := assets.DecodeInline(s)
	if err != nil {
		return nil, apperr.Validation(apperr.CodeInvalidImage, "image could not be decoded")
	}
	return data, nil
}

// bindErr keeps oversized bodies distinguishable for fail and names the
// first field that failed its binding rule.
func bindErr(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) && len(invalid) > 0 {
		fe := invalid[0]
		return badRequest(fmt.Sprintf("%s failed the %q rule", fe.Field(), fe.Tag()))
	}
	return badRequest("invalid request body")
}
