// Package account handles signup, login and profile updates.
package account

import (
	"context"
	"errors"
	"strings"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/assets"
	"chatline/backend/internal/auth"
	"chatline/backend/internal/logger"
	"chatline/backend/internal/models"
	"chatline/backend/internal/storage"

	"github.com/go-playground/validator/v10"
)

type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfilePic(ctx context.Context, id, url string) (*models.User, error)
}

type ImageUploader interface {
	Upload(ctx context.Context, data []byte, p assets.Preset) (string, error)
}

type SignupInput struct {
	FullName   string `validate:"required,min=2,max=50"`
	Email      string `validate:"required,email"`
	Password   string `validate:"required,min=6"`
	ProfilePic []byte
}

var validate = validator.New()

// Session is an authenticated user together with a freshly issued token.
type Session struct {
	User  *models.User
	Token string
}

type Service struct {
	store  Store
	tokens *auth.TokenManager
	images ImageUploader
}

func NewService(store Store, tokens *auth.TokenManager, images ImageUploader) *Service {
	return &Service{store: store, tokens: tokens, images: images}
}

func (s *Service) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = models.NormalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, signupErr(err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{FullName: in.FullName, Email: in.Email, Password: hash}
	if len(in.ProfilePic) > 0 {
		url, err := s.images.Upload(ctx, in.ProfilePic, assets.PresetAvatar)
		if err != nil {
			l := logger.Ctx(ctx)
			l.Warn().Err(err).Msg("avatar upload failed, continuing without picture")
		} else {
			user.ProfilePic = url
		}
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, apperr.Validation(apperr.CodeEmailTaken, "email already exists")
		}
		return nil, apperr.Dependency("user store", err)
	}
	return s.session(user)
}

// Login never reveals whether the email or the password was wrong.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	invalid := apperr.Authentication(apperr.CodeInvalidCredentials, "invalid credentials")

	user, err := s.store.GetUserByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, invalid
		}
		return nil, apperr.Dependency("user store", err)
	}
	if !auth.CheckPassword(user.Password, password) {
		return nil, invalid
	}
	return s.session(user)
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, pic []byte) (*models.User, error) {
	if len(pic) == 0 {
		return nil, apperr.Validation(apperr.CodeProfilePicRequired, "profile picture is required")
	}
	url, err := s.images.Upload(ctx, pic, assets.PresetProfile)
	if err != nil {
		if errors.Is(err, assets.ErrInvalidImage) {
			return nil, apperr.Validation(apperr.CodeInvalidImage, "image could not be decoded")
		}
		return nil, apperr.Dependency("asset store", err)
	}

	user, err := s.store.UpdateProfilePic(ctx, userID, url)
	if err != nil {
		return nil, lookupErr(err)
	}
	return user, nil
}

// GetUserByID satisfies auth.UserLookup.
func (s *Service) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err)
	}
	return user, nil
}

func (s *Service) session(user *models.User) (*Session, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token}, nil
}

func lookupErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound(apperr.CodeUserNotFound, "user not found")
	}
	return apperr.Dependency("user store", err)
}

// signupErr turns the first failed rule into a caller-facing message.
func signupErr(err error) error {
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) || len(invalid) == 0 {
		return apperr.Validation(apperr.CodeBadRequest, "invalid signup data")
	}
	fe := invalid[0]
	msg := "invalid signup data"
	switch {
	case fe.Tag() == "required":
		msg = "all fields are required"
	case fe.Field() == "FullName":
		msg = "full name must be between 2 and 50 characters"
	case fe.Field() == "Email":
		msg = "invalid email format"
	case fe.Field() == "Password":
		msg = "password must be at least 6 characters"
	}
	return apperr.Validation(apperr.CodeBadRequest, msg)
}
