package account_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chatline/backend/internal/account"
	"chatline/backend/internal/apperr"
	"chatline/backend/internal/assets"
	"chatline/backend/internal/auth"
	"chatline/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) Upload(ctx context.Context, data []byte, p assets.Preset) (string, error) {
	args := m.Called(ctx, data, p)
	return args.String(0), args.Error(1)
}

func newService(t *testing.T) (*account.Service, *storage.MemoryStore, *MockUploader, *auth.TokenManager) {
	t.Helper()
	store := storage.NewMemoryStore()
	up := &MockUploader{}
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	return account.NewService(store, tokens, up), store, up, tokens
}

func TestSignupAndLogin(t *testing.T) {
	svc, _, _, tokens := newService(t)
	ctx := context.Background()

	sess, err := svc.Signup(ctx, account.SignupInput{
		FullName: "  Alice Liddell ",
		Email:    "Alice@Example.com",
		Password: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", sess.User.FullName)
	assert.Equal(t, "alice@example.com", sess.User.Email)
	assert.NotEqual(t, "secret1", sess.User.Password)

	id, err := tokens.Verify(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, id)

	login, err := svc.Login(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, login.User.ID)
}

func TestSignupValidation(t *testing.T) {
	tests := []struct {
		name string
		in   account.SignupInput
		msg  string
	}{
		{"missing fields", account.SignupInput{Email: "a@b.co", Password: "secret1"}, "all fields are required"},
		{"short name", account.SignupInput{FullName: "A", Email: "a@b.co", Password: "secret1"}, "full name must be between 2 and 50 characters"},
		{"name short after trim", account.SignupInput{FullName: "  A  ", Email: "a@b.co", Password: "secret1"}, "full name must be between 2 and 50 characters"},
		{"long name", account.SignupInput{FullName: strings.Repeat("x", 51), Email: "a@b.co", Password: "secret1"}, "full name must be between 2 and 50 characters"},
		{"bad email", account.SignupInput{FullName: "Al", Email: "not-an-email", Password: "secret1"}, "invalid email format"},
		{"short password", account.SignupInput{FullName: "Al", Email: "a@b.co", Password: "123"}, "password must be at least 6 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _, _ := newService(t)
			_, err := svc.Signup(context.Background(), tt.in)
			require.ErrorIs(t, err, apperr.ErrValidation)
			e := apperr.From(err)
			assert.Equal(t, apperr.CodeBadRequest, e.Code)
			assert.Equal(t, tt.msg, e.Message)
		})
	}
}

func TestSignupNameLengthCountsCharacters(t *testing.T) {
	svc, _, _, _ := newService(t)

	// 26 letters, 52 bytes
	name := strings.Repeat("Я", 26)
	sess, err := svc.Signup(context.Background(), account.SignupInput{
		FullName: name, Email: "ya@example.com", Password: "secret1",
	})

	require.NoError(t, err)
	assert.Equal(t, name, sess.User.FullName)
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	in := account.SignupInput{FullName: "Alice", Email: "alice@example.com", Password: "secret1"}

	_, err := svc.Signup(ctx, in)
	require.NoError(t, err)

	in.Email = "ALICE@example.com"
	_, err = svc.Signup(ctx, in)
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, apperr.CodeEmailTaken, apperr.From(err).Code)
}

func TestSignupAvatarFailureIsIgnored(t *testing.T) {
	svc, _, up, _ := newService(t)
	up.On("Upload", mock.Anything, mock.Anything, assets.PresetAvatar).Return("", errors.New("s3 down"))

	sess, err := svc.Signup(context.Background(), account.SignupInput{
		FullName: "Alice", Email: "alice@example.com", Password: "secret1", ProfilePic: []byte("img"),
	})

	require.NoError(t, err)
	assert.Empty(t, sess.User.ProfilePic)
	up.AssertExpectations(t)
}

func TestLoginRejections(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Signup(ctx, account.SignupInput{FullName: "Alice", Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, apperr.ErrAuthentication)

	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, apperr.ErrAuthentication)
}

func TestUpdateProfile(t *testing.T) {
	svc, _, up, _ := newService(t)
	ctx := context.Background()
	sess, err := svc.Signup(ctx, account.SignupInput{FullName: "Alice", Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.UpdateProfile(ctx, sess.User.ID, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, apperr.CodeProfilePicRequired, apperr.From(err).Code)

	up.On("Upload", mock.Anything, []byte("pic"), assets.PresetProfile).Return("https://cdn/profiles/1.jpg", nil).Once()
	user, err := svc.UpdateProfile(ctx, sess.User.ID, []byte("pic"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/profiles/1.jpg", user.ProfilePic)

	up.On("Upload", mock.Anything, []byte("broken"), assets.PresetProfile).Return("", errors.New("timeout")).Once()
	_, err = svc.UpdateProfile(ctx, sess.User.ID, []byte("broken"))
	assert.ErrorIs(t, err, apperr.ErrDependency)
}

func TestGetUserByID(t *testing.T) {
	svc, _, _, _ := newService(t)

	_, err := svc.GetUserByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
