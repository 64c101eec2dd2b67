package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ntduong/agentpay/internal/apperrors"
	"github.com/ntduong/agentpay/internal/models"
)

// In-memory user repo, enough to exercise the auth flows without a database
type memUserRepo struct {
	users map[string]models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]models.User)}
}

func (r *memUserRepo) Create(_ context.Context, username string, hashedPassword string, isAdmin bool) (models.User, error) {
	if _, ok := r.users[username]; ok {
		return models.User{}, apperrors.ErrUserAlreadyExists
	}

	user := models.User{
		ID:             uuid.New(),
		CreatedAt:      time.Now(),
		Username:       username,
		HashedPassword: hashedPassword,
		IsAdmin:        isAdmin,
	}
	r.users[username] = user
	return user, nil
}

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (models.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, apperrors.ErrUserNotFound
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (models.User, error) {
	u, ok := r.users[username]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return u, nil
}

func TestAuthService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newService := func(t *testing.T) *Service {
		s, err := NewService(Config{SecretKey: "test-secret"}, newMemUserRepo())
		require.NoError(t, err)
		return s
	}

	t.Run("requires secret key", func(t *testing.T) {
		_, err := NewService(Config{}, newMemUserRepo())
		require.Error(t, err)
	})

	t.Run("register issues token", func(t *testing.T) {
		s := newService(t)

		user, token, err := s.Register(ctx, "duong", "password", false)

		require.NoError(t, err)
		require.Equal(t, "duong", user.Username)
		require.False(t, user.IsAdmin)
		require.NotEmpty(t, token.Value)
		require.True(t, token.ExpiresAt.After(time.Now()))
	})

	t.Run("register duplicate username", func(t *testing.T) {
		s := newService(t)

		_, _, err := s.Register(ctx, "duong", "password", false)
		require.NoError(t, err)

		_, _, err = s.Register(ctx, "duong", "another", false)
		require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
	})

	t.Run("login ok", func(t *testing.T) {
		s := newService(t)
		_, _, err := s.Register(ctx, "duong", "password", true)
		require.NoError(t, err)

		user, token, err := s.Login(ctx, "duong", "password")

		require.NoError(t, err)
		require.True(t, user.IsAdmin)
		require.NotEmpty(t, token.Value)
	})

	t.Run("login wrong password", func(t *testing.T) {
		s := newService(t)
		_, _, err := s.Register(ctx, "duong", "password", false)
		require.NoError(t, err)

		_, _, err = s.Login(ctx, "duong", "wrong")
		require.ErrorIs(t, err, apperrors.ErrUserNotFound)
	})

	t.Run("login unknown user", func(t *testing.T) {
		s := newService(t)

		_, _, err := s.Login(ctx, "nobody", "password")
		require.ErrorIs(t, err, apperrors.ErrUserNotFound)
	})

	t.Run("auth from request", func(t *testing.T) {
		s := newService(t)
		registered, token, err := s.Register(ctx, "duong", "password", false)
		require.NoError(t, err)

		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer "+token.Value)

		user, err := s.Auth(ctx, r)

		require.NoError(t, err)
		require.Equal(t, registered.ID, user.ID)
	})

	t.Run("auth without header", func(t *testing.T) {
		s := newService(t)

		r := httptest.NewRequest("GET", "/", nil)

		_, err := s.Auth(ctx, r)
		require.Error(t, err)
	})

	t.Run("auth with garbage token", func(t *testing.T) {
		s := newService(t)

		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("Authorization", "Bearer not-a-jwt")

		_, err := s.Auth(ctx, r)
		require.Error(t, err)
	})
}
