package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ntduong/agentpay/internal/apperrors"
	"github.com/ntduong/agentpay/internal/models"
	"github.com/ntduong/agentpay/internal/repository"
)

const (
	defaultAccessTokenTTL = 15 * time.Minute
	defaultSigningMethod  = "HS256"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type Config struct {
	// Secret key to sign access token payloads
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access token lifetime
	// If not set than default is used
	AccessTokenTTL time.Duration

	// Hasher to use during user registration or login
	Hasher PasswordHasher
}

// Service registers and authenticates users and issues access tokens
type Service struct {
	token  tokenManager
	hasher PasswordHasher
	users  repository.UserRepo
}

func NewService(cfg Config, users repository.UserRepo) (*Service, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if users == nil {
		return nil, errors.New("user repo must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	alg := cfg.Alg
	if alg == "" {
		alg = defaultSigningMethod
	}

	ttl := cfg.AccessTokenTTL
	if ttl == 0 {
		ttl = defaultAccessTokenTTL
	}

	return &Service{
		token: tokenManager{
			key:       cfg.SecretKey,
			alg:       jwt.GetSigningMethod(alg),
			accessTTL: ttl,
		},
		hasher: hasher,
		users:  users,
	}, nil
}

// Register creates a user and issues a token for it.
// Returns apperrors.ErrUserAlreadyExists if the username is taken.
func (s *Service) Register(ctx context.Context, username string, password string, isAdmin bool) (models.User, IssuedToken, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, IssuedToken{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err := s.users.Create(ctx, username, hash, isAdmin)
	if err != nil {
		return models.User{}, IssuedToken{}, err
	}

	token, err := s.token.Issue(user)
	if err != nil {
		return models.User{}, IssuedToken{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return user, token, nil
}

// Login issues a token for an existing user.
// Unknown username and wrong password both map to apperrors.ErrUserNotFound.
func (s *Service) Login(ctx context.Context, username string, password string) (models.User, IssuedToken, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		// Compare against an empty hash anyway to keep timing flat
		_ = s.hasher.Compare("", password)
		return models.User{}, IssuedToken{}, apperrors.ErrUserNotFound
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, IssuedToken{}, apperrors.ErrUserNotFound
	}

	token, err := s.token.Issue(user)
	if err != nil {
		return models.User{}, IssuedToken{}, fmt.Errorf("token could not generated, sorry. %w", err)
	}

	return user, token, nil
}

// Auth resolves the user from the request's bearer token
func (s *Service) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	access, err := readBearerToken(r)
	if err != nil {
		return models.User{}, err
	}

	claims, err := s.token.Parse(access)
	if err != nil {
		return models.User{}, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func readBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")

	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", errors.New("no bearer token in request")
	}

	return token, nil
}
