package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost        = 12
	minPasswordLength = 8
	TokenType         = "bearer"
)

var (
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrInactiveUser       = errors.New("inactive user")
	ErrInvalidToken       = errors.New("could not validate credentials")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrInvalidEmail       = errors.New("invalid email address")
)

type Claims struct {
	UserID int64       `json:"uid"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type Service struct {
	users  repository.UserRepository
	secret []byte
	ttl    time.Duration
	cost   int
	log    *zap.Logger
	now    func() time.Time
}

func NewService(users repository.UserRepository, secret string, ttl time.Duration, log *zap.Logger) *Service {
	return &Service{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		cost:   bcryptCost,
		log:    log.Named("auth"),
		now:    time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an active customer account.
func (s *Service) Register(ctx context.Context, email, fullName, password string) (*domain.User, error) {
	return s.createUser(ctx, email, fullName, password, domain.RoleCustomer)
}

func (s *Service) createUser(ctx context.Context, email, fullName, password string, role domain.Role) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Email:          email,
		FullName:       strings.TrimSpace(fullName),
		HashedPassword: string(hash),
		IsActive:       true,
		Role:           role,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.Int64("user_id", user.ID), zap.String("role", string(role)))
	return user, nil
}

// Login checks the password and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*Token, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	return s.issue(user)
}

func (s *Service) issue(user *domain.User) (*Token, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Token{AccessToken: signed, TokenType: TokenType, ExpiresAt: expiresAt}, nil
}

// Authenticate resolves a bearer token to an active user.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*domain.User, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	user, err := s.users.GetUserByEmail(ctx, claims.Subject)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if user.ID != claims.UserID {
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}

// EnsureSuperuser creates the first administrator unless the email is
// already registered.
func (s *Service) EnsureSuperuser(ctx context.Context, email, password string) error {
	if email == "" {
		return nil
	}

	_, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return fmt.Errorf("lookup superuser: %w", err)
	}

	_, err = s.createUser(ctx, email, "Administrator", password, domain.RoleAdmin)
	if errors.Is(err, repository.ErrEmailTaken) {
		return nil
	}
	return err
}
