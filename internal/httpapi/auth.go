package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"duckbunn/backend/internal/domain"
	"duckbunn/backend/internal/store"
)

const (
	tokenIssuer = "duckbunn"

	RoleAdmin   = "admin"
	RoleCashier = "cashier"

	loginAttemptLimit  = 5
	loginAttemptWindow = time.Minute
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRateLimited  = errors.New("too many attempts")
)

type AuthManager struct {
	repo    store.Repository
	secret  []byte
	ttl     time.Duration
	limiter *attemptLimiter
}

func NewAuthManager(repo store.Repository, secret string, ttl time.Duration) (*AuthManager, error) {
	if len(secret) < 32 {
		return nil, errors.New("auth secret must be at least 32 bytes")
	}
	return &AuthManager{
		repo:    repo,
		secret:  []byte(secret),
		ttl:     ttl,
		limiter: newAttemptLimiter(loginAttemptLimit, loginAttemptWindow),
	}, nil
}

// Bootstrap ensures the admin and default cashier accounts exist. Empty
// passwords fall back to development defaults, loudly.
func (a *AuthManager) Bootstrap(ctx context.Context, adminPassword, cashierPassword string) error {
	type seed struct {
		username, password, role string
	}
	seeds := []seed{
		{"admin", adminPassword, RoleAdmin},
		{"cashier", cashierPassword, RoleCashier},
	}
	for _, s := range seeds {
		if s.password == "" {
			s.password = s.username + "-dev-password"
			log.Printf("[auth] WARN: no seed password for %q, using development default", s.username)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(s.password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash %s password: %w", s.username, err)
		}
		err = a.repo.CreateUser(ctx, domain.UserAccount{
			Username:  s.username,
			Password:  string(hash),
			Role:      s.role,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil && !errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("bootstrap %s: %w", s.username, err)
		}
	}
	return nil
}

func (a *AuthManager) Login(ctx context.Context, username, password string) (domain.LoginResponse, error) {
	if username == "" || password == "" {
		return domain.LoginResponse{}, fmt.Errorf("username and password are required: %w", store.ErrInvalidInput)
	}
	if !a.limiter.allow(username) {
		return domain.LoginResponse{}, ErrRateLimited
	}

	user, err := a.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LoginResponse{}, ErrUnauthorized
	}
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if !user.Active {
		return domain.LoginResponse{}, ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return domain.LoginResponse{}, ErrUnauthorized
	}
	a.limiter.reset(username)

	expires := time.Now().Add(a.ttl)
	claims := jwt.MapClaims{
		"sub":  user.Username,
		"role": user.Role,
		"iss":  tokenIssuer,
		"iat":  time.Now().Unix(),
		"exp":  expires.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}
	return domain.LoginResponse{
		AccessToken: signed,
		Role:        user.Role,
		ExpiresAt:   expires.UTC().Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return domain.Actor{}, ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Actor{}, ErrUnauthorized
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" || role == "" {
		return domain.Actor{}, ErrUnauthorized
	}
	return domain.Actor{Username: sub, Role: role}, nil
}

func (a *AuthManager) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	if req.Username == "" || len(req.Password) < 8 {
		return domain.CashierUser{}, fmt.Errorf("username and a password of at least 8 characters are required: %w", store.ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.CashierUser{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.UserAccount{
		Username:  req.Username,
		Password:  string(hash),
		Role:      RoleCashier,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.repo.CreateUser(ctx, user); err != nil {
		return domain.CashierUser{}, err
	}
	return domain.CashierUser{Username: user.Username, Role: user.Role, Active: user.Active, CreatedAt: user.CreatedAt}, nil
}

func (a *AuthManager) ListUsers(ctx context.Context) ([]domain.CashierUser, error) {
	users, err := a.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CashierUser, 0, len(users))
	for _, u := range users {
		out = append(out, domain.CashierUser{Username: u.Username, Role: u.Role, Active: u.Active, CreatedAt: u.CreatedAt})
	}
	return out, nil
}

// attemptLimiter throttles repeated failed logins per username.
type attemptLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	seen   map[string]attemptState
}

type attemptState struct {
	count int
	since time.Time
}

func newAttemptLimiter(limit int, window time.Duration) *attemptLimiter {
	return &attemptLimiter{limit: limit, window: window, seen: make(map[string]attemptState)}
}

func (l *attemptLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	st := l.seen[key]
	if now.Sub(st.since) > l.window {
		st = attemptState{since: now}
	}
	st.count++
	l.seen[key] = st
	return st.count <= l.limit
}

func (l *attemptLimiter) reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, key)
}
