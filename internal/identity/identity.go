package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taskroute/internal/domain"
	"taskroute/internal/repo"
)

var (
	ErrSessionInvalid     = errors.New("session invalid")
	ErrSessionExpired     = errors.New("session expired")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidInput       = errors.New("invalid registration")
)

// Resolver turns an opaque caller credential into a user id.
type Resolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// Service manages users and database-backed sessions.
type Service struct {
	Repo repo.Repo
	TTL  time.Duration
	Now  func() time.Time
}

func NewService(db *sql.DB, ttl time.Duration) Service {
	return Service{Repo: repo.Repo{DB: db}, TTL: ttl, Now: time.Now}
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

type RegisterOptions struct {
	Username   string
	Password   string
	Email      string
	FullName   string
	Department string
}

// Register creates an active user with a bcrypt password hash.
func (s Service) Register(ctx context.Context, opts RegisterOptions) (domain.User, error) {
	username := strings.TrimSpace(opts.Username)
	if username == "" {
		return domain.User{}, fmt.Errorf("%w: username required", ErrInvalidInput)
	}
	if len(opts.Password) < 8 {
		return domain.User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := domain.User{
		ID:         uuid.NewString(),
		Username:   username,
		Email:      strings.TrimSpace(opts.Email),
		FullName:   strings.TrimSpace(opts.FullName),
		Department: strings.TrimSpace(opts.Department),
		IsActive:   true,
		CreatedAt:  domain.FormatTime(s.now()),
	}
	if err := s.Repo.InsertUser(ctx, nil, u, string(hash)); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Session is a freshly issued login. Token is only ever returned here; the
// store keeps its hash.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expires_at" format:"date-time"`
	User      domain.User `json:"user"`
}

func (s Service) Login(ctx context.Context, username, password string) (Session, error) {
	u, hash, err := s.Repo.GetUserCredentials(ctx, strings.TrimSpace(username))
	if errors.Is(err, repo.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !u.IsActive {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	now := s.now()
	token := "trs_" + strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
	expires := domain.FormatTime(now.Add(s.TTL))
	if err := s.Repo.InsertSession(ctx, repo.Session{
		TokenHash: repo.HashToken(token),
		UserID:    u.ID,
		CreatedAt: domain.FormatTime(now),
		ExpiresAt: expires,
	}); err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expires, User: u}, nil
}

// Logout revokes a session. Revoking an unknown or already revoked token is
// reported as ErrSessionInvalid.
func (s Service) Logout(ctx context.Context, token string) error {
	err := s.Repo.RevokeSession(ctx, repo.HashToken(token), domain.FormatTime(s.now()))
	if errors.Is(err, repo.ErrNotFound) {
		return ErrSessionInvalid
	}
	return err
}

// Resolve implements Resolver over the sessions table.
func (s Service) Resolve(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrSessionInvalid
	}
	sess, err := s.Repo.GetSessionByHash(ctx, repo.HashToken(token))
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrSessionInvalid
	}
	if err != nil {
		return "", err
	}
	if sess.RevokedAt != nil {
		return "", ErrSessionInvalid
	}
	if sess.ExpiresAt <= domain.FormatTime(s.now()) {
		return "", ErrSessionExpired
	}
	u, err := s.Repo.GetUser(ctx, sess.UserID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !u.IsActive) {
		return "", ErrSessionInvalid
	}
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// SweepExpired deletes sessions past their expiry.
func (s Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.Repo.DeleteExpiredSessions(ctx, domain.FormatTime(s.now()))
}

// LookupUser lets the engine validate assignees against registered users.
func (s Service) LookupUser(ctx context.Context, userID string) (domain.User, error) {
	return s.Repo.GetUser(ctx, userID)
}

// JWTResolver accepts HS256 tokens whose subject is the user id.
type JWTResolver struct {
	Secret string
}

func (j JWTResolver) Resolve(_ context.Context, token string) (string, error) {
	if strings.TrimSpace(j.Secret) == "" {
		return "", ErrSessionInvalid
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(j.Secret), nil
	})
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "", ErrSessionExpired
	}
	if err != nil || !parsed.Valid {
		return "", ErrSessionInvalid
	}
	if claims.Subject == "" {
		return "", ErrSessionInvalid
	}
	return claims.Subject, nil
}

// Chain tries resolvers in order. ErrSessionInvalid moves on to the next
// resolver; any other outcome is final.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context, token string) (string, error) {
	for _, r := range c {
		userID, err := r.Resolve(ctx, token)
		if errors.Is(err, ErrSessionInvalid) {
			continue
		}
		return userID, err
	}
	return "", ErrSessionInvalid
}
