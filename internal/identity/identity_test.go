package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskroute/internal/db"
	"taskroute/internal/identity"
	"taskroute/internal/migrate"
	"taskroute/internal/repo"
)

func newService(t *testing.T) (identity.Service, *time.Time) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()}, db.Operational)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn, migrate.Operational); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := identity.NewService(conn, time.Hour)
	svc.Now = func() time.Time { return now }
	return svc, &now
}

func TestLoginResolveLogout(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, identity.RegisterOptions{Username: "alice", Password: "correct horse", Department: "Finance"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, identity.RegisterOptions{Username: "alice", Password: "another one"}); !errors.Is(err, repo.ErrAlreadyExists) {
		t.Fatalf("duplicate username = %v", err)
	}
	if _, err := svc.Login(ctx, "alice", "wrong password"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("bad password = %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "whatever1"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("unknown user = %v", err)
	}
	sess, err := svc.Login(ctx, "alice", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	userID, err := svc.Resolve(ctx, sess.Token)
	if err != nil || userID != u.ID {
		t.Fatalf("resolve = %q, %v", userID, err)
	}
	looked, err := svc.LookupUser(ctx, u.ID)
	if err != nil || looked.Department != "Finance" {
		t.Fatalf("lookup = %+v, %v", looked, err)
	}
	if err := svc.Logout(ctx, sess.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Resolve(ctx, sess.Token); !errors.Is(err, identity.ErrSessionInvalid) {
		t.Fatalf("resolve after logout = %v", err)
	}
	if err := svc.Logout(ctx, sess.Token); !errors.Is(err, identity.ErrSessionInvalid) {
		t.Fatalf("second logout = %v", err)
	}
}

func TestSessionsExpire(t *testing.T) {
	svc, now := newService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, identity.RegisterOptions{Username: "bob", Password: "password123"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	sess, err := svc.Login(ctx, "bob", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	*now = now.Add(2 * time.Hour)
	if _, err := svc.Resolve(ctx, sess.Token); !errors.Is(err, identity.ErrSessionExpired) {
		t.Fatalf("expired session = %v", err)
	}
	n, err := svc.SweepExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sweep = %d, %v", n, err)
	}
	if _, err := svc.Resolve(ctx, sess.Token); !errors.Is(err, identity.ErrSessionInvalid) {
		t.Fatalf("swept session = %v", err)
	}
}

func TestChainFallsBackFromJWTToSession(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, identity.RegisterOptions{Username: "carol", Password: "password123"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	sess, err := svc.Login(ctx, "carol", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	chain := identity.Chain{identity.JWTResolver{Secret: "s3cret"}, svc}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "svc-bot"}).SignedString([]byte("s3cret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if id, err := chain.Resolve(ctx, signed); err != nil || id != "svc-bot" {
		t.Fatalf("jwt resolve = %q, %v", id, err)
	}
	if id, err := chain.Resolve(ctx, sess.Token); err != nil || id != sess.User.ID {
		t.Fatalf("session resolve = %q, %v", id, err)
	}
	if _, err := chain.Resolve(ctx, "garbage"); !errors.Is(err, identity.ErrSessionInvalid) {
		t.Fatalf("garbage = %v", err)
	}

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "svc-bot",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("s3cret"))
	if _, err := chain.Resolve(ctx, expired); !errors.Is(err, identity.ErrSessionExpired) {
		t.Fatalf("expired jwt = %v", err)
	}
}
