package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"taskroute/internal/domain"
)

// HashToken returns a stable SHA-256 hex digest for a session token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

// InsertUser stores a user. PasswordHash must already be hashed.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User, passwordHash string) error {
	if u.ID == "" {
		return errors.New("id required")
	}
	if u.Username == "" {
		return errors.New("username required")
	}
	if passwordHash == "" {
		return errors.New("password_hash required")
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(id,username,email,full_name,department,password_hash,is_active,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		u.ID, u.Username, nullable(u.Email), nullable(u.FullName), nullable(u.Department), passwordHash, boolInt(u.IsActive), u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Username, ErrAlreadyExists)
	}
	return err
}

const userColumns = `id,username,COALESCE(email,''),COALESCE(full_name,''),COALESCE(department,''),is_active,created_at`

func scanUser(row rowScanner, extra ...any) (domain.User, error) {
	var u domain.User
	var active int
	dest := append([]any{&u.ID, &u.Username, &u.Email, &u.FullName, &u.Department, &active, &u.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return u, ErrNotFound
		}
		return u, err
	}
	u.IsActive = active != 0
	return u, nil
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

// GetUserCredentials returns a user and its password hash by username.
func (r Repo) GetUserCredentials(ctx context.Context, username string) (domain.User, string, error) {
	var hash string
	u, err := scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+`,password_hash FROM users WHERE username=?`, username), &hash)
	return u, hash, err
}

type Session struct {
	TokenHash string
	UserID    string
	CreatedAt string
	ExpiresAt string
	RevokedAt *string
}

// InsertSession stores a session keyed by the hashed token.
func (r Repo) InsertSession(ctx context.Context, s Session) error {
	if s.TokenHash == "" {
		return errors.New("token_hash required")
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO sessions(token_hash,user_id,created_at,expires_at) VALUES (?,?,?,?)`,
		s.TokenHash, s.UserID, s.CreatedAt, s.ExpiresAt)
	return err
}

func (r Repo) GetSessionByHash(ctx context.Context, hash string) (Session, error) {
	var s Session
	var revoked sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT token_hash,user_id,created_at,expires_at,revoked_at FROM sessions WHERE token_hash=? LIMIT 1`, hash).
		Scan(&s.TokenHash, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &revoked)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	s.RevokedAt = stringPtr(revoked)
	return s, nil
}

func (r Repo) RevokeSession(ctx context.Context, hash, revokedAt string) error {
	return r.execOne(ctx, nil, `UPDATE sessions SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL`, revokedAt, hash)
}

// DeleteExpiredSessions removes sessions that expired before the cutoff.
func (r Repo) DeleteExpiredSessions(ctx context.Context, cutoff string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
