package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/mediaq/internal/models"
	"github.com/desertthunder/mediaq/internal/shared"
)

const sessionColumns = `platform_id, status, username, cookie_method, expires_at, last_verified, created_at, updated_at`

// SessionRepository implements [models.SessionRepository]. The cookies column only ever holds sealed text.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Get retrieves the session for a platform.
func (r *SessionRepository) Get(platformID string) (*models.PlatformSession, error) {
	row := r.db.QueryRow(`SELECT `+sessionColumns+` FROM platform_sessions WHERE platform_id = ?`, platformID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", shared.ErrNotFound, platformID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return s, nil
}

// List returns every stored session ordered by platform.
func (r *SessionRepository) List() ([]*models.PlatformSession, error) {
	rows, err := r.db.Query(`SELECT ` + sessionColumns + ` FROM platform_sessions ORDER BY platform_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.PlatformSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// Upsert writes the session and its sealed cookies, keeping the original created_at on update.
func (r *SessionRepository) Upsert(s *models.PlatformSession, sealedCookies string) error {
	query := `
		INSERT INTO platform_sessions (platform_id, status, username, cookies, cookie_method, expires_at, last_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform_id) DO UPDATE SET
			status = excluded.status,
			username = excluded.username,
			cookies = excluded.cookies,
			cookie_method = excluded.cookie_method,
			expires_at = excluded.expires_at,
			last_verified = excluded.last_verified,
			updated_at = excluded.updated_at
	`

	method := ""
	if s.CookieMethod != nil {
		method = *s.CookieMethod
	}

	_, err := r.db.Exec(query,
		s.PlatformID, string(s.Status), nullString(s.Username), sealedCookies, method,
		nullTime(s.ExpiresAt), nullTime(s.LastVerified), s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.PlatformID, err)
	}
	return nil
}

// Cookies returns the sealed cookie blob for a platform.
func (r *SessionRepository) Cookies(platformID string) (string, error) {
	var sealed string
	err := r.db.QueryRow(`SELECT cookies FROM platform_sessions WHERE platform_id = ?`, platformID).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: session %s", shared.ErrNotFound, platformID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query cookies: %w", err)
	}
	return sealed, nil
}

// MarkExpired flips an ACTIVE session to EXPIRED. Other states are left alone.
func (r *SessionRepository) MarkExpired(platformID string, now time.Time) error {
	_, err := r.db.Exec(
		`UPDATE platform_sessions SET status = ?, updated_at = ? WHERE platform_id = ? AND status = ?`,
		string(models.SessionExpired), now.UTC(), platformID, string(models.SessionActive),
	)
	if err != nil {
		return fmt.Errorf("failed to expire session: %w", err)
	}
	return nil
}

// Delete removes the session row. Deleting a missing session is not an error.
func (r *SessionRepository) Delete(platformID string) error {
	if _, err := r.db.Exec(`DELETE FROM platform_sessions WHERE platform_id = ?`, platformID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func scanSession(s rowScanner) (*models.PlatformSession, error) {
	var (
		out                     models.PlatformSession
		status, method          string
		username                sql.NullString
		expiresAt, lastVerified sql.NullTime
	)

	if err := s.Scan(&out.PlatformID, &status, &username, &method, &expiresAt, &lastVerified, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}

	out.Status = models.SessionStatus(status)
	out.Username = stringPtr(username)
	if method != "" {
		out.CookieMethod = &method
	}
	out.ExpiresAt = timePtr(expiresAt)
	out.LastVerified = timePtr(lastVerified)
	return &out, nil
}
