package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"soundshift/internal/models"
	"soundshift/internal/shared"
)

// SessionRecord is the persisted shape of a session: the token pair as vault
// ciphertext plus the profile snapshot and sync bookkeeping.
type SessionRecord struct {
	UserID           string
	EncryptedAccess  string
	EncryptedRefresh string
	ExpiresAt        int64 // epoch milliseconds
	KeyID            int
	Profile          models.Profile
	LastLikedSync    int64 // epoch milliseconds, zero if never synced
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SessionRepository persists [SessionRecord] rows keyed by provider user id.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Upsert inserts or replaces the record for rec.UserID. The liked-tracks
// mirror and last_liked_sync are left untouched on update.
func (r *SessionRepository) Upsert(rec *SessionRecord) error {
	if rec.UserID == "" {
		return fmt.Errorf("%w: record missing user id", shared.ErrInvalidInput)
	}

	profileJSON, err := json.Marshal(rec.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO sessions (id, access_token, refresh_token, expires_at, key_id, profile, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			key_id = excluded.key_id,
			profile = excluded.profile,
			updated_at = excluded.updated_at
	`

	_, err = r.db.Exec(query, rec.UserID, rec.EncryptedAccess, rec.EncryptedRefresh,
		rec.ExpiresAt, rec.KeyID, string(profileJSON), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	return nil
}

// Get retrieves the record for the given user id.
func (r *SessionRepository) Get(userID string) (*SessionRecord, error) {
	query := `
		SELECT id, access_token, refresh_token, expires_at, key_id, profile, last_liked_sync, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`

	var (
		rec         SessionRecord
		profileJSON string
	)

	err := r.db.QueryRow(query, userID).Scan(&rec.UserID, &rec.EncryptedAccess, &rec.EncryptedRefresh,
		&rec.ExpiresAt, &rec.KeyID, &profileJSON, &rec.LastLikedSync, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if err := json.Unmarshal([]byte(profileJSON), &rec.Profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	return &rec, nil
}

// UpdateAccessToken replaces the access token and expiry after a refresh
// grant. The refresh token column is untouched.
func (r *SessionRepository) UpdateAccessToken(userID, encryptedAccess string, expiresAt int64, keyID int) error {
	query := `
		UPDATE sessions
		SET access_token = ?, expires_at = ?, key_id = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, encryptedAccess, expiresAt, keyID, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, userID)
	}

	return nil
}

// SetLastLikedSync records when the liked-library sync last completed.
func (r *SessionRepository) SetLastLikedSync(userID string, syncedAt int64) error {
	result, err := r.db.Exec(
		"UPDATE sessions SET last_liked_sync = ?, updated_at = ? WHERE id = ?",
		syncedAt, time.Now(), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync timestamp: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, userID)
	}

	return nil
}

// Delete removes the session record and its liked-tracks mirror.
func (r *SessionRepository) Delete(userID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM liked_tracks WHERE session_id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete liked tracks: %w", err)
	}

	result, err := tx.Exec("DELETE FROM sessions WHERE id = ?", userID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, userID)
	}

	return tx.Commit()
}
