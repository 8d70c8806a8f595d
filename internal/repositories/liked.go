package repositories

import (
	"fmt"
	"time"

	"soundshift/internal/models"
)

// ReplaceLikedTracks atomically swaps the liked-tracks mirror for a session.
func (r *SessionRepository) ReplaceLikedTracks(userID string, trackIDs []string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM liked_tracks WHERE session_id = ?", userID); err != nil {
		return fmt.Errorf("failed to clear liked tracks: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO liked_tracks (session_id, track_id, added_at) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, trackID := range trackIDs {
		if _, err := stmt.Exec(userID, trackID, now); err != nil {
			return fmt.Errorf("failed to insert liked track %s: %w", trackID, err)
		}
	}

	return tx.Commit()
}

// AddLikedTrack records a single track in the mirror. Duplicate inserts are
// ignored so optimistic like updates can race with a full sync.
func (r *SessionRepository) AddLikedTrack(userID, trackID string) error {
	_, err := r.db.Exec(
		"INSERT OR IGNORE INTO liked_tracks (session_id, track_id, added_at) VALUES (?, ?, ?)",
		userID, trackID, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert liked track: %w", err)
	}
	return nil
}

// RemoveLikedTrack drops a single track from the mirror.
func (r *SessionRepository) RemoveLikedTrack(userID, trackID string) error {
	_, err := r.db.Exec(
		"DELETE FROM liked_tracks WHERE session_id = ? AND track_id = ?",
		userID, trackID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete liked track: %w", err)
	}
	return nil
}

// LikedTracks returns the mirror as a membership set.
func (r *SessionRepository) LikedTracks(userID string) (models.LikedTrackSet, error) {
	rows, err := r.db.Query("SELECT track_id FROM liked_tracks WHERE session_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query liked tracks: %w", err)
	}
	defer rows.Close()

	set := models.LikedTrackSet{}
	for rows.Next() {
		var trackID string
		if err := rows.Scan(&trackID); err != nil {
			return nil, fmt.Errorf("failed to scan liked track: %w", err)
		}
		set[trackID] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while reading liked tracks: %w", err)
	}

	return set, nil
}
