package models

import (
	"fmt"
	"time"
)

// Model defines the base interface for persistent models.
type Model interface {
	ID() string      // ID returns the unique identifier for this model
	Validate() error // Validate checks if the model's data is valid
}

// Session is one authenticated Spotify user's record. Token fields hold the
// decrypted pair in memory; at rest they are encrypted by the vault before
// persistence.
type Session struct {
	UserID        string
	AccessToken   string
	RefreshToken  string
	ExpiresAt     int64 // epoch milliseconds
	Profile       Profile
	LastLikedSync int64 // epoch milliseconds, zero if never synced
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Profile is the subset of the provider account profile the service keeps.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ImageURL    string `json:"image_url,omitempty"`
	Product     string `json:"product,omitempty"`
	Country     string `json:"country,omitempty"`
}

func (s *Session) ID() string { return s.UserID }

func (s *Session) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("session missing user id")
	}
	if s.AccessToken == "" {
		return fmt.Errorf("session missing access token")
	}
	return nil
}

// Expired reports whether the access token has passed its expiry.
//
// Plain wall-clock comparison, no skew margin.
func (s *Session) Expired(now time.Time) bool {
	return now.UnixMilli() >= s.ExpiresAt
}

// NowPlaying is a point-in-time description of the active track and
// transport state. A nil *NowPlaying means nothing is playing.
type NowPlaying struct {
	TrackID     string
	TrackName   string
	ArtistNames []string
	AlbumName   string
	AlbumArtURL string
	IsPlaying   bool
	ProgressMs  int
}

// Queue is the ordered "up next" track list. Rebuilt wholesale on each
// fetch, never incrementally patched.
type Queue struct {
	Entries []NowPlaying
}

// LikedTrackSet mirrors the user's saved-tracks library: track id → liked.
type LikedTrackSet map[string]bool

// Contains reports whether the track id is in the set.
func (s LikedTrackSet) Contains(trackID string) bool {
	return s[trackID]
}

// Recommendation is a single (name, artist) suggestion from the generator,
// before provider resolution.
type Recommendation struct {
	Name   string `json:"name"`
	Artist string `json:"artist"`
}

// ResolvedTrack is a recommendation resolved to a provider track id.
type ResolvedTrack struct {
	TrackID     string `json:"id"`
	Name        string `json:"name"`
	Artist      string `json:"artist"`
	AlbumArtURL string `json:"album_art_url,omitempty"`
}

// RecommendationBatch is one user query's full recommendation result.
// ResolvedTracks is a filtered, deduplicated, already-liked-excluded
// projection of Tracks. Replaced wholesale on the next query.
type RecommendationBatch struct {
	RequestMood    string           `json:"mood"`
	RequestContext string           `json:"context"`
	Tracks         []Recommendation `json:"tracks"`
	ResolvedTracks []ResolvedTrack  `json:"resolved_tracks"`
	Explanation    string           `json:"explanation"`
	Fallback       bool             `json:"fallback,omitempty"`
}

// HistoryEntry is one recently-played listening history item.
type HistoryEntry struct {
	Name   string
	Artist string
}
