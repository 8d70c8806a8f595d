// package services defines interfaces for the external collaborators:
// the streaming provider and the text generator.
package services

import (
	"context"

	"soundshift/internal/models"
)

// TokenPair is the provider-issued credential set from a code exchange or
// refresh grant. ExpiresAt is epoch milliseconds.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
}

// SavedTracksPage is one page of the user's saved-tracks library.
type SavedTracksPage struct {
	TrackIDs []string
	Total    int
	Next     bool
}

// Provider defines the streaming-provider surface the service depends on.
//
// Auth methods drive the OAuth lifecycle; everything else is a bearer-token
// call scoped to the passed access token, so a single Provider serves all
// connected users.
type Provider interface {
	// AuthCodeURL returns the user consent URL for the authorization-code flow.
	AuthCodeURL(state, redirectURI string) string

	// Exchange trades an authorization code for a token pair.
	Exchange(ctx context.Context, code, redirectURI string) (*TokenPair, error)

	// Refresh trades a refresh token for a fresh access token. One attempt,
	// no retries; a failure is fatal to the session.
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)

	// Profile fetches the authenticated account profile.
	Profile(ctx context.Context, accessToken string) (*models.Profile, error)

	// CurrentlyPlaying fetches the active playback snapshot.
	// Returns (nil, nil) when nothing is playing.
	CurrentlyPlaying(ctx context.Context, accessToken string) (*models.NowPlaying, error)

	// Queue fetches the "up next" track list.
	Queue(ctx context.Context, accessToken string) (*models.Queue, error)

	// ContainsTracks reports, per id, whether each track is in the user's library.
	ContainsTracks(ctx context.Context, accessToken string, trackIDs []string) ([]bool, error)

	// SaveTracks adds tracks to the user's library.
	SaveTracks(ctx context.Context, accessToken string, trackIDs []string) error

	// RemoveTracks removes tracks from the user's library.
	RemoveTracks(ctx context.Context, accessToken string, trackIDs []string) error

	// SavedTracks pages through the user's saved-tracks library.
	SavedTracks(ctx context.Context, accessToken string, limit, offset int) (*SavedTracksPage, error)

	// RecentlyPlayed fetches up to limit listening-history entries, newest first.
	RecentlyPlayed(ctx context.Context, accessToken string, limit int) ([]models.HistoryEntry, error)

	// SearchTrack resolves a (name, artist) pair to a provider track.
	// Returns (nil, nil) when no result matches.
	SearchTrack(ctx context.Context, accessToken, name, artist string) (*models.ResolvedTrack, error)

	// Play resumes playback; Pause suspends it.
	Play(ctx context.Context, accessToken string) error
	Pause(ctx context.Context, accessToken string) error

	// Next and Previous skip within the play queue.
	Next(ctx context.Context, accessToken string) error
	Previous(ctx context.Context, accessToken string) error

	// SetVolume sets playback volume, 0-100.
	SetVolume(ctx context.Context, accessToken string, percent int) error

	// ActiveDevice returns the id of the active playback device, or
	// [shared.ErrNoActiveDevice] when none is registered.
	ActiveDevice(ctx context.Context, accessToken string) (string, error)

	// TransferPlayback moves playback to the given device. Idempotent.
	TransferPlayback(ctx context.Context, accessToken, deviceID string, play bool) error

	// Enqueue appends a track to the play queue. Requires an active device.
	Enqueue(ctx context.Context, accessToken, trackID string) error

	// Name returns the provider name (e.g., "Spotify")
	Name() string
}

// Generator defines the generative-language surface: one prompt in, free-form
// text out.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	Name() string
}
