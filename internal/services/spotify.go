// Spotify API implementation of [Provider]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"soundshift/internal/models"
	"soundshift/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Images      []SpotifyImage `json:"images"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
	Album   SpotifyAlbum    `json:"album"`
	URI     string          `json:"uri"`
}

// SpotifyPlaybackState represents the /me/player currently-playing response.
type SpotifyPlaybackState struct {
	Device struct {
		ID            string `json:"id"`
		IsActive      bool   `json:"is_active"`
		VolumePercent int    `json:"volume_percent"`
	} `json:"device"`
	Item       *SpotifyTrack `json:"item"`
	IsPlaying  bool          `json:"is_playing"`
	ProgressMs int           `json:"progress_ms"`
}

// SpotifyQueue represents the /me/player/queue response.
type SpotifyQueue struct {
	CurrentlyPlaying *SpotifyTrack  `json:"currently_playing"`
	Queue            []SpotifyTrack `json:"queue"`
}

// SpotifySavedTrackPage represents a paginated response of saved tracks.
type SpotifySavedTrackPage struct {
	Items []struct {
		AddedAt string       `json:"added_at"`
		Track   SpotifyTrack `json:"track"`
	} `json:"items"`
	Total int     `json:"total"`
	Next  *string `json:"next"`
}

// SpotifyRecentlyPlayed represents the /me/player/recently-played response.
type SpotifyRecentlyPlayed struct {
	Items []struct {
		PlayedAt string       `json:"played_at"`
		Track    SpotifyTrack `json:"track"`
	} `json:"items"`
}

// SpotifySearchResult represents a track search response.
type SpotifySearchResult struct {
	Tracks struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

// SpotifyService implements the [Provider] interface for Spotify API
// interactions. Uses [oauth2] for the token endpoints; data and player
// calls carry the caller's bearer token per request.
type SpotifyService struct {
	config     *oauth2.Config
	httpClient *http.Client
	baseURL    string
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(clientID, clientSecret string) (*SpotifyService, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes: []string{
			"user-read-private",
			"user-read-email",
			"user-read-playback-state",
			"user-modify-playback-state",
			"user-read-recently-played",
			"user-library-read",
			"user-library-modify",
			"streaming",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// SetHTTPClient overrides the HTTP client (used by tests).
func (s *SpotifyService) SetHTTPClient(client *http.Client) {
	s.httpClient = client
}

// SetBaseURL overrides the API base URL (used by tests).
func (s *SpotifyService) SetBaseURL(base string) {
	s.baseURL = base
}

// AuthCodeURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) AuthCodeURL(state, redirectURI string) string {
	cfg := *s.config
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token pair. The redirect URI
// must match the one the consent page was opened with.
func (s *SpotifyService) Exchange(ctx context.Context, code, redirectURI string) (*TokenPair, error) {
	cfg := *s.config
	cfg.RedirectURL = redirectURI

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthExchange, err)
	}

	return tokenPairFrom(token), nil
}

// Refresh exchanges a refresh token for a new access token. Exactly one
// attempt; a rejected grant is returned as [shared.ErrRefreshFailed].
func (s *SpotifyService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	source := s.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	pair := tokenPairFrom(token)
	if pair.RefreshToken == "" {
		// Spotify omits the refresh token on refresh grants; the original
		// remains valid.
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}

func tokenPairFrom(token *oauth2.Token) *TokenPair {
	return &TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry.UnixMilli(),
	}
}

// doRequest performs an authenticated HTTP request to the Spotify API and
// decodes the response into result when non-nil. Returns the response
// status code alongside any error so callers can distinguish 204.
func (s *SpotifyService) doRequest(ctx context.Context, accessToken, method, endpoint string, body, result any) (int, error) {
	if accessToken == "" {
		return 0, fmt.Errorf("%w: missing access token", shared.ErrInvalidCredentials)
	}

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return resp.StatusCode, fmt.Errorf("%w: status 401 from %s", shared.ErrTokenExpired, endpoint)
	case resp.StatusCode == http.StatusNotFound && strings.HasPrefix(endpoint, "/me/player"):
		return resp.StatusCode, fmt.Errorf("%w: status 404 from %s", shared.ErrNoActiveDevice, endpoint)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return resp.StatusCode, fmt.Errorf("%w: status %d from %s", shared.ErrAPIRequest, resp.StatusCode, endpoint)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// Profile retrieves the current authenticated user's profile.
func (s *SpotifyService) Profile(ctx context.Context, accessToken string) (*models.Profile, error) {
	var user SpotifyUser
	if _, err := s.doRequest(ctx, accessToken, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}

	profile := &models.Profile{
		ID:          user.ID,
		DisplayName: user.DisplayName,
		Product:     user.Product,
		Country:     user.Country,
	}
	if len(user.Images) > 0 {
		profile.ImageURL = user.Images[0].URL
	}
	return profile, nil
}

// CurrentlyPlaying retrieves the active playback snapshot.
//
// A 204 response means nothing is playing and yields (nil, nil).
func (s *SpotifyService) CurrentlyPlaying(ctx context.Context, accessToken string) (*models.NowPlaying, error) {
	var state SpotifyPlaybackState
	status, err := s.doRequest(ctx, accessToken, http.MethodGet, "/me/player", nil, &state)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || state.Item == nil {
		return nil, nil
	}
	return nowPlayingFrom(state.Item, state.IsPlaying, state.ProgressMs), nil
}

// Queue retrieves the "up next" list.
func (s *SpotifyService) Queue(ctx context.Context, accessToken string) (*models.Queue, error) {
	var raw SpotifyQueue
	if _, err := s.doRequest(ctx, accessToken, http.MethodGet, "/me/player/queue", nil, &raw); err != nil {
		return nil, err
	}

	queue := &models.Queue{Entries: make([]models.NowPlaying, 0, len(raw.Queue))}
	for i := range raw.Queue {
		queue.Entries = append(queue.Entries, *nowPlayingFrom(&raw.Queue[i], false, 0))
	}
	return queue, nil
}

// ContainsTracks checks library membership for up to 50 track IDs.
func (s *SpotifyService) ContainsTracks(ctx context.Context, accessToken string, trackIDs []string) ([]bool, error) {
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("%w: no track IDs provided", shared.ErrInvalidInput)
	}
	if len(trackIDs) > 50 {
		return nil, fmt.Errorf("%w: maximum 50 track IDs allowed", shared.ErrInvalidInput)
	}

	endpoint := fmt.Sprintf("/me/tracks/contains?ids=%s", url.QueryEscape(strings.Join(trackIDs, ",")))

	var result []bool
	if _, err := s.doRequest(ctx, accessToken, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SaveTracks adds tracks to the user's library.
func (s *SpotifyService) SaveTracks(ctx context.Context, accessToken string, trackIDs []string) error {
	endpoint := fmt.Sprintf("/me/tracks?ids=%s", url.QueryEscape(strings.Join(trackIDs, ",")))
	_, err := s.doRequest(ctx, accessToken, http.MethodPut, endpoint, nil, nil)
	return err
}

// RemoveTracks removes tracks from the user's library.
func (s *SpotifyService) RemoveTracks(ctx context.Context, accessToken string, trackIDs []string) error {
	endpoint := fmt.Sprintf("/me/tracks?ids=%s", url.QueryEscape(strings.Join(trackIDs, ",")))
	_, err := s.doRequest(ctx, accessToken, http.MethodDelete, endpoint, nil, nil)
	return err
}

// SavedTracks retrieves one page of the user's saved tracks.
func (s *SpotifyService) SavedTracks(ctx context.Context, accessToken string, limit, offset int) (*SavedTracksPage, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", limit, offset)

	var raw SpotifySavedTrackPage
	if _, err := s.doRequest(ctx, accessToken, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, err
	}

	page := &SavedTracksPage{
		TrackIDs: make([]string, 0, len(raw.Items)),
		Total:    raw.Total,
		Next:     raw.Next != nil,
	}
	for _, item := range raw.Items {
		page.TrackIDs = append(page.TrackIDs, item.Track.ID)
	}
	return page, nil
}

// RecentlyPlayed retrieves up to limit listening-history entries, newest first.
func (s *SpotifyService) RecentlyPlayed(ctx context.Context, accessToken string, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	endpoint := fmt.Sprintf("/me/player/recently-played?limit=%d", limit)

	var raw SpotifyRecentlyPlayed
	if _, err := s.doRequest(ctx, accessToken, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, err
	}

	entries := make([]models.HistoryEntry, 0, len(raw.Items))
	for _, item := range raw.Items {
		entry := models.HistoryEntry{Name: item.Track.Name}
		if len(item.Track.Artists) > 0 {
			entry.Artist = item.Track.Artists[0].Name
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SearchTrack resolves a (name, artist) pair with a limit-1 track search.
//
// A miss returns (nil, nil), not an error.
func (s *SpotifyService) SearchTrack(ctx context.Context, accessToken, name, artist string) (*models.ResolvedTrack, error) {
	query := fmt.Sprintf("track:%s artist:%s", name, artist)
	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=1", url.QueryEscape(query))

	var result SpotifySearchResult
	if _, err := s.doRequest(ctx, accessToken, http.MethodGet, endpoint, nil, &result); err != nil {
		return nil, err
	}

	if len(result.Tracks.Items) == 0 {
		return nil, nil
	}

	track := result.Tracks.Items[0]
	names := make([]string, 0, len(track.Artists))
	for _, a := range track.Artists {
		names = append(names, a.Name)
	}

	resolved := &models.ResolvedTrack{
		TrackID: track.ID,
		Name:    track.Name,
		Artist:  strings.Join(names, ", "),
	}
	if len(track.Album.Images) > 0 {
		resolved.AlbumArtURL = track.Album.Images[0].URL
	}
	return resolved, nil
}

// Play resumes playback on the active device.
func (s *SpotifyService) Play(ctx context.Context, accessToken string) error {
	_, err := s.doRequest(ctx, accessToken, http.MethodPut, "/me/player/play", nil, nil)
	return err
}

// Pause suspends playback on the active device.
func (s *SpotifyService) Pause(ctx context.Context, accessToken string) error {
	_, err := s.doRequest(ctx, accessToken, http.MethodPut, "/me/player/pause", nil, nil)
	return err
}

// Next skips to the next track.
func (s *SpotifyService) Next(ctx context.Context, accessToken string) error {
	_, err := s.doRequest(ctx, accessToken, http.MethodPost, "/me/player/next", nil, nil)
	return err
}

// Previous skips to the previous track.
func (s *SpotifyService) Previous(ctx context.Context, accessToken string) error {
	_, err := s.doRequest(ctx, accessToken, http.MethodPost, "/me/player/previous", nil, nil)
	return err
}

// SetVolume sets the playback volume percentage.
func (s *SpotifyService) SetVolume(ctx context.Context, accessToken string, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	endpoint := fmt.Sprintf("/me/player/volume?volume_percent=%d", percent)
	_, err := s.doRequest(ctx, accessToken, http.MethodPut, endpoint, nil, nil)
	return err
}

// ActiveDevice returns the id of the active playback device.
func (s *SpotifyService) ActiveDevice(ctx context.Context, accessToken string) (string, error) {
	var state SpotifyPlaybackState
	status, err := s.doRequest(ctx, accessToken, http.MethodGet, "/me/player", nil, &state)
	if err != nil {
		return "", err
	}
	if status == http.StatusNoContent || state.Device.ID == "" {
		return "", shared.ErrNoActiveDevice
	}
	return state.Device.ID, nil
}

// TransferPlayback moves playback to the given device.
func (s *SpotifyService) TransferPlayback(ctx context.Context, accessToken, deviceID string, play bool) error {
	body := map[string]any{
		"device_ids": []string{deviceID},
		"play":       play,
	}
	_, err := s.doRequest(ctx, accessToken, http.MethodPut, "/me/player", body, nil)
	return err
}

// Enqueue appends a track to the play queue on the active device.
func (s *SpotifyService) Enqueue(ctx context.Context, accessToken, trackID string) error {
	uri := "spotify:track:" + trackID
	endpoint := fmt.Sprintf("/me/player/queue?uri=%s", url.QueryEscape(uri))
	_, err := s.doRequest(ctx, accessToken, http.MethodPost, endpoint, nil, nil)
	return err
}

func nowPlayingFrom(track *SpotifyTrack, isPlaying bool, progressMs int) *models.NowPlaying {
	names := make([]string, 0, len(track.Artists))
	for _, a := range track.Artists {
		names = append(names, a.Name)
	}

	np := &models.NowPlaying{
		TrackID:     track.ID,
		TrackName:   track.Name,
		ArtistNames: names,
		AlbumName:   track.Album.Name,
		IsPlaying:   isPlaying,
		ProgressMs:  progressMs,
	}
	if len(track.Album.Images) > 0 {
		np.AlbumArtURL = track.Album.Images[0].URL
	}
	return np
}
