// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"soundshift/internal/models"
	"soundshift/internal/services"
)

// MockProvider is a configurable test double for [services.Provider]. Every
// method delegates to the corresponding Fn field when set and otherwise
// returns a zero value. Calls are counted per method under a mutex so
// concurrent pollers can be observed.
type MockProvider struct {
	mu    sync.Mutex
	calls map[string]int

	ExchangeFn         func(ctx context.Context, code, redirectURI string) (*services.TokenPair, error)
	RefreshFn          func(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	ProfileFn          func(ctx context.Context, accessToken string) (*models.Profile, error)
	CurrentlyPlayingFn func(ctx context.Context, accessToken string) (*models.NowPlaying, error)
	QueueFn            func(ctx context.Context, accessToken string) (*models.Queue, error)
	ContainsTracksFn   func(ctx context.Context, accessToken string, trackIDs []string) ([]bool, error)
	SaveTracksFn       func(ctx context.Context, accessToken string, trackIDs []string) error
	RemoveTracksFn     func(ctx context.Context, accessToken string, trackIDs []string) error
	SavedTracksFn      func(ctx context.Context, accessToken string, limit, offset int) (*services.SavedTracksPage, error)
	RecentlyPlayedFn   func(ctx context.Context, accessToken string, limit int) ([]models.HistoryEntry, error)
	SearchTrackFn      func(ctx context.Context, accessToken, name, artist string) (*models.ResolvedTrack, error)
	PlayFn             func(ctx context.Context, accessToken string) error
	PauseFn            func(ctx context.Context, accessToken string) error
	NextFn             func(ctx context.Context, accessToken string) error
	PreviousFn         func(ctx context.Context, accessToken string) error
	SetVolumeFn        func(ctx context.Context, accessToken string, percent int) error
	ActiveDeviceFn     func(ctx context.Context, accessToken string) (string, error)
	TransferPlaybackFn func(ctx context.Context, accessToken, deviceID string, play bool) error
	EnqueueFn          func(ctx context.Context, accessToken, trackID string) error
}

func NewMockProvider() *MockProvider {
	return &MockProvider{calls: map[string]int{}}
}

// Calls returns how many times the named method was invoked.
func (m *MockProvider) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MockProvider) record(method string) {
	m.mu.Lock()
	m.calls[method]++
	m.mu.Unlock()
}

func (m *MockProvider) AuthCodeURL(state, redirectURI string) string {
	m.record("AuthCodeURL")
	return "https://accounts.example.com/authorize?state=" + state
}

func (m *MockProvider) Exchange(ctx context.Context, code, redirectURI string) (*services.TokenPair, error) {
	m.record("Exchange")
	if m.ExchangeFn != nil {
		return m.ExchangeFn(ctx, code, redirectURI)
	}
	return &services.TokenPair{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: 1}, nil
}

func (m *MockProvider) Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	m.record("Refresh")
	if m.RefreshFn != nil {
		return m.RefreshFn(ctx, refreshToken)
	}
	return &services.TokenPair{AccessToken: "access", RefreshToken: refreshToken, ExpiresAt: 1}, nil
}

func (m *MockProvider) Profile(ctx context.Context, accessToken string) (*models.Profile, error) {
	m.record("Profile")
	if m.ProfileFn != nil {
		return m.ProfileFn(ctx, accessToken)
	}
	return &models.Profile{ID: "mockuser"}, nil
}

func (m *MockProvider) CurrentlyPlaying(ctx context.Context, accessToken string) (*models.NowPlaying, error) {
	m.record("CurrentlyPlaying")
	if m.CurrentlyPlayingFn != nil {
		return m.CurrentlyPlayingFn(ctx, accessToken)
	}
	return nil, nil
}

func (m *MockProvider) Queue(ctx context.Context, accessToken string) (*models.Queue, error) {
	m.record("Queue")
	if m.QueueFn != nil {
		return m.QueueFn(ctx, accessToken)
	}
	return &models.Queue{}, nil
}

func (m *MockProvider) ContainsTracks(ctx context.Context, accessToken string, trackIDs []string) ([]bool, error) {
	m.record("ContainsTracks")
	if m.ContainsTracksFn != nil {
		return m.ContainsTracksFn(ctx, accessToken, trackIDs)
	}
	return make([]bool, len(trackIDs)), nil
}

func (m *MockProvider) SaveTracks(ctx context.Context, accessToken string, trackIDs []string) error {
	m.record("SaveTracks")
	if m.SaveTracksFn != nil {
		return m.SaveTracksFn(ctx, accessToken, trackIDs)
	}
	return nil
}

func (m *MockProvider) RemoveTracks(ctx context.Context, accessToken string, trackIDs []string) error {
	m.record("RemoveTracks")
	if m.RemoveTracksFn != nil {
		return m.RemoveTracksFn(ctx, accessToken, trackIDs)
	}
	return nil
}

func (m *MockProvider) SavedTracks(ctx context.Context, accessToken string, limit, offset int) (*services.SavedTracksPage, error) {
	m.record("SavedTracks")
	if m.SavedTracksFn != nil {
		return m.SavedTracksFn(ctx, accessToken, limit, offset)
	}
	return &services.SavedTracksPage{}, nil
}

func (m *MockProvider) RecentlyPlayed(ctx context.Context, accessToken string, limit int) ([]models.HistoryEntry, error) {
	m.record("RecentlyPlayed")
	if m.RecentlyPlayedFn != nil {
		return m.RecentlyPlayedFn(ctx, accessToken, limit)
	}
	return nil, nil
}

func (m *MockProvider) SearchTrack(ctx context.Context, accessToken, name, artist string) (*models.ResolvedTrack, error) {
	m.record("SearchTrack")
	if m.SearchTrackFn != nil {
		return m.SearchTrackFn(ctx, accessToken, name, artist)
	}
	return nil, nil
}

func (m *MockProvider) Play(ctx context.Context, accessToken string) error {
	m.record("Play")
	if m.PlayFn != nil {
		return m.PlayFn(ctx, accessToken)
	}
	return nil
}

func (m *MockProvider) Pause(ctx context.Context, accessToken string) error {
	m.record("Pause")
	if m.PauseFn != nil {
		return m.PauseFn(ctx, accessToken)
	}
	return nil
}

func (m *MockProvider) Next(ctx context.Context, accessToken string) error {
	m.record("Next")
	if m.NextFn != nil {
		return m.NextFn(ctx, accessToken)
	}
	return nil
}

func (m *MockProvider) Previous(ctx context.Context, accessToken string) error {
	m.record("Previous")
	if m.PreviousFn != nil {
		return m.PreviousFn(ctx, accessToken)
	}
	return nil
}

func (m *MockProvider) SetVolume(ctx context.Context, accessToken string, percent int) error {
	m.record("SetVolume")
	if m.SetVolumeFn != nil {
		return m.SetVolumeFn(ctx, accessToken, percent)
	}
	return nil
}

func (m *MockProvider) ActiveDevice(ctx context.Context, accessToken string) (string, error) {
	m.record("ActiveDevice")
	if m.ActiveDeviceFn != nil {
		return m.ActiveDeviceFn(ctx, accessToken)
	}
	return "", nil
}

func (m *MockProvider) TransferPlayback(ctx context.Context, accessToken, deviceID string, play bool) error {
	m.record("TransferPlayback")
	if m.TransferPlaybackFn != nil {
		return m.TransferPlaybackFn(ctx, accessToken, deviceID, play)
	}
	return nil
}

func (m *MockProvider) Enqueue(ctx context.Context, accessToken, trackID string) error {
	m.record("Enqueue")
	if m.EnqueueFn != nil {
		return m.EnqueueFn(ctx, accessToken, trackID)
	}
	return nil
}

func (m *MockProvider) Name() string { return "mock" }

// MockGenerator is a test double for [services.Generator].
type MockGenerator struct {
	GenerateTextFn func(ctx context.Context, prompt string) (string, error)
	Prompts        []string
	mu             sync.Mutex
}

func (m *MockGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	m.mu.Unlock()
	if m.GenerateTextFn != nil {
		return m.GenerateTextFn(ctx, prompt)
	}
	return "", errors.New("no generator response configured")
}

func (m *MockGenerator) Name() string { return "mock" }

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
