package playback

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"soundshift/internal/models"
	"soundshift/internal/shared"
	itesting "soundshift/internal/testing"
)

type staticTokens struct{}

func (staticTokens) AccessToken(ctx context.Context, userID string) (string, error) {
	return "at", nil
}

type fakeLikedStore struct {
	mu    sync.Mutex
	liked map[string]bool
}

func newFakeLikedStore() *fakeLikedStore {
	return &fakeLikedStore{liked: map[string]bool{}}
}

func (f *fakeLikedStore) AddLikedTrack(userID, trackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liked[trackID] = true
	return nil
}

func (f *fakeLikedStore) RemoveLikedTrack(userID, trackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.liked, trackID)
	return nil
}

func (f *fakeLikedStore) has(trackID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.liked[trackID]
}

func newTestSync(provider *itesting.MockProvider) *Sync {
	s := NewSync(provider, staticTokens{}, newFakeLikedStore(), "user1",
		shared.PlayerConfig{PollIntervalSeconds: 1, VerifyDelaySeconds: 1},
		shared.NewLogger(io.Discard))
	s.verifyDelay = 10 * time.Millisecond
	return s
}

func playingTrack(id string, playing bool) *models.NowPlaying {
	return &models.NowPlaying{
		TrackID:     id,
		TrackName:   "Track " + id,
		ArtistNames: []string{"Artist"},
		IsPlaying:   playing,
	}
}

func TestStartStop(t *testing.T) {
	t.Run("TransfersPlaybackOnReady", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.ActiveDeviceFn = func(ctx context.Context, accessToken string) (string, error) {
			return "dev1", nil
		}

		s := newTestSync(provider)
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer s.Stop()

		if provider.Calls("TransferPlayback") != 1 {
			t.Errorf("expected one transfer call, got %d", provider.Calls("TransferPlayback"))
		}
		if s.State() != Polling {
			t.Errorf("expected polling state, got %s", s.State())
		}
	})

	t.Run("TransferFailureIsNotFatal", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.ActiveDeviceFn = func(ctx context.Context, accessToken string) (string, error) {
			return "dev1", nil
		}
		provider.TransferPlaybackFn = func(ctx context.Context, accessToken, deviceID string, play bool) error {
			return errors.New("device offline")
		}

		s := newTestSync(provider)
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("start should tolerate transfer failure: %v", err)
		}
		s.Stop()
	})

	t.Run("DoubleStartRejected", func(t *testing.T) {
		s := newTestSync(itesting.NewMockProvider())
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		defer s.Stop()

		if err := s.Start(context.Background()); err == nil {
			t.Error("expected second start to fail")
		}
	})

	t.Run("StopHaltsPolling", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		s := newTestSync(provider)
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("start failed: %v", err)
		}
		s.Stop()

		if s.State() != Disconnected {
			t.Errorf("expected disconnected after stop, got %s", s.State())
		}

		calls := provider.Calls("CurrentlyPlaying")
		time.Sleep(1200 * time.Millisecond)
		if provider.Calls("CurrentlyPlaying") != calls {
			t.Error("poller kept running after stop")
		}
	})
}

func TestPolling(t *testing.T) {
	t.Run("SnapshotFromPoll", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.CurrentlyPlayingFn = func(ctx context.Context, accessToken string) (*models.NowPlaying, error) {
			return playingTrack("t1", true), nil
		}

		s := newTestSync(provider)
		s.PollNow(context.Background())

		np := s.Snapshot()
		if np == nil || np.TrackID != "t1" {
			t.Fatalf("expected snapshot for t1, got %+v", np)
		}
	})

	t.Run("NothingPlayingClearsSnapshot", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		s := newTestSync(provider)
		s.snapshot = playingTrack("t1", true)

		// default mock returns (nil, nil), the 204 case
		s.PollNow(context.Background())
		if s.Snapshot() != nil {
			t.Error("expected cleared snapshot when nothing is playing")
		}
	})

	t.Run("FailedPollKeepsPreviousSnapshot", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.CurrentlyPlayingFn = func(ctx context.Context, accessToken string) (*models.NowPlaying, error) {
			return nil, errors.New("status 500")
		}

		s := newTestSync(provider)
		s.snapshot = playingTrack("t1", true)

		var gotErr error
		s.Subscribe(&Listener{OnError: func(ev ErrorEvent) { gotErr = ev.Err }})

		s.PollNow(context.Background())
		if np := s.Snapshot(); np == nil || np.TrackID != "t1" {
			t.Errorf("failed poll should keep previous snapshot, got %+v", np)
		}
		if !errors.Is(gotErr, shared.ErrTransient) {
			t.Errorf("expected transient error event, got %v", gotErr)
		}
	})

	t.Run("SecondaryFetchFailureKeepsPrimary", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.CurrentlyPlayingFn = func(ctx context.Context, accessToken string) (*models.NowPlaying, error) {
			return playingTrack("t1", true), nil
		}
		provider.ContainsTracksFn = func(ctx context.Context, accessToken string, trackIDs []string) ([]bool, error) {
			return nil, errors.New("boom")
		}
		provider.QueueFn = func(ctx context.Context, accessToken string) (*models.Queue, error) {
			return nil, errors.New("boom")
		}

		s := newTestSync(provider)
		s.PollNow(context.Background())

		if np := s.Snapshot(); np == nil || np.TrackID != "t1" {
			t.Errorf("secondary failures should not affect snapshot, got %+v", np)
		}
	})

	t.Run("LikedAndQueueRideAlong", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.CurrentlyPlayingFn = func(ctx context.Context, accessToken string) (*models.NowPlaying, error) {
			return playingTrack("t1", true), nil
		}
		provider.ContainsTracksFn = func(ctx context.Context, accessToken string, trackIDs []string) ([]bool, error) {
			return []bool{true}, nil
		}
		provider.QueueFn = func(ctx context.Context, accessToken string) (*models.Queue, error) {
			return &models.Queue{Entries: []models.NowPlaying{*playingTrack("t2", false)}}, nil
		}

		s := newTestSync(provider)

		var likedEv *LikedEvent
		var queueEv *QueueEvent
		s.Subscribe(&Listener{
			OnLiked: func(ev LikedEvent) { likedEv = &ev },
			OnQueue: func(ev QueueEvent) { queueEv = &ev },
		})

		s.PollNow(context.Background())

		if !s.LikedCurrent() {
			t.Error("expected current track liked")
		}
		if likedEv == nil || !likedEv.Liked || likedEv.TrackID != "t1" {
			t.Errorf("unexpected liked event: %+v", likedEv)
		}
		if queueEv == nil || len(queueEv.Queue.Entries) != 1 {
			t.Errorf("unexpected queue event: %+v", queueEv)
		}
	})
}

func TestMutations(t *testing.T) {
	t.Run("PlayIsOptimistic", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		s := newTestSync(provider)
		s.snapshot = playingTrack("t1", false)

		if err := s.Play(context.Background()); err != nil {
			t.Fatalf("play failed: %v", err)
		}
		if np := s.Snapshot(); np == nil || !np.IsPlaying {
			t.Error("expected optimistic playing snapshot before verification")
		}
	})

	t.Run("VerificationRevertsOnMismatch", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.CurrentlyPlayingFn = func(ctx context.Context, accessToken string) (*models.NowPlaying, error) {
			return playingTrack("t1", false), nil
		}

		s := newTestSync(provider)
		s.snapshot = playingTrack("t1", false)

		if err := s.Play(context.Background()); err != nil {
			t.Fatalf("play failed: %v", err)
		}

		deadline := time.After(2 * time.Second)
		for {
			if np := s.Snapshot(); np != nil && !np.IsPlaying {
				return
			}
			select {
			case <-deadline:
				t.Fatal("snapshot never reverted to provider truth")
			case <-time.After(10 * time.Millisecond):
			}
		}
	})

	t.Run("FailedMutationStillVerifies", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.PauseFn = func(ctx context.Context, accessToken string) error {
			return errors.New("status 502")
		}
		provider.CurrentlyPlayingFn = func(ctx context.Context, accessToken string) (*models.NowPlaying, error) {
			return playingTrack("t1", true), nil
		}

		s := newTestSync(provider)
		s.snapshot = playingTrack("t1", true)

		if err := s.Pause(context.Background()); err != nil {
			t.Fatalf("pause should not surface transient failure: %v", err)
		}

		deadline := time.After(2 * time.Second)
		for {
			if np := s.Snapshot(); np != nil && np.IsPlaying {
				return
			}
			select {
			case <-deadline:
				t.Fatal("optimistic pause never reconciled back to playing")
			case <-time.After(10 * time.Millisecond):
			}
		}
	})

	t.Run("SetVolumeValidatesRange", func(t *testing.T) {
		s := newTestSync(itesting.NewMockProvider())
		if err := s.SetVolume(context.Background(), 101); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if err := s.SetVolume(context.Background(), 50); err != nil {
			t.Errorf("valid volume failed: %v", err)
		}
	})
}

func TestToggleLike(t *testing.T) {
	t.Run("LikeMirrorsAndSaves", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.ContainsTracksFn = func(ctx context.Context, accessToken string, trackIDs []string) ([]bool, error) {
			return []bool{true}, nil
		}

		s := newTestSync(provider)
		store := s.liked.(*fakeLikedStore)

		if err := s.ToggleLike(context.Background(), "t1"); err != nil {
			t.Fatalf("toggle failed: %v", err)
		}
		if !s.LikedCurrent() {
			t.Error("expected optimistic liked state")
		}
		if !store.has("t1") {
			t.Error("expected mirror to record the like")
		}
		if provider.Calls("SaveTracks") != 1 {
			t.Errorf("expected one save call, got %d", provider.Calls("SaveTracks"))
		}
	})

	t.Run("VerificationRevertsLike", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.ContainsTracksFn = func(ctx context.Context, accessToken string, trackIDs []string) ([]bool, error) {
			return []bool{false}, nil
		}

		s := newTestSync(provider)
		store := s.liked.(*fakeLikedStore)

		if err := s.ToggleLike(context.Background(), "t1"); err != nil {
			t.Fatalf("toggle failed: %v", err)
		}

		deadline := time.After(2 * time.Second)
		for {
			if !s.LikedCurrent() && !store.has("t1") {
				return
			}
			select {
			case <-deadline:
				t.Fatal("like never reverted after verification mismatch")
			case <-time.After(10 * time.Millisecond):
			}
		}
	})

	t.Run("UnlikeRemoves", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.ContainsTracksFn = func(ctx context.Context, accessToken string, trackIDs []string) ([]bool, error) {
			return []bool{false}, nil
		}

		s := newTestSync(provider)
		s.likedCurrent = true

		if err := s.ToggleLike(context.Background(), "t1"); err != nil {
			t.Fatalf("toggle failed: %v", err)
		}
		if s.LikedCurrent() {
			t.Error("expected optimistic unliked state")
		}
		if provider.Calls("RemoveTracks") != 1 {
			t.Errorf("expected one remove call, got %d", provider.Calls("RemoveTracks"))
		}
	})
}

func TestEnqueue(t *testing.T) {
	t.Run("NoActiveDevice", func(t *testing.T) {
		s := newTestSync(itesting.NewMockProvider())
		err := s.Enqueue(context.Background(), "t1")
		if !errors.Is(err, shared.ErrNoActiveDevice) {
			t.Errorf("expected ErrNoActiveDevice, got %v", err)
		}
	})

	t.Run("WithDevice", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.ActiveDeviceFn = func(ctx context.Context, accessToken string) (string, error) {
			return "dev1", nil
		}

		s := newTestSync(provider)
		if err := s.Enqueue(context.Background(), "t1"); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		if provider.Calls("Enqueue") != 1 {
			t.Errorf("expected one enqueue call, got %d", provider.Calls("Enqueue"))
		}
	})

	t.Run("EmptyTrack", func(t *testing.T) {
		s := newTestSync(itesting.NewMockProvider())
		if err := s.Enqueue(context.Background(), ""); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}
