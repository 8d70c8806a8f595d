// Package playback mirrors the provider's player state for one session.
//
// A Sync runs the Disconnected -> Connecting -> Ready -> Polling state
// machine: on start it registers against the user's active device, then polls
// the currently-playing endpoint on a fixed interval. Mutations apply an
// optimistic local update and schedule a verification re-fetch that reverts
// the snapshot to provider truth on mismatch.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"soundshift/internal/models"
	"soundshift/internal/services"
	"soundshift/internal/shared"
)

// State is the sync lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Ready
	Polling
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Polling:
		return "polling"
	default:
		return ""
	}
}

// TokenSource hands out a currently valid access token for a user,
// refreshing server-side when needed.
type TokenSource interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

// LikedStore mirrors like/unlike toggles into local storage.
type LikedStore interface {
	AddLikedTrack(userID, trackID string) error
	RemoveLikedTrack(userID, trackID string) error
}

// Sync owns the playback snapshot for a single user session.
type Sync struct {
	provider services.Provider
	tokens   TokenSource
	liked    LikedStore
	emitter  *Emitter
	logger   *log.Logger

	userID      string
	interval    time.Duration
	verifyDelay time.Duration

	mu           sync.Mutex
	state        State
	snapshot     *models.NowPlaying
	queue        *models.Queue
	likedCurrent bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSync creates a Sync for userID using the player config intervals.
func NewSync(provider services.Provider, tokens TokenSource, liked LikedStore, userID string, config shared.PlayerConfig, logger *log.Logger) *Sync {
	interval := time.Duration(config.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 4 * time.Second
	}
	verifyDelay := time.Duration(config.VerifyDelaySeconds) * time.Second
	if verifyDelay <= 0 {
		verifyDelay = 2 * time.Second
	}

	return &Sync{
		provider:    provider,
		tokens:      tokens,
		liked:       liked,
		emitter:     NewEmitter(),
		logger:      logger,
		userID:      userID,
		interval:    interval,
		verifyDelay: verifyDelay,
		state:       Disconnected,
	}
}

// Subscribe registers a listener for playback events.
func (s *Sync) Subscribe(l *Listener) func() {
	return s.emitter.Subscribe(l)
}

// State returns the current lifecycle state.
func (s *Sync) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the latest now-playing snapshot, nil when nothing is
// playing or no poll has succeeded yet.
func (s *Sync) Snapshot() *models.NowPlaying {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Queue returns the latest queue fetch, nil before the first one lands.
func (s *Sync) Queue() *models.Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue
}

// LikedCurrent reports whether the current track is in the user's library.
func (s *Sync) LikedCurrent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.likedCurrent
}

func (s *Sync) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		s.emitter.emitState(StateEvent{Previous: prev, Current: next})
	}
}

// Start registers against the user's active device and launches the poller.
// Device transfer is best-effort; a missing or unreachable device does not
// block polling.
func (s *Sync) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: sync already started", shared.ErrInvalidInput)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.setState(Connecting)

	accessToken, err := s.tokens.AccessToken(s.ctx, s.userID)
	if err != nil {
		s.setState(Disconnected)
		return err
	}

	if deviceID, err := s.provider.ActiveDevice(s.ctx, accessToken); err != nil {
		s.logger.Warn("device lookup failed", "user", s.userID, "error", err)
	} else if deviceID != "" {
		if err := s.provider.TransferPlayback(s.ctx, accessToken, deviceID, false); err != nil {
			s.logger.Warn("playback transfer failed", "user", s.userID, "device", deviceID, "error", err)
		}
	}

	s.setState(Ready)

	s.wg.Add(1)
	go s.run()
	return nil
}

// Stop cancels the poller and waits for it to exit. Safe to call more than
// once.
func (s *Sync) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.setState(Disconnected)
}

func (s *Sync) run() {
	defer s.wg.Done()

	s.setState(Polling)
	s.poll(s.ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.poll(s.ctx)
		}
	}
}

// PollNow performs a single on-demand poll outside the ticker. Usable
// without Start for one-shot state queries.
func (s *Sync) PollNow(ctx context.Context) {
	s.poll(ctx)
}

// poll fetches the current playback. An empty 204 response clears the
// snapshot; a failed fetch keeps the previous snapshot so a single bad poll
// does not blank the player.
func (s *Sync) poll(ctx context.Context) {
	accessToken, err := s.tokens.AccessToken(ctx, s.userID)
	if err != nil {
		s.emitter.emitError(ErrorEvent{Op: "poll", Err: err})
		return
	}

	np, err := s.provider.CurrentlyPlaying(ctx, accessToken)
	if err != nil {
		s.logger.Debug("poll failed, keeping previous snapshot", "user", s.userID, "error", err)
		s.emitter.emitError(ErrorEvent{Op: "poll", Err: fmt.Errorf("%w: %v", shared.ErrTransient, err)})
		return
	}

	s.mu.Lock()
	s.snapshot = np
	s.mu.Unlock()
	s.emitter.emitSnapshot(SnapshotEvent{NowPlaying: np})

	if np == nil {
		return
	}

	// Secondary fetches ride along with a successful poll. Their failure
	// never touches the primary snapshot.
	if contains, err := s.provider.ContainsTracks(ctx, accessToken, []string{np.TrackID}); err != nil {
		s.logger.Debug("liked check failed", "user", s.userID, "error", err)
	} else if len(contains) == 1 {
		s.mu.Lock()
		changed := s.likedCurrent != contains[0]
		s.likedCurrent = contains[0]
		s.mu.Unlock()
		if changed {
			s.emitter.emitLiked(LikedEvent{TrackID: np.TrackID, Liked: contains[0]})
		}
	}

	if queue, err := s.provider.Queue(ctx, accessToken); err != nil {
		s.logger.Debug("queue fetch failed", "user", s.userID, "error", err)
	} else {
		s.mu.Lock()
		s.queue = queue
		s.mu.Unlock()
		s.emitter.emitQueue(QueueEvent{Queue: queue})
	}
}

// Play resumes playback. The snapshot flips to playing immediately and a
// verification re-fetch reconciles against provider truth.
func (s *Sync) Play(ctx context.Context) error {
	s.applyPlaying(true)
	return s.mutate(ctx, "play", s.provider.Play)
}

// Pause halts playback with the same optimistic-then-verify flow as Play.
func (s *Sync) Pause(ctx context.Context) error {
	s.applyPlaying(false)
	return s.mutate(ctx, "pause", s.provider.Pause)
}

// Next skips forward and schedules a re-fetch for the new track.
func (s *Sync) Next(ctx context.Context) error {
	return s.mutate(ctx, "next", s.provider.Next)
}

// Previous skips backward and schedules a re-fetch for the new track.
func (s *Sync) Previous(ctx context.Context) error {
	return s.mutate(ctx, "previous", s.provider.Previous)
}

// SetVolume sets the player volume percentage.
func (s *Sync) SetVolume(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: volume %d out of range", shared.ErrInvalidArgument, percent)
	}
	accessToken, err := s.tokens.AccessToken(ctx, s.userID)
	if err != nil {
		return err
	}
	if err := s.provider.SetVolume(ctx, accessToken, percent); err != nil {
		return fmt.Errorf("%w: set volume: %v", shared.ErrTransient, err)
	}
	return nil
}

// ToggleLike flips the liked flag for trackID, mirroring the change locally
// before the provider call and reverting if verification disagrees.
func (s *Sync) ToggleLike(ctx context.Context, trackID string) error {
	if trackID == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	accessToken, err := s.tokens.AccessToken(ctx, s.userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	liking := !s.likedCurrent
	s.likedCurrent = liking
	s.mu.Unlock()
	s.emitter.emitLiked(LikedEvent{TrackID: trackID, Liked: liking})
	s.mirrorLike(trackID, liking)

	if liking {
		err = s.provider.SaveTracks(ctx, accessToken, []string{trackID})
	} else {
		err = s.provider.RemoveTracks(ctx, accessToken, []string{trackID})
	}
	if err != nil {
		s.logger.Warn("like toggle failed", "user", s.userID, "track", trackID, "error", err)
	}

	s.scheduleVerify(func(verifyCtx context.Context, verifyToken string) {
		contains, err := s.provider.ContainsTracks(verifyCtx, verifyToken, []string{trackID})
		if err != nil || len(contains) != 1 {
			return
		}
		s.mu.Lock()
		mismatch := s.likedCurrent != contains[0]
		s.likedCurrent = contains[0]
		s.mu.Unlock()
		if mismatch {
			s.emitter.emitLiked(LikedEvent{TrackID: trackID, Liked: contains[0]})
			s.mirrorLike(trackID, contains[0])
		}
	})

	return nil
}

// Enqueue appends trackID to the provider queue. Requires an active device;
// without one the caller gets ErrNoActiveDevice rather than a silent no-op.
func (s *Sync) Enqueue(ctx context.Context, trackID string) error {
	if trackID == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	accessToken, err := s.tokens.AccessToken(ctx, s.userID)
	if err != nil {
		return err
	}

	deviceID, err := s.provider.ActiveDevice(ctx, accessToken)
	if err != nil {
		if errors.Is(err, shared.ErrNoActiveDevice) {
			return err
		}
		return fmt.Errorf("%w: device lookup: %v", shared.ErrTransient, err)
	}
	if deviceID == "" {
		return fmt.Errorf("%w: cannot enqueue %s", shared.ErrNoActiveDevice, trackID)
	}

	if err := s.provider.Enqueue(ctx, accessToken, trackID); err != nil {
		if errors.Is(err, shared.ErrNoActiveDevice) {
			return err
		}
		return fmt.Errorf("%w: enqueue: %v", shared.ErrTransient, err)
	}
	return nil
}

func (s *Sync) applyPlaying(playing bool) {
	s.mu.Lock()
	if s.snapshot != nil {
		updated := *s.snapshot
		updated.IsPlaying = playing
		s.snapshot = &updated
	}
	np := s.snapshot
	s.mu.Unlock()
	if np != nil {
		s.emitter.emitSnapshot(SnapshotEvent{NowPlaying: np})
	}
}

// mutate fires a control call and schedules a snapshot re-fetch that adopts
// whatever the provider reports, reverting any optimistic change that did
// not stick.
func (s *Sync) mutate(ctx context.Context, op string, call func(context.Context, string) error) error {
	accessToken, err := s.tokens.AccessToken(ctx, s.userID)
	if err != nil {
		return err
	}

	if err := call(ctx, accessToken); err != nil {
		s.logger.Warn("control call failed", "op", op, "user", s.userID, "error", err)
		s.emitter.emitError(ErrorEvent{Op: op, Err: fmt.Errorf("%w: %v", shared.ErrTransient, err)})
	}

	s.scheduleVerify(func(verifyCtx context.Context, verifyToken string) {
		np, err := s.provider.CurrentlyPlaying(verifyCtx, verifyToken)
		if err != nil {
			return
		}
		s.mu.Lock()
		mismatch := !snapshotsEqual(s.snapshot, np)
		s.snapshot = np
		s.mu.Unlock()
		if mismatch {
			s.emitter.emitSnapshot(SnapshotEvent{NowPlaying: np})
		}
	})

	return nil
}

// scheduleVerify runs fn after the verify delay unless the sync has been
// stopped. An unstarted sync verifies on a background context so one-shot
// mutations still reconcile.
func (s *Sync) scheduleVerify(fn func(ctx context.Context, accessToken string)) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	time.AfterFunc(s.verifyDelay, func() {
		if ctx.Err() != nil {
			return
		}
		accessToken, err := s.tokens.AccessToken(ctx, s.userID)
		if err != nil {
			return
		}
		fn(ctx, accessToken)
	})
}

func (s *Sync) mirrorLike(trackID string, liked bool) {
	if s.liked == nil {
		return
	}
	var err error
	if liked {
		err = s.liked.AddLikedTrack(s.userID, trackID)
	} else {
		err = s.liked.RemoveLikedTrack(s.userID, trackID)
	}
	if err != nil {
		s.logger.Warn("liked mirror update failed", "user", s.userID, "track", trackID, "error", err)
	}
}

func snapshotsEqual(a, b *models.NowPlaying) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.TrackID == b.TrackID && a.IsPlaying == b.IsPlaying
}
