// package tasks implements background library operations against the music
// provider.
//
// The core abstraction is LibraryEngine, which mirrors a user's liked tracks
// into local storage under a hard cap and cooldown so recommendation filtering
// can consult the library without hammering the provider API. Operations emit
// progress updates via channels for non-blocking status reporting to CLI/UI
// layers.
package tasks

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"soundshift/internal/repositories"
	"soundshift/internal/services"
	"soundshift/internal/shared"
)

// pageSize is the provider's maximum page size for the saved-tracks endpoint.
const pageSize = 50

// SyncResult summarizes one liked-tracks sync run.
type SyncResult struct {
	TrackCount int  // Tracks written to the mirror
	Pages      int  // Provider pages fetched
	Truncated  bool // Library had more tracks than the cap
	Skipped    bool // Run skipped due to cooldown
}

// LibraryEngine mirrors a user's liked tracks into the session store.
type LibraryEngine struct {
	provider services.Provider
	repo     *repositories.SessionRepository
	limiter  *rate.Limiter
	cap      int
	cooldown time.Duration
	now      func() time.Time
}

// NewLibraryEngine creates a LibraryEngine bounded by the library config.
func NewLibraryEngine(provider services.Provider, repo *repositories.SessionRepository, config shared.LibraryConfig) *LibraryEngine {
	limit := config.SyncRateLimit
	if limit <= 0 {
		limit = 5.0
	}
	syncCap := config.SyncCap
	if syncCap <= 0 {
		syncCap = 500
	}

	return &LibraryEngine{
		provider: provider,
		repo:     repo,
		limiter:  rate.NewLimiter(rate.Limit(limit), 1),
		cap:      syncCap,
		cooldown: time.Duration(config.SyncCooldownHrs) * time.Hour,
		now:      time.Now,
	}
}

// SetClock overrides the time source for tests.
func (e *LibraryEngine) SetClock(now func() time.Time) {
	e.now = now
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *LibraryEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// SyncLikedTracks pages through the user's saved tracks and replaces the
// local mirror. At most the configured cap of tracks is fetched, and a run
// inside the cooldown window since the last completed sync is skipped.
func (e *LibraryEngine) SyncLikedTracks(ctx context.Context, progress chan<- ProgressUpdate, userID, accessToken string) (*SyncResult, error) {
	if e.provider == nil {
		return nil, fmt.Errorf("%w: provider not initialized", shared.ErrServiceUnavailable)
	}

	e.sendProgress(progress, checkCooldownUpdate(userID))

	rec, err := e.repo.Get(userID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if e.cooldown > 0 && rec.LastLikedSync > 0 {
		lastSync := time.UnixMilli(rec.LastLikedSync)
		if now.Sub(lastSync) < e.cooldown {
			e.sendProgress(progress, skippedUpdate(userID))
			return &SyncResult{Skipped: true}, nil
		}
	}

	result := &SyncResult{}
	trackIDs := make([]string, 0, e.cap)

	for offset := 0; len(trackIDs) < e.cap; offset += pageSize {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter interrupted: %w", err)
		}

		result.Pages++
		e.sendProgress(progress, fetchPageUpdate(result.Pages, len(trackIDs), e.cap))

		page, err := e.provider.SavedTracks(ctx, accessToken, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("%w: saved tracks page %d: %v", shared.ErrAPIRequest, result.Pages, err)
		}

		trackIDs = append(trackIDs, page.TrackIDs...)
		if !page.Next || len(page.TrackIDs) == 0 {
			break
		}
		if len(trackIDs) >= e.cap {
			result.Truncated = true
		}
	}

	if len(trackIDs) > e.cap {
		trackIDs = trackIDs[:e.cap]
		result.Truncated = true
	}

	e.sendProgress(progress, storeMirrorUpdate(len(trackIDs)))
	if err := e.repo.ReplaceLikedTracks(userID, trackIDs); err != nil {
		return nil, err
	}
	if err := e.repo.SetLastLikedSync(userID, now.UnixMilli()); err != nil {
		return nil, err
	}

	result.TrackCount = len(trackIDs)
	e.sendProgress(progress, completeUpdate(result.TrackCount, result.Truncated))
	return result, nil
}
