package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"soundshift/internal/shared"
	"soundshift/internal/tasks"
)

// LibrarySync mirrors the user's liked tracks into the local store,
// streaming progress as pages come in.
func (r *Runner) LibrarySync(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(ctx); err != nil {
		return err
	}

	userID, err := r.currentUserID()
	if err != nil {
		return err
	}

	accessToken, err := r.manager.AccessToken(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			switch update.Phase {
			case tasks.FetchPage:
				r.writePlain("→ %s\n", update.Message)
			case tasks.StoreMirror:
				r.writePlain("→ %s\n", update.Message)
			}
		}
	}()

	result, err := r.engine.SyncLikedTracks(ctx, progress, userID, accessToken)
	close(progress)
	<-done

	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}

	if result.Skipped {
		r.writePlain("Library is fresh, sync skipped (cooldown)\n")
		return nil
	}

	r.writePlain("✓ Synced %d liked tracks in %d pages\n", result.TrackCount, result.Pages)
	if result.Truncated {
		r.writePlain("  Library exceeds the mirror cap, oldest likes were left out\n")
	}

	return nil
}
