package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"soundshift/internal/models"
	"soundshift/internal/playback"
	"soundshift/internal/shared"
)

// player builds a one-shot playback sync for the logged-in user. The CLI
// never starts the poll loop, it polls on demand.
func (r *Runner) player(ctx context.Context) (*playback.Sync, error) {
	if err := r.bootstrap(ctx); err != nil {
		return nil, err
	}
	userID, err := r.currentUserID()
	if err != nil {
		return nil, err
	}
	return playback.NewSync(r.provider, r.manager, r.repo, userID, r.config.Player, r.logger), nil
}

type nowOutput struct {
	NowPlaying *models.NowPlaying `json:"now_playing"`
	Liked      bool               `json:"liked"`
	Queue      *models.Queue      `json:"queue,omitempty"`
}

// PlayerNow polls the provider once and prints the playback snapshot.
func (r *Runner) PlayerNow(ctx context.Context, cmd *cli.Command) error {
	sync, err := r.player(ctx)
	if err != nil {
		return err
	}

	sync.PollNow(ctx)

	out := nowOutput{
		NowPlaying: sync.Snapshot(),
		Liked:      sync.LikedCurrent(),
		Queue:      sync.Queue(),
	}

	if cmd.Bool("json") {
		return r.writeJSON(out, cmd.Bool("pretty"))
	}

	if out.NowPlaying == nil {
		r.writePlain("Nothing playing\n")
		return nil
	}

	np := out.NowPlaying
	status := "⏸"
	if np.IsPlaying {
		status = "▶"
	}
	liked := ""
	if out.Liked {
		liked = " ♥"
	}
	r.writePlain("%s %s - %s%s\n", status, strings.Join(np.ArtistNames, ", "), np.TrackName, liked)
	if np.AlbumName != "" {
		r.writePlain("  Album: %s\n", np.AlbumName)
	}

	if out.Queue != nil && len(out.Queue.Entries) > 0 {
		r.writePlain("\nUp next:\n")
		for i, entry := range out.Queue.Entries {
			r.writePlain("%d. %s - %s\n", i+1, strings.Join(entry.ArtistNames, ", "), entry.TrackName)
		}
	}

	return nil
}

// PlayerPlay resumes playback.
func (r *Runner) PlayerPlay(ctx context.Context, cmd *cli.Command) error {
	sync, err := r.player(ctx)
	if err != nil {
		return err
	}
	if err := sync.Play(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Play requested\n")
}

// PlayerPause pauses playback.
func (r *Runner) PlayerPause(ctx context.Context, cmd *cli.Command) error {
	sync, err := r.player(ctx)
	if err != nil {
		return err
	}
	if err := sync.Pause(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Pause requested\n")
}

// PlayerNext skips to the next track.
func (r *Runner) PlayerNext(ctx context.Context, cmd *cli.Command) error {
	sync, err := r.player(ctx)
	if err != nil {
		return err
	}
	if err := sync.Next(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Skip requested\n")
}

// PlayerPrevious skips to the previous track.
func (r *Runner) PlayerPrevious(ctx context.Context, cmd *cli.Command) error {
	sync, err := r.player(ctx)
	if err != nil {
		return err
	}
	if err := sync.Previous(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Skip back requested\n")
}

// PlayerVolume sets the playback volume.
func (r *Runner) PlayerVolume(ctx context.Context, cmd *cli.Command) error {
	raw := cmd.StringArg("percent")
	percent, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: volume %q is not a number", shared.ErrInvalidArgument, raw)
	}

	sync, err := r.player(ctx)
	if err != nil {
		return err
	}
	if err := sync.SetVolume(ctx, percent); err != nil {
		return err
	}
	return r.writePlain("✓ Volume set to %d%%\n", percent)
}

// PlayerLike toggles the liked status of a track. Without an explicit track
// id it polls once and targets the currently playing track.
func (r *Runner) PlayerLike(ctx context.Context, cmd *cli.Command) error {
	trackID := cmd.StringArg("track-id")

	sync, err := r.player(ctx)
	if err != nil {
		return err
	}

	if trackID == "" {
		sync.PollNow(ctx)
		snapshot := sync.Snapshot()
		if snapshot == nil {
			return fmt.Errorf("%w: nothing playing, pass a track id", shared.ErrMissingArgument)
		}
		trackID = snapshot.TrackID
	}

	if err := sync.ToggleLike(ctx, trackID); err != nil {
		return err
	}

	if sync.LikedCurrent() {
		return r.writePlain("♥ Liked %s\n", trackID)
	}
	return r.writePlain("✓ Unliked %s\n", trackID)
}

// PlayerEnqueue adds a track to the playback queue.
func (r *Runner) PlayerEnqueue(ctx context.Context, cmd *cli.Command) error {
	trackID := cmd.StringArg("track-id")

	sync, err := r.player(ctx)
	if err != nil {
		return err
	}
	if err := sync.Enqueue(ctx, trackID); err != nil {
		return err
	}
	return r.writePlain("✓ Queued %s\n", trackID)
}
