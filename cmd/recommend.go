package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"soundshift/internal/models"
	"soundshift/internal/recommend"
	"soundshift/internal/shared"
)

const historyLimit = 50

// Recommend asks for a mood-matched track batch. History and the liked-set
// exclusion are best effort, a provider hiccup degrades the query rather
// than failing it.
func (r *Runner) Recommend(ctx context.Context, cmd *cli.Command) error {
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

	mood := cmd.String("mood")
	userContext := cmd.String("context")
	if mood == "" {
		mood = r.orchestrator.ClassifyMood(ctx, userContext)
		r.logger.Info("classified mood", "mood", mood)
	}

	var history []models.HistoryEntry
	if h, err := r.provider.RecentlyPlayed(ctx, accessToken, historyLimit); err != nil {
		r.logger.Warn("history fetch failed, recommending without it", "error", err)
	} else {
		history = h
	}

	var liked models.LikedTrackSet
	if l, err := r.repo.LikedTracks(userID); err != nil {
		r.logger.Warn("liked-tracks lookup failed", "error", err)
	} else {
		liked = l
	}

	batch, err := r.orchestrator.Recommend(ctx, accessToken, mood, userContext, history, liked)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(batch, cmd.Bool("pretty"))
	}

	r.writePlain("Mood: %s\n", batch.RequestMood)
	if batch.Fallback {
		r.writePlain("(generator unavailable, serving curated picks)\n")
	}
	r.writePlain("%s\n\n", batch.Explanation)

	if len(batch.ResolvedTracks) == 0 {
		r.writePlain("No playable tracks found for this mood.\n")
		return nil
	}

	for i, track := range batch.ResolvedTracks {
		r.writePlain("%d. %s - %s\n", i+1, track.Artist, track.Name)
		r.writePlain("   ID: %s\n", track.TrackID)
	}

	return nil
}

// RecommendMood classifies free text into a single mood word.
func (r *Runner) RecommendMood(ctx context.Context, cmd *cli.Command) error {
	userContext := cmd.StringArg("context")
	if userContext == "" {
		return fmt.Errorf("%w: context text", shared.ErrMissingArgument)
	}

	// No session or store needed, classification runs on the generator
	// alone with a keyword heuristic behind it.
	orchestrator := r.orchestrator
	if orchestrator == nil {
		orchestrator = recommend.NewOrchestrator(r.generator, r.provider, r.config.Library, r.logger)
	}

	mood := orchestrator.ClassifyMood(ctx, userContext)
	return r.writePlain("%s\n", mood)
}
