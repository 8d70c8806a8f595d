// Package recommend turns a mood and free-text context into provider tracks.
//
// The Orchestrator prompts the generative backend with the user's mood and
// recent listening history, parses the constrained JSON reply, resolves each
// (name, artist) pair to a track id via search, and filters the result
// against recent plays and the liked library. Generative failures always
// degrade to a static mood-keyed playlist, never to a user-facing error.
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"soundshift/internal/models"
	"soundshift/internal/services"
	"soundshift/internal/shared"
)

const (
	maxHistoryEntries = 50
	recentWindow      = 20
)

// aiReply is the fixed schema the prompt instructs the backend to produce.
type aiReply struct {
	Recommendations []models.Recommendation `json:"recommendations"`
	Explanation     string                  `json:"explanation"`
}

// Orchestrator coordinates the generator, the provider search API and the
// local liked-track mirror.
type Orchestrator struct {
	generator services.Generator
	provider  services.Provider
	limiter   *rate.Limiter
	logger    *log.Logger
}

// NewOrchestrator creates an Orchestrator. The resolve rate limit bounds
// search calls per second.
func NewOrchestrator(generator services.Generator, provider services.Provider, config shared.LibraryConfig, logger *log.Logger) *Orchestrator {
	limit := config.ResolveRateLimit
	if limit <= 0 {
		limit = 5.0
	}
	return &Orchestrator{
		generator: generator,
		provider:  provider,
		limiter:   rate.NewLimiter(rate.Limit(limit), 1),
		logger:    logger,
	}
}

// Recommend produces a RecommendationBatch for the given mood and context.
// The error return is reserved for context cancellation; generative and
// parse failures fall back to the static playlist instead.
func (o *Orchestrator) Recommend(ctx context.Context, accessToken, mood, userContext string, history []models.HistoryEntry, liked models.LikedTrackSet) (*models.RecommendationBatch, error) {
	batch := &models.RecommendationBatch{
		RequestMood:    mood,
		RequestContext: userContext,
	}

	reply, err := o.generate(ctx, mood, userContext, history)
	if err != nil {
		o.logger.Warn("recommendation generation failed, serving fallback", "mood", mood, "error", err)
		batch.Tracks = fallbackFor(mood)
		batch.Explanation = fallbackExplanation
		batch.Fallback = true
	} else {
		batch.Tracks = postFilter(reply.Recommendations, history)
		batch.Explanation = reply.Explanation
	}

	resolved, err := o.resolve(ctx, accessToken, batch.Tracks, liked)
	if err != nil {
		return nil, err
	}
	batch.ResolvedTracks = resolved

	return batch, nil
}

// ClassifyMood maps free text to Happy, Sad or Neutral. The generative
// backend gets the first word; any failure or off-schema reply falls back to
// the deterministic keyword heuristic.
func (o *Orchestrator) ClassifyMood(ctx context.Context, userContext string) string {
	prompt := fmt.Sprintf(
		"Classify the mood of the following text as exactly one word, either Happy, Sad or Neutral. Reply with only that word.\n\nText: %s",
		userContext,
	)

	if o.generator == nil {
		return heuristicMood(userContext)
	}

	reply, err := o.generator.GenerateText(ctx, prompt)
	if err != nil {
		o.logger.Debug("mood classification failed, using heuristic", "error", err)
		return heuristicMood(userContext)
	}

	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "happy":
		return "Happy"
	case "sad":
		return "Sad"
	case "neutral":
		return "Neutral"
	default:
		return heuristicMood(userContext)
	}
}

func (o *Orchestrator) generate(ctx context.Context, mood, userContext string, history []models.HistoryEntry) (*aiReply, error) {
	if o.generator == nil {
		return nil, fmt.Errorf("%w: no generator configured", shared.ErrServiceUnavailable)
	}

	raw, err := o.generator.GenerateText(ctx, BuildPrompt(mood, userContext, history))
	if err != nil {
		return nil, err
	}

	reply, err := parseReply(raw)
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// BuildPrompt embeds the mood, the raw user utterance and up to the last 50
// history entries, and pins the reply to a fixed JSON schema.
func BuildPrompt(mood, userContext string, history []models.HistoryEntry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Recommend 5 songs for a listener whose mood is %q.", mood)
	if userContext != "" {
		fmt.Fprintf(&b, " They said: %q.", userContext)
	}

	if len(history) > 0 {
		entries := history
		if len(entries) > maxHistoryEntries {
			entries = entries[:maxHistoryEntries]
		}
		b.WriteString("\n\nTheir recent listening history, most recent first:\n")
		for _, entry := range entries {
			b.WriteString("- ")
			b.WriteString(shared.TrackKey(entry.Name, entry.Artist))
			b.WriteByte('\n')
		}
		window := recentWindow
		if len(entries) < window {
			window = len(entries)
		}
		fmt.Fprintf(&b, "\nDo not recommend any of the %d most recent songs listed above.", window)
	}

	b.WriteString("\n\nReply with JSON only, matching exactly this schema: ")
	b.WriteString(`{"recommendations": [{"name": "...", "artist": "..."}], "explanation": "..."}`)

	return b.String()
}

// parseReply extracts the first brace-delimited object from raw and decodes
// it. Replies with no recommendations count as parse failures.
func parseReply(raw string) (*aiReply, error) {
	jsonText, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var reply aiReply
	if err := json.Unmarshal([]byte(jsonText), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRecommendationParse, err)
	}
	if len(reply.Recommendations) == 0 {
		return nil, fmt.Errorf("%w: empty recommendations", shared.ErrRecommendationParse)
	}

	return &reply, nil
}

// extractJSON returns the substring from the first '{' to the last '}',
// tolerating markdown fences and prose around the object.
func extractJSON(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("%w: no JSON object in reply", shared.ErrRecommendationParse)
	}
	return raw[start : end+1], nil
}

// postFilter drops recommendations that exactly match one of the listener's
// most recent plays. Matching is on the verbatim "name by artist" key, no
// normalization.
func postFilter(recs []models.Recommendation, history []models.HistoryEntry) []models.Recommendation {
	window := recentWindow
	if len(history) < window {
		window = len(history)
	}

	recent := make(map[string]bool, window)
	for _, entry := range history[:window] {
		recent[shared.TrackKey(entry.Name, entry.Artist)] = true
	}

	out := make([]models.Recommendation, 0, len(recs))
	for _, rec := range recs {
		if recent[shared.TrackKey(rec.Name, rec.Artist)] {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// resolve looks each recommendation up via search. Misses are dropped
// silently, duplicate track ids keep the first hit, and tracks already in
// the liked set are excluded.
func (o *Orchestrator) resolve(ctx context.Context, accessToken string, recs []models.Recommendation, liked models.LikedTrackSet) ([]models.ResolvedTrack, error) {
	seen := make(map[string]bool, len(recs))
	out := make([]models.ResolvedTrack, 0, len(recs))

	for _, rec := range recs {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter interrupted: %w", err)
		}

		track, err := o.provider.SearchTrack(ctx, accessToken, rec.Name, rec.Artist)
		if err != nil {
			o.logger.Debug("track resolution failed", "name", rec.Name, "artist", rec.Artist, "error", err)
			continue
		}
		if track == nil {
			continue
		}
		if seen[track.TrackID] {
			continue
		}
		if liked != nil && liked.Contains(track.TrackID) {
			continue
		}

		seen[track.TrackID] = true
		out = append(out, *track)
	}

	return out, nil
}
