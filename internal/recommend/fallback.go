package recommend

import (
	"strings"

	"soundshift/internal/models"
)

// fallbackExplanation accompanies every static playlist.
const fallbackExplanation = "Here are some songs that might match your mood."

// Static playlists served whenever the generative backend fails or returns
// something unparseable. Keyed by mood keyword, matched by substring.
var fallbackPlaylists = map[string][]models.Recommendation{
	"happy": {
		{Name: "Happy", Artist: "Pharrell Williams"},
		{Name: "Walking on Sunshine", Artist: "Katrina & The Waves"},
		{Name: "Can't Stop the Feeling!", Artist: "Justin Timberlake"},
		{Name: "Good as Hell", Artist: "Lizzo"},
		{Name: "Uptown Funk", Artist: "Mark Ronson"},
	},
	"sad": {
		{Name: "Someone Like You", Artist: "Adele"},
		{Name: "Fix You", Artist: "Coldplay"},
		{Name: "The Night We Met", Artist: "Lord Huron"},
		{Name: "Skinny Love", Artist: "Bon Iver"},
		{Name: "Hurt", Artist: "Johnny Cash"},
	},
	"neutral": {
		{Name: "Weightless", Artist: "Marconi Union"},
		{Name: "Holocene", Artist: "Bon Iver"},
		{Name: "Breathe", Artist: "Pink Floyd"},
		{Name: "Vienna", Artist: "Billy Joel"},
		{Name: "Landslide", Artist: "Fleetwood Mac"},
	},
}

// fallbackFor picks the static playlist for a mood. Unrecognized moods get
// the neutral list.
func fallbackFor(mood string) []models.Recommendation {
	lower := strings.ToLower(mood)
	for keyword, playlist := range fallbackPlaylists {
		if strings.Contains(lower, keyword) {
			return playlist
		}
	}
	return fallbackPlaylists["neutral"]
}

// heuristicMood classifies free text without the generative backend.
// Deterministic keyword scan: happy/good/great, sad/bad/tired, else neutral.
func heuristicMood(context string) string {
	lower := strings.ToLower(context)
	for _, keyword := range []string{"happy", "good", "great"} {
		if strings.Contains(lower, keyword) {
			return "Happy"
		}
	}
	for _, keyword := range []string{"sad", "bad", "tired"} {
		if strings.Contains(lower, keyword) {
			return "Sad"
		}
	}
	return "Neutral"
}
