package main

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v3"

	"soundshift/internal/services"
	"soundshift/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	var provider services.Provider
	if config.Credentials.Spotify.ClientID != "" && config.Credentials.Spotify.ClientSecret != "" {
		if svc, err := services.NewSpotifyService(
			config.Credentials.Spotify.ClientID,
			config.Credentials.Spotify.ClientSecret,
		); err == nil {
			provider = svc
		} else {
			logger.Warn("failed to create Spotify service", "error", err)
		}
	}

	var generator services.Generator
	if config.Credentials.Gemini.APIKey != "" {
		if svc, err := services.NewGeminiService(
			config.Credentials.Gemini.APIKey,
			config.Credentials.Gemini.Model,
			config.Credentials.Gemini.BaseURL,
		); err == nil {
			generator = svc
		} else {
			logger.Warn("failed to create Gemini service", "error", err)
		}
	}

	runner := NewRunner(RunnerOpts{
		Config:    config,
		Provider:  provider,
		Generator: generator,
		Logger:    logger,
	})

	app := &cli.Command{
		Name:     "soundshift",
		Usage:    "Mood-based music recommendations and playback control for Spotify",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		err_ := errors.Unwrap(err)
		if errors.Is(err_, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		} else {
			logger.Fatalf("application error: %v", err)
		}
	}
}
