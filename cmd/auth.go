package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"soundshift/internal/server"
	"soundshift/internal/shared"
)

// localSession is the CLI's stored login: the platform session credential
// and the user id it was minted for. Provider tokens never touch this file,
// they stay encrypted in the database.
type localSession struct {
	UserID       string `json:"user_id"`
	SessionToken string `json:"session_token"`
}

func sessionFilePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".soundshift", "session.json"), nil
}

func saveLocalSession(s *localSession) error {
	path, err := sessionFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

func loadLocalSession() (*localSession, error) {
	path, err := sessionFilePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: not logged in, run 'soundshift auth login'", shared.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var s localSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return &s, nil
}

// currentUserID verifies the stored session credential and returns the user
// id it carries. An expired or tampered credential reads as not logged in.
func (r *Runner) currentUserID() (string, error) {
	s, err := loadLocalSession()
	if err != nil {
		return "", err
	}
	userID, err := r.manager.VerifySessionToken(s.SessionToken)
	if err != nil {
		return "", fmt.Errorf("%w: session expired, run 'soundshift auth login'", shared.ErrInvalidCredentials)
	}
	return userID, nil
}

// AuthLogin runs the authorization-code flow with a loopback callback
// server, exchanges the code for an encrypted session, and stores the
// minted credential locally.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(ctx); err != nil {
		return err
	}

	redirectURI := r.config.Credentials.Spotify.PlayerRedirect
	if redirectURI == "" {
		return fmt.Errorf("%w: player_redirect must be set", shared.ErrInvalidConfig)
	}

	code, err := r.captureAuthCode(redirectURI)
	if err != nil {
		return err
	}

	result, err := r.manager.ExchangeCodeRedirect(ctx, code, redirectURI)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := saveLocalSession(&localSession{
		UserID:       result.UserID,
		SessionToken: result.SessionToken,
	}); err != nil {
		return err
	}

	r.writePlainln("✓ Login successful")
	r.writePlain("Logged in as %s (%s)\n", result.Profile.DisplayName, result.UserID)
	return nil
}

// AuthStatus shows the stored session and profile.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(ctx); err != nil {
		return err
	}

	userID, err := r.currentUserID()
	if err != nil {
		if errors.Is(err, shared.ErrSessionNotFound) || errors.Is(err, shared.ErrInvalidCredentials) {
			r.writePlain("✗ Not logged in\n")
			return nil
		}
		return err
	}

	profile, err := r.manager.Profile(userID)
	if err != nil {
		r.writePlain("✗ Session exists but no stored profile was found\n")
		return nil
	}

	r.writePlain("✓ Logged in\n")
	r.writePlain("User: %s (%s)\n", profile.DisplayName, profile.ID)
	if profile.Product != "" {
		r.writePlain("Plan: %s\n", profile.Product)
	}
	if profile.Country != "" {
		r.writePlain("Country: %s\n", profile.Country)
	}
	return nil
}

// AuthLogout deletes the stored session server-side and removes the local
// credential file.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.bootstrap(ctx); err != nil {
		return err
	}

	s, err := loadLocalSession()
	if err != nil {
		if errors.Is(err, shared.ErrSessionNotFound) {
			r.writePlain("Not logged in\n")
			return nil
		}
		return err
	}

	if err := r.manager.Logout(s.UserID); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	path, err := sessionFilePath()
	if err == nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			r.logger.Warn("failed to remove session file", "error", rmErr)
		}
	}

	r.writePlain("✓ Logged out\n")
	return nil
}

// captureAuthCode opens the consent page and runs a loopback HTTP server on
// the redirect URI's host until the provider calls back with a code.
func (r *Runner) captureAuthCode(redirectURI string) (string, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}

	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("%w: invalid player_redirect: %v", shared.ErrInvalidConfig, err)
	}

	authURL := r.provider.AuthCodeURL(state, redirectURI)
	callbackHandler := server.NewCallbackHandler(state)
	router := server.NewBasicRouter()
	router.Handler(callbackHandler)

	httpServer := &http.Server{
		Addr:    parsed.Host,
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting callback server at %v", parsed.Host)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(2 * time.Minute)
	defer timeout.Stop()

	var result server.CallbackResult

	select {
	case result = <-callbackHandler.Result():
		// Got result from callback
	case err := <-serverErrors:
		return "", fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return "", fmt.Errorf("authorization timed out after 2 minutes")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return "", fmt.Errorf("authorization failed: %w", result.Error())
	}

	return result.Code, nil
}
