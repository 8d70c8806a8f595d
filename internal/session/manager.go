// Package session owns the login lifecycle: authorization-code exchange,
// encrypted persistence of the provider token pair, platform session
// credential minting, server-side refresh, and logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"

	"soundshift/internal/models"
	"soundshift/internal/repositories"
	"soundshift/internal/services"
	"soundshift/internal/shared"
	"soundshift/internal/vault"
)

const jwtIssuer = "soundshift"

// LoginResult is what a successful code exchange hands back to the client:
// the platform credential and the profile snapshot. Provider tokens stay
// server-side.
type LoginResult struct {
	UserID       string          `json:"user_id"`
	SessionToken string          `json:"session_token"`
	Profile      *models.Profile `json:"profile"`
	ExpiresAt    int64           `json:"expires_at"`
}

// Manager coordinates the provider, the vault and the session store.
type Manager struct {
	provider services.Provider
	repo     *repositories.SessionRepository
	keys     *vault.Keyring
	spotify  shared.SpotifyConfig
	security shared.SecurityConfig
	logger   *log.Logger

	now      func() time.Time
	syncHook func(userID, accessToken string)
}

// NewManager creates a Manager over the given provider, store and keyring.
func NewManager(provider services.Provider, repo *repositories.SessionRepository, keys *vault.Keyring, config *shared.Config, logger *log.Logger) *Manager {
	return &Manager{
		provider: provider,
		repo:     repo,
		keys:     keys,
		spotify:  config.Credentials.Spotify,
		security: config.Security,
		logger:   logger,
		now:      time.Now,
	}
}

// SetSyncHook registers a callback fired after a successful login with the
// new session's user id and plaintext access token. Used to kick off the
// liked-library sync without coupling this package to the task engine.
func (m *Manager) SetSyncHook(hook func(userID, accessToken string)) {
	m.syncHook = hook
}

// SetClock overrides the time source for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// ExchangeCode trades an authorization code for a session. The redirect URI
// sent to the provider is derived from the request origin and must match the
// one used on the authorize leg.
//
// On success the token pair is encrypted and upserted under the provider
// user id, a signed platform credential is minted, and the sync hook fires.
func (m *Manager) ExchangeCode(ctx context.Context, code, origin string) (*LoginResult, error) {
	return m.ExchangeCodeRedirect(ctx, code, m.spotify.RedirectURIForOrigin(origin))
}

// ExchangeCodeRedirect is ExchangeCode with an explicit redirect URI, for
// callers that ran the authorize leg themselves (the CLI loopback flow).
func (m *Manager) ExchangeCodeRedirect(ctx context.Context, code, redirectURI string) (*LoginResult, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	pair, err := m.provider.Exchange(ctx, code, redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthExchange, err)
	}
	if pair.RefreshToken == "" {
		return nil, fmt.Errorf("%w: exchange response had no refresh token", shared.ErrNoRefreshToken)
	}

	profile, err := m.provider.Profile(ctx, pair.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}

	if err := m.persist(profile.ID, pair, profile); err != nil {
		return nil, err
	}

	token, err := m.mintSessionToken(profile.ID)
	if err != nil {
		return nil, err
	}

	m.logger.Info("session established", "user", profile.ID)

	if m.syncHook != nil {
		m.syncHook(profile.ID, pair.AccessToken)
	}

	return &LoginResult{
		UserID:       profile.ID,
		SessionToken: token,
		Profile:      profile,
		ExpiresAt:    pair.ExpiresAt,
	}, nil
}

// Tokens returns the decrypted token pair for userID, refreshing first when
// the stored access token has expired. callerID must match userID or be a
// configured admin.
func (m *Manager) Tokens(ctx context.Context, callerID, userID string) (*services.TokenPair, error) {
	if !m.authorized(callerID, userID) {
		return nil, fmt.Errorf("%w: caller %s cannot read tokens for %s", shared.ErrUnauthorized, callerID, userID)
	}

	rec, err := m.repo.Get(userID)
	if err != nil {
		return nil, err
	}

	if m.now().UnixMilli() >= rec.ExpiresAt {
		return m.Refresh(ctx, userID)
	}

	return m.decrypt(rec)
}

// AccessToken returns a currently valid access token for userID, refreshing
// server-side when the stored one has expired.
func (m *Manager) AccessToken(ctx context.Context, userID string) (string, error) {
	pair, err := m.Tokens(ctx, userID, userID)
	if err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

// Refresh performs a single refresh grant for userID and persists the new
// access token. A failed grant deletes the session; the user has to log in
// again.
func (m *Manager) Refresh(ctx context.Context, userID string) (*services.TokenPair, error) {
	rec, err := m.repo.Get(userID)
	if err != nil {
		return nil, err
	}

	refreshToken, err := m.keys.Decrypt(rec.EncryptedRefresh)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: session %s", shared.ErrNoRefreshToken, userID)
	}

	pair, err := m.provider.Refresh(ctx, refreshToken)
	if err != nil {
		m.logger.Warn("refresh grant failed, dropping session", "user", userID, "error", err)
		if delErr := m.repo.Delete(userID); delErr != nil && !errors.Is(delErr, shared.ErrSessionNotFound) {
			m.logger.Error("failed to drop session after refresh failure", "user", userID, "error", delErr)
		}
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	encryptedAccess, err := m.keys.Encrypt(pair.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	if err := m.repo.UpdateAccessToken(userID, encryptedAccess, pair.ExpiresAt, m.keys.CurrentKeyID()); err != nil {
		return nil, err
	}

	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}

	return pair, nil
}

// Logout removes the session. Missing sessions are not an error.
func (m *Manager) Logout(userID string) error {
	err := m.repo.Delete(userID)
	if errors.Is(err, shared.ErrSessionNotFound) {
		return nil
	}
	return err
}

// Profile returns the stored profile snapshot for userID.
func (m *Manager) Profile(userID string) (*models.Profile, error) {
	rec, err := m.repo.Get(userID)
	if err != nil {
		return nil, err
	}
	profile := rec.Profile
	return &profile, nil
}

// VerifySessionToken validates a platform credential and returns the user id
// it was minted for.
func (m *Manager) VerifySessionToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(m.security.JWTSecret), nil
	}, jwt.WithIssuer(jwtIssuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidCredentials, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("%w: token missing subject", shared.ErrInvalidCredentials)
	}

	return claims.Subject, nil
}

func (m *Manager) mintSessionToken(userID string) (string, error) {
	ttl := time.Duration(m.security.SessionTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := m.now()
	claims := jwt.RegisteredClaims{
		Issuer:    jwtIssuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.security.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

func (m *Manager) persist(userID string, pair *services.TokenPair, profile *models.Profile) error {
	encryptedAccess, err := m.keys.Encrypt(pair.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encryptedRefresh, err := m.keys.Encrypt(pair.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	return m.repo.Upsert(&repositories.SessionRecord{
		UserID:           userID,
		EncryptedAccess:  encryptedAccess,
		EncryptedRefresh: encryptedRefresh,
		ExpiresAt:        pair.ExpiresAt,
		KeyID:            m.keys.CurrentKeyID(),
		Profile:          *profile,
	})
}

func (m *Manager) decrypt(rec *repositories.SessionRecord) (*services.TokenPair, error) {
	access, err := m.keys.Decrypt(rec.EncryptedAccess)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refresh, err := m.keys.Decrypt(rec.EncryptedRefresh)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	return &services.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    rec.ExpiresAt,
	}, nil
}

func (m *Manager) authorized(callerID, userID string) bool {
	if callerID == userID && callerID != "" {
		return true
	}
	for _, admin := range m.security.Admins {
		if callerID == admin {
			return true
		}
	}
	return false
}
