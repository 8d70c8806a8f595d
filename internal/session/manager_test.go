package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"soundshift/internal/models"
	"soundshift/internal/repositories"
	"soundshift/internal/services"
	"soundshift/internal/shared"
	itesting "soundshift/internal/testing"
	"soundshift/internal/vault"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func testConfig() *shared.Config {
	config := shared.DefaultConfig()
	config.Security.JWTSecret = "test-signing-secret"
	config.Security.SessionTTLMinutes = 60
	config.Credentials.Spotify.DevOrigin = "http://localhost:3000"
	config.Credentials.Spotify.DevRedirect = "http://localhost:3000/callback"
	config.Credentials.Spotify.ProdOrigin = "https://soundshift.vercel.app"
	config.Credentials.Spotify.ProdRedirect = "https://soundshift.vercel.app/callback"
	return config
}

func setupManager(t *testing.T, provider services.Provider) (*Manager, *repositories.SessionRepository) {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	keys, err := vault.New([]string{testKey})
	if err != nil {
		t.Fatalf("failed to build keyring: %v", err)
	}

	repo := repositories.NewSessionRepository(db)
	logger := shared.NewLogger(io.Discard)
	return NewManager(provider, repo, keys, testConfig(), logger), repo
}

func TestExchangeCode(t *testing.T) {
	t.Run("EstablishesSession", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		var gotRedirect string
		provider.ExchangeFn = func(ctx context.Context, code, redirectURI string) (*services.TokenPair, error) {
			gotRedirect = redirectURI
			return &services.TokenPair{AccessToken: "at", RefreshToken: "rt", ExpiresAt: 9999999999999}, nil
		}
		provider.ProfileFn = func(ctx context.Context, accessToken string) (*models.Profile, error) {
			return &models.Profile{ID: "user1", DisplayName: "User One"}, nil
		}

		manager, repo := setupManager(t, provider)

		var hookUser, hookToken string
		manager.SetSyncHook(func(userID, accessToken string) {
			hookUser, hookToken = userID, accessToken
		})

		result, err := manager.ExchangeCode(context.Background(), "code123", "http://localhost:3000")
		if err != nil {
			t.Fatalf("exchange failed: %v", err)
		}

		if gotRedirect != "http://localhost:3000/callback" {
			t.Errorf("expected dev redirect, got %s", gotRedirect)
		}
		if result.UserID != "user1" {
			t.Errorf("expected user1, got %s", result.UserID)
		}
		if result.SessionToken == "" {
			t.Error("expected a session token")
		}
		if result.Profile.DisplayName != "User One" {
			t.Errorf("unexpected profile: %+v", result.Profile)
		}
		if hookUser != "user1" || hookToken != "at" {
			t.Errorf("sync hook got (%s, %s)", hookUser, hookToken)
		}

		rec, err := repo.Get("user1")
		if err != nil {
			t.Fatalf("session not persisted: %v", err)
		}
		if rec.EncryptedAccess == "at" || rec.EncryptedRefresh == "rt" {
			t.Error("tokens persisted in plaintext")
		}
	})

	t.Run("UnknownOriginFallsBackToDev", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		var gotRedirect string
		provider.ExchangeFn = func(ctx context.Context, code, redirectURI string) (*services.TokenPair, error) {
			gotRedirect = redirectURI
			return &services.TokenPair{AccessToken: "at", RefreshToken: "rt", ExpiresAt: 9999999999999}, nil
		}

		manager, _ := setupManager(t, provider)
		if _, err := manager.ExchangeCode(context.Background(), "code123", "https://evil.example.com"); err != nil {
			t.Fatalf("exchange failed: %v", err)
		}
		if gotRedirect != "http://localhost:3000/callback" {
			t.Errorf("expected dev redirect for unknown origin, got %s", gotRedirect)
		}
	})

	t.Run("ProdOrigin", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		var gotRedirect string
		provider.ExchangeFn = func(ctx context.Context, code, redirectURI string) (*services.TokenPair, error) {
			gotRedirect = redirectURI
			return &services.TokenPair{AccessToken: "at", RefreshToken: "rt", ExpiresAt: 9999999999999}, nil
		}

		manager, _ := setupManager(t, provider)
		if _, err := manager.ExchangeCode(context.Background(), "code123", "https://soundshift.vercel.app"); err != nil {
			t.Fatalf("exchange failed: %v", err)
		}
		if gotRedirect != "https://soundshift.vercel.app/callback" {
			t.Errorf("expected prod redirect, got %s", gotRedirect)
		}
	})

	t.Run("EmptyCode", func(t *testing.T) {
		manager, _ := setupManager(t, itesting.NewMockProvider())
		_, err := manager.ExchangeCode(context.Background(), "", "http://localhost:3000")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("ExchangeFailure", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.ExchangeFn = func(ctx context.Context, code, redirectURI string) (*services.TokenPair, error) {
			return nil, errors.New("invalid_grant")
		}

		manager, _ := setupManager(t, provider)
		_, err := manager.ExchangeCode(context.Background(), "bad", "http://localhost:3000")
		if !errors.Is(err, shared.ErrAuthExchange) {
			t.Errorf("expected ErrAuthExchange, got %v", err)
		}
	})

	t.Run("MissingRefreshToken", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.ExchangeFn = func(ctx context.Context, code, redirectURI string) (*services.TokenPair, error) {
			return &services.TokenPair{AccessToken: "at", ExpiresAt: 1}, nil
		}

		manager, _ := setupManager(t, provider)
		_, err := manager.ExchangeCode(context.Background(), "code123", "http://localhost:3000")
		if !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})
}

func TestTokens(t *testing.T) {
	login := func(t *testing.T, manager *Manager, provider *itesting.MockProvider, expiresAt int64) {
		t.Helper()
		provider.ExchangeFn = func(ctx context.Context, code, redirectURI string) (*services.TokenPair, error) {
			return &services.TokenPair{AccessToken: "at", RefreshToken: "rt", ExpiresAt: expiresAt}, nil
		}
		provider.ProfileFn = func(ctx context.Context, accessToken string) (*models.Profile, error) {
			return &models.Profile{ID: "user1"}, nil
		}
		if _, err := manager.ExchangeCode(context.Background(), "code", "http://localhost:3000"); err != nil {
			t.Fatalf("login failed: %v", err)
		}
	}

	t.Run("OwnerReadsOwnTokens", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		manager, _ := setupManager(t, provider)
		login(t, manager, provider, time.Now().Add(time.Hour).UnixMilli())

		pair, err := manager.Tokens(context.Background(), "user1", "user1")
		if err != nil {
			t.Fatalf("tokens failed: %v", err)
		}
		if pair.AccessToken != "at" || pair.RefreshToken != "rt" {
			t.Errorf("expected decrypted pair, got %+v", pair)
		}
		if provider.Calls("Refresh") != 0 {
			t.Error("unexpired token should not trigger a refresh")
		}
	})

	t.Run("UnauthorizedCaller", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		manager, _ := setupManager(t, provider)
		login(t, manager, provider, time.Now().Add(time.Hour).UnixMilli())

		_, err := manager.Tokens(context.Background(), "intruder", "user1")
		if !errors.Is(err, shared.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("AdminReadsAnyTokens", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		manager, _ := setupManager(t, provider)
		manager.security.Admins = []string{"root"}
		login(t, manager, provider, time.Now().Add(time.Hour).UnixMilli())

		if _, err := manager.Tokens(context.Background(), "root", "user1"); err != nil {
			t.Fatalf("admin read failed: %v", err)
		}
	})

	t.Run("ExpiredTriggersRefresh", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.RefreshFn = func(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
			if refreshToken != "rt" {
				t.Errorf("refresh called with %s", refreshToken)
			}
			return &services.TokenPair{AccessToken: "at2", ExpiresAt: time.Now().Add(time.Hour).UnixMilli()}, nil
		}

		manager, repo := setupManager(t, provider)
		login(t, manager, provider, time.Now().Add(-time.Minute).UnixMilli())

		pair, err := manager.Tokens(context.Background(), "user1", "user1")
		if err != nil {
			t.Fatalf("tokens failed: %v", err)
		}
		if pair.AccessToken != "at2" {
			t.Errorf("expected refreshed access token, got %s", pair.AccessToken)
		}
		if pair.RefreshToken != "rt" {
			t.Errorf("refresh token should carry over when grant omits it, got %s", pair.RefreshToken)
		}

		rec, err := repo.Get("user1")
		if err != nil {
			t.Fatalf("session missing after refresh: %v", err)
		}
		if rec.ExpiresAt <= time.Now().UnixMilli() {
			t.Error("expiry not advanced after refresh")
		}
	})

	t.Run("RefreshFailureDropsSession", func(t *testing.T) {
		provider := itesting.NewMockProvider()
		provider.RefreshFn = func(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
			return nil, errors.New("invalid_grant")
		}

		manager, repo := setupManager(t, provider)
		login(t, manager, provider, time.Now().Add(-time.Minute).UnixMilli())

		_, err := manager.Tokens(context.Background(), "user1", "user1")
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Fatalf("expected ErrRefreshFailed, got %v", err)
		}
		if provider.Calls("Refresh") != 1 {
			t.Errorf("expected a single refresh attempt, got %d", provider.Calls("Refresh"))
		}
		if _, err := repo.Get("user1"); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected session dropped, got %v", err)
		}
	})

	t.Run("MissingSession", func(t *testing.T) {
		manager, _ := setupManager(t, itesting.NewMockProvider())
		_, err := manager.Tokens(context.Background(), "ghost", "ghost")
		if !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestSessionTokens(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		manager, _ := setupManager(t, itesting.NewMockProvider())

		token, err := manager.mintSessionToken("user1")
		if err != nil {
			t.Fatalf("mint failed: %v", err)
		}

		userID, err := manager.VerifySessionToken(token)
		if err != nil {
			t.Fatalf("verify failed: %v", err)
		}
		if userID != "user1" {
			t.Errorf("expected user1, got %s", userID)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		manager, _ := setupManager(t, itesting.NewMockProvider())

		past := time.Now().Add(-2 * time.Hour)
		manager.SetClock(func() time.Time { return past })
		token, err := manager.mintSessionToken("user1")
		if err != nil {
			t.Fatalf("mint failed: %v", err)
		}

		manager.SetClock(time.Now)
		if _, err := manager.VerifySessionToken(token); !errors.Is(err, shared.ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials for expired token, got %v", err)
		}
	})

	t.Run("Tampered", func(t *testing.T) {
		manager, _ := setupManager(t, itesting.NewMockProvider())
		token, err := manager.mintSessionToken("user1")
		if err != nil {
			t.Fatalf("mint failed: %v", err)
		}

		parts := strings.Split(token, ".")
		tampered := parts[0] + "." + parts[1] + ".AAAA"
		if _, err := manager.VerifySessionToken(tampered); !errors.Is(err, shared.ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials for tampered token, got %v", err)
		}
	})
}

func TestLogout(t *testing.T) {
	provider := itesting.NewMockProvider()
	provider.ExchangeFn = func(ctx context.Context, code, redirectURI string) (*services.TokenPair, error) {
		return &services.TokenPair{AccessToken: "at", RefreshToken: "rt", ExpiresAt: 1}, nil
	}
	provider.ProfileFn = func(ctx context.Context, accessToken string) (*models.Profile, error) {
		return &models.Profile{ID: "user1"}, nil
	}

	manager, repo := setupManager(t, provider)
	if _, err := manager.ExchangeCode(context.Background(), "code", "http://localhost:3000"); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := manager.Logout("user1"); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := repo.Get("user1"); !errors.Is(err, shared.ErrSessionNotFound) {
		t.Errorf("expected session gone, got %v", err)
	}

	if err := manager.Logout("user1"); err != nil {
		t.Errorf("second logout should be a no-op, got %v", err)
	}
}
