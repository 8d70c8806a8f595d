package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
//
// Secrets (client secret, encryption keys, JWT signing key) are expected via
// environment variables and override anything in the file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Security    SecurityConfig    `toml:"security"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Player      PlayerConfig      `toml:"player"`
	Library     LibraryConfig     `toml:"library"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Gemini  GeminiConfig  `toml:"gemini"`
}

// SpotifyConfig contains Spotify API credentials and the two allowed
// callback origins. Origins map to fixed redirect URIs, no wildcard matching.
type SpotifyConfig struct {
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	DevOrigin      string `toml:"dev_origin"`
	DevRedirect    string `toml:"dev_redirect"`
	ProdOrigin     string `toml:"prod_origin"`
	ProdRedirect   string `toml:"prod_redirect"`
	PlayerRedirect string `toml:"player_redirect"` // CLI loopback callback
}

// GeminiConfig contains generative-language API settings.
type GeminiConfig struct {
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	BaseURL string `toml:"base_url"`
}

// SecurityConfig contains token-at-rest encryption and session signing settings.
type SecurityConfig struct {
	// Hex-encoded 32-byte AES keys, newest first. Records are encrypted with
	// the first key and decrypted with the first key that works.
	EncryptionKeys []string `toml:"encryption_keys"`
	// Passphrase fallback when no hex key is configured; a key is derived
	// with PBKDF2.
	EncryptionPassphrase string `toml:"encryption_passphrase"`
	JWTSecret            string `toml:"jwt_secret"`
	SessionTTLMinutes    int    `toml:"session_ttl_minutes"`
	// User ids allowed to fetch decrypted tokens for other users.
	Admins []string `toml:"admins"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// PlayerConfig contains playback sync settings.
type PlayerConfig struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	VerifyDelaySeconds  int `toml:"verify_delay_seconds"`
}

// LibraryConfig bounds the liked-tracks background sync.
type LibraryConfig struct {
	SyncCap          int     `toml:"sync_cap"`
	SyncCooldownHrs  int     `toml:"sync_cooldown_hours"`
	SyncRateLimit    float64 `toml:"sync_rate_limit"`
	ResolveRateLimit float64 `toml:"resolve_rate_limit"`
}

// LoadConfig reads and parses a TOML configuration file from the specified
// path, then applies environment overrides.
//
// A .env file in the working directory is loaded first if present.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyEnv()
	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the
// embedded example config, plus environment overrides.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyEnv()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnv overlays environment variables onto the config. Values already
// present in the environment win over the .env file.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	setString(&c.Credentials.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	setString(&c.Credentials.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")
	setString(&c.Credentials.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&c.Security.JWTSecret, "JWT_SECRET")
	setString(&c.Security.EncryptionPassphrase, "ENCRYPTION_PASSPHRASE")

	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		c.Security.EncryptionKeys = append([]string{v}, c.Security.EncryptionKeys...)
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// RedirectURIForOrigin maps a request origin to its fixed redirect URI.
// Unrecognized origins fall back to the dev redirect.
func (s SpotifyConfig) RedirectURIForOrigin(origin string) string {
	switch origin {
	case s.ProdOrigin:
		return s.ProdRedirect
	case s.DevOrigin:
		return s.DevRedirect
	default:
		return s.DevRedirect
	}
}
