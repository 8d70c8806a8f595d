package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Authentication and session errors
	ErrAuthExchange    = fmt.Errorf("authorization code exchange failed")
	ErrRefreshFailed   = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken  = fmt.Errorf("no refresh token available")
	ErrTokenExpired    = fmt.Errorf("access token expired")
	ErrUnauthorized    = fmt.Errorf("unauthorized")
	ErrSessionNotFound = fmt.Errorf("session not found")

	// API and provider errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTransient          = fmt.Errorf("transient fetch failure")
	ErrNoActiveDevice     = fmt.Errorf("no active playback device")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Recommendation errors
	ErrRecommendationParse = fmt.Errorf("malformed recommendation response")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
