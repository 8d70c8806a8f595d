// Package services defines the [Provider] interface for the streaming
// provider and the [Generator] interface for the generative-language backend,
// with implementations for Spotify and Gemini.
//
// # Provider
//
// [SpotifyService] wraps the Spotify Web API. OAuth flows (authorization-code
// exchange, refresh-token grant) go through [oauth2.Config]; data and player
// calls are plain bearer-token requests so one service instance can serve
// many users' tokens.
//
// # Generator
//
// [GeminiService] performs single-shot prompt/completion calls against the
// generative-language REST endpoint. Responses are free-form text; callers
// are responsible for extracting structured data from them.
//
// # Error Handling
//
// Services use typed errors from the shared package:
//   - [shared.ErrTokenExpired] : provider returned 401, refresh required
//   - [shared.ErrNoActiveDevice] : player call returned 404
//   - [shared.ErrAPIRequest] : any other non-2xx response
package services
