// Package models defines the data model for the SoundShift service.
//
// The central types are [Session] (one authenticated Spotify user, owned by
// the session manager), [NowPlaying] (replaceable snapshot of the active
// track), and [RecommendationBatch] (one user query's recommendation result,
// pre- and post-resolution).
//
// NowPlaying snapshots are all-or-nothing: a snapshot is either fully
// populated or nil (nothing playing); fields are never patched in place.
// The queue is rebuilt wholesale on each fetch.
package models
