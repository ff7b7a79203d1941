// package services defines the external collaborator interfaces
//
// Library server (Subsonic-compatible), remote fetch trigger, recommendation feeds
package services

import (
	"context"
	"time"

	"github.com/sablemoth/curator/internal/models"
)

// Album is a library album handle used by the rating-cache catalog scan.
type Album struct {
	ID   string
	Name string
}

// PlaylistInfo is a playlist handle on the library server.
type PlaylistInfo struct {
	ID   string
	Name string
}

// Library is the semantic contract with the library server. Only the
// behaviors the reconciliation engine needs are modeled; responses are
// not specified bit-exact.
type Library interface {
	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Search performs a free-text search; issued multiple times per
	// candidate with different query shapes.
	Search(ctx context.Context, query string, limit int) ([]models.LibraryTrack, error)

	// GetAlbums pages through the album catalog.
	GetAlbums(ctx context.Context, offset, size int) ([]Album, error)

	// GetAlbumTracks fetches one album's track list (rating cache refresh only).
	GetAlbumTracks(ctx context.Context, albumID string) ([]models.LibraryTrack, error)

	// GetRating returns a track's user rating, 0-5.
	GetRating(ctx context.Context, trackID string) (int, error)

	// GetStarred returns the starred (favorited) songs.
	GetStarred(ctx context.Context) ([]models.LibraryTrack, error)

	// TriggerScan asks the library to refresh its index.
	TriggerScan(ctx context.Context) error

	// WaitForScan polls until the index refresh completes or maxWait elapses.
	// Returns false on timeout; callers proceed anyway since a partial
	// reindex may still have picked up some tracks.
	WaitForScan(ctx context.Context, maxWait time.Duration) bool

	// GetPlaylists lists all playlists.
	GetPlaylists(ctx context.Context) ([]PlaylistInfo, error)

	// DeletePlaylist removes a playlist by id.
	DeletePlaylist(ctx context.Context, id string) error

	// CreatePlaylist replaces any same-named playlist and appends the
	// given track ids in order.
	CreatePlaylist(ctx context.Context, name string, trackIDs []string) error
}

// FetchTrigger is the remote-fetch collaborator. Requests are
// fire-and-forget; completion is observed via the settle-delay plus
// reindex step, never synchronously.
type FetchTrigger interface {
	// RequestFetch asks the remote side to make a track available.
	// Returns whether the request was accepted and an opaque handle.
	RequestFetch(ctx context.Context, artist, title string) (accepted bool, handle string)
}

// Recommender produces named playlists of recommended tracks. The engine
// treats the payload as opaque and only validates that each item has
// non-empty artist and title strings.
type Recommender interface {
	Name() string
	Recommendations(ctx context.Context) (map[string][]models.RecommendedTrack, error)
}
