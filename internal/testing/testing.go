// package testing contains shared testing utilities
package testing

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sablemoth/curator/internal/models"
	"github.com/sablemoth/curator/internal/services"
)

// MockLibrary is a configurable test double for [services.Library]. Search
// results are served from Tracks by naive substring match against artist and
// title, which is close enough to how the real server answers quoted queries.
type MockLibrary struct {
	mu sync.Mutex

	Tracks    []models.LibraryTrack
	Albums    []services.Album
	ByAlbum   map[string][]models.LibraryTrack
	Ratings   map[string]int
	Starred   []models.LibraryTrack
	Playlists []services.PlaylistInfo

	PingErr   error
	SearchErr error

	ScanTriggered   int
	ScanWaits       int
	ScanWaitResult  bool
	CreatedName     string
	CreatedTrackIDs []string
	DeletedIDs      []string
}

func (m *MockLibrary) Ping(ctx context.Context) error { return m.PingErr }

func (m *MockLibrary) Search(ctx context.Context, query string, limit int) ([]models.LibraryTrack, error) {
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	q := strings.ToLower(strings.ReplaceAll(query, `"`, ""))
	var out []models.LibraryTrack
	for _, t := range m.Tracks {
		hay := strings.ToLower(t.Artist + " " + t.Title)
		if containsAnyWord(hay, q) {
			out = append(out, t)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func containsAnyWord(hay, q string) bool {
	for _, w := range strings.Fields(q) {
		if strings.Contains(hay, w) {
			return true
		}
	}
	return false
}

func (m *MockLibrary) GetAlbums(ctx context.Context, offset, size int) ([]services.Album, error) {
	if offset >= len(m.Albums) {
		return nil, nil
	}
	end := offset + size
	if end > len(m.Albums) {
		end = len(m.Albums)
	}
	return m.Albums[offset:end], nil
}

func (m *MockLibrary) GetAlbumTracks(ctx context.Context, albumID string) ([]models.LibraryTrack, error) {
	return m.ByAlbum[albumID], nil
}

func (m *MockLibrary) GetRating(ctx context.Context, trackID string) (int, error) {
	return m.Ratings[trackID], nil
}

func (m *MockLibrary) GetStarred(ctx context.Context) ([]models.LibraryTrack, error) {
	return m.Starred, nil
}

func (m *MockLibrary) TriggerScan(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScanTriggered++
	return nil
}

func (m *MockLibrary) WaitForScan(ctx context.Context, maxWait time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScanWaits++
	return m.ScanWaitResult
}

func (m *MockLibrary) GetPlaylists(ctx context.Context) ([]services.PlaylistInfo, error) {
	return m.Playlists, nil
}

func (m *MockLibrary) DeletePlaylist(ctx context.Context, id string) error {
	m.DeletedIDs = append(m.DeletedIDs, id)
	return nil
}

func (m *MockLibrary) CreatePlaylist(ctx context.Context, name string, trackIDs []string) error {
	m.CreatedName = name
	m.CreatedTrackIDs = append([]string(nil), trackIDs...)
	return nil
}

// AddTrack appends a track to the searchable set. Fetched tracks become
// visible to later searches, mimicking a library reindex.
func (m *MockLibrary) AddTrack(t models.LibraryTrack) {
	m.Tracks = append(m.Tracks, t)
}

// MockFetcher is a test double for [services.FetchTrigger]. When OnAccept is
// set it runs after each accepted request, letting tests make the fetched
// track appear in the library.
type MockFetcher struct {
	Accept   bool
	Requests []string
	OnAccept func(artist, title string)
}

func (m *MockFetcher) RequestFetch(ctx context.Context, artist, title string) (bool, string) {
	m.Requests = append(m.Requests, artist+" - "+title)
	if m.Accept && m.OnAccept != nil {
		m.OnAccept(artist, title)
	}
	return m.Accept, "mock-handle"
}

// MockRecommender is a test double for [services.Recommender].
type MockRecommender struct {
	FeedName  string
	Playlists map[string][]models.RecommendedTrack
	Err       error
}

func (m *MockRecommender) Name() string { return m.FeedName }

func (m *MockRecommender) Recommendations(ctx context.Context) (map[string][]models.RecommendedTrack, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Playlists, nil
}
