// Recommendation feed adapters
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sablemoth/curator/internal/models"
	"github.com/sablemoth/curator/internal/shared"
)

// FeedRecommender pulls recommendations from an HTTP endpoint that returns
// either a JSON object of {playlist_name: [{artist, title}, ...]} or a bare
// JSON array (treated as a single playlist named after the feed).
type FeedRecommender struct {
	name       string
	url        string
	httpClient *http.Client
	logger     *log.Logger
}

// NewFeedRecommender creates a feed adapter.
func NewFeedRecommender(name, feedURL string, client *http.Client, logger *log.Logger) *FeedRecommender {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &FeedRecommender{name: name, url: feedURL, httpClient: client, logger: logger}
}

// Name returns the collaborator name used in outcome tracking.
func (r *FeedRecommender) Name() string { return r.name }

// Recommendations fetches and validates the feed payload. Items with an
// empty artist or title are dropped, not errors.
func (r *FeedRecommender) Recommendations(ctx context.Context) (map[string][]models.RecommendedTrack, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: feed %s returned status %d", shared.ErrAPIRequest, r.name, resp.StatusCode)
	}

	playlists := map[string][]models.RecommendedTrack{}

	var asMap map[string][]models.RecommendedTrack
	if err := json.Unmarshal(body, &asMap); err == nil {
		for name, tracks := range asMap {
			playlists[name] = validTracks(tracks)
		}
		return playlists, nil
	}

	var asList []models.RecommendedTrack
	if err := json.Unmarshal(body, &asList); err != nil {
		return nil, fmt.Errorf("%w: malformed feed payload from %s: %v", shared.ErrAPIRequest, r.name, err)
	}
	playlists[r.name] = validTracks(asList)
	return playlists, nil
}

func validTracks(tracks []models.RecommendedTrack) []models.RecommendedTrack {
	out := make([]models.RecommendedTrack, 0, len(tracks))
	for _, t := range tracks {
		if t.Valid() {
			out = append(out, t)
		}
	}
	return out
}
