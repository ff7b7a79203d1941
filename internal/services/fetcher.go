// Remote-fetch trigger client (fire-and-forget downloads via Subsonic endpoints)
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// FetchClient implements FetchTrigger against a Subsonic-compatible fetch
// server: it searches for the track and warms the stream endpoint, which
// causes the remote side to land the file on disk. The engine never waits
// synchronously on completion.
type FetchClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *log.Logger
	dryRun     bool
}

// NewFetchClient creates a fetch trigger client. In dry-run mode requests
// are logged and reported accepted without touching the remote side.
func NewFetchClient(baseURL, username, password string, client *http.Client, logger *log.Logger, dryRun bool) *FetchClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &FetchClient{
		baseURL:    trimSlash(baseURL),
		username:   username,
		password:   password,
		httpClient: client,
		logger:     logger,
		dryRun:     dryRun,
	}
}

// RequestFetch asks the remote side to make a track available.
func (c *FetchClient) RequestFetch(ctx context.Context, artist, title string) (bool, string) {
	if c.dryRun {
		c.logger.Info("[dry run] would fetch", "artist", artist, "title", title)
		return true, "dry-run"
	}

	c.logger.Debug("searching fetch server", "artist", artist, "title", title)

	params := authParams(c.username, c.password)
	params.Set("query", artist+" "+title)
	params.Set("songCount", "5")

	searchURL := fmt.Sprintf("%s/rest/search3?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return false, err.Error()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, "API error"
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, "API error"
	}

	songs := parseSearchSongs(body)
	if len(songs) == 0 {
		return false, "not found"
	}

	songID := songs[0].ID
	c.logger.Debug("triggering fetch via stream warmup", "id", songID)

	streamParams := authParams(c.username, c.password)
	streamParams.Set("id", songID)
	streamURL := fmt.Sprintf("%s/rest/stream?%s", c.baseURL, streamParams.Encode())

	streamCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	streamReq, err := http.NewRequestWithContext(streamCtx, http.MethodGet, streamURL, nil)
	if err != nil {
		return false, err.Error()
	}

	streamResp, err := c.httpClient.Do(streamReq)
	if err != nil {
		return false, truncate(err.Error(), 100)
	}
	defer streamResp.Body.Close()

	// One chunk is enough to kick off the remote download.
	buf := make([]byte, 8192)
	_, _ = streamResp.Body.Read(buf)

	return true, songID
}

func parseSearchSongs(body []byte) []subsonicSong {
	var envelope subsonicEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	if envelope.Response.Status == "failed" || envelope.Response.SearchResult3 == nil {
		return nil
	}
	return envelope.Response.SearchResult3.Song
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
