// Subsonic-compatible library server client with salted-token auth
package services

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sablemoth/curator/internal/models"
	"github.com/sablemoth/curator/internal/shared"
)

const (
	subsonicVersion = "1.16.1"
	subsonicClient  = "curator"
	scanPollEvery   = 3 * time.Second
)

// SubsonicClient implements Library against the /rest/* Subsonic endpoints.
type SubsonicClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	logger     *log.Logger
}

// NewSubsonicClient creates a library client. A nil http.Client selects a
// default with a 30s timeout.
func NewSubsonicClient(baseURL, username, password string, client *http.Client, logger *log.Logger) *SubsonicClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SubsonicClient{
		baseURL:    trimSlash(baseURL),
		username:   username,
		password:   password,
		httpClient: client,
		logger:     logger,
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// authParams generates the salted-token auth parameters the Subsonic
// protocol mandates: t = md5(password + salt).
func authParams(username, password string) url.Values {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	salt := hex.EncodeToString(buf)
	sum := md5.Sum([]byte(password + salt))

	v := url.Values{}
	v.Set("u", username)
	v.Set("t", hex.EncodeToString(sum[:]))
	v.Set("s", salt)
	v.Set("v", subsonicVersion)
	v.Set("c", subsonicClient)
	v.Set("f", "json")
	return v
}

type subsonicEnvelope struct {
	Response subsonicResponse `json:"subsonic-response"`
}

type subsonicResponse struct {
	Status        string           `json:"status"`
	Error         *subsonicError   `json:"error"`
	SearchResult3 *searchResult3   `json:"searchResult3"`
	Song          *subsonicSong    `json:"song"`
	Album         *subsonicAlbum   `json:"album"`
	AlbumList2    *albumList2      `json:"albumList2"`
	Starred2      *starred2        `json:"starred2"`
	ScanStatus    *scanStatus      `json:"scanStatus"`
	Playlists     *playlistsChunk  `json:"playlists"`
	Playlist      *playlistDetails `json:"playlist"`
}

type subsonicError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type subsonicSong struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	Genre      string `json:"genre"`
	UserRating int    `json:"userRating"`
}

type searchResult3 struct {
	Song []subsonicSong `json:"song"`
}

type subsonicAlbum struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Song []subsonicSong `json:"song"`
}

type albumList2 struct {
	Album []subsonicAlbum `json:"album"`
}

type starred2 struct {
	Song []subsonicSong `json:"song"`
}

type scanStatus struct {
	Scanning bool `json:"scanning"`
}

type playlistsChunk struct {
	Playlist []playlistDetails `json:"playlist"`
}

type playlistDetails struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// request performs a GET against a /rest endpoint and unwraps the
// subsonic-response envelope. A "failed" status is surfaced as an error.
func (c *SubsonicClient) request(ctx context.Context, endpoint string, extra url.Values) (*subsonicResponse, error) {
	params := authParams(c.username, c.password)
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}

	fullURL := fmt.Sprintf("%s/rest/%s?%s", c.baseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d", shared.ErrAPIRequest, endpoint, resp.StatusCode)
	}

	var envelope subsonicEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: malformed response from %s: %v", shared.ErrAPIRequest, endpoint, err)
	}

	if envelope.Response.Status == "failed" {
		msg := "unknown error"
		if envelope.Response.Error != nil {
			msg = envelope.Response.Error.Message
		}
		return nil, fmt.Errorf("%w: %s: %s", shared.ErrAPIRequest, endpoint, msg)
	}

	return &envelope.Response, nil
}

// Ping verifies connectivity to the library server.
func (c *SubsonicClient) Ping(ctx context.Context) error {
	_, err := c.request(ctx, "ping", nil)
	return err
}

// Search performs a free-text search via search3.
func (c *SubsonicClient) Search(ctx context.Context, query string, limit int) ([]models.LibraryTrack, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("songCount", fmt.Sprint(limit))

	resp, err := c.request(ctx, "search3", params)
	if err != nil {
		return nil, err
	}
	if resp.SearchResult3 == nil {
		return nil, nil
	}
	return songsToTracks(resp.SearchResult3.Song), nil
}

// GetAlbums pages through the album catalog alphabetically.
func (c *SubsonicClient) GetAlbums(ctx context.Context, offset, size int) ([]Album, error) {
	params := url.Values{}
	params.Set("type", "alphabeticalByName")
	params.Set("size", fmt.Sprint(size))
	params.Set("offset", fmt.Sprint(offset))

	resp, err := c.request(ctx, "getAlbumList2", params)
	if err != nil {
		return nil, err
	}
	if resp.AlbumList2 == nil {
		return nil, nil
	}
	albums := make([]Album, 0, len(resp.AlbumList2.Album))
	for _, a := range resp.AlbumList2.Album {
		albums = append(albums, Album{ID: a.ID, Name: a.Name})
	}
	return albums, nil
}

// GetAlbumTracks fetches one album's track list.
func (c *SubsonicClient) GetAlbumTracks(ctx context.Context, albumID string) ([]models.LibraryTrack, error) {
	params := url.Values{}
	params.Set("id", albumID)

	resp, err := c.request(ctx, "getAlbum", params)
	if err != nil {
		return nil, err
	}
	if resp.Album == nil {
		return nil, nil
	}
	return songsToTracks(resp.Album.Song), nil
}

// GetRating returns the user rating for a track, 0-5.
func (c *SubsonicClient) GetRating(ctx context.Context, trackID string) (int, error) {
	params := url.Values{}
	params.Set("id", trackID)

	resp, err := c.request(ctx, "getSong", params)
	if err != nil {
		return 0, err
	}
	if resp.Song == nil {
		return 0, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, trackID)
	}
	return resp.Song.UserRating, nil
}

// GetStarred returns the starred songs.
func (c *SubsonicClient) GetStarred(ctx context.Context) ([]models.LibraryTrack, error) {
	resp, err := c.request(ctx, "getStarred2", nil)
	if err != nil {
		return nil, err
	}
	if resp.Starred2 == nil {
		return nil, nil
	}
	return songsToTracks(resp.Starred2.Song), nil
}

// TriggerScan asks the library to refresh its index.
func (c *SubsonicClient) TriggerScan(ctx context.Context) error {
	_, err := c.request(ctx, "startScan", nil)
	return err
}

// WaitForScan polls getScanStatus until the scan completes or maxWait
// elapses. Returns false on timeout or cancellation.
func (c *SubsonicClient) WaitForScan(ctx context.Context, maxWait time.Duration) bool {
	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(scanPollEvery):
		}

		resp, err := c.request(ctx, "getScanStatus", nil)
		if err != nil {
			continue
		}
		if resp.ScanStatus != nil && !resp.ScanStatus.Scanning {
			return true
		}
	}
	return false
}

// GetPlaylists lists all playlists on the library server.
func (c *SubsonicClient) GetPlaylists(ctx context.Context) ([]PlaylistInfo, error) {
	resp, err := c.request(ctx, "getPlaylists", nil)
	if err != nil {
		return nil, err
	}
	if resp.Playlists == nil {
		return nil, nil
	}
	playlists := make([]PlaylistInfo, 0, len(resp.Playlists.Playlist))
	for _, p := range resp.Playlists.Playlist {
		playlists = append(playlists, PlaylistInfo{ID: p.ID, Name: p.Name})
	}
	return playlists, nil
}

// DeletePlaylist removes a playlist by id.
func (c *SubsonicClient) DeletePlaylist(ctx context.Context, id string) error {
	params := url.Values{}
	params.Set("id", id)
	_, err := c.request(ctx, "deletePlaylist", params)
	return err
}

// CreatePlaylist replaces any same-named playlist, creates a fresh one,
// and appends the given track ids in order.
func (c *SubsonicClient) CreatePlaylist(ctx context.Context, name string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return fmt.Errorf("%w: refusing to create empty playlist %q", shared.ErrInvalidInput, name)
	}

	existing, err := c.GetPlaylists(ctx)
	if err == nil {
		for _, p := range existing {
			if p.Name == name {
				if err := c.DeletePlaylist(ctx, p.ID); err != nil {
					c.logger.Warn("failed to delete existing playlist", "name", name, "err", err)
				}
				break
			}
		}
	}

	params := url.Values{}
	params.Set("name", name)
	resp, err := c.request(ctx, "createPlaylist", params)
	if err != nil {
		return err
	}
	if resp.Playlist == nil || resp.Playlist.ID == "" {
		return fmt.Errorf("%w: createPlaylist returned no playlist id", shared.ErrAPIRequest)
	}

	for _, id := range trackIDs {
		params := url.Values{}
		params.Set("playlistId", resp.Playlist.ID)
		params.Set("songIdToAdd", id)
		if _, err := c.request(ctx, "updatePlaylist", params); err != nil {
			c.logger.Warn("failed to append track to playlist", "playlist", name, "track", id, "err", err)
		}
	}

	c.logger.Info("created playlist", "name", name, "songs", len(trackIDs))
	return nil
}

func songsToTracks(songs []subsonicSong) []models.LibraryTrack {
	tracks := make([]models.LibraryTrack, 0, len(songs))
	for _, s := range songs {
		tracks = append(tracks, models.LibraryTrack{
			ID:     s.ID,
			Artist: s.Artist,
			Title:  s.Title,
			Album:  s.Album,
			Genre:  s.Genre,
			Rating: s.UserRating,
		})
	}
	return tracks
}
