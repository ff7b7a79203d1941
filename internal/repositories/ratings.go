package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sablemoth/curator/internal/models"
)

// RatingCache is the persistent track-rating store feeding the pipeline's
// low-rating filter. Kept up to date by the daily catalog scan; the
// last_scan_date marker decides whether a full rescan is needed.
type RatingCache struct {
	db *sql.DB
}

// NewRatingCache creates the cache over an open database connection and
// ensures the schema exists.
func NewRatingCache(db *sql.DB) (*RatingCache, error) {
	c := &RatingCache{db: db}
	if err := c.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize rating cache schema: %w", err)
	}
	return c, nil
}

func (c *RatingCache) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ratings (
			song_id TEXT PRIMARY KEY,
			artist TEXT NOT NULL,
			title TEXT NOT NULL,
			rating INTEGER NOT NULL,
			last_updated TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rating ON ratings(rating)`,
		`CREATE TABLE IF NOT EXISTS cache_metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpdateRating upserts one rating row.
func (c *RatingCache) UpdateRating(songID, artist, title string, rating int) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO ratings (song_id, artist, title, rating, last_updated)
		 VALUES (?, ?, ?, ?, ?)`,
		songID, artist, title, rating, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to update rating: %w", err)
	}
	return nil
}

// Rating returns the cached rating for a track, or (0, false) when unknown.
func (c *RatingCache) Rating(songID string) (int, bool) {
	var rating int
	err := c.db.QueryRow(`SELECT rating FROM ratings WHERE song_id = ?`, songID).Scan(&rating)
	if err != nil {
		return 0, false
	}
	return rating, true
}

// LowRated returns all cached tracks whose rating falls inside [min, max].
func (c *RatingCache) LowRated(min, max int) ([]models.LibraryTrack, error) {
	rows, err := c.db.Query(
		`SELECT song_id, artist, title, rating FROM ratings WHERE rating BETWEEN ? AND ?`,
		min, max,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query low-rated tracks: %w", err)
	}
	defer rows.Close()

	var tracks []models.LibraryTrack
	for rows.Next() {
		var t models.LibraryTrack
		if err := rows.Scan(&t.ID, &t.Artist, &t.Title, &t.Rating); err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// LastScanDate returns the date of the last full catalog scan, or "".
func (c *RatingCache) LastScanDate() string {
	var value string
	err := c.db.QueryRow(`SELECT value FROM cache_metadata WHERE key = 'last_scan_date'`).Scan(&value)
	if err != nil {
		return ""
	}
	return value
}

// SetLastScanDate records the date of the last full catalog scan.
func (c *RatingCache) SetLastScanDate(date string) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO cache_metadata (key, value) VALUES ('last_scan_date', ?)`,
		date,
	)
	if err != nil {
		return fmt.Errorf("failed to set last scan date: %w", err)
	}
	return nil
}

// Clear removes all rating rows. Used when forcing a full rescan.
func (c *RatingCache) Clear() error {
	_, err := c.db.Exec(`DELETE FROM ratings`)
	return err
}
