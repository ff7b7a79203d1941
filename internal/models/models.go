// package models defines the data model for the playlist reconciliation engine
package models

import "time"

// RecommendedTrack is a single recommendation from an external source.
// It carries no stable identity; two entries are the same track iff their
// normalized (artist, title) pair is equal.
type RecommendedTrack struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
}

// Valid reports whether the recommendation has usable artist and title strings.
func (t RecommendedTrack) Valid() bool {
	return t.Artist != "" && t.Title != ""
}

// LibraryTrack is a track owned by the library server. ID is an opaque
// handle used only to build playlists.
type LibraryTrack struct {
	ID     string
	Artist string
	Title  string
	Album  string
	Genre  string
	Rating int // 0-5 stars, 0 = unrated
}

// MatchKind classifies the outcome of matching one recommendation against the library.
type MatchKind int

const (
	// MatchNone means no library candidate cleared any threshold.
	MatchNone MatchKind = iota
	// MatchConfident means a candidate cleared the match threshold with agreeing version markers.
	MatchConfident
	// MatchVersionConflict means the best candidate cleared the match threshold
	// but carries a different version marker (remix vs original, etc.).
	// Treated as "not present" so the recommended version stays fetch-eligible.
	MatchVersionConflict
	// MatchNearDuplicate means a candidate cleared the stricter similarity
	// threshold on both artist and title; fetching another copy would be redundant.
	MatchNearDuplicate
)

// String returns a log-friendly name for the match kind.
func (k MatchKind) String() string {
	switch k {
	case MatchConfident:
		return "matched"
	case MatchVersionConflict:
		return "version_conflict"
	case MatchNearDuplicate:
		return "near_duplicate"
	default:
		return "no_match"
	}
}

// MatchResult is the outcome of classifying one recommended track.
// Computed fresh per query, never persisted.
type MatchResult struct {
	Kind    MatchKind
	TrackID string  // set for MatchConfident and MatchNearDuplicate
	Score   float64 // best combined score observed, for logging
}

// Outcome records the success/failure and yield of one external collaborator
// for one completed run. Overwritten each run, not accumulated.
type Outcome struct {
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
	Playlists int       `json:"playlists,omitempty"`
	Songs     int       `json:"songs,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RunRecord is the persisted state of the last completed reconciliation pass.
// Read at the start of the next run to compute cooldown and report prior outcomes.
// Always serialized as a whole; no partial writes.
type RunRecord struct {
	RunID            string             `json:"run_id"`
	LastRunTimestamp time.Time          `json:"last_run_timestamp"`
	LastRunDate      string             `json:"last_run_date"`
	NextScheduledRun *string            `json:"next_scheduled_run"`
	Services         map[string]Outcome `json:"services"`
}
