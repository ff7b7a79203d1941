package cadence

import (
	"time"

	"github.com/sablemoth/curator/internal/models"
	"github.com/sablemoth/curator/internal/shared"
)

// Tracker collects per-collaborator outcomes while a run is in progress.
// Recording an outcome for a name seen earlier in the same run overwrites it.
type Tracker struct {
	outcomes map[string]models.Outcome
}

// NewTracker creates an empty outcome tracker for one run.
func NewTracker() *Tracker {
	return &Tracker{outcomes: make(map[string]models.Outcome)}
}

// Success records a successful collaborator outcome with its yield.
func (t *Tracker) Success(name string, playlists, songs int) {
	t.outcomes[name] = models.Outcome{
		Success:   true,
		Playlists: playlists,
		Songs:     songs,
		Timestamp: time.Now().UTC(),
	}
}

// Failure records a failed collaborator outcome with the failure reason.
func (t *Tracker) Failure(name string, reason string) {
	t.outcomes[name] = models.Outcome{
		Success:   false,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// Outcomes returns a copy of the recorded outcomes.
func (t *Tracker) Outcomes() map[string]models.Outcome {
	out := make(map[string]models.Outcome, len(t.outcomes))
	for k, v := range t.outcomes {
		out[k] = v
	}
	return out
}

// BuildRecord assembles the RunRecord for a run completing at now. The next
// scheduled occurrence is included only when the controller runs a schedule;
// manual runs persist a null next-run marker.
func (t *Tracker) BuildRecord(ctrl *Controller, now time.Time) *models.RunRecord {
	rec := &models.RunRecord{
		RunID:            shared.GenerateID(),
		LastRunTimestamp: now.UTC(),
		LastRunDate:      now.UTC().Format("2006-01-02"),
		Services:         t.Outcomes(),
	}
	if ctrl != nil && ctrl.Scheduled() {
		next := ctrl.NextRun(now).UTC().Format(time.RFC3339)
		rec.NextScheduledRun = &next
	}
	return rec
}
