// package repositories implements the persisted state owned by the engine:
// the run record (one JSON document) and the rating cache (SQLite).
package repositories

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sablemoth/curator/internal/models"
)

const runRecordFile = "curator_last_run.json"

// RunRecordRepository loads and saves the RunRecord. The writer always
// serializes the full current state; no partial or merge writes.
type RunRecordRepository struct {
	path string
}

// NewRunRecordRepository creates a repository rooted at the given data directory.
func NewRunRecordRepository(dataDir string) *RunRecordRepository {
	return &RunRecordRepository{path: filepath.Join(dataDir, runRecordFile)}
}

// Load reads the persisted RunRecord. A missing or unreadable file is
// treated as "no prior state" and returns (nil, nil) so the cadence
// controller defaults to allowing a run.
func (r *RunRecordRepository) Load() (*models.RunRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, nil
	}

	var rec models.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil
	}
	if rec.LastRunTimestamp.IsZero() {
		return nil, nil
	}
	return &rec, nil
}

// Save overwrites the persisted RunRecord with the full given state.
func (r *RunRecordRepository) Save(rec *models.RunRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize run record: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	return nil
}
