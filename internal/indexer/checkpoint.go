package indexer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Checkpoint records how far the comptroller and its markets have been
// scanned, and which markets were known at that point.
type Checkpoint struct {
	Comptroller        string   `json:"comptroller"`
	LastProcessedBlock uint64   `json:"last_processed_block"`
	Markets            []string `json:"markets,omitempty"`
	UpdatedAt          string   `json:"updated_at"`
}

// CheckpointStore persists checkpoints to disk. A disabled store loads nothing
// and saves nothing.
type CheckpointStore struct {
	path    string
	enabled bool
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled && path != ""}
}

// Load returns the stored checkpoint. A checkpoint written for a different
// comptroller is an error, since resuming from it would skip that deployment's
// history. An empty comptroller skips the check.
func (c *CheckpointStore) Load(comptroller string) (Checkpoint, bool, error) {
	if !c.enabled {
		return Checkpoint{}, false, nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("parse checkpoint: %w", err)
	}
	if comptroller != "" && cp.Comptroller != "" && !strings.EqualFold(cp.Comptroller, comptroller) {
		return Checkpoint{}, false, fmt.Errorf("checkpoint %s belongs to comptroller %s, not %s", c.path, cp.Comptroller, comptroller)
	}

	return cp, true, nil
}

// Save writes the checkpoint through a temp file and rename.
func (c *CheckpointStore) Save(cp Checkpoint) error {
	if !c.enabled {
		return nil
	}

	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	cp.Comptroller = strings.ToLower(cp.Comptroller)
	cp.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}

	return nil
}
