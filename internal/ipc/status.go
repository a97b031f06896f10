package ipc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/tiroq/linereveal/internal/player"
)

// StatusSnapshot is the daemon state revealctl reads.
type StatusSnapshot struct {
	Player          player.Status `json:"player"`
	Script          string        `json:"script"`
	LineIndex       int           `json:"line_index"`       // Index of the line on screen, -1 before the first
	LineCount       int           `json:"line_count"`       // Lines in the script
	BridgeConnected bool          `json:"bridge_connected"` // Presentation bridge connection status
	LastAction      string        `json:"last_action"`
	LastError       string        `json:"last_error"`
	Timestamp       time.Time     `json:"timestamp"`
}

// StatusPath is ~/.cache/linereveal/status.json.
func StatusPath() string {
	return filepath.Join(CacheDir(), "status.json")
}

// WriteStatus persists StatusSnapshot using an atomic write
func WriteStatus(status *StatusSnapshot) error {
	if err := os.MkdirAll(CacheDir(), 0755); err != nil {
		return err
	}
	return atomicWriteJSON(StatusPath(), status)
}

// ReadStatus loads the last StatusSnapshot the daemon wrote
func ReadStatus() (*StatusSnapshot, error) {
	data, err := os.ReadFile(StatusPath())
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// atomicWriteJSON writes data to a file atomically using temp file + rename
func atomicWriteJSON(path string, data interface{}) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	tmpFile = nil

	return os.Rename(tmpPath, path)
}
