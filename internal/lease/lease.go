// Package lease records which running overlay process owns which backend
// process group. Records survive crashes; the session guard uses them on the
// next startup to tell live ownership from orphaned state.
package lease

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Record is one on-disk lease, keyed by owner PID.
type Record struct {
	ID         string    `json:"id"`
	OwnerPID   int       `json:"owner_pid"`
	BackendPID int       `json:"backend_pid"` // also the backend's process-group id
	CreatedAt  time.Time `json:"created_at"`
}

// Path returns the lease file path for an owner PID.
func Path(dir string, ownerPID int) string {
	return filepath.Join(dir, strconv.Itoa(ownerPID)+".json")
}

// Write persists a lease for this process owning backendPID's group.
func Write(dir string, backendPID int) (*Record, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create lease dir: %w", err)
	}
	rec := &Record{
		ID:         uuid.NewString(),
		OwnerPID:   os.Getpid(),
		BackendPID: backendPID,
		CreatedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	path := Path(dir, rec.OwnerPID)
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return nil, fmt.Errorf("write lease: %w", err)
	}
	return rec, nil
}

// Remove deletes a lease record. Missing files are not an error.
func Remove(dir string, ownerPID int) error {
	err := os.Remove(Path(dir, ownerPID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List parses every lease record in dir. Unreadable or malformed files are
// skipped.
func List(dir string) []Record {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var records []Record
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil || rec.OwnerPID == 0 {
			continue
		}
		records = append(records, rec)
	}
	return records
}
