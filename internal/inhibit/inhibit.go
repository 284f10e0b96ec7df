// Package inhibit implements the filesystem marker that suspends the watch
// daemon's staging without stopping the daemon itself: a PID-stamped,
// expiry-bearing JSON file under the state directory, written for the
// duration of an external mutation (a CLI deploy, a rollback) and removed
// or allowed to expire afterward.
package inhibit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hometree/hometree/internal/herror"
)

// FileName is the marker's name under the state directory.
const FileName = "inhibit.json"

// Marker is the persisted inhibit record.
type Marker struct {
	Reason    string `json:"reason"`
	PID       int    `json:"pid"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// New creates a marker for the current process that expires ttl from now.
func New(reason string, ttl time.Duration) Marker {
	return Marker{
		Reason:    reason,
		PID:       os.Getpid(),
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
}

// IsExpired reports whether the marker's TTL has elapsed as of now.
func (m Marker) IsExpired(now time.Time) bool {
	return now.Unix() >= m.ExpiresAt
}

func path(stateDir string) string {
	return filepath.Join(stateDir, FileName)
}

// Write persists marker to the state directory, creating it if needed.
func Write(stateDir string, marker Marker) error {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return herror.Wrap(herror.IO, err, "failed to create state directory")
	}

	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return herror.Wrap(herror.IO, err, "failed to marshal inhibit marker")
	}

	if err := os.WriteFile(path(stateDir), data, 0o600); err != nil {
		return herror.Wrap(herror.IO, err, "failed to write inhibit marker")
	}
	return nil
}

// Read loads the marker from the state directory. A missing file returns
// (Marker{}, false, nil).
func Read(stateDir string) (Marker, bool, error) {
	data, err := os.ReadFile(path(stateDir))
	if err != nil {
		if os.IsNotExist(err) {
			return Marker{}, false, nil
		}
		return Marker{}, false, herror.Wrap(herror.IO, err, "failed to read inhibit marker")
	}

	var marker Marker
	if err := json.Unmarshal(data, &marker); err != nil {
		return Marker{}, false, herror.Wrap(herror.IO, err, "failed to parse inhibit marker")
	}
	return marker, true, nil
}

// Delete removes the marker file, if present.
func Delete(stateDir string) error {
	if err := os.Remove(path(stateDir)); err != nil && !os.IsNotExist(err) {
		return herror.Wrap(herror.IO, err, "failed to remove inhibit marker")
	}
	return nil
}

// Active reads the marker and garbage-collects it if expired, returning
// (Marker{}, false, nil) when no unexpired marker exists.
func Active(stateDir string) (Marker, bool, error) {
	marker, ok, err := Read(stateDir)
	if err != nil || !ok {
		return Marker{}, false, err
	}
	if marker.IsExpired(time.Now()) {
		_ = Delete(stateDir)
		return Marker{}, false, nil
	}
	return marker, true, nil
}
