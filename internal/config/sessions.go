package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SessionMode records how a live session was started.
type SessionMode string

const (
	SessionPlay    SessionMode = "play"
	SessionRestore SessionMode = "restore"
)

// SessionRecord describes a running glkcli launcher.
type SessionRecord struct {
	GameID       string      `json:"game_id"`
	Title        string      `json:"title"`
	Mode         SessionMode `json:"mode"`
	PID          int         `json:"pid"`       // launcher process
	ChildPID     int         `json:"child_pid"` // interpreter process
	CheckpointID string      `json:"checkpoint_id,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
}

// sessionsPath returns the path to the sessions registry file.
func sessionsPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions.json"), nil
}

// RegisterSession adds a session entry, cleaning stale entries first.
// Any previous entry for the same launcher PID is replaced.
func RegisterSession(rec SessionRecord) error {
	path, err := sessionsPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	records, _ := readSessions(path)
	records = cleanStale(records)
	filtered := records[:0]
	for _, r := range records {
		if r.PID != rec.PID {
			filtered = append(filtered, r)
		}
	}
	filtered = append(filtered, rec)

	return writeSessions(path, filtered)
}

// UnregisterSession removes the entry of a launcher PID.
func UnregisterSession(pid int) error {
	path, err := sessionsPath()
	if err != nil {
		return err
	}

	records, _ := readSessions(path)
	filtered := make([]SessionRecord, 0, len(records))
	for _, r := range records {
		if r.PID != pid {
			filtered = append(filtered, r)
		}
	}

	return writeSessions(path, filtered)
}

// ListSessions returns all live sessions, cleaning stale entries.
func ListSessions() ([]SessionRecord, error) {
	path, err := sessionsPath()
	if err != nil {
		return nil, err
	}

	records, err := readSessions(path)
	if err != nil {
		return nil, err
	}

	live := cleanStale(records)
	if len(live) != len(records) {
		writeSessions(path, live)
	}

	return live, nil
}

// FindSessionByGame returns the live session playing gameID, or nil.
func FindSessionByGame(gameID string) *SessionRecord {
	records, err := ListSessions()
	if err != nil {
		return nil
	}
	for _, r := range records {
		if r.GameID == gameID {
			return &r
		}
	}
	return nil
}

func readSessions(path string) ([]SessionRecord, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var records []SessionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func writeSessions(path string, records []SessionRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// cleanStale removes entries whose launcher is no longer running.
func cleanStale(records []SessionRecord) []SessionRecord {
	live := make([]SessionRecord, 0, len(records))
	for _, r := range records {
		if IsProcessAlive(r.PID) {
			live = append(live, r)
		}
	}
	return live
}
