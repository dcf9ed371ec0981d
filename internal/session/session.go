package session

import (
	"fmt"
	"time"
)

// Status is the last lifecycle transition recorded by the spawning process.
// It can be stale: if the spawning process was killed before recording a
// stop, the record still says running. The watch tool re-derives actual
// liveness from the OS.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// ProcessRecord tracks one spawned OS process.
type ProcessRecord struct {
	PID       int        `json:"pid"`
	Command   string     `json:"command"`
	Dir       string     `json:"cwd"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
	ExitCode  *int       `json:"exitCode"`
	Status    Status     `json:"status"`
}

// Session is the persisted record of one chain run.
type Session struct {
	ConfigName  string          `json:"configName"`
	SessionID   string          `json:"sessionId"`
	StartedAt   time.Time       `json:"startedAt"`
	EndedAt     *time.Time      `json:"endedAt"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Processes   []ProcessRecord `json:"processes"`
}

// newSession initializes a session document for a config name. The session
// ID is derived from the creation timestamp.
func newSession(configName string, now time.Time) *Session {
	return &Session{
		ConfigName:  configName,
		SessionID:   fmt.Sprintf("%d", now.UnixNano()),
		StartedAt:   now,
		LastUpdated: now,
		Processes:   []ProcessRecord{},
	}
}
