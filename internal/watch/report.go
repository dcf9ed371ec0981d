package watch

import (
	"github.com/vk/pkgchain/internal/session"
)

// ProcessStatus pairs a stored record with the liveness probed right now.
type ProcessStatus struct {
	session.ProcessRecord
	// ActualStatus is derived from the OS, independent of the stored
	// Status field.
	ActualStatus session.Status `json:"actualStatus"`
}

// Orphaned reports a process the store believes is running but whose
// spawning invocation can no longer update it, or vice versa.
func (p ProcessStatus) Orphaned() bool {
	return p.Status == session.StatusRunning && p.ActualStatus == session.StatusRunning
}

// Report is the probed view of one session.
type Report struct {
	ConfigName  string          `json:"configName"`
	SessionID   string          `json:"sessionId"`
	StartedAt   string          `json:"startedAt"`
	EndedAt     string          `json:"endedAt,omitempty"`
	LastUpdated string          `json:"lastUpdated"`
	Processes   []ProcessStatus `json:"processes"`
	LiveCount   int             `json:"liveCount"`
}

// BuildReport probes every recorded pid and assembles the session view.
func BuildReport(sess *session.Session) Report {
	report := Report{
		ConfigName:  sess.ConfigName,
		SessionID:   sess.SessionID,
		StartedAt:   sess.StartedAt.Format(timeLayout),
		LastUpdated: sess.LastUpdated.Format(timeLayout),
		Processes:   make([]ProcessStatus, 0, len(sess.Processes)),
	}
	if sess.EndedAt != nil {
		report.EndedAt = sess.EndedAt.Format(timeLayout)
	}
	for _, rec := range sess.Processes {
		actual := session.StatusStopped
		if Alive(rec.PID) {
			actual = session.StatusRunning
			report.LiveCount++
		}
		report.Processes = append(report.Processes, ProcessStatus{ProcessRecord: rec, ActualStatus: actual})
	}
	return report
}

const timeLayout = "2006-01-02 15:04:05"
