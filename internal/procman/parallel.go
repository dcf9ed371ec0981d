package procman

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vk/pkgchain/internal/ctxlog"
)

// CmdResult is the outcome of one member of a parallel group.
type CmdResult struct {
	Command  string
	ExitCode int
	Err      error
}

// GroupResult is the aggregate outcome of a parallel group.
type GroupResult struct {
	GroupID     string
	Success     bool
	FailedCount int
	Results     []CmdResult
}

// ExecuteParallel launches every argv concurrently and waits for all of
// them to settle. With killOnFail, the first failure triggers termination
// of every other still-running member of the group (graceful then forced);
// the remaining results record how their commands ended.
func (m *Manager) ExecuteParallel(ctx context.Context, argvs [][]string, dir string, killOnFail bool) GroupResult {
	logger := ctxlog.FromContext(ctx)

	groupID := uuid.NewString()
	m.mu.Lock()
	m.groups[groupID] = nil
	m.mu.Unlock()

	logger.Debug("Starting parallel group.", "groupId", groupID, "members", len(argvs))

	results := make([]CmdResult, len(argvs))
	var wg sync.WaitGroup
	var killOnce sync.Once

	for i, argv := range argvs {
		wg.Add(1)
		go func(i int, argv []string) {
			defer wg.Done()
			code, err := m.run(ctx, argv, dir, groupID)
			results[i] = CmdResult{Command: strings.Join(argv, " "), ExitCode: code, Err: err}
			if err != nil && killOnFail {
				killOnce.Do(func() {
					logger.Warn("Parallel group member failed, terminating siblings.",
						"groupId", groupID, "failed", results[i].Command)
					m.killGroup(ctx, groupID)
				})
			}
		}(i, argv)
	}
	wg.Wait()

	m.mu.Lock()
	delete(m.groups, groupID)
	delete(m.killed, groupID)
	m.mu.Unlock()

	failed := 0
	for _, res := range results {
		if res.Err != nil && !errors.Is(res.Err, ErrReaped) {
			failed++
		}
	}
	logger.Debug("Parallel group settled.", "groupId", groupID, "failed", failed)
	return GroupResult{
		GroupID:     groupID,
		Success:     failed == 0,
		FailedCount: failed,
		Results:     results,
	}
}

// killGroup terminates every still-registered member of a group and marks
// the group, so members racing their own spawn get reaped on registration.
func (m *Manager) killGroup(ctx context.Context, groupID string) {
	m.mu.Lock()
	m.killed[groupID] = true
	var live []int
	for _, pid := range m.groups[groupID] {
		if _, ok := m.procs[pid]; ok {
			live = append(live, pid)
		}
	}
	m.mu.Unlock()

	if len(live) > 0 {
		m.terminate(ctx, live)
	}
}

// addGroupMember records a spawned pid under its group, reporting whether
// the group has already been killed.
func (m *Manager) addGroupMember(groupID string, pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[groupID]; ok {
		m.groups[groupID] = append(m.groups[groupID], pid)
	}
	return m.killed[groupID]
}
