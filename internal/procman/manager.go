package procman

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vk/pkgchain/internal/ctxlog"
	"github.com/vk/pkgchain/internal/session"
)

// DefaultGrace is the window between the graceful and the forced
// termination signal.
const DefaultGrace = 3 * time.Second

// ErrNoSession indicates process execution was attempted outside a
// StartSession/EndSession bracket.
var ErrNoSession = errors.New("no active session")

// ErrReaped marks a command that died because the manager terminated it:
// a sibling in its parallel group failed, or the invocation shut down. Its
// death is a consequence, not a cause, and is not counted as a failure of
// its own.
var ErrReaped = errors.New("terminated by process manager")

// ExitError reports a command that ran to completion with a non-zero exit
// code.
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with code %d", e.Command, e.Code)
}

// Manager tracks the children of one CLI invocation.
type Manager struct {
	store *session.Store
	grace time.Duration

	mu         sync.Mutex
	configName string
	started    bool
	procs      map[int]*os.Process
	groups     map[string][]int
	killed     map[string]bool
	reaped     map[int]bool
}

// New creates a Manager persisting through store. A non-positive grace
// falls back to DefaultGrace.
func New(store *session.Store, grace time.Duration) *Manager {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Manager{
		store:  store,
		grace:  grace,
		procs:  make(map[int]*os.Process),
		groups: make(map[string][]int),
		killed: make(map[string]bool),
		reaped: make(map[int]bool),
	}
}

// StartSession brackets the beginning of a chain run, creating the
// persistent session document.
func (m *Manager) StartSession(ctx context.Context, configName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("session already started for %q", m.configName)
	}
	if _, err := m.store.Create(ctx, configName); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	m.configName = configName
	m.started = true
	return nil
}

// EndSession stamps the session's end time. Safe to call more than once;
// only the first call writes.
func (m *Manager) EndSession(ctx context.Context) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	name := m.configName
	m.started = false
	m.mu.Unlock()

	if err := m.store.End(ctx, name); err != nil {
		ctxlog.FromContext(ctx).Warn("Could not finalize session record.", "config", name, "error", err)
	}
}

// Execute spawns argv in dir with inherited standard streams, persists its
// lifecycle into the session store, and blocks until exit. Returns the
// exit code; non-zero exits return an *ExitError alongside the code.
func (m *Manager) Execute(ctx context.Context, argv []string, dir string) (int, error) {
	return m.run(ctx, argv, dir, "")
}

// run is Execute with optional parallel-group membership.
func (m *Manager) run(ctx context.Context, argv []string, dir string, groupID string) (int, error) {
	logger := ctxlog.FromContext(ctx)

	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return -1, ErrNoSession
	}
	name := m.configName
	m.mu.Unlock()

	if len(argv) == 0 {
		return -1, fmt.Errorf("empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	display := strings.Join(argv, " ")
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start %q: %w", display, err)
	}

	pid := cmd.Process.Pid
	m.register(pid, cmd.Process)
	if groupID != "" && m.addGroupMember(groupID, pid) {
		// The group was killed before this member got registered; reap it
		// right away so it does not outlive its failed siblings.
		m.mu.Lock()
		m.reaped[pid] = true
		m.mu.Unlock()
		if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			logger.Warn("Could not deliver SIGTERM.", "pid", pid, "error", err)
		}
	}
	logger.Debug("Child process started.", "pid", pid, "command", display)

	if err := m.store.AddProcess(ctx, name, session.ProcessRecord{
		PID:       pid,
		Command:   display,
		Dir:       dir,
		StartTime: time.Now(),
		Status:    session.StatusRunning,
	}); err != nil {
		logger.Warn("Could not persist process record.", "pid", pid, "error", err)
	}

	waitErr := cmd.Wait()
	m.unregister(pid)

	code := cmd.ProcessState.ExitCode()
	now := time.Now()
	if err := m.store.UpdateProcess(ctx, name, pid, func(rec *session.ProcessRecord) {
		rec.Status = session.StatusStopped
		rec.EndTime = &now
		rec.ExitCode = &code
	}); err != nil {
		logger.Warn("Could not finalize process record.", "pid", pid, "error", err)
	}

	if waitErr != nil {
		if m.consumeReaped(pid) {
			return code, fmt.Errorf("%w: %s", ErrReaped, display)
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return code, &ExitError{Command: display, Code: code}
		}
		return code, fmt.Errorf("wait for %q: %w", display, waitErr)
	}
	logger.Debug("Child process exited cleanly.", "pid", pid)
	return 0, nil
}

// register/unregister maintain the in-memory liveness set.
func (m *Manager) register(pid int, proc *os.Process) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.procs[pid] = proc
}

func (m *Manager) unregister(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.procs, pid)
}

// alive reports whether pid is still registered, i.e. its Wait has not
// returned yet.
func (m *Manager) alive(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.procs[pid]
	return ok
}

// Shutdown terminates every still-registered child, graceful then forced,
// and finalizes the session record. Called when the run context is
// canceled or a fatal error unwinds the invocation.
func (m *Manager) Shutdown(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)

	m.mu.Lock()
	pids := make([]int, 0, len(m.procs))
	for pid := range m.procs {
		pids = append(pids, pid)
	}
	m.mu.Unlock()

	if len(pids) > 0 {
		logger.Warn("Terminating outstanding child processes.", "count", len(pids))
		m.terminate(ctx, pids)
	}
	m.EndSession(ctx)
}

// consumeReaped reports and clears whether the manager itself killed pid.
func (m *Manager) consumeReaped(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	reaped := m.reaped[pid]
	delete(m.reaped, pid)
	return reaped
}

// terminate delivers SIGTERM to each pid, waits out the grace window, then
// SIGKILLs whatever is still registered.
func (m *Manager) terminate(ctx context.Context, pids []int) {
	logger := ctxlog.FromContext(ctx)

	m.mu.Lock()
	for _, pid := range pids {
		m.reaped[pid] = true
	}
	m.mu.Unlock()

	for _, pid := range pids {
		if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			logger.Warn("Could not deliver SIGTERM.", "pid", pid, "error", err)
		}
	}

	deadline := time.Now().Add(m.grace)
	for time.Now().Before(deadline) {
		if !m.anyAlive(pids) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	for _, pid := range pids {
		if m.alive(pid) {
			logger.Warn("Grace period expired, sending SIGKILL.", "pid", pid)
			if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
				logger.Warn("Could not deliver SIGKILL.", "pid", pid, "error", err)
			}
		}
	}
}

func (m *Manager) anyAlive(pids []int) bool {
	for _, pid := range pids {
		if m.alive(pid) {
			return true
		}
	}
	return false
}
