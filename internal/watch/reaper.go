package watch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vk/pkgchain/internal/ctxlog"
	"github.com/vk/pkgchain/internal/session"
)

// termination tuning: after SIGTERM, liveness is polled up to killPolls
// times before escalating to SIGKILL.
const (
	killPolls    = 10
	killInterval = 300 * time.Millisecond
)

// ErrPermission indicates signal delivery was denied for a pid.
var ErrPermission = errors.New("permission denied signaling process")

// ErrStillAlive indicates a process survived both termination signals.
var ErrStillAlive = errors.New("process still alive after SIGKILL")

// KillPID terminates one pid recorded in the named session.
func (w *Watcher) KillPID(ctx context.Context, name string, pid int) error {
	report, err := w.report(ctx, name)
	if err != nil {
		return err
	}

	for _, proc := range report.Processes {
		if proc.PID != pid {
			continue
		}
		if proc.ActualStatus != session.StatusRunning {
			fmt.Fprintf(w.out, "pid %d is not running\n", pid)
			return nil
		}
		if err := terminatePID(ctx, pid); err != nil {
			return err
		}
		fmt.Fprintf(w.out, "pid %d terminated\n", pid)
		return nil
	}
	return fmt.Errorf("pid %d is not recorded in session %q", pid, name)
}

// KillAll terminates every live pid recorded in the named session.
func (w *Watcher) KillAll(ctx context.Context, name string) error {
	report, err := w.report(ctx, name)
	if err != nil {
		return err
	}

	var failures []error
	killed := 0
	for _, proc := range report.Processes {
		if proc.ActualStatus != session.StatusRunning {
			continue
		}
		if err := terminatePID(ctx, proc.PID); err != nil {
			failures = append(failures, err)
			continue
		}
		killed++
	}
	fmt.Fprintf(w.out, "%d process(es) terminated\n", killed)
	return errors.Join(failures...)
}

// Clean deletes the session file. It refuses while any recorded process is
// actually alive unless forced, and asks for confirmation either way.
func (w *Watcher) Clean(ctx context.Context, name string, force bool) error {
	report, err := w.report(ctx, name)
	if err != nil {
		return err
	}

	if report.LiveCount > 0 && !force {
		return fmt.Errorf("session %q still has %d live process(es); terminate them or use --force", name, report.LiveCount)
	}

	prompt := fmt.Sprintf("delete session %q?", name)
	if report.LiveCount > 0 {
		prompt = fmt.Sprintf("delete session %q with %d process(es) STILL ALIVE?", name, report.LiveCount)
	}
	if !w.confirm(prompt) {
		fmt.Fprintln(w.out, "aborted")
		return nil
	}

	existed, err := w.store.Delete(ctx, name)
	if err != nil {
		return err
	}
	if existed {
		fmt.Fprintf(w.out, "session %q deleted\n", name)
	}
	return nil
}

// confirm prints a y/N prompt and reads one line.
func (w *Watcher) confirm(prompt string) bool {
	fmt.Fprintf(w.out, "%s [y/N] ", prompt)
	scanner := bufio.NewScanner(w.in)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

// terminatePID delivers SIGTERM, polls for exit, escalates to SIGKILL, and
// verifies the process is gone.
func terminatePID(ctx context.Context, pid int) error {
	logger := ctxlog.FromContext(ctx)

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.EPERM) {
			return fmt.Errorf("%w: pid %d", ErrPermission, pid)
		}
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}

	for i := 0; i < killPolls; i++ {
		if !Alive(pid) {
			return nil
		}
		time.Sleep(killInterval)
	}

	logger.Warn("Process ignored SIGTERM, escalating.", "pid", pid)
	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		if errors.Is(err, unix.EPERM) {
			return fmt.Errorf("%w: pid %d", ErrPermission, pid)
		}
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}

	// SIGKILL delivery is asynchronous; give the kernel a moment.
	time.Sleep(killInterval)
	if Alive(pid) {
		return fmt.Errorf("%w: pid %d", ErrStillAlive, pid)
	}
	return nil
}
