package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/vk/pkgchain/internal/ctxlog"
	"github.com/vk/pkgchain/internal/session"
)

// ErrNoSession indicates the requested session file does not exist.
var ErrNoSession = errors.New("no session recorded")

// Watcher reads session state and renders or reaps it.
type Watcher struct {
	store *session.Store
	out   io.Writer
	in    io.Reader
}

// New creates a Watcher writing to out and reading confirmations from in.
func New(store *session.Store, out io.Writer, in io.Reader) *Watcher {
	return &Watcher{store: store, out: out, in: in}
}

// Show renders the named session once.
func (w *Watcher) Show(ctx context.Context, name string, asJSON bool) error {
	report, err := w.report(ctx, name)
	if err != nil {
		return err
	}
	return w.render([]Report{*report}, asJSON)
}

// ShowAll renders every readable session in the state directory.
func (w *Watcher) ShowAll(ctx context.Context, asJSON bool) error {
	sessions, err := w.store.List(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w.out, "no sessions recorded")
		return nil
	}
	reports := make([]Report, 0, len(sessions))
	for i := range sessions {
		reports = append(reports, BuildReport(&sessions[i]))
	}
	return w.render(reports, asJSON)
}

// Follow re-renders the named session on a fixed interval until the
// context is canceled. Cancellation stops the display loop only; the
// watcher never touches processes it did not explicitly kill.
func (w *Watcher) Follow(ctx context.Context, name string, interval time.Duration, asJSON bool) error {
	logger := ctxlog.FromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := w.Show(ctx, name, asJSON); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			logger.Debug("Watch loop stopped.")
			return nil
		case <-ticker.C:
		}
	}
}

// report loads the session or fails with ErrNoSession.
func (w *Watcher) report(ctx context.Context, name string) (*Report, error) {
	sess, err := w.store.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("%w for %q", ErrNoSession, name)
	}
	report := BuildReport(sess)
	return &report, nil
}

func (w *Watcher) render(reports []Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w.out)
		enc.SetIndent("", "  ")
		if len(reports) == 1 {
			return enc.Encode(reports[0])
		}
		return enc.Encode(reports)
	}
	for _, report := range reports {
		w.renderTable(report)
	}
	return nil
}

func (w *Watcher) renderTable(report Report) {
	fmt.Fprintf(w.out, "session %s (config %q)\n", report.SessionID, report.ConfigName)
	fmt.Fprintf(w.out, "  started:      %s\n", report.StartedAt)
	if report.EndedAt != "" {
		fmt.Fprintf(w.out, "  ended:        %s\n", report.EndedAt)
	} else {
		fmt.Fprintf(w.out, "  ended:        (still open)\n")
	}
	fmt.Fprintf(w.out, "  last updated: %s\n", report.LastUpdated)

	if len(report.Processes) == 0 {
		fmt.Fprintln(w.out, "  no processes recorded")
		fmt.Fprintln(w.out)
		return
	}

	tw := tabwriter.NewWriter(w.out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  PID\tRECORDED\tACTUAL\tEXIT\tCOMMAND")
	for _, proc := range report.Processes {
		exit := "-"
		if proc.ExitCode != nil {
			exit = fmt.Sprintf("%d", *proc.ExitCode)
		}
		actual := string(proc.ActualStatus)
		if proc.Orphaned() {
			actual += " (orphan)"
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n", proc.PID, proc.Status, actual, exit, proc.Command)
	}
	tw.Flush()
	fmt.Fprintf(w.out, "  live: %d of %d\n\n", report.LiveCount, len(report.Processes))
}
