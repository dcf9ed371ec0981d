package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vk/pkgchain/internal/ctxlog"
	"github.com/vk/pkgchain/internal/watch"
)

// WatchOptions selects one watch action.
type WatchOptions struct {
	ConfigName string
	All        bool
	JSON       bool
	Follow     bool
	Interval   time.Duration
	KillPID    int
	KillAll    bool
	Clean      bool
	Force      bool
}

// Watch dispatches a watch/reaper invocation. Exactly one action runs:
// kill, clean, or display (one-shot or following).
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	watcher := watch.New(a.store, a.out, os.Stdin)

	switch {
	case opts.KillPID > 0:
		return watcher.KillPID(ctx, opts.ConfigName, opts.KillPID)
	case opts.KillAll:
		return watcher.KillAll(ctx, opts.ConfigName)
	case opts.Clean:
		return watcher.Clean(ctx, opts.ConfigName, opts.Force)
	case opts.All:
		return watcher.ShowAll(ctx, opts.JSON)
	case opts.Follow:
		interval := opts.Interval
		if interval <= 0 {
			interval = 2 * time.Second
		}
		return watcher.Follow(ctx, opts.ConfigName, interval, opts.JSON)
	case opts.ConfigName != "":
		return watcher.Show(ctx, opts.ConfigName, opts.JSON)
	default:
		return fmt.Errorf("either a configuration name or --all is required")
	}
}
