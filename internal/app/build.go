package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/pkgchain/internal/chain"
	"github.com/vk/pkgchain/internal/ctxlog"
	"github.com/vk/pkgchain/internal/depgraph"
	"github.com/vk/pkgchain/internal/procman"
)

// Build runs the full chain for the named configuration: load, validate,
// sort, execute. Context cancellation (user interrupt) triggers the process
// manager's shutdown path, which terminates every tracked child before the
// invocation exits.
func (a *App) Build(ctx context.Context, configName string) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	items, err := a.loader.Load(ctx, configName)
	if err != nil {
		return fmt.Errorf("load configuration %q: %w", configName, err)
	}

	if err := depgraph.Validate(ctx, items); err != nil {
		return fmt.Errorf("validate dependencies: %w", err)
	}
	graph := depgraph.Build(items)
	sorted, err := depgraph.TopoSort(ctx, graph, items)
	if err != nil {
		return err
	}

	names := make([]string, len(sorted))
	for i, it := range sorted {
		names[i] = it.Name
	}
	fmt.Fprintf(a.out, "execution order: %s\n", strings.Join(names, " -> "))

	pm := procman.New(a.store, a.grace)
	if err := pm.StartSession(ctx, configName); err != nil {
		return err
	}

	// Shutdown runs on every exit: it reaps anything still registered
	// (nothing, on a clean finish) and stamps the session's end time. The
	// watcher goroutine covers the interrupt path while the chain runs.
	shutdownCtx := ctxlog.WithLogger(context.Background(), a.logger)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.logger.Warn("Interrupt received, terminating child processes.")
			pm.Shutdown(shutdownCtx)
		case <-done:
		}
	}()
	defer func() {
		close(done)
		pm.Shutdown(shutdownCtx)
	}()

	if err := chain.New(pm).Run(ctx, sorted); err != nil {
		return fmt.Errorf("chain failed: %w", err)
	}
	a.logger.Info("Chain finished.", "config", configName, "items", len(sorted))
	return nil
}
