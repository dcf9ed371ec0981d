package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/pkgchain/internal/artifact"
	"github.com/vk/pkgchain/internal/cmdexec"
	"github.com/vk/pkgchain/internal/config"
	"github.com/vk/pkgchain/internal/ctxlog"
	"github.com/vk/pkgchain/internal/fsutil"
	"github.com/vk/pkgchain/internal/manifest"
	"github.com/vk/pkgchain/internal/procman"
)

// PackCommand is run after a package item's own commands when auto_pack is
// enabled.
const PackCommand = "pnpm pack"

// ItemError wraps a failure with the name of the item it happened in.
type ItemError struct {
	Item string
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %q: %v", e.Item, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Executor runs a sorted chain of build items.
type Executor struct {
	pm *procman.Manager
}

// New creates an Executor spawning through pm.
func New(pm *procman.Manager) *Executor {
	return &Executor{pm: pm}
}

// Run executes every item in order, threading dependency outputs from
// package items to their dependents. Fail-fast: the first failing item
// stops the chain. Manifests mutated by an item are restored before Run
// moves on or returns, on every path.
func (e *Executor) Run(ctx context.Context, items []config.Item) error {
	logger := ctxlog.FromContext(ctx)

	outputs := make(map[string]cmdexec.Output, len(items))
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("chain interrupted: %w", err)
		}
		logger.Info("Building item.", "item", it.Name, "type", string(it.Type))
		if err := e.runItem(ctx, it, outputs); err != nil {
			return &ItemError{Item: it.Name, Err: err}
		}
		logger.Info("Item finished.", "item", it.Name)
	}
	return nil
}

// runItem is the per-item state machine. The manifest snapshot is taken
// before the first mutation and restored in a deferred block regardless of
// how the steps end.
func (e *Executor) runItem(ctx context.Context, it config.Item, outputs map[string]cmdexec.Output) (err error) {
	logger := ctxlog.FromContext(ctx).With("item", it.Name)

	dir, err := fsutil.ExpandHome(it.Dir)
	if err != nil {
		return err
	}

	isPackage := it.Type == config.TypePackage

	var (
		alphaVersion string
		packageName  string
		snapshot     []byte
	)

	if isPackage {
		baseVersion, rerr := manifest.ReadVersion(dir)
		if rerr != nil {
			return rerr
		}
		alphaVersion = manifest.AlphaVersion(baseVersion)

		if snapshot, err = manifest.Snapshot(dir); err != nil {
			return err
		}
		if packageName, err = manifest.ReadName(dir); err != nil {
			return err
		}
		logger.Debug("Computed alpha version.", "base", baseVersion, "alpha", alphaVersion, "package", packageName)
	} else if manifest.Exists(dir) {
		if snapshot, err = manifest.Snapshot(dir); err != nil {
			return err
		}
	}

	// Restore must run on every exit path once a snapshot exists, so a
	// failed run leaves no manifest mutated.
	if snapshot != nil {
		defer func() {
			if rerr := manifest.Restore(dir, snapshot); rerr != nil {
				logger.Error("Could not restore manifest.", "dir", dir, "error", rerr)
				err = errors.Join(err, rerr)
				return
			}
			logger.Debug("Manifest restored.", "dir", dir)
		}()
	}

	if isPackage {
		if err := manifest.WriteVersion(dir, alphaVersion); err != nil {
			return err
		}
	}

	// Stale tarballs would confuse artifact resolution later; deleting them
	// is best-effort.
	artifact.Clean(ctx, dir)

	if it.DependsOn != "" {
		if out, ok := outputs[it.DependsOn]; ok {
			logger.Debug("Rewriting manifest dependency to local artifact.",
				"dependency", out.PackageName, "path", out.TarballPath)
			if err := manifest.WriteDependencyPath(dir, out.PackageName, out.TarballPath); err != nil {
				return err
			}
		}
	}

	if err := cmdexec.RunSequence(ctx, it.Commands, dir, outputs, e.pm); err != nil {
		return err
	}

	if isPackage {
		if it.ShouldAutoPack() {
			if err := cmdexec.RunOne(ctx, PackCommand, dir, outputs, e.pm); err != nil {
				return fmt.Errorf("auto pack: %w", err)
			}
		}
		tarball, ferr := artifact.Find(ctx, dir, it.Name, packageName, alphaVersion)
		if ferr != nil {
			return ferr
		}
		outputs[it.Name] = cmdexec.Output{TarballPath: tarball, PackageName: packageName}
		logger.Debug("Captured dependency output.", "tarball", tarball)
	}

	return nil
}
