package cmdexec

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/shlex"

	"github.com/vk/pkgchain/internal/config"
	"github.com/vk/pkgchain/internal/ctxlog"
	"github.com/vk/pkgchain/internal/procman"
)

// GroupError reports a failed parallel stage.
type GroupError struct {
	Stage       int
	FailedCount int
	First       error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("parallel stage %d: %d command(s) failed: %v", e.Stage, e.FailedCount, e.First)
}

func (e *GroupError) Unwrap() error { return e.First }

// prepare resolves placeholders, applies the install rewrite and tokenizes
// one command string into an argv.
func prepare(command string, outputs map[string]Output) ([]string, error) {
	resolved, err := ResolvePlaceholders(command, outputs)
	if err != nil {
		return nil, err
	}
	resolved = rewriteInstall(resolved)

	argv, err := shlex.Split(resolved)
	if err != nil {
		return nil, fmt.Errorf("tokenize %q: %w", resolved, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("command %q is empty after tokenizing", command)
	}
	return argv, nil
}

// RunOne executes a single command to completion in dir.
func RunOne(ctx context.Context, command, dir string, outputs map[string]Output, pm *procman.Manager) error {
	logger := ctxlog.FromContext(ctx)

	argv, err := prepare(command, outputs)
	if err != nil {
		return err
	}

	logger.Info("Running command.", "command", command, "dir", dir)
	if _, err := pm.Execute(ctx, argv, dir); err != nil {
		return err
	}
	return nil
}

// RunSequence executes an item's command stages in order. A serial stage
// failure, or any member failure inside a parallel stage, aborts the whole
// sequence; a later stage never starts after an earlier one has failed.
func RunSequence(ctx context.Context, stages []config.Stage, dir string, outputs map[string]Output, pm *procman.Manager) error {
	logger := ctxlog.FromContext(ctx)

	for i, stage := range stages {
		if !stage.Parallel {
			if err := RunOne(ctx, stage.Commands[0], dir, outputs, pm); err != nil {
				return fmt.Errorf("stage %d: %w", i+1, err)
			}
			continue
		}

		argvs := make([][]string, len(stage.Commands))
		for j, command := range stage.Commands {
			argv, err := prepare(command, outputs)
			if err != nil {
				return fmt.Errorf("stage %d: %w", i+1, err)
			}
			argvs[j] = argv
		}

		logger.Info("Running parallel command group.", "stage", i+1, "commands", len(stage.Commands), "dir", dir)
		result := pm.ExecuteParallel(ctx, argvs, dir, true)
		if !result.Success {
			// Prefer the root-cause failure over siblings that merely got
			// reaped after it.
			var first error
			for _, res := range result.Results {
				if res.Err != nil && !errors.Is(res.Err, procman.ErrReaped) {
					first = res.Err
					break
				}
			}
			return &GroupError{Stage: i + 1, FailedCount: result.FailedCount, First: first}
		}
	}
	return nil
}
