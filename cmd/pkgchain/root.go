package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vk/pkgchain/internal/app"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	logLevel  string
	logFormat string
	grace     time.Duration
}

func (f *rootFlags) newApp() (*app.App, error) {
	switch f.logFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", f.logFormat)
	}
	switch f.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", f.logLevel)
	}
	return app.New(os.Stdout, os.Stderr, &app.Config{
		LogFormat: f.logFormat,
		LogLevel:  f.logLevel,
		Grace:     f.grace,
	})
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "pkgchain",
		Short: "Chain-build interdependent packages and reap what earlier runs left behind",
	}
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "logging level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "text", "log output format: text or json")
	rootCmd.PersistentFlags().DurationVar(&flags.grace, "grace", 3*time.Second, "window between graceful and forced termination")

	rootCmd.AddCommand(
		newBuildCmd(flags),
		newWatchCmd(flags),
	)
	return rootCmd
}

func newBuildCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "build <config>",
		Short: "Run the dependency-ordered build chain for a configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.newApp()
			if err != nil {
				return err
			}
			return a.Build(cmd.Context(), args[0])
		},
	}
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	opts := app.WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch [config]",
		Short: "Inspect and terminate processes recorded by previous runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.ConfigName = args[0]
			}
			if opts.ConfigName == "" && !opts.All {
				return fmt.Errorf("a configuration name or --all is required")
			}
			a, err := flags.newApp()
			if err != nil {
				return err
			}
			return a.Watch(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "show every recorded session")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "emit JSON instead of a table")
	cmd.Flags().BoolVar(&opts.Follow, "follow", false, "refresh the display on an interval until interrupted")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 2*time.Second, "refresh interval for --follow")
	cmd.Flags().IntVar(&opts.KillPID, "kill", 0, "terminate one recorded pid")
	cmd.Flags().BoolVar(&opts.KillAll, "kill-all", false, "terminate every live recorded pid")
	cmd.Flags().BoolVar(&opts.Clean, "clean", false, "delete the session file")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "with --clean, delete even while processes are alive")
	return cmd
}
