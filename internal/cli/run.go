package cli

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nerrad567/pvrun/internal/launcher"
)

func newRunCmd(a *app) *cobra.Command {
	var opts launcher.Options

	cmd := &cobra.Command{
		Use:   "run [flags] <application> [args...]",
		Short: "Prepare the host, run an application and restore the host",
		Long: `Run resolves the devices named in the application's config.yaml, reserves
hugepages, binds the devices to the userspace driver, writes the flat
configuration and starts the application with PV_CONFIG pointing at it.
Everything acquired is released when the application exits.

The exit status is the application's own, or 1 when setup fails.
Flags after the application path are passed to the application.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.App, opts.Args = args[0], args[1:]
			return a.launch(cmd.Context(), opts)
		},
	}

	fs := cmd.Flags()
	fs.SetInterspersed(false)
	fs.StringVar(&opts.AppConfig, "app-config", "", "application config (default config.yaml next to the application)")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "resolve, size and print the flat configuration without touching the host")

	return cmd
}

func (a *app) launch(ctx context.Context, opts launcher.Options) error {
	recorders := launcher.OpenRecorders(ctx, a.cfg, a.log)
	defer func() {
		if err := recorders.Close(); err != nil {
			a.log.Warn("closing recorders failed", "error", err)
		}
	}()

	l := launcher.New(a.cfg, launcher.Deps{
		Runner:   a.runner,
		Recorder: recorders,
		Output:   a.stdout,
		Stdin:    a.stdin,
		Stdout:   a.stdout,
		Stderr:   a.stderr,
	})
	l.SetLogger(a.log.With("app", filepath.Base(opts.App)))

	code, err := l.Run(ctx, opts)
	if err != nil || code != 0 {
		return &ExitError{Code: code, Err: err}
	}
	return nil
}
