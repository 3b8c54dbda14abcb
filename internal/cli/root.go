// Package cli provides the pvrun command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/nerrad567/pvrun/internal/infrastructure/config"
	"github.com/nerrad567/pvrun/internal/infrastructure/logging"
	"github.com/nerrad567/pvrun/internal/sysexec"
	"github.com/nerrad567/pvrun/internal/version"
)

// EnvConfig names the settings file when --config is not given.
const EnvConfig = "PVRUN_CONFIG"

// ExitError carries a process exit code out of a command. Err is nil when
// the code is the application's own and nothing needs reporting.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// app is the state shared by every command of one invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string

	// runner overrides the host tool runner, for tests.
	runner sysexec.Runner

	cfg *config.Config
	log *logging.Logger
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "pvrun",
		Short: "Launch packet processing applications on prepared hardware",
		Long: `pvrun prepares hugepages and network device bindings for a userspace
packet processing application, hands it its configuration in flat form,
supervises it, and restores the host when it exits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Offline commands work without launcher settings.
			switch cmd.Name() {
			case "version", "flatten", "inspect", "help", "completion":
				return nil
			}
			return a.loadSettings()
		},
	}

	addGlobalFlags(root.PersistentFlags(), a)

	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.AddCommand(
		newRunCmd(a),
		newFlattenCmd(a),
		newInspectCmd(a),
		newSizeCmd(a),
		newDevicesCmd(a),
		newHistoryCmd(a),
		newCheckCmd(a),
		newEventsCmd(a),
		newVersionCmd(a),
	)
	return root
}

func addGlobalFlags(fs *pflag.FlagSet, a *app) {
	fs.StringVarP(&a.configPath, "config", "c", "",
		fmt.Sprintf("settings file (default $%s or %s)", EnvConfig, config.DefaultPath))
	fs.StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

// loadSettings reads the launcher settings. Only the built-in default path
// may be missing.
func (a *app) loadSettings() error {
	path := a.configPath
	if path == "" {
		path = os.Getenv(EnvConfig)
	}

	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.LoadOrDefault(config.DefaultPath)
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}

	a.cfg = cfg
	a.log = logging.NewWithWriter(cfg.Logging, version.Version, a.logOutput(cfg.Logging.Output))
	return nil
}

func (a *app) logOutput(output string) io.Writer {
	if strings.EqualFold(output, "stdout") {
		return a.stdout
	}
	return a.stderr
}

// Run executes the command line in args and returns the process exit code.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return (&app{stdin: stdin, stdout: stdout, stderr: stderr}).execute(ctx, args)
}

func (a *app) execute(ctx context.Context, args []string) int {
	root := newRootCommand(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(a.stderr, "Error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	return 1
}

// Execute runs pvrun with the process arguments and standard streams.
//
// SIGTERM cancels the context, which the launcher treats like an interrupt.
// SIGINT is left to the launcher so it can be forwarded to the application.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGTERM)
	defer stop()
	return Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}
