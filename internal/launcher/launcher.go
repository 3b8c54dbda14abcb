package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/nerrad567/pvrun/internal/appconfig"
	"github.com/nerrad567/pvrun/internal/device"
	"github.com/nerrad567/pvrun/internal/dpdk"
	"github.com/nerrad567/pvrun/internal/flatconf"
	"github.com/nerrad567/pvrun/internal/hugepage"
	"github.com/nerrad567/pvrun/internal/infrastructure/config"
	"github.com/nerrad567/pvrun/internal/lifecycle"
	"github.com/nerrad567/pvrun/internal/lock"
	"github.com/nerrad567/pvrun/internal/process"
	"github.com/nerrad567/pvrun/internal/sysexec"
)

// ExitCodeSetupFailure is returned when the launch fails before the
// application is started.
const ExitCodeSetupFailure = 1

// Logger defines the logging interface for the launcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options describes one launch.
type Options struct {
	// App is the application executable.
	App string

	// Args are passed to the application unchanged.
	Args []string

	// AppConfig overrides the config.yaml next to App.
	AppConfig string

	// DryRun resolves, sizes and encodes but acquires nothing. The encoded
	// configuration is written to the launcher's output.
	DryRun bool
}

// Deps are the launcher's collaborators. Zero values select the real
// implementations built from the settings.
type Deps struct {
	Runner    sysexec.Runner
	Inventory device.Inventory
	Signals   process.SignalNotifier
	Recorder  Recorder
	Output    io.Writer

	// Child streams, the launcher's own when nil.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Geteuid reports the effective user, unix.Geteuid when nil.
	Geteuid func() int
}

// Launcher prepares the host, runs one application and restores the host.
type Launcher struct {
	cfg    *config.Config
	deps   Deps
	logger Logger
}

// New creates a launcher from validated settings.
func New(cfg *config.Config, deps Deps) *Launcher {
	if deps.Runner == nil {
		deps.Runner = NewRunner(cfg)
	}
	if deps.Inventory == nil {
		deps.Inventory = NewInventory(cfg, deps.Runner)
	}
	if deps.Signals == nil {
		deps.Signals = process.OSSignals{}
	}
	if deps.Recorder == nil {
		deps.Recorder = Recorders(nil)
	}
	if deps.Output == nil {
		deps.Output = os.Stdout
	}
	if deps.Geteuid == nil {
		deps.Geteuid = unix.Geteuid
	}
	return &Launcher{cfg: cfg, deps: deps, logger: noopLogger{}}
}

// NewRunner returns the host tool runner configured by the settings.
func NewRunner(cfg *config.Config) *sysexec.ExecRunner {
	return sysexec.NewExecRunner(sysexec.Options{
		Sudo:    cfg.Tools.Sudo,
		Timeout: cfg.Tools.Timeout,
	})
}

// NewInventory returns the device inventory selected by the settings.
func NewInventory(cfg *config.Config, runner sysexec.Runner) device.Inventory {
	if cfg.Inventory.Source == config.InventorySysfs {
		return device.NewSysfsInventory(cfg.Inventory.SysfsRoot)
	}
	return device.NewDevbindInventory(dpdk.NewDevbind(runner, cfg.Tools.Devbind))
}

// SetLogger sets the logger for the launcher and the runner it built.
func (l *Launcher) SetLogger(logger Logger) {
	l.logger = logger
	if r, ok := l.deps.Runner.(*sysexec.ExecRunner); ok {
		r.SetLogger(logger)
	}
}

// prepared is everything computed before host resources are touched.
type prepared struct {
	app     *appconfig.Config
	devices []device.Descriptor
	size    int64
	encoded []byte
}

// Run performs one launch and returns the process exit code: the child's
// own code once it has started, ExitCodeSetupFailure otherwise.
func (l *Launcher) Run(ctx context.Context, opts Options) (int, error) {
	run := &RunInfo{
		ID:        uuid.NewString(),
		App:       opts.App,
		Args:      opts.Args,
		DryRun:    opts.DryRun,
		StartedAt: time.Now().UTC(),
	}
	log := withRun(l.logger, run.ID)

	code, err := l.run(ctx, opts, run, log)

	run.ExitCode, run.Err = code, err
	run.FinishedAt = time.Now().UTC()
	l.deps.Recorder.RunFinished(ctx, run)
	return code, err
}

func (l *Launcher) run(ctx context.Context, opts Options, run *RunInfo, log Logger) (int, error) {
	configPath := opts.AppConfig
	if configPath == "" {
		p, err := appconfig.DefaultPath(opts.App)
		if err != nil {
			return ExitCodeSetupFailure, err
		}
		configPath = p
	}
	run.ConfigPath = configPath

	if !opts.DryRun && !l.cfg.Tools.Sudo && l.deps.Geteuid() != 0 {
		log.Warn("not running as root; host preparation is likely to fail")
	}

	if !opts.DryRun && l.cfg.Lock.Enabled {
		lk, err := lock.Acquire(lock.Options{Path: l.cfg.Lock.Path, Logger: log})
		if err != nil {
			return ExitCodeSetupFailure, err
		}
		defer func() {
			if err := lk.Release(); err != nil {
				log.Error("releasing lock failed", "error", err)
			}
		}()
	}

	p, err := l.prepare(ctx, configPath, log)
	if err != nil {
		return ExitCodeSetupFailure, err
	}
	run.Devices = p.devices
	run.HugepageBytes = p.size
	l.deps.Recorder.RunStarted(ctx, run)

	if opts.DryRun {
		if _, err := l.deps.Output.Write(append(p.encoded, '\n')); err != nil {
			return ExitCodeSetupFailure, fmt.Errorf("writing encoded config: %w", err)
		}
		log.Info("dry run complete, nothing acquired")
		return 0, nil
	}

	return l.launch(ctx, opts, p, run, log)
}

// prepare loads, resolves, sizes and encodes without side effects on the
// host.
func (l *Launcher) prepare(ctx context.Context, configPath string, log Logger) (*prepared, error) {
	app, err := appconfig.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Debug("application config loaded", "path", configPath, "nics", len(app.NICs), "cores", len(app.Cores))

	resolver := device.NewResolver(l.deps.Inventory)
	resolver.SetLogger(log)
	devices, err := resolver.ResolveAll(ctx, app.DeviceNames())
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		log.Info("device resolved", "name", d.Name, "pci", d.PCIAddress, "driver", d.Driver)
	}

	size, err := hugepage.Required(app.HugepageInput(), l.cfg.Hugepages.PageSize)
	if err != nil {
		return nil, fmt.Errorf("sizing hugepages: %w", err)
	}
	log.Info("hugepage reservation sized",
		"size", hugepage.Describe(size),
		"pages", hugepage.Pages(size, l.cfg.Hugepages.PageSize),
		"page_size", hugepage.Describe(l.cfg.Hugepages.PageSize),
	)

	app.SetEALParams(app.EALParams(l.cfg.EAL.ExternalLibs))
	for i, d := range devices {
		if err := app.BindDevice(i, d.PCIAddress, d.Driver); err != nil {
			return nil, err
		}
	}

	entries, err := flatconf.Entries(app.Tree)
	if err != nil {
		return nil, err
	}
	for _, line := range flatconf.LongLines(entries) {
		log.Warn("encoded line exceeds the application's line buffer", "line", line)
	}

	return &prepared{app: app, devices: devices, size: size, encoded: flatconf.Join(entries)}, nil
}

// launch acquires host resources, runs the child and releases everything.
func (l *Launcher) launch(ctx context.Context, opts Options, p *prepared, run *RunInfo, log Logger) (int, error) {
	// Interrupts are held from here until release finishes so the launcher
	// is never killed with resources acquired. The setup watcher and the
	// supervisor register their own handlers alongside.
	held := make(chan os.Signal, 1)
	l.deps.Signals.Notify(held, os.Interrupt)
	defer l.deps.Signals.Stop(held)

	cfgFile := &lifecycle.ConfigFile{Dir: l.cfg.Child.TempDir, Content: p.encoded}
	steps := l.steps(p, cfgFile)

	mgr := lifecycle.NewManager()
	mgr.SetLogger(log)
	mgr.SetObserver(l.deps.Recorder)

	stack, err := l.acquire(ctx, mgr, steps, log)
	if err != nil {
		var acqErr *lifecycle.AcquireError
		if errors.As(err, &acqErr) {
			run.ReleaseErrors = acqErr.ReleaseErrors
		}
		return ExitCodeSetupFailure, err
	}
	if drain(held) > 0 {
		// The interrupt landed after the last step completed.
		log.Warn("interrupted during setup, releasing acquired resources")
		run.ReleaseErrors = l.release(ctx, stack, log)
		return ExitCodeSetupFailure, ErrInterrupted
	}

	sup := process.NewSupervisor(process.Config{
		Name:   filepath.Base(opts.App),
		Binary: opts.App,
		Args:   opts.Args,
		Env:    []string{l.cfg.Child.ConfigEnv + "=" + cfgFile.Path()},
		Stdin:  l.deps.Stdin,
		Stdout: l.deps.Stdout,
		Stderr: l.deps.Stderr,
	})
	sup.SetLogger(log)
	sup.SetSignalNotifier(l.deps.Signals)

	code, runErr := sup.Run(ctx)
	run.Launched = !errors.Is(runErr, process.ErrStart)
	drain(held)
	if runErr != nil {
		log.Error("application failed", "error", runErr)
	} else {
		log.Info("application exited", "exit_code", code, "interrupts_forwarded", sup.Forwarded())
	}

	run.ReleaseErrors = l.release(ctx, stack, log)
	if drain(held) > 0 {
		log.Warn("interrupt ignored while releasing resources")
	}

	return code, runErr
}

// release drains the acquisition record. Cancellation of ctx does not
// stop it.
func (l *Launcher) release(ctx context.Context, stack *lifecycle.Stack, log Logger) []*lifecycle.ReleaseError {
	errs := stack.Release(context.WithoutCancel(ctx))
	for _, relErr := range errs {
		log.Error("release failed", "step", relErr.Step, "error", relErr.Err)
	}
	if len(errs) == 0 {
		log.Info("host resources released")
	}
	return errs
}

// acquire runs the steps with a context that an interrupt cancels.
func (l *Launcher) acquire(ctx context.Context, mgr *lifecycle.Manager, steps []lifecycle.Step, log Logger) (*lifecycle.Stack, error) {
	setupCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	interrupts := make(chan os.Signal, 1)
	l.deps.Signals.Notify(interrupts, os.Interrupt)
	defer l.deps.Signals.Stop(interrupts)

	go func() {
		select {
		case <-interrupts:
			log.Warn("interrupted during setup, releasing acquired resources")
			cancel()
		case <-setupCtx.Done():
		}
	}()

	return mgr.Acquire(setupCtx, steps)
}

func (l *Launcher) steps(p *prepared, cfgFile *lifecycle.ConfigFile) []lifecycle.Step {
	var verify func() error
	if l.cfg.Hugepages.VerifyMount {
		mount := l.cfg.Hugepages.MountPoint
		verify = func() error { return hugepage.CheckMount(mount) }
	}

	runner := l.deps.Runner
	steps := []lifecycle.Step{
		lifecycle.HugepageStep(dpdk.NewHugepages(runner, l.cfg.Tools.Hugepages), l.cfg.Hugepages.PageSize, p.size, verify),
		lifecycle.ModuleStep(dpdk.NewModprobe(runner, l.cfg.Tools.Modprobe), l.cfg.Driver.Module),
	}
	steps = append(steps, lifecycle.BindSteps(dpdk.NewDevbind(runner, l.cfg.Tools.Devbind), l.cfg.Driver.Name, p.devices)...)
	return append(steps, cfgFile.Step())
}

// drain empties ch without blocking and reports how many signals it held.
func drain(ch <-chan os.Signal) int {
	n := 0
	for {
		select {
		case <-ch:
			n++
		default:
			return n
		}
	}
}

type runLogger struct {
	Logger
	runID string
}

func withRun(l Logger, runID string) Logger {
	return runLogger{Logger: l, runID: runID}
}

func (r runLogger) Debug(msg string, args ...any) { r.Logger.Debug(msg, append(args, "run_id", r.runID)...) }
func (r runLogger) Info(msg string, args ...any)  { r.Logger.Info(msg, append(args, "run_id", r.runID)...) }
func (r runLogger) Warn(msg string, args ...any)  { r.Logger.Warn(msg, append(args, "run_id", r.runID)...) }
func (r runLogger) Error(msg string, args ...any) { r.Logger.Error(msg, append(args, "run_id", r.runID)...) }
