// Package dpdk wraps the DPDK helper scripts and the module loader used to
// prepare a host for a userspace packet-processing application.
//
// The wrappers only build argument lists and delegate to a sysexec.Runner;
// success is the tool's exit status.
package dpdk

import (
	"context"
	"strconv"

	"github.com/nerrad567/pvrun/internal/sysexec"
)

// Default tool names, resolved through PATH.
const (
	DefaultHugepagesTool = "dpdk-hugepages.py"
	DefaultDevbindTool   = "dpdk-devbind.py"
	DefaultModprobeTool  = "modprobe"
)

// Hugepages drives dpdk-hugepages.py.
type Hugepages struct {
	runner sysexec.Runner
	tool   string
}

// NewHugepages creates a wrapper. An empty tool means DefaultHugepagesTool.
func NewHugepages(runner sysexec.Runner, tool string) *Hugepages {
	if tool == "" {
		tool = DefaultHugepagesTool
	}
	return &Hugepages{runner: runner, tool: tool}
}

// Setup reserves total bytes of pages of pageSize bytes and mounts hugetlbfs.
func (h *Hugepages) Setup(ctx context.Context, pageSize, total int64) error {
	_, err := h.runner.Run(ctx, h.tool,
		"-p", strconv.FormatInt(pageSize, 10),
		"--setup", strconv.FormatInt(total, 10))
	return err
}

// Clear releases every reserved page.
func (h *Hugepages) Clear(ctx context.Context) error {
	_, err := h.runner.Run(ctx, h.tool, "-c")
	return err
}

// Unmount unmounts the hugetlbfs mount created by Setup.
func (h *Hugepages) Unmount(ctx context.Context) error {
	_, err := h.runner.Run(ctx, h.tool, "-u")
	return err
}

// Devbind drives dpdk-devbind.py.
type Devbind struct {
	runner sysexec.Runner
	tool   string
}

// NewDevbind creates a wrapper. An empty tool means DefaultDevbindTool.
func NewDevbind(runner sysexec.Runner, tool string) *Devbind {
	if tool == "" {
		tool = DefaultDevbindTool
	}
	return &Devbind{runner: runner, tool: tool}
}

// Status returns the network device status report.
func (d *Devbind) Status(ctx context.Context) (string, error) {
	return d.runner.Run(ctx, d.tool, "--status-dev", "net")
}

// Bind binds the device at pciAddress to driver, unbinding it from its
// current driver first.
func (d *Devbind) Bind(ctx context.Context, driver, pciAddress string) error {
	_, err := d.runner.Run(ctx, d.tool, "-b", driver, pciAddress)
	return err
}

// Modprobe loads kernel modules.
type Modprobe struct {
	runner sysexec.Runner
	tool   string
}

// NewModprobe creates a wrapper. An empty tool means DefaultModprobeTool.
func NewModprobe(runner sysexec.Runner, tool string) *Modprobe {
	if tool == "" {
		tool = DefaultModprobeTool
	}
	return &Modprobe{runner: runner, tool: tool}
}

// Load loads module. Loading an already loaded module succeeds.
func (m *Modprobe) Load(ctx context.Context, module string) error {
	_, err := m.runner.Run(ctx, m.tool, module)
	return err
}
