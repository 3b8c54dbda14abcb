package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nerrad567/pvrun/internal/device"
)

// HugepageTool reserves and releases hugepages.
type HugepageTool interface {
	Setup(ctx context.Context, pageSize, total int64) error
	Clear(ctx context.Context) error
	Unmount(ctx context.Context) error
}

// ModuleLoader loads kernel modules.
type ModuleLoader interface {
	Load(ctx context.Context, module string) error
}

// DeviceBinder binds a PCI function to a driver.
type DeviceBinder interface {
	Bind(ctx context.Context, driver, pciAddress string) error
}

// Step names.
const (
	StepHugepages  = "hugepages"
	StepModule     = "module"
	StepConfigFile = "config-file"
)

// BindStepName returns the step name used for a device rebind.
func BindStepName(pciAddress string) string {
	return "bind " + pciAddress
}

// HugepageStep reserves total bytes of pageSize pages. verify, when set, runs
// after the reservation; a verify failure releases the reservation before
// the step reports failure. Release clears the pages and unmounts
// hugetlbfs, attempting both.
func HugepageStep(tool HugepageTool, pageSize, total int64, verify func() error) Step {
	release := func(ctx context.Context) error {
		clearErr := tool.Clear(ctx)
		unmountErr := tool.Unmount(ctx)
		return errors.Join(clearErr, unmountErr)
	}

	return Step{
		Name: StepHugepages,
		Acquire: func(ctx context.Context) (ReleaseFunc, error) {
			if err := tool.Setup(ctx, pageSize, total); err != nil {
				return nil, err
			}
			if verify != nil {
				if err := verify(); err != nil {
					return nil, errors.Join(err, release(context.WithoutCancel(ctx)))
				}
			}
			return release, nil
		},
	}
}

// ModuleStep loads a kernel module. The module stays loaded after the run,
// so the step registers no release action.
func ModuleStep(loader ModuleLoader, module string) Step {
	return Step{
		Name: StepModule,
		Acquire: func(ctx context.Context) (ReleaseFunc, error) {
			return nil, loader.Load(ctx, module)
		},
	}
}

// BindSteps returns one rebind step per device, in the given order. Each
// release binds the device back to the driver recorded in its descriptor.
func BindSteps(binder DeviceBinder, targetDriver string, devices []device.Descriptor) []Step {
	steps := make([]Step, 0, len(devices))
	for _, d := range devices {
		steps = append(steps, Step{
			Name: BindStepName(d.PCIAddress),
			Acquire: func(ctx context.Context) (ReleaseFunc, error) {
				if err := binder.Bind(ctx, targetDriver, d.PCIAddress); err != nil {
					return nil, err
				}
				return func(ctx context.Context) error {
					if d.Driver == "" {
						return fmt.Errorf("%s had no driver before binding, leaving it on %s", d.PCIAddress, targetDriver)
					}
					return binder.Bind(ctx, d.Driver, d.PCIAddress)
				}, nil
			},
		})
	}
	return steps
}

// ConfigFile writes the encoded configuration to a uniquely named file.
type ConfigFile struct {
	Dir     string // directory for the file, os.TempDir() when empty
	Pattern string // os.CreateTemp pattern
	Content []byte

	path string
}

// DefaultConfigPattern names the temporary configuration files.
const DefaultConfigPattern = "pv-config-*.txt"

// Path returns the written file, empty until the step has run.
func (c *ConfigFile) Path() string {
	return c.path
}

// Step returns the acquisition step. Release deletes the file.
func (c *ConfigFile) Step() Step {
	return Step{
		Name: StepConfigFile,
		Acquire: func(context.Context) (ReleaseFunc, error) {
			pattern := c.Pattern
			if pattern == "" {
				pattern = DefaultConfigPattern
			}

			f, err := os.CreateTemp(c.Dir, pattern)
			if err != nil {
				return nil, fmt.Errorf("creating config file: %w", err)
			}
			path := f.Name()

			if _, err := f.Write(c.Content); err != nil {
				f.Close()       //nolint:errcheck // Already failing
				os.Remove(path) //nolint:errcheck // Best effort cleanup on error path
				return nil, fmt.Errorf("writing config file: %w", err)
			}
			if err := f.Close(); err != nil {
				os.Remove(path) //nolint:errcheck // Best effort cleanup on error path
				return nil, fmt.Errorf("closing config file: %w", err)
			}

			c.path = path
			return func(context.Context) error {
				if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
					return err
				}
				return nil
			}, nil
		},
	}
}
