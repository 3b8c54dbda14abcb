package lifecycle

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/nerrad567/pvrun/internal/device"
)

// fakeHost implements every tool interface and records the calls.
type fakeHost struct {
	calls    []string
	failBind map[string]bool
	failStep map[string]error
}

func (h *fakeHost) record(call string) error {
	h.calls = append(h.calls, call)
	if err, ok := h.failStep[call]; ok {
		return err
	}
	return nil
}

func (h *fakeHost) Setup(_ context.Context, pageSize, total int64) error {
	return h.record("hugepages setup")
}

func (h *fakeHost) Clear(context.Context) error   { return h.record("hugepages clear") }
func (h *fakeHost) Unmount(context.Context) error { return h.record("hugepages unmount") }

func (h *fakeHost) Load(_ context.Context, module string) error {
	return h.record("modprobe " + module)
}

func (h *fakeHost) Bind(_ context.Context, driver, pci string) error {
	if err := h.record("bind " + pci + " " + driver); err != nil {
		return err
	}
	if h.failBind[pci+" "+driver] {
		return errors.New("devbind failed")
	}
	return nil
}

var testDevices = []device.Descriptor{
	{Name: "eth0", PCIAddress: "0000:03:00.0", Driver: "ixgbe"},
	{Name: "eth1", PCIAddress: "0000:03:00.1", Driver: "i40e"},
}

func fullSequence(host *fakeHost, cfg *ConfigFile) []Step {
	steps := []Step{
		HugepageStep(host, 2097152, 10485760, nil),
		ModuleStep(host, "uio_pci_generic"),
	}
	steps = append(steps, BindSteps(host, "uio_pci_generic", testDevices)...)
	return append(steps, cfg.Step())
}

func TestSteps_FullRun(t *testing.T) {
	host := &fakeHost{}
	cfg := &ConfigFile{Dir: t.TempDir(), Content: []byte("/:type dict\n/:length 0")}

	stack, err := NewManager().Acquire(context.Background(), fullSequence(host, cfg))
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	data, err := os.ReadFile(cfg.Path())
	if err != nil {
		t.Fatalf("reading config file: %v", err)
	}
	if string(data) != "/:type dict\n/:length 0" {
		t.Errorf("config file = %q", data)
	}
	if info, _ := os.Stat(cfg.Path()); info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	if failures := stack.Release(context.Background()); len(failures) != 0 {
		t.Fatalf("Release() failures = %v", failures)
	}
	if _, err := os.Stat(cfg.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("config file still exists after release: %v", err)
	}

	want := []string{
		"hugepages setup",
		"modprobe uio_pci_generic",
		"bind 0000:03:00.0 uio_pci_generic",
		"bind 0000:03:00.1 uio_pci_generic",
		"bind 0000:03:00.1 i40e",
		"bind 0000:03:00.0 ixgbe",
		"hugepages clear",
		"hugepages unmount",
	}
	if !reflect.DeepEqual(host.calls, want) {
		t.Errorf("calls =\n%s\nwant\n%s", strings.Join(host.calls, "\n"), strings.Join(want, "\n"))
	}
}

func TestSteps_SecondBindFails(t *testing.T) {
	host := &fakeHost{failBind: map[string]bool{"0000:03:00.1 uio_pci_generic": true}}
	cfg := &ConfigFile{Dir: t.TempDir()}

	_, err := NewManager().Acquire(context.Background(), fullSequence(host, cfg))
	var acqErr *AcquireError
	if !errors.As(err, &acqErr) {
		t.Fatalf("Acquire() error = %v, want *AcquireError", err)
	}
	if acqErr.Step != BindStepName("0000:03:00.1") {
		t.Errorf("Step = %q", acqErr.Step)
	}
	if cfg.Path() != "" {
		t.Error("config file written although an earlier step failed")
	}

	want := []string{
		"hugepages setup",
		"modprobe uio_pci_generic",
		"bind 0000:03:00.0 uio_pci_generic",
		"bind 0000:03:00.1 uio_pci_generic",
		"bind 0000:03:00.0 ixgbe",
		"hugepages clear",
		"hugepages unmount",
	}
	if !reflect.DeepEqual(host.calls, want) {
		t.Errorf("calls =\n%s\nwant\n%s", strings.Join(host.calls, "\n"), strings.Join(want, "\n"))
	}
}

func TestHugepageStep_ClearFailureStillUnmounts(t *testing.T) {
	host := &fakeHost{failStep: map[string]error{"hugepages clear": errors.New("busy")}}

	stack, err := NewManager().Acquire(context.Background(), []Step{HugepageStep(host, 2097152, 2097152, nil)})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	failures := stack.Release(context.Background())
	if len(failures) != 1 || failures[0].Step != StepHugepages {
		t.Fatalf("failures = %v", failures)
	}
	if host.calls[len(host.calls)-1] != "hugepages unmount" {
		t.Errorf("unmount not attempted after clear failed: %v", host.calls)
	}
}

func TestHugepageStep_VerifyFailure(t *testing.T) {
	host := &fakeHost{}
	notMounted := errors.New("not mounted")

	_, err := NewManager().Acquire(context.Background(), []Step{
		HugepageStep(host, 2097152, 2097152, func() error { return notMounted }),
	})
	if !errors.Is(err, notMounted) {
		t.Fatalf("Acquire() error = %v, want verify error", err)
	}
	want := []string{"hugepages setup", "hugepages clear", "hugepages unmount"}
	if !reflect.DeepEqual(host.calls, want) {
		t.Errorf("calls = %v, want %v", host.calls, want)
	}
}

func TestBindSteps_NoOriginalDriver(t *testing.T) {
	host := &fakeHost{}
	stack, err := NewManager().Acquire(context.Background(),
		BindSteps(host, "vfio-pci", []device.Descriptor{{Name: "eth0", PCIAddress: "0000:05:00.0"}}))
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	failures := stack.Release(context.Background())
	if len(failures) != 1 {
		t.Fatalf("failures = %v, want one", failures)
	}
	if len(host.calls) != 1 {
		t.Errorf("calls = %v, want only the forward bind", host.calls)
	}
}
