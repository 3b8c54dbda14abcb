package dpdk

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type call struct {
	name string
	args []string
}

func (c call) String() string {
	return strings.TrimSpace(c.name + " " + strings.Join(c.args, " "))
}

type recordingRunner struct {
	calls  []call
	output string
	err    error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	r.calls = append(r.calls, call{name: name, args: args})
	return r.output, r.err
}

func TestTools_CommandLines(t *testing.T) {
	runner := &recordingRunner{}
	ctx := context.Background()

	hp := NewHugepages(runner, "")
	dev := NewDevbind(runner, "/opt/dpdk/usertools/dpdk-devbind.py")
	mod := NewModprobe(runner, "")

	steps := []func() error{
		func() error { return hp.Setup(ctx, 2097152, 10485760) },
		func() error { return mod.Load(ctx, "uio_pci_generic") },
		func() error { return dev.Bind(ctx, "uio_pci_generic", "0000:03:00.0") },
		func() error { _, err := dev.Status(ctx); return err },
		func() error { return hp.Clear(ctx) },
		func() error { return hp.Unmount(ctx) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step error = %v", err)
		}
	}

	want := []string{
		"dpdk-hugepages.py -p 2097152 --setup 10485760",
		"modprobe uio_pci_generic",
		"/opt/dpdk/usertools/dpdk-devbind.py -b uio_pci_generic 0000:03:00.0",
		"/opt/dpdk/usertools/dpdk-devbind.py --status-dev net",
		"dpdk-hugepages.py -c",
		"dpdk-hugepages.py -u",
	}
	if len(runner.calls) != len(want) {
		t.Fatalf("recorded %d calls, want %d", len(runner.calls), len(want))
	}
	for i, w := range want {
		if got := runner.calls[i].String(); got != w {
			t.Errorf("call %d = %q, want %q", i, got, w)
		}
	}
}

func TestTools_PropagateErrors(t *testing.T) {
	boom := errors.New("exit status 1")
	runner := &recordingRunner{err: boom}

	if err := NewHugepages(runner, "").Setup(context.Background(), 2097152, 2097152); !errors.Is(err, boom) {
		t.Errorf("Setup() error = %v, want %v", err, boom)
	}
	if err := NewDevbind(runner, "").Bind(context.Background(), "ixgbe", "0000:03:00.0"); !errors.Is(err, boom) {
		t.Errorf("Bind() error = %v, want %v", err, boom)
	}
}
