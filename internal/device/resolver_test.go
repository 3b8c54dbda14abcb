package device

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const sampleStatus = `
Network devices using DPDK-compatible driver
============================================
0000:01:00.0 'Ethernet Controller X710 for 10GbE SFP+ 1572' drv=vfio-pci unused=i40e

Network devices using kernel driver
===================================
0000:00:19.0 'Ethernet Connection I217-LM 153a' if=eno1 drv=e1000e unused=vfio-pci *Active*
0000:03:00.0 '82599ES 10-Gigabit SFI/SFP+ Network Connection 10fb' if=ens1f0 drv=ixgbe unused=vfio-pci
0000:03:00.1 '82599ES 10-Gigabit SFI/SFP+ Network Connection 10fb' if=ens1f1 drv=ixgbe unused=vfio-pci
0000:0a:00.0 'Virtio network device 1000' if=eth0 drv=virtio-pci unused=vfio-pci

Other Network devices
=====================
0000:05:00.0 'I350 Gigabit Network Connection 1521' unused=igb
`

type fakeReporter struct {
	report string
	err    error
	calls  int
}

func (f *fakeReporter) Status(context.Context) (string, error) {
	f.calls++
	return f.report, f.err
}

func TestParseStatus(t *testing.T) {
	devices := ParseStatus(sampleStatus)
	if len(devices) != 5 {
		t.Fatalf("len(ParseStatus()) = %d, want 5: %+v", len(devices), devices)
	}

	first := devices[0]
	if first.Name != "" || first.Driver != "vfio-pci" || first.PCIAddress != "0000:01:00.0" {
		t.Errorf("devices[0] = %+v", first)
	}
	eno1 := devices[1]
	if eno1.Name != "eno1" || eno1.Driver != "e1000e" || !eno1.Active {
		t.Errorf("devices[1] = %+v", eno1)
	}
	if devices[4].PCIAddress != "0000:0a:00.0" {
		t.Errorf("hex PCI address not parsed: %+v", devices[4])
	}
	if devices[2].Model != "82599ES 10-Gigabit SFI/SFP+ Network Connection 10fb" {
		t.Errorf("Model = %q", devices[2].Model)
	}
}

func TestResolver_ResolveAll(t *testing.T) {
	reporter := &fakeReporter{report: sampleStatus}
	r := NewResolver(NewDevbindInventory(reporter))
	ctx := context.Background()

	descs, err := r.ResolveAll(ctx, []string{"ens1f1", "ens1f0"})
	if err != nil {
		t.Fatalf("ResolveAll() error = %v", err)
	}
	if descs[0].PCIAddress != "0000:03:00.1" || descs[1].PCIAddress != "0000:03:00.0" {
		t.Errorf("ResolveAll() order = %+v, want configuration order", descs)
	}

	if _, err := r.Resolve(ctx, "eth0"); err != nil {
		t.Errorf("Resolve(eth0) error = %v", err)
	}
	if reporter.calls != 1 {
		t.Errorf("status reporter called %d times, want 1", reporter.calls)
	}
}

func TestResolver_NotFound(t *testing.T) {
	r := NewResolver(NewDevbindInventory(&fakeReporter{report: sampleStatus}))

	_, err := r.ResolveAll(context.Background(), []string{"ens1f0", "eth9", "wlan0"})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("ResolveAll() error = %v, want ErrDeviceNotFound", err)
	}
	for _, name := range []string{"eth9", "wlan0"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q should name %s", err, name)
		}
	}

	// Devices bound to a userspace driver have no name to look up.
	if _, err := r.Resolve(context.Background(), ""); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Resolve(\"\") error = %v, want ErrDeviceNotFound", err)
	}
}

func TestResolver_InventoryError(t *testing.T) {
	boom := errors.New("exit status 1")
	r := NewResolver(NewDevbindInventory(&fakeReporter{err: boom}))

	_, err := r.Resolve(context.Background(), "eth0")
	if !errors.Is(err, ErrInventory) || !errors.Is(err, boom) {
		t.Fatalf("Resolve() error = %v, want ErrInventory wrapping the reporter error", err)
	}
}

func TestResolver_Devices(t *testing.T) {
	r := NewResolver(NewDevbindInventory(&fakeReporter{report: sampleStatus}))
	devices, err := r.Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	for i := 1; i < len(devices); i++ {
		if devices[i-1].PCIAddress > devices[i].PCIAddress {
			t.Errorf("Devices() not sorted at %d: %s > %s", i, devices[i-1].PCIAddress, devices[i].PCIAddress)
		}
	}
}
