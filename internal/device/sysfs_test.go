package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// buildSysfs creates a minimal sysfs tree:
//
//	class/net/<if>/device -> ../../../devices/pci0000:00/<pci>
//	devices/pci0000:00/<pci>/driver -> ../../../bus/pci/drivers/<drv>
func buildSysfs(t *testing.T, ifaces map[string][2]string, virtual ...string) string {
	t.Helper()
	root := t.TempDir()

	for name, dev := range ifaces {
		pci, drv := dev[0], dev[1]
		pciDir := filepath.Join(root, "devices", "pci0000:00", pci)
		netDir := filepath.Join(root, "class", "net", name)
		mustMkdir(t, pciDir)
		mustMkdir(t, netDir)
		mustMkdir(t, filepath.Join(root, "bus", "pci", "drivers", drv))

		if err := os.Symlink(pciDir, filepath.Join(netDir, "device")); err != nil {
			t.Fatal(err)
		}
		if err := os.Symlink(filepath.Join(root, "bus", "pci", "drivers", drv), filepath.Join(pciDir, "driver")); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(netDir, "operstate"), []byte("up\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range virtual {
		mustMkdir(t, filepath.Join(root, "class", "net", name))
	}
	return root
}

func mustMkdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestSysfsInventory_Devices(t *testing.T) {
	root := buildSysfs(t, map[string][2]string{
		"ens1f1": {"0000:03:00.1", "ixgbe"},
		"ens1f0": {"0000:03:00.0", "ixgbe"},
	}, "lo", "br0")

	devices, err := NewSysfsInventory(root).Devices(context.Background())
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len(Devices()) = %d, want 2: %+v", len(devices), devices)
	}
	if devices[0].Name != "ens1f0" || devices[0].PCIAddress != "0000:03:00.0" || devices[0].Driver != "ixgbe" {
		t.Errorf("devices[0] = %+v", devices[0])
	}
	if !devices[1].Active {
		t.Errorf("devices[1].Active = false, want true")
	}

	r := NewResolver(NewSysfsInventory(root))
	d, err := r.Resolve(context.Background(), "ens1f1")
	if err != nil || d.PCIAddress != "0000:03:00.1" {
		t.Errorf("Resolve(ens1f1) = %+v, %v", d, err)
	}
}

func TestSysfsInventory_MissingRoot(t *testing.T) {
	_, err := NewSysfsInventory(filepath.Join(t.TempDir(), "nope")).Devices(context.Background())
	if err == nil {
		t.Fatal("Devices() error = nil, want error for missing sysfs")
	}
}

func TestValidPCIAddress(t *testing.T) {
	tests := map[string]bool{
		"0000:03:00.0": true,
		"03:00.1":      true,
		"0000:0a:1f.7": true,
		"0000:03:00.8": false,
		"eth0":         false,
		"":             false,
	}
	for addr, want := range tests {
		if got := ValidPCIAddress(addr); got != want {
			t.Errorf("ValidPCIAddress(%q) = %v, want %v", addr, got, want)
		}
	}
}
