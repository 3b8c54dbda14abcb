package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DefaultSysfsRoot is where sysfs is normally mounted.
const DefaultSysfsRoot = "/sys"

// SysfsInventory lists PCI network interfaces from sysfs. Interfaces that
// are not backed by a PCI function (loopback, bridges, tunnels) are skipped.
type SysfsInventory struct {
	root string
}

// NewSysfsInventory reads from root, or DefaultSysfsRoot when root is empty.
// Tests point root at a synthetic tree.
func NewSysfsInventory(root string) *SysfsInventory {
	if root == "" {
		root = DefaultSysfsRoot
	}
	return &SysfsInventory{root: root}
}

// Devices walks <root>/class/net.
func (s *SysfsInventory) Devices(_ context.Context) ([]Descriptor, error) {
	netDir := filepath.Join(s.root, "class", "net")
	entries, err := os.ReadDir(netDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInventory, err)
	}

	var devices []Descriptor
	for _, entry := range entries {
		name := entry.Name()
		deviceLink := filepath.Join(netDir, name, "device")

		target, err := os.Readlink(deviceLink)
		if err != nil {
			// Virtual interfaces have no device link.
			continue
		}
		addr := filepath.Base(target)
		if !ValidPCIAddress(addr) {
			continue
		}

		driver := ""
		if drvTarget, err := os.Readlink(filepath.Join(deviceLink, "driver")); err == nil {
			driver = filepath.Base(drvTarget)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: reading driver of %s: %w", ErrInventory, name, err)
		}

		devices = append(devices, Descriptor{
			Name:       name,
			PCIAddress: addr,
			Driver:     driver,
			Active:     operstateUp(filepath.Join(netDir, name, "operstate")),
		})
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].PCIAddress < devices[j].PCIAddress })
	return devices, nil
}

func operstateUp(path string) bool {
	data, err := os.ReadFile(path) //nolint:gosec // sysfs path
	if err != nil {
		return false
	}
	return string(data) == "up\n" || string(data) == "up"
}
