package device

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Inventory lists the network devices visible to the host.
type Inventory interface {
	Devices(ctx context.Context) ([]Descriptor, error)
}

// StatusReporter returns the text of "dpdk-devbind.py --status-dev net".
type StatusReporter interface {
	Status(ctx context.Context) (string, error)
}

// statusLine matches one device line of the devbind status report:
//
//	0000:00:19.0 'Ethernet Connection I217-LM 153a' if=eno1 drv=e1000e unused=vfio-pci *Active*
//	0000:01:00.0 'Ethernet Controller X710 1572' drv=vfio-pci unused=i40e
var statusLine = regexp.MustCompile(`(?m)^(?P<pci>[0-9A-Fa-f:.]+) '(?P<model>[^']+)' (?:if=(?P<ifname>\S+) )?drv=(?P<drv>\S+)(?P<rest>.*)$`)

// ParseStatus extracts every device line from a devbind status report.
// Devices with no driver bound are not listed by devbind with a drv= field
// and are skipped.
func ParseStatus(report string) []Descriptor {
	var devices []Descriptor
	for _, m := range statusLine.FindAllStringSubmatch(report, -1) {
		devices = append(devices, Descriptor{
			PCIAddress: m[statusLine.SubexpIndex("pci")],
			Model:      m[statusLine.SubexpIndex("model")],
			Name:       m[statusLine.SubexpIndex("ifname")],
			Driver:     m[statusLine.SubexpIndex("drv")],
			Active:     strings.Contains(m[statusLine.SubexpIndex("rest")], "*Active*"),
		})
	}
	return devices
}

// DevbindInventory reads devices from the devbind status report.
type DevbindInventory struct {
	reporter StatusReporter
}

// NewDevbindInventory creates an inventory backed by reporter.
func NewDevbindInventory(reporter StatusReporter) *DevbindInventory {
	return &DevbindInventory{reporter: reporter}
}

// Devices runs the status report once and parses it.
func (i *DevbindInventory) Devices(ctx context.Context) ([]Descriptor, error) {
	report, err := i.reporter.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInventory, err)
	}
	return ParseStatus(report), nil
}
