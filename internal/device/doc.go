// Package device resolves network interface names to the PCI address and
// kernel driver they are bound to.
//
// A Resolver takes one snapshot of the host's network devices from an
// Inventory and answers every lookup for the run from that snapshot, so all
// configured devices are known to exist before any binding is changed.
//
// Two inventories are provided:
//
//   - DevbindInventory parses the status report of dpdk-devbind.py.
//   - SysfsInventory reads /sys/class/net directly, for hosts without the
//     DPDK scripts installed.
//
// # Usage
//
//	resolver := device.NewResolver(device.NewDevbindInventory(devbind))
//	descs, err := resolver.ResolveAll(ctx, []string{"eth0", "eth1"})
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // fatal: nothing has been touched yet
//	}
package device
