package device

import "regexp"

// Descriptor identifies a network device and the driver it was bound to
// when the snapshot was taken.
type Descriptor struct {
	Name       string `json:"name"`             // interface name, empty when no kernel driver owns it
	PCIAddress string `json:"pci_address"`      // domain:bus:device.function
	Driver     string `json:"driver"`           // original driver, restored on release
	Model      string `json:"model,omitempty"`  // vendor description when known
	Active     bool   `json:"active,omitempty"` // interface is in use by the host
}

var pciAddressPattern = regexp.MustCompile(`^(?:[0-9A-Fa-f]{4}:)?[0-9A-Fa-f]{2}:[0-9A-Fa-f]{2}\.[0-7]$`)

// ValidPCIAddress reports whether addr is in bus:device.function form, with
// or without the leading domain.
func ValidPCIAddress(addr string) bool {
	return pciAddressPattern.MatchString(addr)
}
