// Package appconfig models the configuration file shipped next to a packet
// processing application.
//
// The file is kept as a generic tree so every field reaches the child
// unchanged. Only the fields the launcher itself needs (cores, nics and
// memory) are read into typed form, and only the fields the launcher owns
// (eal_params and the per-NIC dev/drv values) are rewritten.
package appconfig

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nerrad567/pvrun/internal/flatconf"
	"github.com/nerrad567/pvrun/internal/hugepage"
)

// FileName is the configuration file looked up next to the application.
const FileName = "config.yaml"

// NIC is one entry of the nics list.
type NIC struct {
	Index   int    // position in the nics list
	Name    string // interface name as configured, e.g. "eth0"
	RxQueue int64
	TxQueue int64
}

// Memory holds the memory sizing fields.
type Memory struct {
	SharedMemory int64
	PacketPool   int64
}

// Config is a loaded application configuration.
type Config struct {
	Path   string
	Tree   map[string]any
	Cores  []string
	NICs   []NIC
	Memory Memory
}

// DefaultPath returns the configuration path for an application binary.
func DefaultPath(appPath string) (string, error) {
	abs, err := filepath.Abs(appPath)
	if err != nil {
		return "", fmt.Errorf("resolving application path: %w", err)
	}
	return filepath.Join(filepath.Dir(abs), FileName), nil
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		return nil, fmt.Errorf("opening application config: %w", err)
	}
	defer f.Close() //nolint:errcheck // Read-only file

	tree, err := flatconf.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	cfg, err := FromTree(tree)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// FromTree validates a configuration tree and extracts the typed fields.
func FromTree(tree any) (*Config, error) {
	root, ok := tree.(map[string]any)
	if !ok {
		return nil, invalid("/", "top level must be a mapping")
	}

	cfg := &Config{Tree: root}

	cores, err := requireList(root, "cores", "/cores")
	if err != nil {
		return nil, err
	}
	if len(cores) == 0 {
		return nil, invalid("/cores", "at least one core is required")
	}
	for i, c := range cores {
		literal, err := coreLiteral(c)
		if err != nil {
			return nil, invalid(fmt.Sprintf("/cores[%d]", i), err.Error())
		}
		cfg.Cores = append(cfg.Cores, literal)
	}

	nics, err := requireList(root, "nics", "/nics")
	if err != nil {
		return nil, err
	}
	if len(nics) == 0 {
		return nil, invalid("/nics", "at least one nic is required")
	}
	for i, raw := range nics {
		path := fmt.Sprintf("/nics[%d]", i)
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, invalid(path, "must be a mapping")
		}
		nic := NIC{Index: i}
		if nic.Name, err = requireString(entry, "dev", path+"/dev"); err != nil {
			return nil, err
		}
		if nic.RxQueue, err = requireCount(entry, "rx_queue", path+"/rx_queue"); err != nil {
			return nil, err
		}
		if nic.TxQueue, err = requireCount(entry, "tx_queue", path+"/tx_queue"); err != nil {
			return nil, err
		}
		cfg.NICs = append(cfg.NICs, nic)
	}

	memory, ok := root["memory"].(map[string]any)
	if !ok {
		if _, present := root["memory"]; present {
			return nil, invalid("/memory", "must be a mapping")
		}
		return nil, missing("/memory")
	}
	if cfg.Memory.SharedMemory, err = requireCount(memory, "shared_memory", "/memory/shared_memory"); err != nil {
		return nil, err
	}
	if cfg.Memory.PacketPool, err = requireCount(memory, "packet_pool", "/memory/packet_pool"); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DeviceNames returns the configured interface names in configuration order.
func (c *Config) DeviceNames() []string {
	names := make([]string, len(c.NICs))
	for i, nic := range c.NICs {
		names[i] = nic.Name
	}
	return names
}

// HugepageInput returns the sizing input for this configuration.
func (c *Config) HugepageInput() hugepage.Input {
	in := hugepage.Input{
		SharedMemory: c.Memory.SharedMemory,
		PacketPool:   c.Memory.PacketPool,
	}
	for _, nic := range c.NICs {
		in.Queues = append(in.Queues, hugepage.Queue{Rx: nic.RxQueue, Tx: nic.TxQueue})
	}
	return in
}

// EALParams builds the EAL argument list: the core list followed by one
// "-d <lib>" pair per external library.
func (c *Config) EALParams(externalLibs []string) []string {
	params := []string{"-l", strings.Join(c.Cores, ",")}
	for _, lib := range externalLibs {
		params = append(params, "-d", lib)
	}
	return params
}

// SetEALParams replaces eal_params in the tree.
func (c *Config) SetEALParams(params []string) {
	list := make([]any, len(params))
	for i, p := range params {
		list[i] = p
	}
	c.Tree["eal_params"] = list
}

// BindDevice records the resolved PCI address and original driver of the
// NIC at index, replacing the interface name in dev.
func (c *Config) BindDevice(index int, pciAddress, driver string) error {
	nics, _ := c.Tree["nics"].([]any)
	if index < 0 || index >= len(nics) {
		return fmt.Errorf("%w: /nics[%d] out of range", ErrInvalidField, index)
	}
	entry := nics[index].(map[string]any)
	entry["dev"] = pciAddress
	entry["drv"] = driver
	return nil
}

func requireList(m map[string]any, key, path string) ([]any, error) {
	raw, ok := m[key]
	if !ok {
		return nil, missing(path)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, invalid(path, "must be a list")
	}
	return list, nil
}

func requireString(m map[string]any, key, path string) (string, error) {
	raw, ok := m[key]
	if !ok {
		return "", missing(path)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", invalid(path, "must be a non-empty string")
	}
	return s, nil
}

// requireCount reads a non-negative integer field.
func requireCount(m map[string]any, key, path string) (int64, error) {
	raw, ok := m[key]
	if !ok {
		return 0, missing(path)
	}
	n, err := toInt(raw)
	if err != nil {
		return 0, invalid(path, err.Error())
	}
	if n < 0 {
		return 0, invalid(path, "must not be negative")
	}
	return n, nil
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case flatconf.Number:
		if n, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(string(x), 64)
		if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
			return 0, fmt.Errorf("must be an integer, got %s", x)
		}
		return int64(f), nil
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case int32:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > math.MaxInt64 {
			return 0, fmt.Errorf("must be an integer, got %v", x)
		}
		return int64(x), nil
	default:
		return 0, fmt.Errorf("must be an integer, got %T", v)
	}
}

func coreLiteral(v any) (string, error) {
	switch x := v.(type) {
	case flatconf.Number:
		return string(x), nil
	case string:
		if x == "" || strings.ContainsAny(x, " ,") {
			return "", fmt.Errorf("core %q must be a single core id or range", x)
		}
		return x, nil
	case int, int64, int32, uint32:
		return fmt.Sprint(x), nil
	default:
		return "", fmt.Errorf("core must be a number or a range string, got %T", v)
	}
}

func missing(path string) error {
	return fmt.Errorf("%w: %w: %s", flatconf.ErrInvalidShape, ErrMissingField, path)
}

func invalid(path, reason string) error {
	return fmt.Errorf("%w: %w: %s: %s", flatconf.ErrInvalidShape, ErrInvalidField, path, reason)
}
