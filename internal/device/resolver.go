package device

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Logger defines the logging interface used by the Resolver.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Resolver maps interface names to descriptors.
//
// The inventory is read at most once; every lookup after the first is
// answered from the cached snapshot. The snapshot is never refreshed, so
// the Driver of a descriptor is always the driver seen before this run
// changed anything.
type Resolver struct {
	inventory Inventory
	logger    Logger

	mu      sync.Mutex
	loaded  bool
	devices []Descriptor
	byName  map[string]Descriptor
}

// NewResolver creates a resolver over inventory.
func NewResolver(inventory Inventory) *Resolver {
	return &Resolver{
		inventory: inventory,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the resolver.
func (r *Resolver) SetLogger(logger Logger) {
	r.logger = logger
}

func (r *Resolver) snapshot(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return nil
	}

	devices, err := r.inventory.Devices(ctx)
	if err != nil {
		return err
	}

	byName := make(map[string]Descriptor, len(devices))
	for _, d := range devices {
		if d.Name == "" {
			continue
		}
		if prev, dup := byName[d.Name]; dup {
			r.logger.Warn("interface name reported twice, keeping first",
				"name", d.Name, "kept", prev.PCIAddress, "ignored", d.PCIAddress)
			continue
		}
		byName[d.Name] = d
	}

	r.devices = devices
	r.byName = byName
	r.loaded = true
	r.logger.Debug("device inventory loaded", "devices", len(devices), "named", len(byName))
	return nil
}

// Resolve returns the descriptor for an interface name.
func (r *Resolver) Resolve(ctx context.Context, name string) (Descriptor, error) {
	if err := r.snapshot(ctx); err != nil {
		return Descriptor{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
	}
	return d, nil
}

// ResolveAll resolves names in order. It fails without partial results if
// any name is unknown, naming every missing interface.
func (r *Resolver) ResolveAll(ctx context.Context, names []string) ([]Descriptor, error) {
	if err := r.snapshot(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Descriptor, 0, len(names))
	var missing []string
	for _, name := range names {
		d, ok := r.byName[name]
		if !ok {
			missing = append(missing, fmt.Sprintf("%q", name))
			continue
		}
		out = append(out, d)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, strings.Join(missing, ", "))
	}
	return out, nil
}

// Devices returns every device in the snapshot, ordered by PCI address.
func (r *Resolver) Devices(ctx context.Context) ([]Descriptor, error) {
	if err := r.snapshot(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Descriptor, len(r.devices))
	copy(out, r.devices)
	sort.Slice(out, func(i, j int) bool { return out[i].PCIAddress < out[j].PCIAddress })
	return out, nil
}
