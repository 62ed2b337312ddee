package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/born-ml/devmem/internal/device"
	"github.com/born-ml/devmem/internal/logger"
	"github.com/born-ml/devmem/internal/tensor"
)

// AllocatorFactory builds a device-specific allocator. config is the pool
// configuration of the requesting manager. Returning a nil Allocator and nil
// error declines, and the manager falls back to its built-in naive or pooled
// allocator.
type AllocatorFactory func(dev tensor.Device, typ AllocatorType, config PoolConfig) (Allocator, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[tensor.DeviceType]AllocatorFactory)
)

// RegisterAllocatorFactory installs f for every device of type t.
// Device backends call it once at startup.
func RegisterAllocatorFactory(t tensor.DeviceType, f AllocatorFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[t] = f
}

// UnregisterAllocatorFactory removes the factory for t.
func UnregisterAllocatorFactory(t tensor.DeviceType) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	delete(factories, t)
}

func lookupFactory(t tensor.DeviceType) AllocatorFactory {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return factories[t]
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	poolConfig PoolConfig
}

// WithPoolConfig sets the configuration of the pooled allocators the manager builds.
func WithPoolConfig(config PoolConfig) ManagerOption {
	return func(o *managerOptions) {
		o.poolConfig = config
	}
}

// Manager owns one allocator per (device, allocator type) pair.
// Allocators are created on first request and live as long as the manager.
type Manager struct {
	mu         sync.Mutex
	allocators map[tensor.Device]map[AllocatorType]Allocator
	poolConfig PoolConfig
}

// NewManager creates an empty manager.
func NewManager(opts ...ManagerOption) *Manager {
	options := &managerOptions{
		poolConfig: DefaultPoolConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}
	return &Manager{
		allocators: make(map[tensor.Device]map[AllocatorType]Allocator),
		poolConfig: options.poolConfig,
	}
}

var (
	globalOnce    sync.Once
	globalManager *Manager
)

// Global returns the process-wide manager. It is created on first use and
// never torn down; Clear is the only way to give its memory back.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
	})
	return globalManager
}

// GetOrCreateAllocator returns the allocator for dev and typ, creating it on
// the first request. Later calls return the same instance.
func (m *Manager) GetOrCreateAllocator(dev tensor.Device, typ AllocatorType) (Allocator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byType := m.allocators[dev]
	if alloc, ok := byType[typ]; ok {
		return alloc, nil
	}

	alloc, err := m.newAllocator(dev, typ)
	if err != nil {
		return nil, err
	}
	if byType == nil {
		byType = make(map[AllocatorType]Allocator)
		m.allocators[dev] = byType
	}
	byType[typ] = alloc
	return alloc, nil
}

// GetAllocator returns an allocator created earlier by GetOrCreateAllocator.
func (m *Manager) GetAllocator(dev tensor.Device, typ AllocatorType) (Allocator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byType, ok := m.allocators[dev]
	if !ok {
		return nil, fmt.Errorf("%w: allocator for %s", ErrAllocatorNotFound, dev)
	}
	alloc, ok := byType[typ]
	if !ok {
		return nil, fmt.Errorf("%w: allocator for %s of type %s", ErrAllocatorNotFound, dev, typ)
	}
	return alloc, nil
}

// Clear asks every allocator to return its cached memory to the device.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, byType := range m.allocators {
		for _, alloc := range byType {
			alloc.Clear()
		}
	}
}

// AllocatorStats describes one allocator owned by a Manager.
type AllocatorStats struct {
	Device    tensor.Device
	Type      AllocatorType
	UsedBytes uint64
	Pool      *PoolStats // nil for allocators that don't pool
}

// Snapshot returns the stats of every allocator, ordered by device and type.
func (m *Manager) Snapshot() []AllocatorStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []AllocatorStats
	for dev, byType := range m.allocators {
		for typ, alloc := range byType {
			st := AllocatorStats{Device: dev, Type: typ, UsedBytes: alloc.UsedMemory()}
			if ps, ok := poolStats(alloc); ok {
				st.Pool = &ps
			}
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Device.Type != b.Device.Type {
			return a.Device.Type < b.Device.Type
		}
		if a.Device.ID != b.Device.ID {
			return a.Device.ID < b.Device.ID
		}
		return a.Type < b.Type
	})
	return out
}

// poolStats finds the pool counters of alloc, looking through decorating allocators.
func poolStats(alloc Allocator) (PoolStats, bool) {
	for {
		if p, ok := alloc.(interface{ Stats() PoolStats }); ok {
			return p.Stats(), true
		}
		u, ok := alloc.(interface{ Unwrap() Allocator })
		if !ok {
			return PoolStats{}, false
		}
		alloc = u.Unwrap()
	}
}

// newAllocator consults the device factory, then falls back to the built-in strategies.
func (m *Manager) newAllocator(dev tensor.Device, typ AllocatorType) (Allocator, error) {
	if factory := lookupFactory(dev.Type); factory != nil {
		alloc, err := factory(dev, typ, m.poolConfig)
		if err != nil {
			return nil, fmt.Errorf("memory: %s allocator factory for %s: %w", typ, dev, err)
		}
		if alloc != nil {
			logger.L.Debug("new device allocator", "device", dev.String(), "type", typ.String())
			return alloc, nil
		}
	}

	if typ != Naive && typ != Pooled {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAllocatorType, int(typ))
	}
	api, err := device.Get(dev.Type)
	if err != nil {
		return nil, err
	}
	if typ == Naive {
		logger.L.Debug("new naive allocator", "device", dev.String())
		return NewNaiveAllocator(api), nil
	}
	logger.L.Debug("new pooled allocator", "device", dev.String())
	return NewPooledAllocator(api, m.poolConfig), nil
}

// GetOrCreateAllocator returns the global manager's allocator for dev and typ.
func GetOrCreateAllocator(dev tensor.Device, typ AllocatorType) (Allocator, error) {
	return Global().GetOrCreateAllocator(dev, typ)
}

// GetAllocator returns an existing allocator from the global manager.
func GetAllocator(dev tensor.Device, typ AllocatorType) (Allocator, error) {
	return Global().GetAllocator(dev, typ)
}

// Clear releases cached memory held by every allocator of the global manager.
func Clear() {
	Global().Clear()
}
