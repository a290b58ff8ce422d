package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	uuid "github.com/hashicorp/go-uuid"
	"github.com/stephnangue/warrant/logger"
)

// Manager fans audit entries out to registered devices. An entry that fails
// on one device is still delivered to the others; failures are logged, not
// propagated, since auditing must never take the authority down.
type Manager struct {
	mu      sync.RWMutex
	devices map[string]Device
	log     logger.Logger
}

// NewManager creates an audit manager
func NewManager(log logger.Logger) *Manager {
	return &Manager{
		devices: make(map[string]Device),
		log:     log,
	}
}

// RegisterDevice registers a new audit device
func (m *Manager) RegisterDevice(name string, device Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.devices[name]; exists {
		return fmt.Errorf("device %q already registered", name)
	}

	m.devices[name] = device
	return nil
}

// UnregisterDevice closes and removes an audit device
func (m *Manager) UnregisterDevice(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	device, exists := m.devices[name]
	if !exists {
		return fmt.Errorf("device %q not found", name)
	}

	if err := device.Close(); err != nil {
		return fmt.Errorf("failed to close device: %w", err)
	}

	delete(m.devices, name)
	return nil
}

// DeviceCount returns the number of registered devices
func (m *Manager) DeviceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.devices)
}

// Record stamps and delivers an entry to every device. The id and time
// fields are filled in if unset.
func (m *Manager) Record(ctx context.Context, entry *Entry) {
	if entry.ID == "" {
		if id, err := uuid.GenerateUUID(); err == nil {
			entry.ID = id
		}
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, device := range m.devices {
		if err := device.Log(ctx, entry); err != nil {
			m.log.Warn("audit device failed to record entry",
				logger.String("device", name),
				logger.String("entry_id", entry.ID),
				logger.Err(err))
		}
	}
}

// Close closes all devices
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, device := range m.devices {
		if err := device.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close device %q: %w", name, err)
		}
		delete(m.devices, name)
	}
	return firstErr
}
