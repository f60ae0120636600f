package hue

import (
	"context"
	"fmt"
	"maps"
)

// DeviceNameMap maps bridge light names to bridge-assigned ids. It is built
// once after registration and only read afterwards.
type DeviceNameMap struct {
	ids map[string]string
}

// NewDeviceNameMap copies names into a read-only map.
func NewDeviceNameMap(names map[string]string) DeviceNameMap {
	return DeviceNameMap{ids: maps.Clone(names)}
}

// Lookup returns the id for a device name.
func (m DeviceNameMap) Lookup(name string) (string, bool) {
	id, ok := m.ids[name]
	return id, ok
}

// Len returns the number of known devices.
func (m DeviceNameMap) Len() int {
	return len(m.ids)
}

// Names returns a copy of the mapping.
func (m DeviceNameMap) Names() map[string]string {
	return maps.Clone(m.ids)
}

// DeviceLister lists bridge lights by name.
type DeviceLister interface {
	GetDevices(ctx context.Context) (map[string]string, error)
}

// LoadDeviceNameMap fetches the light list once. An empty bridge is not an
// error; it is logged so the operator can check the lamp names in config.
func LoadDeviceNameMap(ctx context.Context, lister DeviceLister, logger Logger) (DeviceNameMap, error) {
	names, err := lister.GetDevices(ctx)
	if err != nil {
		return DeviceNameMap{}, fmt.Errorf("listing bridge lights: %w", err)
	}

	m := NewDeviceNameMap(names)
	if logger != nil {
		if m.Len() == 0 {
			logger.Warn("bridge reported no lights")
		} else {
			logger.Info("bridge lights loaded", "count", m.Len())
		}
	}
	return m, nil
}
