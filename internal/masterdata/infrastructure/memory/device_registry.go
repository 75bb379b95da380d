package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	masterdata "proofing-monitor/internal/masterdata/domain"
)

// DeviceRegistry is an in-memory device registry.
type DeviceRegistry struct {
	mu      sync.RWMutex
	nextID  int64
	devices map[string]masterdata.Device
}

// NewDeviceRegistry constructs an in-memory registry.
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{devices: make(map[string]masterdata.Device)}
}

// Upsert inserts or updates a device by name.
func (r *DeviceRegistry) Upsert(ctx context.Context, device *masterdata.Device) error {
	_ = ctx
	if device == nil {
		return errors.New("device registry: nil device")
	}
	if err := device.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.devices[device.Name]; ok {
		device.ID = existing.ID
	} else {
		r.nextID++
		device.ID = r.nextID
	}
	if device.LastUpdated.IsZero() {
		device.LastUpdated = time.Now()
	}
	device.LastUpdated = device.LastUpdated.UTC().Truncate(time.Second)
	r.devices[device.Name] = *device
	return nil
}

// Get loads a device by name.
func (r *DeviceRegistry) Get(ctx context.Context, name string) (*masterdata.Device, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	device, ok := r.devices[name]
	if !ok {
		return nil, nil
	}
	return &device, nil
}

// List returns all devices ordered by id.
func (r *DeviceRegistry) List(ctx context.Context) ([]masterdata.Device, error) {
	return r.filter(ctx, func(masterdata.Device) bool { return true }), nil
}

// ListPending returns flagged devices ordered by id.
func (r *DeviceRegistry) ListPending(ctx context.Context) ([]masterdata.Device, error) {
	return r.filter(ctx, func(d masterdata.Device) bool { return d.PendingChange }), nil
}

// MarkProcessed clears the pending flag of device id.
func (r *DeviceRegistry) MarkProcessed(ctx context.Context, id int64, at time.Time) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, device := range r.devices {
		if device.ID != id {
			continue
		}
		device.PendingChange = false
		device.LastUpdated = at.UTC().Truncate(time.Second)
		r.devices[name] = device
		return nil
	}
	return masterdata.ErrDeviceNotFound
}

func (r *DeviceRegistry) filter(ctx context.Context, keep func(masterdata.Device) bool) []masterdata.Device {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]masterdata.Device, 0, len(r.devices))
	for _, device := range r.devices {
		if keep(device) {
			result = append(result, device)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
