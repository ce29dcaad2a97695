package hardware

import (
	"context"
	"sync"
)

// SessionPermits is a counting semaphore bounding concurrent encode
// sessions on one device. NVENC rejects encodes past its session limit,
// so sessions must hold a permit before touching the device.
type SessionPermits struct {
	permits chan struct{}
}

// NewSessionPermits creates a permit pool of the given size.
func NewSessionPermits(count int) *SessionPermits {
	if count <= 0 {
		count = 1
	}
	p := &SessionPermits{
		permits: make(chan struct{}, count),
	}
	for i := 0; i < count; i++ {
		p.permits <- struct{}{}
	}
	return p
}

// TryAcquire takes a permit without blocking. Returns false when the
// device is at capacity.
func (p *SessionPermits) TryAcquire() bool {
	select {
	case <-p.permits:
		return true
	default:
		return false
	}
}

// Acquire blocks until a permit is available or the context ends.
func (p *SessionPermits) Acquire(ctx context.Context) error {
	select {
	case <-p.permits:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit to the pool.
func (p *SessionPermits) Release() {
	select {
	case p.permits <- struct{}{}:
	default:
		// Pool is full, this shouldn't happen in normal use
	}
}

// Available returns the number of free permits.
func (p *SessionPermits) Available() int {
	return len(p.permits)
}

// DevicePermits tracks session permits per device id.
type DevicePermits struct {
	mu       sync.Mutex
	byDevice map[int]*SessionPermits
}

// NewDevicePermits builds permit pools sized by each device's session
// capacity.
func NewDevicePermits(devices []Device) *DevicePermits {
	byDevice := make(map[int]*SessionPermits, len(devices))
	for _, d := range devices {
		byDevice[d.ID] = NewSessionPermits(d.MaxConcurrentSessions)
	}
	return &DevicePermits{byDevice: byDevice}
}

// For returns the permit pool for a device. Devices that were not
// detected get a single-session pool.
func (d *DevicePermits) For(deviceID int) *SessionPermits {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.byDevice[deviceID]; ok {
		return p
	}
	p := NewSessionPermits(1)
	d.byDevice[deviceID] = p
	return p
}
