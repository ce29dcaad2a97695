package hardware

import (
	"context"
	"sync"
)

// Device describes one NVIDIA GPU found during detection.
type Device struct {
	ID                    int
	Name                  string
	VRAMMB                uint64
	MaxConcurrentSessions int
	ComputeCapMajor       int
	ComputeCapMinor       int
	NVENCSupported        bool
}

// Capabilities describes every encoder usable on this machine. Built by
// detection and read-only afterward; Software is always listed.
type Capabilities struct {
	Available []Encoder
	Devices   []Device
	Preferred Encoder
	HWAccels  []string
}

// Has reports whether an encoder was detected as usable.
func (c *Capabilities) Has(enc Encoder) bool {
	for _, have := range c.Available {
		if have == enc {
			return true
		}
	}
	return false
}

// HardwareCount returns how many hardware encoders are available.
func (c *Capabilities) HardwareCount() int {
	count := 0
	for _, enc := range c.Available {
		if enc.IsHardware() {
			count++
		}
	}
	return count
}

// Device returns the detected device with the given id, or nil.
func (c *Capabilities) Device(id int) *Device {
	for i := range c.Devices {
		if c.Devices[i].ID == id {
			return &c.Devices[i]
		}
	}
	return nil
}

// preferredFrom picks the fastest available encoder, hardware first.
func preferredFrom(available []Encoder) Encoder {
	for _, enc := range PriorityOrder() {
		for _, have := range available {
			if enc == have {
				return enc
			}
		}
	}
	return Software
}

// EstimateMemoryMB estimates working memory for one encode session:
// a fixed base plus a backend-dependent share. CUDA sessions scale with
// device VRAM up to a cap.
func EstimateMemoryMB(enc Encoder, devices []Device) uint64 {
	const baseMB = 100

	switch {
	case enc.UsesCUDA() && len(devices) > 0:
		extra := devices[0].VRAMMB / 8
		if extra > 512 {
			extra = 512
		}
		return baseMB + extra
	case enc.IsHardware():
		return baseMB + 128
	default:
		return baseMB + 256
	}
}

// Registry caches detection results for the process lifetime. Detection
// runs at most once; Refresh forces a new pass for hotplug or driver
// changes.
type Registry struct {
	ffmpegPath string

	mu      sync.RWMutex
	once    sync.Once
	caps    Capabilities
	permits *DevicePermits
}

// NewRegistry creates a registry that probes with the given ffmpeg
// binary. Detection is deferred until first use.
func NewRegistry(ffmpegPath string) *Registry {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Registry{ffmpegPath: ffmpegPath}
}

// Get returns the cached capabilities, detecting on first call.
func (r *Registry) Get(ctx context.Context) Capabilities {
	r.once.Do(func() { r.detect(ctx) })

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps
}

// Refresh forces re-detection and returns the new capabilities.
func (r *Registry) Refresh(ctx context.Context) Capabilities {
	// Mark the once as used so Get never races a second detection
	r.once.Do(func() {})
	r.detect(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps
}

// Permits returns the per-device session permit pools, detecting first
// if needed.
func (r *Registry) Permits(ctx context.Context) *DevicePermits {
	r.once.Do(func() { r.detect(ctx) })

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.permits
}

func (r *Registry) detect(ctx context.Context) {
	caps := DetectWithPaths(ctx, r.ffmpegPath)

	r.mu.Lock()
	r.caps = caps
	r.permits = NewDevicePermits(caps.Devices)
	r.mu.Unlock()
}
