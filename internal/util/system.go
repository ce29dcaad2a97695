package util

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemInfo contains information about the host system.
type SystemInfo struct {
	Hostname      string
	OS            string
	Platform      string
	Arch          string
	CPUModel      string
	LogicalCores  int
	PhysicalCores int
	TotalMemoryMB uint64
}

// GetSystemInfo collects system information. Every field degrades gracefully:
// a probe that fails leaves the runtime-derived fallback in place.
func GetSystemInfo() SystemInfo {
	info := SystemInfo{
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		LogicalCores:  runtime.NumCPU(),
		PhysicalCores: runtime.NumCPU(),
	}
	info.Hostname, _ = os.Hostname()

	if hi, err := host.Info(); err == nil {
		if hi.Hostname != "" {
			info.Hostname = hi.Hostname
		}
		info.Platform = hi.Platform
	}

	if physical, err := cpu.Counts(false); err == nil && physical > 0 {
		info.PhysicalCores = physical
	}

	if cpus, err := cpu.Info(); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemoryMB = vm.Total / MiB
	}

	return info
}

// AvailableMemoryBytes returns the available memory in bytes.
// Returns 0 if memory cannot be determined.
func AvailableMemoryBytes() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return vm.Available
}

// LogicalCores returns the number of logical CPU cores (includes hyperthreads).
func LogicalCores() int {
	return runtime.NumCPU()
}

// PhysicalCores returns the number of physical CPU cores.
// Falls back to LogicalCores()/2 if detection fails.
func PhysicalCores() int {
	if physical, err := cpu.Counts(false); err == nil && physical > 0 {
		return physical
	}
	logical := LogicalCores()
	if logical > 1 {
		return logical / 2
	}
	return 1
}

// MaxConcurrentForMemory calculates how many encode sessions can run at once
// given an estimated per-session memory requirement.
// memFraction is the fraction of available memory to use (e.g., 0.7 for 70%).
// Returns at least 1.
func MaxConcurrentForMemory(sessionMemBytes uint64, memFraction float64) int {
	available := AvailableMemoryBytes()
	if available == 0 {
		return 1 // Can't determine memory, be conservative
	}

	usable := uint64(float64(available) * memFraction)
	if usable < sessionMemBytes {
		return 1
	}

	sessions := int(usable / sessionMemBytes)
	return max(sessions, 1)
}
