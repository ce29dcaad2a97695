package hardware

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// detectTimeout bounds the whole detection pass. Probe tools that hang
// (nvidia-smi on broken drivers) must not stall startup.
const detectTimeout = 10 * time.Second

// Detect probes the machine for usable encoders with tools from PATH.
func Detect(ctx context.Context) Capabilities {
	return DetectWithPaths(ctx, "ffmpeg")
}

// DetectWithPaths probes each encoder family independently. A family
// whose probe fails contributes nothing; detection itself never fails
// because software encoding is always listed.
func DetectWithPaths(ctx context.Context, ffmpegPath string) Capabilities {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	hwaccels := queryHWAccels(ctx, ffmpegPath)
	encoderList := queryEncoderList(ctx, ffmpegPath)

	caps := Capabilities{HWAccels: hwaccels}

	if hasHWAccel(hwaccels, "cuda") {
		caps.Devices = detectNvidiaDevices(ctx)
		caps.Available = append(caps.Available, nvencEncoders(caps.Devices, encoderList)...)
	}

	if amdPresent(ctx) {
		if hasEncoder(encoderList, "h264_amf") {
			caps.Available = append(caps.Available, AmfH264)
		}
		if hasEncoder(encoderList, "hevc_amf") {
			caps.Available = append(caps.Available, AmfH265)
		}
	}

	if intelPresent(ctx) {
		if hasEncoder(encoderList, "h264_qsv") {
			caps.Available = append(caps.Available, QsvH264)
		}
		if hasEncoder(encoderList, "hevc_qsv") {
			caps.Available = append(caps.Available, QsvH265)
		}
		if hasEncoder(encoderList, "av1_qsv") {
			caps.Available = append(caps.Available, QsvAV1)
		}
	}

	if vaapiPresent() && hasEncoder(encoderList, "h264_vaapi") {
		caps.Available = append(caps.Available, Vaapi)
	}

	if videoToolboxPresent() && hasEncoder(encoderList, "h264_videotoolbox") {
		caps.Available = append(caps.Available, VideoToolbox)
	}

	caps.Available = append(caps.Available, Software)
	caps.Preferred = preferredFrom(caps.Available)

	return caps
}

// queryHWAccels runs `ffmpeg -hwaccels` and returns the method names.
func queryHWAccels(ctx context.Context, ffmpegPath string) []string {
	out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-hwaccels").Output()
	if err != nil {
		return nil
	}
	return parseHWAccels(string(out))
}

// parseHWAccels extracts method names from ffmpeg -hwaccels output,
// skipping the header line.
func parseHWAccels(output string) []string {
	var accels []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasSuffix(line, ":") {
			continue
		}
		accels = append(accels, line)
	}
	return accels
}

func hasHWAccel(accels []string, name string) bool {
	for _, a := range accels {
		if a == name {
			return true
		}
	}
	return false
}

// queryEncoderList returns the raw `ffmpeg -encoders` output.
func queryEncoderList(ctx context.Context, ffmpegPath string) string {
	out, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders").Output()
	if err != nil {
		return ""
	}
	return string(out)
}

func hasEncoder(encoderList, name string) bool {
	return strings.Contains(encoderList, name)
}

// detectNvidiaDevices enumerates NVIDIA GPUs via nvidia-smi. When the
// CUDA hwaccel exists but nvidia-smi is unusable, a single conservative
// device is assumed so NVENC H.264 stays usable.
func detectNvidiaDevices(ctx context.Context) []Device {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=index,name,compute_cap,memory.total",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return []Device{fallbackNvidiaDevice()}
	}

	devices := parseNvidiaSMI(string(out))
	if len(devices) == 0 {
		return []Device{fallbackNvidiaDevice()}
	}
	return devices
}

func fallbackNvidiaDevice() Device {
	return Device{
		ID:                    0,
		Name:                  "Unknown NVIDIA GPU",
		VRAMMB:                4096,
		ComputeCapMajor:       6,
		ComputeCapMinor:       0,
		MaxConcurrentSessions: sessionsForComputeCap(6),
		NVENCSupported:        true,
	}
}

// parseNvidiaSMI parses csv,noheader,nounits device query output.
func parseNvidiaSMI(output string) []Device {
	var devices []Device
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		parts := strings.Split(line, ",")
		if len(parts) < 4 {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			continue
		}

		major, minor := parseComputeCap(strings.TrimSpace(parts[2]))
		vram, _ := strconv.ParseUint(strings.TrimSpace(parts[3]), 10, 64)

		devices = append(devices, Device{
			ID:                    id,
			Name:                  strings.TrimSpace(parts[1]),
			VRAMMB:                vram,
			ComputeCapMajor:       major,
			ComputeCapMinor:       minor,
			MaxConcurrentSessions: sessionsForComputeCap(major),
			NVENCSupported:        true,
		})
	}
	return devices
}

// parseComputeCap splits a compute capability like "8.9" into parts.
func parseComputeCap(s string) (int, int) {
	majorStr, minorStr, found := strings.Cut(s, ".")
	major, err := strconv.Atoi(strings.TrimSpace(majorStr))
	if err != nil {
		return 0, 0
	}
	if !found {
		return major, 0
	}
	minor, err := strconv.Atoi(strings.TrimSpace(minorStr))
	if err != nil {
		return major, 0
	}
	return major, minor
}

// sessionsForComputeCap estimates concurrent NVENC session capacity by
// GPU generation.
func sessionsForComputeCap(major int) int {
	switch {
	case major >= 8:
		return 5
	case major == 7:
		return 3
	case major == 6:
		return 2
	default:
		return 1
	}
}

// nvencEncoders gates NVENC variants by the best compute capability
// found and by what the ffmpeg build carries. H.264 works on every NVENC
// generation; HEVC needs Maxwell GM206 (6.x reports 5.2+); AV1 needs Ada
// (8.9).
func nvencEncoders(devices []Device, encoderList string) []Encoder {
	major, minor := bestComputeCap(devices)

	var out []Encoder
	if hasEncoder(encoderList, "h264_nvenc") {
		out = append(out, NvencH264)
	}
	if hasEncoder(encoderList, "hevc_nvenc") && ccAtLeast(major, minor, 5, 2) {
		out = append(out, NvencH265)
	}
	if hasEncoder(encoderList, "av1_nvenc") && ccAtLeast(major, minor, 8, 9) {
		out = append(out, NvencAV1)
	}
	return out
}

func bestComputeCap(devices []Device) (int, int) {
	var major, minor int
	for _, d := range devices {
		if d.ComputeCapMajor > major || (d.ComputeCapMajor == major && d.ComputeCapMinor > minor) {
			major, minor = d.ComputeCapMajor, d.ComputeCapMinor
		}
	}
	return major, minor
}

func ccAtLeast(major, minor, wantMajor, wantMinor int) bool {
	if major != wantMajor {
		return major > wantMajor
	}
	return minor >= wantMinor
}

// amdPresent checks for an AMD GPU using platform tools.
func amdPresent(ctx context.Context) bool {
	switch runtime.GOOS {
	case "linux":
		out, err := exec.CommandContext(ctx, "lspci").Output()
		if err != nil {
			return false
		}
		return lspciHasVendor(string(out), "amd", "ati", "radeon", "advanced micro devices")
	case "windows":
		out, err := exec.CommandContext(ctx, "wmic", "path", "win32_videocontroller", "get", "name").Output()
		if err != nil {
			return false
		}
		lower := strings.ToLower(string(out))
		return strings.Contains(lower, "amd") || strings.Contains(lower, "radeon")
	default:
		return false
	}
}

// intelPresent checks for an Intel GPU: the i915 module, a DRM device
// with Intel's vendor id, or an lspci entry.
func intelPresent(ctx context.Context) bool {
	switch runtime.GOOS {
	case "linux":
		if _, err := os.Stat("/sys/module/i915"); err == nil {
			return true
		}
		if hasDRMVendor("0x8086") {
			return true
		}
		out, err := exec.CommandContext(ctx, "lspci").Output()
		if err != nil {
			return false
		}
		return lspciHasVendor(string(out), "intel")
	case "windows":
		out, err := exec.CommandContext(ctx, "wmic", "path", "win32_videocontroller", "get", "name").Output()
		if err != nil {
			return false
		}
		return strings.Contains(strings.ToLower(string(out)), "intel")
	default:
		return false
	}
}

// lspciHasVendor scans lspci output for display devices from the given
// vendors.
func lspciHasVendor(output string, vendors ...string) bool {
	for _, line := range strings.Split(output, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "vga") && !strings.Contains(lower, "display") && !strings.Contains(lower, "3d controller") {
			continue
		}
		for _, vendor := range vendors {
			if strings.Contains(lower, vendor) {
				return true
			}
		}
	}
	return false
}

// hasDRMVendor reports whether any DRM card carries the vendor id.
func hasDRMVendor(vendor string) bool {
	matches, err := filepath.Glob("/sys/class/drm/card*/device/vendor")
	if err != nil {
		return false
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) == vendor {
			return true
		}
	}
	return false
}

// vaapiPresent requires a render node and a libva install.
func vaapiPresent() bool {
	if runtime.GOOS != "linux" {
		return false
	}

	nodes, err := filepath.Glob("/dev/dri/renderD*")
	if err != nil || len(nodes) == 0 {
		return false
	}

	libvaPaths := []string{
		"/usr/lib/x86_64-linux-gnu/libva.so.2",
		"/usr/lib/aarch64-linux-gnu/libva.so.2",
		"/usr/lib64/libva.so.2",
		"/usr/lib/libva.so.2",
		"/usr/local/lib/libva.so.2",
	}
	for _, path := range libvaPaths {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}

// videoToolboxPresent checks for the macOS VideoToolbox framework.
func videoToolboxPresent() bool {
	if runtime.GOOS != "darwin" {
		return false
	}
	_, err := os.Stat("/System/Library/Frameworks/VideoToolbox.framework")
	return err == nil
}
