package probe

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nanoagent/nanoagent/internal/model"
)

// intelSysfsPresent is a best-effort check for an Intel GPU under
// /sys/class/drm, the last-resort fallback when neither xpu-smi nor
// intel_gpu_top is installed.
var intelSysfsPresent = func() bool {
	entries, err := os.ReadDir("/sys/class/drm")
	if err != nil {
		return false
	}
	for _, e := range entries {
		vendor := strings.TrimSpace(readFirstLine(filepath.Join("/sys/class/drm", e.Name(), "device/vendor")))
		if vendor == "0x8086" {
			return true
		}
	}
	return false
}()

// readIntelSysfs reports usage as 0 (sysfs alone exposes no global busy
// counter comparable across kernel versions) but still surfaces presence
// with whatever subset of fields sysfs can produce rather than omitting
// the GPU entirely.
func readIntelSysfs() []model.GPURealtime {
	entries, err := os.ReadDir("/sys/class/drm")
	if err != nil {
		return nil
	}
	var out []model.GPURealtime
	for _, e := range entries {
		devPath := filepath.Join("/sys/class/drm", e.Name(), "device")
		vendor := strings.TrimSpace(readFirstLine(filepath.Join(devPath, "vendor")))
		if vendor != "0x8086" {
			continue
		}
		freq := 0
		if raw := strings.TrimSpace(readFirstLine(filepath.Join(devPath, "gt_cur_freq_mhz"))); raw != "" {
			freq, _ = strconv.Atoi(raw)
		}
		out = append(out, model.GPURealtime{Name: "Intel Graphics", ClockMHz: freq})
		break
	}
	return out
}
