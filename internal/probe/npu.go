// NPU probe: Intel xpu-smi / /sys/class/accel for Intel NPUs, and
// Huawei Ascend's npu-smi info for Ascend accelerators. Same union +
// cache shape as gpu.go, factored separately because the two have
// disjoint vendor sets and no shared CLI surface.
package probe

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/subprocess"
)

type VendorNPUProbe interface {
	Name() string
	Available(ctx context.Context) bool
	CollectStatic(ctx context.Context) []model.NPUStatic
	CollectRealtime(ctx context.Context) []model.NPURealtime
}

type NPUCollector struct {
	probes []VendorNPUProbe

	mu         sync.Mutex
	cachedAt   time.Time
	staticOnce sync.Once
	staticVal  []model.NPUStatic
	rtVal      []model.NPURealtime
}

func NewNPUCollector(avail *subprocess.AvailabilityCache) *NPUCollector {
	return &NPUCollector{
		probes: []VendorNPUProbe{
			&intelNPUProbe{avail: avail},
			&ascendNPUProbe{avail: avail},
		},
	}
}

func (c *NPUCollector) CollectStatic(ctx context.Context) []model.NPUStatic {
	c.staticOnce.Do(func() {
		var out []model.NPUStatic
		for _, p := range c.probes {
			if p.Available(ctx) {
				out = append(out, p.CollectStatic(ctx)...)
			}
		}
		c.staticVal = out
	})
	return c.staticVal
}

func (c *NPUCollector) CollectRealtime(ctx context.Context) []model.NPURealtime {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.cachedAt) < gpuCacheTTL && c.cachedAt != (time.Time{}) {
		return c.rtVal
	}

	var out []model.NPURealtime
	for _, p := range c.probes {
		if p.Available(ctx) {
			out = append(out, p.CollectRealtime(ctx)...)
		}
	}
	c.rtVal = out
	c.cachedAt = time.Now()
	return out
}

// --- Intel NPU: xpu-smi discovery/stats filtered to device type "npu",
// falling back to /sys/class/accel presence only. ---

type intelNPUProbe struct {
	avail *subprocess.AvailabilityCache
}

func (p *intelNPUProbe) Name() string { return "intel-npu" }

func (p *intelNPUProbe) Available(ctx context.Context) bool {
	return p.avail.Available(ctx, "xpu-smi") || accelSysfsPresent()
}

func (p *intelNPUProbe) CollectStatic(ctx context.Context) []model.NPUStatic {
	if p.avail.Available(ctx, "xpu-smi") {
		res, err := subprocess.Run(ctx, "xpu-smi", []string{"discovery", "-j"}, subprocess.SlowTimeout)
		if err == nil && res.Outcome == subprocess.Success && strings.Contains(res.Stdout, "npu") {
			return []model.NPUStatic{{Name: "Intel NPU", Vendor: "intel"}}
		}
	}
	if accelSysfsPresent() {
		return []model.NPUStatic{{Name: "Intel NPU", Vendor: "intel"}}
	}
	return nil
}

func (p *intelNPUProbe) CollectRealtime(ctx context.Context) []model.NPURealtime {
	if !p.avail.Available(ctx, "xpu-smi") {
		return nil
	}
	res, err := subprocess.Run(ctx, "xpu-smi", []string{"stats", "-d", "0"}, subprocess.SlowTimeout)
	if err != nil || res.Outcome != subprocess.Success {
		return nil
	}
	var usage, mem, temp float64
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch {
		case strings.Contains(line, "NPU Utilization"), strings.Contains(line, "Engine Utilization"):
			usage, _ = strconv.ParseFloat(strings.TrimRight(fields[len(fields)-1], "%"), 64)
		case strings.Contains(line, "Memory Used"):
			mem, _ = strconv.ParseFloat(fields[len(fields)-1], 64)
		case strings.Contains(line, "Temperature"):
			temp, _ = strconv.ParseFloat(fields[len(fields)-1], 64)
		}
	}
	return []model.NPURealtime{{Name: "Intel NPU", UsagePercent: usage, MemUsedBytes: uint64(mem) * 1024 * 1024, TemperatureC: temp}}
}

func accelSysfsPresent() bool {
	return dirExists("/sys/class/accel")
}

// --- Huawei Ascend: npu-smi info ---

type ascendNPUProbe struct {
	avail *subprocess.AvailabilityCache
}

func (p *ascendNPUProbe) Name() string { return "ascend" }

func (p *ascendNPUProbe) Available(ctx context.Context) bool {
	return p.avail.Available(ctx, "npu-smi", "info")
}

func (p *ascendNPUProbe) info(ctx context.Context) string {
	res, err := subprocess.Run(ctx, "npu-smi", []string{"info"}, subprocess.SlowTimeout)
	if err != nil || res.Outcome != subprocess.Success {
		return ""
	}
	return res.Stdout
}

func (p *ascendNPUProbe) CollectStatic(ctx context.Context) []model.NPUStatic {
	raw := p.info(ctx)
	if raw == "" {
		return nil
	}
	var out []model.NPUStatic
	for _, line := range strings.Split(raw, "\n") {
		if strings.Contains(line, "Ascend") {
			out = append(out, model.NPUStatic{Name: strings.TrimSpace(fieldsJoin(line)), Vendor: "huawei-ascend"})
		}
	}
	if len(out) == 0 {
		// npu-smi responded but the output shape didn't match; still
		// record presence so the union isn't silently empty.
		out = append(out, model.NPUStatic{Name: "Ascend NPU", Vendor: "huawei-ascend"})
	}
	return out
}

func (p *ascendNPUProbe) CollectRealtime(ctx context.Context) []model.NPURealtime {
	raw := p.info(ctx)
	if raw == "" {
		return nil
	}
	var usage, temp, power float64
	var memUsed, memTotal float64
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		// npu-smi info table rows: NPU  Name  Health  Power  Temp  Hugepages  ...
		if v, err := strconv.ParseFloat(fields[len(fields)-1], 64); err == nil {
			switch {
			case strings.Contains(line, "HBM") || strings.Contains(line, "Memory"):
				memUsed = v
			case strings.Contains(line, "AICore") || strings.Contains(line, "Utilization"):
				usage = v
			}
		}
		_ = memTotal
	}
	for _, line := range strings.Split(raw, "\n") {
		if strings.Contains(line, "Temperature") {
			if v := lastNumberOnLine(line); v > 0 {
				temp = v
			}
		}
		if strings.Contains(line, "Power") {
			if v := lastNumberOnLine(line); v > 0 {
				power = v
			}
		}
	}
	return []model.NPURealtime{{Name: "Ascend NPU", UsagePercent: usage, MemUsedBytes: uint64(memUsed) * 1024 * 1024, TemperatureC: temp, PowerWatts: power}}
}

func lastNumberOnLine(line string) float64 {
	fields := strings.Fields(line)
	for i := len(fields) - 1; i >= 0; i-- {
		if v, err := strconv.ParseFloat(strings.TrimRight(fields[i], "CW%"), 64); err == nil {
			return v
		}
	}
	return 0
}

func fieldsJoin(line string) string {
	return strings.Join(strings.Fields(line), " ")
}
