// GPU probe: a union across vendor-specific tools behind a common
// VendorGPUProbe interface. Vendor probes are discovered once at startup
// and a unifying collector fans out across whichever are available. The
// 5-second cache is a property of the unifier, not any single probe, so
// tool-launch rate stays capped regardless of how often the sampler asks
// for realtime metrics.
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

const gpuCacheTTL = 5 * time.Second

// VendorGPUProbe is implemented once per GPU vendor.
type VendorGPUProbe interface {
	Name() string
	Available(ctx context.Context) bool
	CollectStatic(ctx context.Context) []model.GPUStatic
	CollectRealtime(ctx context.Context) []model.GPURealtime
}

// GPUCollector fans out across all available vendor probes and caches the
// union for gpuCacheTTL.
type GPUCollector struct {
	probes []VendorGPUProbe

	mu         sync.Mutex
	cachedAt   time.Time
	staticOnce sync.Once
	staticVal  []model.GPUStatic
	rtVal      []model.GPURealtime
}

func NewGPUCollector(avail *subprocess.AvailabilityCache) *GPUCollector {
	return &GPUCollector{
		probes: []VendorGPUProbe{
			&nvidiaGPUProbe{avail: avail},
			&amdGPUProbe{avail: avail},
			&intelGPUProbe{avail: avail},
		},
	}
}

func (c *GPUCollector) CollectStatic(ctx context.Context) []model.GPUStatic {
	c.staticOnce.Do(func() {
		var out []model.GPUStatic
		for _, p := range c.probes {
			if p.Available(ctx) {
				out = append(out, p.CollectStatic(ctx)...)
			}
		}
		c.staticVal = out
	})
	return c.staticVal
}

// CollectRealtime returns the cached union if younger than gpuCacheTTL,
// otherwise refreshes by invoking every available vendor probe.
func (c *GPUCollector) CollectRealtime(ctx context.Context) []model.GPURealtime {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.cachedAt) < gpuCacheTTL && c.cachedAt != (time.Time{}) {
		return c.rtVal
	}

	var out []model.GPURealtime
	for _, p := range c.probes {
		if p.Available(ctx) {
			out = append(out, p.CollectRealtime(ctx)...)
		}
	}
	c.rtVal = out
	c.cachedAt = time.Now()
	return out
}

// --- NVIDIA: one CSV query of fields via nvidia-smi ---

type nvidiaGPUProbe struct {
	avail *subprocess.AvailabilityCache
}

func (p *nvidiaGPUProbe) Name() string { return "nvidia" }

func (p *nvidiaGPUProbe) Available(ctx context.Context) bool {
	return p.avail.Available(ctx, "nvidia-smi")
}

var nvidiaQueryFields = "name,driver_version,pci.bus_id,memory.total,memory.used,utilization.gpu,temperature.gpu,power.draw,clocks.sm,utilization.encoder,utilization.decoder,pstate,fan.speed,compute_mode,display_mode"

func (p *nvidiaGPUProbe) query(ctx context.Context) [][]string {
	res, err := subprocess.Run(ctx, "nvidia-smi", []string{
		"--query-gpu=" + nvidiaQueryFields, "--format=csv,noheader,nounits",
	}, subprocess.SlowTimeout)
	if err != nil || res.Outcome != subprocess.Success {
		return nil
	}
	var rows [][]string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		rows = append(rows, fields)
	}
	return rows
}

func (p *nvidiaGPUProbe) CollectStatic(ctx context.Context) []model.GPUStatic {
	rows := p.query(ctx)
	var out []model.GPUStatic
	for _, f := range rows {
		if len(f) < 4 {
			continue
		}
		memMB, _ := strconv.ParseFloat(f[3], 64)
		out = append(out, model.GPUStatic{
			Name:           f[0],
			Vendor:         "nvidia",
			TotalVRAMBytes: uint64(memMB) * 1024 * 1024,
			Driver:         f[1],
			PCIe:           f[2],
		})
	}
	return out
}

func (p *nvidiaGPUProbe) CollectRealtime(ctx context.Context) []model.GPURealtime {
	rows := p.query(ctx)
	var out []model.GPURealtime
	for _, f := range rows {
		if len(f) < 11 {
			continue
		}
		memUsedMB, _ := strconv.ParseFloat(f[4], 64)
		usage, _ := strconv.ParseFloat(f[5], 64)
		temp, _ := strconv.ParseFloat(f[6], 64)
		power, _ := strconv.ParseFloat(f[7], 64)
		clock, _ := strconv.ParseFloat(f[8], 64)
		enc, _ := strconv.ParseFloat(f[9], 64)
		dec, _ := strconv.ParseFloat(f[10], 64)
		out = append(out, model.GPURealtime{
			Name:         f[0],
			UsagePercent: usage,
			MemUsedBytes: uint64(memUsedMB) * 1024 * 1024,
			TemperatureC: temp,
			PowerWatts:   power,
			ClockMHz:     int(clock),
			EncPercent:   enc,
			DecPercent:   dec,
		})
	}
	return out
}

// --- AMD: enumerate with rocm-smi --showproductname, then per-GPU queries ---

type amdGPUProbe struct {
	avail *subprocess.AvailabilityCache
}

func (p *amdGPUProbe) Name() string { return "amd" }

func (p *amdGPUProbe) Available(ctx context.Context) bool {
	return p.avail.Available(ctx, "rocm-smi")
}

func (p *amdGPUProbe) names(ctx context.Context) []string {
	res, err := subprocess.Run(ctx, "rocm-smi", []string{"--showproductname"}, subprocess.SlowTimeout)
	if err != nil || res.Outcome != subprocess.Success {
		return nil
	}
	var names []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.Contains(line, "Card series") || strings.Contains(line, "Card Series") {
			if idx := strings.IndexByte(line, ':'); idx >= 0 {
				names = append(names, strings.TrimSpace(line[idx+1:]))
			}
		}
	}
	return names
}

func (p *amdGPUProbe) CollectStatic(ctx context.Context) []model.GPUStatic {
	var out []model.GPUStatic
	for _, n := range p.names(ctx) {
		out = append(out, model.GPUStatic{Name: n, Vendor: "amd"})
	}
	return out
}

func (p *amdGPUProbe) CollectRealtime(ctx context.Context) []model.GPURealtime {
	names := p.names(ctx)
	usage := p.metric(ctx, "--showuse", "GPU use")
	mem := p.metric(ctx, "--showmemuse", "GPU Memory Allocated")
	temp := p.metric(ctx, "--showtemp", "Temperature")
	power := p.metric(ctx, "--showpower", "Average Graphics Package Power")
	clock := p.metric(ctx, "--showclocks", "sclk")

	var out []model.GPURealtime
	for i, n := range names {
		out = append(out, model.GPURealtime{
			Name:         n,
			UsagePercent: valAt(usage, i),
			MemUsedBytes: uint64(valAt(mem, i)),
			TemperatureC: valAt(temp, i),
			PowerWatts:   valAt(power, i),
			ClockMHz:     int(valAt(clock, i)),
		})
	}
	return out
}

func (p *amdGPUProbe) metric(ctx context.Context, flag, label string) []float64 {
	res, err := subprocess.Run(ctx, "rocm-smi", []string{flag}, subprocess.SlowTimeout)
	if err != nil || res.Outcome != subprocess.Success {
		return nil
	}
	var vals []float64
	for _, line := range strings.Split(res.Stdout, "\n") {
		if !strings.Contains(line, label) {
			continue
		}
		fields := strings.Fields(line)
		for _, f := range fields {
			f = strings.TrimRight(f, "%")
			if v, err := strconv.ParseFloat(f, 64); err == nil {
				vals = append(vals, v)
				break
			}
		}
	}
	return vals
}

func valAt(v []float64, i int) float64 {
	if i < 0 || i >= len(v) {
		return 0
	}
	return v[i]
}

// --- Intel: xpu-smi, then intel_gpu_top -J (streaming), then sysfs ---

type intelGPUProbe struct {
	avail *subprocess.AvailabilityCache
}

func (p *intelGPUProbe) Name() string { return "intel" }

func (p *intelGPUProbe) Available(ctx context.Context) bool {
	return p.avail.Available(ctx, "xpu-smi") || p.avail.Available(ctx, "intel_gpu_top", "-h") || intelSysfsPresent
}

func (p *intelGPUProbe) CollectStatic(ctx context.Context) []model.GPUStatic {
	if p.avail.Available(ctx, "xpu-smi") {
		res, err := subprocess.Run(ctx, "xpu-smi", []string{"discovery"}, subprocess.SlowTimeout)
		if err == nil && res.Outcome == subprocess.Success {
			return parseXPUDiscovery(res.Stdout)
		}
	}
	return []model.GPUStatic{{Name: "Intel Graphics", Vendor: "intel"}}
}

func parseXPUDiscovery(raw string) []model.GPUStatic {
	var out []model.GPUStatic
	for _, line := range strings.Split(raw, "\n") {
		if strings.Contains(line, "Device Name") {
			if idx := strings.IndexByte(line, ':'); idx >= 0 {
				out = append(out, model.GPUStatic{Name: strings.TrimSpace(line[idx+1:]), Vendor: "intel"})
			}
		}
	}
	return out
}

// CollectRealtime tries xpu-smi first, then the streaming intel_gpu_top -J
// (relying on subprocess.Run's kill-then-drain contract, since the tool
// never exits on its own), finally sysfs under /sys/class/drm filtered by
// vendor 0x8086.
func (p *intelGPUProbe) CollectRealtime(ctx context.Context) []model.GPURealtime {
	if p.avail.Available(ctx, "xpu-smi") {
		res, err := subprocess.Run(ctx, "xpu-smi", []string{"stats", "-d", "0"}, subprocess.SlowTimeout)
		if err == nil && res.Outcome == subprocess.Success {
			return parseXPUStats(res.Stdout)
		}
	}
	if p.avail.Available(ctx, "intel_gpu_top", "-h") {
		// Streaming JSON: -J without a sample count never exits; Run's
		// kill-then-drain returns whatever JSON object it managed to flush.
		res, err := subprocess.Run(ctx, "intel_gpu_top", []string{"-J"}, subprocess.SlowTimeout)
		if err == nil && res.Outcome == subprocess.Success {
			return parseIntelGPUTop(res.Stdout)
		}
	}
	return readIntelSysfs()
}

func parseXPUStats(raw string) []model.GPURealtime {
	var usage, mem, temp, power float64
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		switch {
		case strings.Contains(line, "GPU Utilization"):
			usage, _ = strconv.ParseFloat(strings.TrimRight(fields[len(fields)-1], "%"), 64)
		case strings.Contains(line, "GPU Memory Used"):
			mem, _ = strconv.ParseFloat(fields[len(fields)-1], 64)
		case strings.Contains(line, "GPU Temperature"):
			temp, _ = strconv.ParseFloat(fields[len(fields)-1], 64)
		case strings.Contains(line, "GPU Power"):
			power, _ = strconv.ParseFloat(fields[len(fields)-1], 64)
		}
	}
	return []model.GPURealtime{{Name: "Intel Graphics", UsagePercent: usage, MemUsedBytes: uint64(mem) * 1024 * 1024, TemperatureC: temp, PowerWatts: power}}
}

// parseIntelGPUTop extracts the "busy" percentage per engine from the
// streaming JSON output and averages across engines.
func parseIntelGPUTop(raw string) []model.GPURealtime {
	// intel_gpu_top -J emits a JSON array of period objects; a killed
	// process may leave a truncated/partial final object. We scan for
	// "busy": <number> occurrences rather than fully unmarshalling, since
	// the trailing object is frequently incomplete JSON.
	var sum float64
	var count int
	idx := 0
	for {
		pos := strings.Index(raw[idx:], `"busy":`)
		if pos < 0 {
			break
		}
		start := idx + pos + len(`"busy":`)
		end := start
		for end < len(raw) && (raw[end] == ' ' || raw[end] == '.' || (raw[end] >= '0' && raw[end] <= '9')) {
			end++
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(raw[start:end]), 64); err == nil {
			sum += v
			count++
		}
		idx = end
	}
	avg := 0.0
	if count > 0 {
		avg = sum / float64(count)
	}
	return []model.GPURealtime{{Name: "Intel Graphics", UsagePercent: avg}}
}

// intelSysfsPresent/readIntelSysfs are defined in gpu_sysfs.go.
