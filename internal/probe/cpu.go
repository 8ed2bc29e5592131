// CPU probe: /proc/cpuinfo for static model/cores/max-freq, /proc/stat for
// per-core usage deltas, /sys/class/hwmon for temperature. Parsing is
// best-effort throughout: a missing or malformed field yields a zero value,
// never a hard failure.
package probe

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/nanoagent/nanoagent/internal/model"
)

// CPUProbe reads CPU static inventory and realtime usage/temperature/freq.
type CPUProbe struct {
	procRoot string
	sysRoot  string

	staticOnce sync.Once
	staticVal  model.CPUStatic

	mu       sync.Mutex
	prevIdle []uint64
	prevTotal []uint64
}

func NewCPUProbe(procRoot, sysRoot string) *CPUProbe {
	return &CPUProbe{procRoot: procRoot, sysRoot: sysRoot}
}

// CollectStatic is idempotent: the heavy /proc/cpuinfo parse runs at most
// once per process lifetime via sync.Once; concurrent first callers all
// observe the same instance.
func (p *CPUProbe) CollectStatic() model.CPUStatic {
	p.staticOnce.Do(func() {
		p.staticVal = p.readCPUInfo()
	})
	return p.staticVal
}

func (p *CPUProbe) readCPUInfo() model.CPUStatic {
	info := model.CPUStatic{}
	f, err := os.Open(filepath.Join(p.procRoot, "cpuinfo"))
	if err != nil {
		return info
	}
	defer f.Close()

	cores := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "model name"):
			if info.Model == "" {
				info.Model = fieldAfterColon(line)
			}
		case strings.HasPrefix(line, "processor"):
			cores++
		case strings.HasPrefix(line, "cpu MHz"):
			if v, err := strconv.ParseFloat(fieldAfterColon(line), 64); err == nil && int(v) > info.MaxFreqMHz {
				info.MaxFreqMHz = int(v)
			}
		}
	}
	info.Cores = cores

	if raw := readFirstLine(filepath.Join(p.sysRoot, "devices/system/cpu/cpu0/cpufreq/cpuinfo_max_freq")); raw != "" {
		if khz, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			info.MaxFreqMHz = khz / 1000
		}
	}
	return info
}

// CollectRealtime returns global usage percent, per-core usage (stable
// order), temperature, and current frequency. It performs no subprocess
// calls.
func (p *CPUProbe) CollectRealtime() model.CPURealtime {
	global, perCore := p.readUsage()
	return model.CPURealtime{
		UsagePercent:   global,
		PerCoreUsage:   perCore,
		TemperatureC:   p.readTemperature(),
		CurrentFreqMHz: p.readCurrentFreq(),
	}
}

// statLine holds the first 8 jiffies fields (user through steal) from one
// /proc/stat "cpu" row; guest and guest_nice are not kept.
type statLine struct {
	name                                         string
	user, nice, system, idle, iowait             uint64
	irq, softirq, steal                          uint64
}

func (s statLine) total() uint64 {
	return s.user + s.nice + s.system + s.idle + s.iowait + s.irq + s.softirq + s.steal
}

func (p *CPUProbe) readStatLines() []statLine {
	f, err := os.Open(filepath.Join(p.procRoot, "stat"))
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []statLine
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 || !strings.HasPrefix(fields[0], "cpu") {
			continue
		}
		sl := statLine{name: fields[0]}
		vals := make([]uint64, 8)
		for i := 1; i < len(fields) && i <= 8; i++ {
			v, _ := strconv.ParseUint(fields[i], 10, 64)
			vals[i-1] = v
		}
		sl.user, sl.nice, sl.system, sl.idle = vals[0], vals[1], vals[2], vals[3]
		sl.iowait, sl.irq, sl.softirq, sl.steal = vals[4], vals[5], vals[6], vals[7]
		lines = append(lines, sl)
	}
	return lines
}

// readUsage computes usage percent since the previous call. The per-core
// slice preserves "cpu0", "cpu1", ... order from /proc/stat, which is
// stable across samples for the life of the process.
func (p *CPUProbe) readUsage() (float64, []float64) {
	lines := p.readStatLines()
	if len(lines) == 0 {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	idle := make([]uint64, len(lines))
	total := make([]uint64, len(lines))
	for i, l := range lines {
		idle[i] = l.idle + l.iowait
		total[i] = l.total()
	}

	if p.prevIdle == nil || len(p.prevIdle) != len(idle) {
		p.prevIdle = idle
		p.prevTotal = total
		return 0, make([]float64, max0(len(lines)-1))
	}

	var global float64
	perCore := make([]float64, 0, len(lines)-1)
	for i, l := range lines {
		idleDelta := satSub(idle[i], p.prevIdle[i])
		totalDelta := satSub(total[i], p.prevTotal[i])
		usage := 0.0
		if totalDelta > 0 {
			usage = 100 * (1 - float64(idleDelta)/float64(totalDelta))
		}
		if l.name == "cpu" {
			global = usage
		} else {
			perCore = append(perCore, usage)
		}
	}
	p.prevIdle = idle
	p.prevTotal = total
	return global, perCore
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func satSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}

// readTemperature walks /sys/class/hwmon/* matching name containing
// coretemp|k10temp|cpu, falling back to thermal_zone0.
func (p *CPUProbe) readTemperature() float64 {
	hwmonRoot := filepath.Join(p.sysRoot, "class/hwmon")
	entries, err := os.ReadDir(hwmonRoot)
	if err == nil {
		for _, e := range entries {
			namePath := filepath.Join(hwmonRoot, e.Name(), "name")
			name := strings.TrimSpace(readFirstLine(namePath))
			if name == "" {
				continue
			}
			if strings.Contains(name, "coretemp") || strings.Contains(name, "k10temp") || strings.Contains(name, "cpu") {
				tempPath := filepath.Join(hwmonRoot, e.Name(), "temp1_input")
				if raw := strings.TrimSpace(readFirstLine(tempPath)); raw != "" {
					if milli, err := strconv.ParseFloat(raw, 64); err == nil {
						return milli / 1000
					}
				}
			}
		}
	}

	zonePath := filepath.Join(p.sysRoot, "class/thermal/thermal_zone0/temp")
	if raw := strings.TrimSpace(readFirstLine(zonePath)); raw != "" {
		if milli, err := strconv.ParseFloat(raw, 64); err == nil {
			return milli / 1000
		}
	}
	return 0
}

func (p *CPUProbe) readCurrentFreq() int {
	raw := readFirstLine(filepath.Join(p.sysRoot, "devices/system/cpu/cpu0/cpufreq/scaling_cur_freq"))
	if raw == "" {
		return 0
	}
	khz, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return khz / 1000
}

func fieldAfterColon(line string) string {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(line[idx+1:])
}

func readFirstLine(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	lines := strings.SplitN(string(data), "\n", 2)
	return lines[0]
}
