// Memory probe: /proc/meminfo for both static (total) and realtime
// (used/cached/swap) fields. Static memory type/speed come from dmidecode
// when available (best-effort, may be empty without root).
package probe

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/subprocess"
)

type MemoryProbe struct {
	procRoot string

	staticOnce sync.Once
	staticVal  model.MemoryStatic
}

func NewMemoryProbe(procRoot string) *MemoryProbe {
	return &MemoryProbe{procRoot: procRoot}
}

func (p *MemoryProbe) CollectStatic(ctx context.Context) model.MemoryStatic {
	p.staticOnce.Do(func() {
		meminfo := p.readMeminfo()
		total := meminfo["MemTotal"] * 1024
		typ, speed := p.readDMI(ctx)
		p.staticVal = model.MemoryStatic{Type: typ, SpeedMHz: speed, TotalBytes: total}
	})
	return p.staticVal
}

func (p *MemoryProbe) CollectRealtime() model.MemoryRealtime {
	m := p.readMeminfo()
	total := m["MemTotal"]
	free := m["MemFree"]
	buffers := m["Buffers"]
	cached := m["Cached"]
	used := total - free - buffers - cached
	if used < 0 {
		used = 0
	}
	swapTotal := m["SwapTotal"]
	swapFree := m["SwapFree"]
	swapUsed := swapTotal - swapFree
	if swapUsed < 0 {
		swapUsed = 0
	}
	return model.MemoryRealtime{
		UsedBytes:     used * 1024,
		CachedBytes:   cached * 1024,
		SwapUsedBytes: swapUsed * 1024,
	}
}

func (p *MemoryProbe) readMeminfo() map[string]uint64 {
	out := make(map[string]uint64)
	f, err := os.Open(filepath.Join(p.procRoot, "meminfo"))
	if err != nil {
		return out
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		key := strings.TrimSuffix(fields[0], ":")
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		out[key] = v
	}
	return out
}

// readDMI shells `dmidecode -t memory` to learn module type/speed. Absent
// root or the tool, returns empty values -- this is a best-effort enrichment,
// never a hard dependency.
func (p *MemoryProbe) readDMI(ctx context.Context) (string, int) {
	res, err := subprocess.Run(ctx, "dmidecode", []string{"-t", "memory"}, subprocess.FastTimeout)
	if err != nil || res.Outcome != subprocess.Success {
		return "", 0
	}
	var typ string
	var speed int
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Type:") && typ == "" {
			v := strings.TrimSpace(strings.TrimPrefix(line, "Type:"))
			if v != "Unknown" && v != "" {
				typ = v
			}
		}
		if strings.HasPrefix(line, "Speed:") && speed == 0 {
			v := strings.TrimSpace(strings.TrimPrefix(line, "Speed:"))
			v = strings.TrimSuffix(v, " MT/s")
			v = strings.TrimSuffix(v, " MHz")
			if n, err := strconv.Atoi(v); err == nil {
				speed = n
			}
		}
	}
	return typ, speed
}
