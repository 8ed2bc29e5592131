// System probe: OS name/version/kernel/boot-time from /proc and /etc, plus
// motherboard/BIOS via dmidecode.
package probe

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/subprocess"
)

type SystemProbe struct {
	procRoot string
	etcRoot  string

	staticOnce sync.Once
	staticVal  model.OSStatic
}

func NewSystemProbe(procRoot, etcRoot string) *SystemProbe {
	return &SystemProbe{procRoot: procRoot, etcRoot: etcRoot}
}

// CollectStatic is idempotent: populated once behind a sync.Once, so
// every caller observes the same instance with no double-execution.
func (p *SystemProbe) CollectStatic(ctx context.Context) model.OSStatic {
	p.staticOnce.Do(func() {
		name, version := p.readOSRelease()
		board, bios := p.readDMI(ctx)
		p.staticVal = model.OSStatic{
			Name:        name,
			Version:     version,
			Kernel:      p.readKernelVersion(),
			BootTimeMs:  p.readBootTime(),
			Motherboard: board,
			BIOS:        bios,
		}
	})
	return p.staticVal
}

func (p *SystemProbe) readOSRelease() (name, version string) {
	f, err := os.Open(filepath.Join(p.etcRoot, "os-release"))
	if err != nil {
		return "", ""
	}
	defer f.Close()

	vals := map[string]string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		key := line[:idx]
		val := strings.Trim(line[idx+1:], `"`)
		vals[key] = val
	}
	return vals["NAME"], vals["VERSION"]
}

func (p *SystemProbe) readKernelVersion() string {
	b, err := os.ReadFile(filepath.Join(p.procRoot, "sys", "kernel", "osrelease"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// readBootTime derives the epoch-ms boot time from /proc/uptime: boot_time
// = now - uptime_seconds.
func (p *SystemProbe) readBootTime() int64 {
	b, err := os.ReadFile(filepath.Join(p.procRoot, "uptime"))
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return 0
	}
	uptime, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}
	return time.Now().Add(-time.Duration(uptime * float64(time.Second))).UnixMilli()
}

// readDMI shells `dmidecode` for board/BIOS info. Best-effort: absent root
// or the tool, both values are empty.
func (p *SystemProbe) readDMI(ctx context.Context) (board, bios string) {
	boardRes, err := subprocess.Run(ctx, "dmidecode", []string{"-s", "baseboard-product-name"}, subprocess.FastTimeout)
	if err == nil && boardRes.Outcome == subprocess.Success {
		board = strings.TrimSpace(boardRes.Stdout)
	}
	biosRes, err := subprocess.Run(ctx, "dmidecode", []string{"-s", "bios-version"}, subprocess.FastTimeout)
	if err == nil && biosRes.Outcome == subprocess.Success {
		bios = strings.TrimSpace(biosRes.Stdout)
	}
	return board, bios
}
