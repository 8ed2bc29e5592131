// Disk probe: /proc/diskstats for I/O rate derivation, /sys/block for
// static model/serial/type, statfs for usage, smartctl for temperature.
// Rates survive across ticks via the shared rateTracker instead of
// requiring an in-collect sleep.
package probe

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/subprocess"
)

const sectorSize = 512

type DiskProbe struct {
	procRoot string
	sysRoot  string

	rt *rateTracker

	staticMu  sync.Mutex
	staticVal []model.DiskStatic
	staticSet bool
}

func NewDiskProbe(procRoot, sysRoot string) *DiskProbe {
	return &DiskProbe{procRoot: procRoot, sysRoot: sysRoot, rt: newRateTracker()}
}

type diskRaw struct {
	name       string
	readOps    uint64
	readSectors uint64
	writeOps   uint64
	writeSectors uint64
}

func (p *DiskProbe) readDiskStats() map[string]diskRaw {
	out := make(map[string]diskRaw)
	f, err := os.Open(filepath.Join(p.procRoot, "diskstats"))
	if err != nil {
		return out
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 14 {
			continue
		}
		name := canonicalDiskName(fields[2])
		readOps, _ := strconv.ParseUint(fields[3], 10, 64)
		readSectors, _ := strconv.ParseUint(fields[5], 10, 64)
		writeOps, _ := strconv.ParseUint(fields[7], 10, 64)
		writeSectors, _ := strconv.ParseUint(fields[9], 10, 64)

		// Multiple raw rows can canonicalize to the same disk (whole device +
		// partitions); keep the row with the largest counters, which is the
		// whole-device row.
		if existing, ok := out[name]; ok && existing.readSectors+existing.writeSectors >= readSectors+writeSectors {
			continue
		}
		out[name] = diskRaw{name: name, readOps: readOps, readSectors: readSectors, writeOps: writeOps, writeSectors: writeSectors}
	}
	return out
}

// CollectRealtime derives per-disk byte/iops rates from the previous call's
// raw counters -- never sleeps, never spawns a subprocess.
func (p *DiskProbe) CollectRealtime() []model.DiskRealtime {
	now := time.Now()
	raws := p.readDiskStats()

	keep := make(map[string]bool, len(raws)*2)
	out := make([]model.DiskRealtime, 0, len(raws))
	for name, raw := range raws {
		readBytesID := name + ":read_bytes"
		writeBytesID := name + ":write_bytes"
		readOpsID := name + ":read_ops"
		writeOpsID := name + ":write_ops"
		keep[readBytesID], keep[writeBytesID], keep[readOpsID], keep[writeOpsID] = true, true, true, true

		out = append(out, model.DiskRealtime{
			Name:          name,
			ReadBytesSec:  p.rt.Rate(readBytesID, raw.readSectors*sectorSize, now),
			WriteBytesSec: p.rt.Rate(writeBytesID, raw.writeSectors*sectorSize, now),
			ReadIOPS:      p.rt.Rate(readOpsID, raw.readOps, now),
			WriteIOPS:     p.rt.Rate(writeOpsID, raw.writeOps, now),
		})
	}
	p.rt.Forget(keep)
	return out
}

// CollectStatic enumerates /sys/block devices once (model/serial/type/size).
func (p *DiskProbe) CollectStatic() []model.DiskStatic {
	p.staticMu.Lock()
	defer p.staticMu.Unlock()
	if p.staticSet {
		return p.staticVal
	}

	blockRoot := filepath.Join(p.sysRoot, "block")
	entries, err := os.ReadDir(blockRoot)
	if err != nil {
		p.staticSet = true
		return nil
	}

	var disks []model.DiskStatic
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "ram") {
			continue
		}
		dev := filepath.Join(blockRoot, name, "device")
		model_ := strings.TrimSpace(readFirstLine(filepath.Join(dev, "model")))
		serial := strings.TrimSpace(readFirstLine(filepath.Join(dev, "serial")))
		rotational := strings.TrimSpace(readFirstLine(filepath.Join(blockRoot, name, "queue/rotational")))
		sizeSectors := strings.TrimSpace(readFirstLine(filepath.Join(blockRoot, name, "size")))
		sectors, _ := strconv.ParseUint(sizeSectors, 10, 64)

		typ := "hdd"
		if strings.HasPrefix(name, "nvme") {
			typ = "nvme"
		} else if rotational == "0" {
			typ = "ssd"
		}

		disks = append(disks, model.DiskStatic{
			Name:       name,
			Model:      model_,
			Serial:     serial,
			Type:       typ,
			TotalBytes: sectors * sectorSize,
		})
	}
	p.staticVal = disks
	p.staticSet = true
	return disks
}

// CollectUsage reads used/available per mounted filesystem via statfs, and
// temperature via `smartctl -A` only; no hwmon entry is read, so the
// temperature is 0 when smartctl is absent or reports none.
func (p *DiskProbe) CollectUsage(ctx context.Context, avail *subprocess.AvailabilityCache) []model.DiskUsage {
	mounts := p.readMounts()
	out := make([]model.DiskUsage, 0, len(mounts))
	for dev, mount := range mounts {
		var stat syscall.Statfs_t
		if err := syscall.Statfs(mount, &stat); err != nil {
			continue
		}
		total := stat.Blocks * uint64(stat.Bsize)
		free := stat.Bfree * uint64(stat.Bsize)
		used := total - free
		name := canonicalDiskName(dev)
		out = append(out, model.DiskUsage{
			Name:           name,
			UsedBytes:      used,
			AvailableBytes: free,
			TemperatureC:   p.readDiskTemp(ctx, avail, dev),
		})
	}
	return out
}

func (p *DiskProbe) readMounts() map[string]string {
	out := make(map[string]string)
	f, err := os.Open(filepath.Join(p.procRoot, "mounts"))
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
		dev, mount := fields[0], fields[1]
		if !strings.HasPrefix(dev, "/dev/") {
			continue
		}
		out[dev] = mount
	}
	return out
}

func (p *DiskProbe) readDiskTemp(ctx context.Context, avail *subprocess.AvailabilityCache, dev string) float64 {
	if avail == nil || !avail.Available(ctx, "smartctl") {
		return 0
	}
	res, err := subprocess.Run(ctx, "smartctl", []string{"-A", dev}, subprocess.FastTimeout)
	if err != nil || res.Outcome != subprocess.Success {
		return 0
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		if strings.Contains(line, "Temperature_Celsius") || strings.Contains(line, "Temperature:") {
			fields := strings.Fields(line)
			for _, f := range fields {
				if v, err := strconv.ParseFloat(f, 64); err == nil && v > 0 && v < 150 {
					return v
				}
			}
		}
	}
	return 0
}
