// Network probe: /proc/net/dev for rate derivation, interface enumeration
// for static MAC/IP/speed/type, /sys/class/net/*/operstate for link-up.
package probe

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nanoagent/nanoagent/internal/model"
)

type NetworkProbe struct {
	procRoot string
	sysRoot  string
	rt       *rateTracker

	lastIPs map[string][]string // for change detection
	mu      sync.Mutex
}

func NewNetworkProbe(procRoot, sysRoot string) *NetworkProbe {
	return &NetworkProbe{procRoot: procRoot, sysRoot: sysRoot, rt: newRateTracker(), lastIPs: make(map[string][]string)}
}

type nicRaw struct {
	name                           string
	rxBytes, rxPackets             uint64
	txBytes, txPackets             uint64
}

func (p *NetworkProbe) readNetDev() map[string]nicRaw {
	out := make(map[string]nicRaw)
	f, err := os.Open(filepath.Join(p.procRoot, "net/dev"))
	if err != nil {
		return out
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo <= 2 {
			continue // header lines
		}
		line := sc.Text()
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		name := strings.TrimSpace(line[:idx])
		fields := strings.Fields(line[idx+1:])
		if len(fields) < 16 {
			continue
		}
		rxBytes, _ := strconv.ParseUint(fields[0], 10, 64)
		rxPackets, _ := strconv.ParseUint(fields[1], 10, 64)
		txBytes, _ := strconv.ParseUint(fields[8], 10, 64)
		txPackets, _ := strconv.ParseUint(fields[9], 10, 64)
		out[name] = nicRaw{name: name, rxBytes: rxBytes, rxPackets: rxPackets, txBytes: txBytes, txPackets: txPackets}
	}
	return out
}

// CollectRealtime derives per-NIC byte/packet rates plus link-up flag.
func (p *NetworkProbe) CollectRealtime() []model.NICRealtime {
	now := time.Now()
	raws := p.readNetDev()

	keep := make(map[string]bool, len(raws)*4)
	out := make([]model.NICRealtime, 0, len(raws))
	for name, raw := range raws {
		rxID, txID := name+":rx_bytes", name+":tx_bytes"
		rxpID, txpID := name+":rx_packets", name+":tx_packets"
		keep[rxID], keep[txID], keep[rxpID], keep[txpID] = true, true, true, true

		out = append(out, model.NICRealtime{
			Name:         name,
			RxBytesSec:   p.rt.Rate(rxID, raw.rxBytes, now),
			TxBytesSec:   p.rt.Rate(txID, raw.txBytes, now),
			RxPacketsSec: p.rt.Rate(rxpID, raw.rxPackets, now),
			TxPacketsSec: p.rt.Rate(txpID, raw.txPackets, now),
			LinkUp:       p.readOperState(name),
		})
	}
	p.rt.Forget(keep)
	return out
}

func (p *NetworkProbe) readOperState(name string) bool {
	state := strings.TrimSpace(readFirstLine(filepath.Join(p.sysRoot, "class/net", name, "operstate")))
	return state == "up" || name == "lo"
}

// CollectStatic enumerates interfaces on every call (the result is not
// cached): name, MAC, IPs, speed, type.
func (p *NetworkProbe) CollectStatic() []model.NICStatic {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var out []model.NICStatic
	for _, iface := range ifaces {
		addrs, _ := iface.Addrs()
		var ips []string
		for _, a := range addrs {
			if ipNet, ok := a.(*net.IPNet); ok {
				ips = append(ips, ipNet.IP.String())
			}
		}
		out = append(out, model.NICStatic{
			Name:      iface.Name,
			MAC:       iface.HardwareAddr.String(),
			IPs:       ips,
			SpeedMbps: p.readSpeed(iface.Name),
			Type:      classifyIface(iface),
		})
	}
	return out
}

func (p *NetworkProbe) readSpeed(name string) int {
	raw := strings.TrimSpace(readFirstLine(filepath.Join(p.sysRoot, "class/net", name, "speed")))
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return 0
}

func classifyIface(iface net.Interface) string {
	if iface.Flags&net.FlagLoopback != 0 {
		return "loopback"
	}
	name := iface.Name
	switch {
	case strings.HasPrefix(name, "wl"):
		return "wifi"
	case strings.HasPrefix(name, "docker"), strings.HasPrefix(name, "veth"), strings.HasPrefix(name, "br-"), strings.HasPrefix(name, "virbr"):
		return "virtual"
	default:
		return "ethernet"
	}
}

// DetectAddressChanges compares the current per-interface IP set against
// the cached one and returns only interfaces whose set differs.
func (p *NetworkProbe) DetectAddressChanges(current []model.NICStatic) []model.NetworkAddress {
	p.mu.Lock()
	defer p.mu.Unlock()

	var changed []model.NetworkAddress
	for _, iface := range current {
		prev, ok := p.lastIPs[iface.Name]
		if ok && sameSet(prev, iface.IPs) {
			continue
		}
		p.lastIPs[iface.Name] = append([]string(nil), iface.IPs...)
		changed = append(changed, model.NetworkAddress{
			Interface: iface.Name,
			IPs:       iface.IPs,
			Up:        p.readOperState(iface.Name),
		})
	}
	return changed
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if !set[v] {
			return false
		}
	}
	return true
}
