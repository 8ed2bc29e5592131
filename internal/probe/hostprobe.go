// Package probe implements platform-abstracted readers for
// CPU/memory/disk/network/GPU/NPU/sessions/system info, split into static
// and realtime halves. HostProbe is the single entry point the sampler
// drives; the individual *Probe/*Collector types are its sub-probes, each
// owning its own previous-counter state exclusively.
package probe

import (
	"context"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/subprocess"
)

// HostProbe fans out to every sub-probe and assembles StaticInfo,
// RealtimeMetrics, and the periodic buckets (disk usage, sessions, network
// address changes).
type HostProbe struct {
	avail *subprocess.AvailabilityCache

	cpu     *CPUProbe
	memory  *MemoryProbe
	disk    *DiskProbe
	network *NetworkProbe
	gpu     *GPUCollector
	npu     *NPUCollector
	session *SessionProbe
	system  *SystemProbe
}

// Roots lets tests point the probe at a fake /proc, /sys, /etc tree instead
// of the real one.
type Roots struct {
	Proc string
	Sys  string
	Etc  string
}

func DefaultRoots() Roots {
	return Roots{Proc: "/proc", Sys: "/sys", Etc: "/etc"}
}

// New constructs a HostProbe. No vendor tool is probed here: each tool's
// availability is probed on its first use and cached for the HostProbe's
// lifetime, so later collects skip the probe.
func New(roots Roots) *HostProbe {
	avail := subprocess.NewAvailabilityCache()
	return &HostProbe{
		avail:   avail,
		cpu:     NewCPUProbe(roots.Proc, roots.Sys),
		memory:  NewMemoryProbe(roots.Proc),
		disk:    NewDiskProbe(roots.Proc, roots.Sys),
		network: NewNetworkProbe(roots.Proc, roots.Sys),
		gpu:     NewGPUCollector(avail),
		npu:     NewNPUCollector(avail),
		session: NewSessionProbe(),
		system:  NewSystemProbe(roots.Proc, roots.Etc),
	}
}

// CollectStatic assembles the full StaticInfo. CPU, memory, GPU, NPU and OS
// info are collected once behind a sync.Once and disk info is cached after
// the first call; network interfaces are not cached and are re-enumerated on
// every call, so their IPs can differ between calls.
func (h *HostProbe) CollectStatic(ctx context.Context) model.StaticInfo {
	return model.StaticInfo{
		CPU:        h.cpu.CollectStatic(),
		Memory:     h.memory.CollectStatic(ctx),
		Disks:      h.disk.CollectStatic(),
		Interfaces: h.network.CollectStatic(),
		GPUs:       h.gpu.CollectStatic(ctx),
		NPUs:       h.npu.CollectStatic(ctx),
		OS:         h.system.CollectStatic(ctx),
	}
}

// CollectRealtime assembles one RealtimeMetrics snapshot. No subprocess is
// spawned beyond the GPU/NPU union's own 5s-cached tool invocations;
// CPU/memory/network/load are pure /proc reads.
func (h *HostProbe) CollectRealtime(ctx context.Context) model.RealtimeMetrics {
	return model.RealtimeMetrics{
		CPU:     h.cpu.CollectRealtime(),
		Memory:  h.memory.CollectRealtime(),
		Disks:   h.disk.CollectRealtime(),
		NICs:    h.network.CollectRealtime(),
		LoadAvg: readLoadAverage(),
		GPUs:    h.gpu.CollectRealtime(ctx),
		NPUs:    h.npu.CollectRealtime(ctx),
	}
}

// CollectDiskUsage refreshes the disk-usage periodic bucket.
func (h *HostProbe) CollectDiskUsage(ctx context.Context) []model.DiskUsage {
	return h.disk.CollectUsage(ctx, h.avail)
}

// CollectSessions refreshes the user-session periodic bucket.
func (h *HostProbe) CollectSessions(ctx context.Context) []model.UserSession {
	return h.session.CollectSessions(ctx)
}

// CurrentInterfaces returns the current per-interface static info, used by
// the sampler to detect address changes against its cached set.
func (h *HostProbe) CurrentInterfaces() []model.NICStatic {
	return h.network.CollectStatic()
}

// DetectAddressChanges compares current against the network probe's last
// observed set, returning only interfaces whose IP set or up-flag differs.
func (h *HostProbe) DetectAddressChanges(current []model.NICStatic) []model.NetworkAddress {
	return h.network.DetectAddressChanges(current)
}
