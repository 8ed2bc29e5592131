// Package sampler implements the layered sampling scheduler: a ticker-
// driven loop that owns the HostProbe, multiplexes static/realtime/periodic
// messages onto the outbound sample channel, and services on-demand data
// requests.
package sampler

import (
	"context"
	"time"

	"github.com/nanoagent/nanoagent/internal/buffer"
	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/probe"
)

// Config holds every interval the sampler schedules against, in
// milliseconds, mirroring config.CollectorConfig.
type Config struct {
	RealtimeIntervalMs  int
	DiskUsageIntervalMs int
	SessionIntervalMs   int
	IPCheckIntervalMs   int
	SendInitialFull     bool
}

// Sampler drives the tick/request select loop and publishes Samples onto Out.
type Sampler struct {
	probe *probe.HostProbe
	cfg   Config
	ring  *buffer.RingBuffer

	Out      chan model.Sample
	Requests chan DataRequest

	lastDiskUsage time.Time
	lastSession   time.Time
	lastIPCheck   time.Time
}

// New constructs a Sampler. Out is buffered (capacity 64) to decouple a slow
// supervisor from a fast tick, and Requests is buffered (capacity 8).
func New(p *probe.HostProbe, cfg Config, ring *buffer.RingBuffer) *Sampler {
	return &Sampler{
		probe:    p,
		cfg:      cfg,
		ring:     ring,
		Out:      make(chan model.Sample, 64),
		Requests: make(chan DataRequest, 8),
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

// Run drives the scheduler until ctx is cancelled. It owns Out: it closes
// Out on exit, the signal the supervisor treats as "sample source closed".
func (s *Sampler) Run(ctx context.Context) {
	defer close(s.Out)

	if s.cfg.SendInitialFull {
		s.emit(ctx, s.buildStatic(ctx))
		s.emit(ctx, s.buildFull(ctx))
	}

	interval := time.Duration(s.cfg.RealtimeIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastInterfaces []model.NICStatic

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lastInterfaces = s.tick(ctx, lastInterfaces)
		case req, ok := <-s.Requests:
			if !ok {
				return
			}
			s.serve(ctx, req)
		}
	}
}

// tick performs one realtime + periodic-bucket cycle.
func (s *Sampler) tick(ctx context.Context, lastInterfaces []model.NICStatic) []model.NICStatic {
	realtime := s.probe.CollectRealtime(ctx)
	s.emit(ctx, model.Sample{TimestampMs: nowMs(), Kind: model.KindRealtime, Realtime: &realtime})

	now := time.Now()
	var periodic model.PeriodicData
	fired := false

	if s.cfg.DiskUsageIntervalMs > 0 && now.Sub(s.lastDiskUsage) >= time.Duration(s.cfg.DiskUsageIntervalMs)*time.Millisecond {
		periodic.DiskUsage = s.probe.CollectDiskUsage(ctx)
		s.lastDiskUsage = now
		fired = true
	}
	if s.cfg.SessionIntervalMs > 0 && now.Sub(s.lastSession) >= time.Duration(s.cfg.SessionIntervalMs)*time.Millisecond {
		periodic.Sessions = s.probe.CollectSessions(ctx)
		s.lastSession = now
		fired = true
	}

	current := lastInterfaces
	if s.cfg.IPCheckIntervalMs > 0 && now.Sub(s.lastIPCheck) >= time.Duration(s.cfg.IPCheckIntervalMs)*time.Millisecond {
		current = s.probe.CurrentInterfaces()
		if changes := s.probe.DetectAddressChanges(current); len(changes) > 0 {
			periodic.AddrUpdates = changes
			fired = true
		}
		s.lastIPCheck = now
	}

	if fired {
		s.emit(ctx, model.Sample{TimestampMs: nowMs(), Kind: model.KindPeriodic, Periodic: &periodic})
	}
	return current
}

// serve answers one DataRequest. A request always produces at least one
// Sample on both Out and the request's Reply channel.
func (s *Sampler) serve(ctx context.Context, req DataRequest) {
	var sample model.Sample
	switch req.Kind {
	case RequestStatic:
		sample = s.buildStatic(ctx)
	case RequestFull:
		sample = s.buildFull(ctx)
	case RequestDiskUsage:
		usage := s.probe.CollectDiskUsage(ctx)
		sample = model.Sample{TimestampMs: nowMs(), Kind: model.KindPeriodic, Periodic: &model.PeriodicData{DiskUsage: usage}}
	case RequestUserSessions:
		sessions := s.probe.CollectSessions(ctx)
		sample = model.Sample{TimestampMs: nowMs(), Kind: model.KindPeriodic, Periodic: &model.PeriodicData{Sessions: sessions}}
	case RequestNetworkInfo, RequestDiskHealth, RequestGPUInfo:
		realtime := s.probe.CollectRealtime(ctx)
		sample = model.Sample{TimestampMs: nowMs(), Kind: model.KindRealtime, Realtime: &realtime}
	default:
		sample = s.buildStatic(ctx)
	}

	s.emit(ctx, sample)
	if req.Reply != nil {
		select {
		case req.Reply <- sample:
		default:
		}
	}
}

func (s *Sampler) buildStatic(ctx context.Context) model.Sample {
	static := s.probe.CollectStatic(ctx)
	return model.Sample{TimestampMs: nowMs(), Kind: model.KindStatic, Static: &static}
}

func (s *Sampler) buildFull(ctx context.Context) model.Sample {
	static := s.probe.CollectStatic(ctx)
	realtime := s.probe.CollectRealtime(ctx)
	periodic := model.PeriodicData{
		DiskUsage: s.probe.CollectDiskUsage(ctx),
		Sessions:  s.probe.CollectSessions(ctx),
	}
	return model.Sample{
		TimestampMs: nowMs(),
		Kind:        model.KindFull,
		Static:      &static,
		Realtime:    &realtime,
		Periodic:    &periodic,
	}
}

// emit pushes sample into the ring buffer and, best-effort, onto Out; a full
// Out channel never blocks the scheduler (the ring buffer is the durable
// record replayed on reconnect).
func (s *Sampler) emit(ctx context.Context, sample model.Sample) {
	s.ring.Push(sample)
	select {
	case s.Out <- sample:
	case <-ctx.Done():
	default:
	}
}
