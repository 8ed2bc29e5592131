// Package runtime wires the host probe, the ring buffer, and the layered
// sampler together, spawns one connection supervisor per configured
// endpoint, optionally starts the management API with a shared broadcast
// channel for server-change events, and owns the process-wide shutdown.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/nanoagent/nanoagent/internal/audit"
	"github.com/nanoagent/nanoagent/internal/buffer"
	"github.com/nanoagent/nanoagent/internal/config"
	"github.com/nanoagent/nanoagent/internal/executor"
	"github.com/nanoagent/nanoagent/internal/management"
	"github.com/nanoagent/nanoagent/internal/mcpsurface"
	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/probe"
	"github.com/nanoagent/nanoagent/internal/ratelimit"
	"github.com/nanoagent/nanoagent/internal/sampler"
	"github.com/nanoagent/nanoagent/internal/supervisor"
	"github.com/nanoagent/nanoagent/internal/wire"
	"go.uber.org/zap"
)

// Version is the build version reported in AuthRequest and the /api/health
// response; overridden at build time via -ldflags.
var Version = "0.0.0-dev"

// Runtime owns every long-running duty of the agent: the Sampler, the
// RingBuffer, one Supervisor per endpoint, and the optional ManagementAPI.
type Runtime struct {
	cfg        *config.Config
	configPath string
	log        *zap.SugaredLogger

	ring       *buffer.RingBuffer
	probe      *probe.HostProbe
	sampler    *sampler.Sampler
	dispatcher *executor.Dispatcher

	mu          sync.Mutex
	cfgMu       sync.RWMutex
	supervisors map[string]*supervisor.Supervisor
	cancels     map[string]context.CancelFunc

	mgmt   *management.Server
	events chan management.Event

	wg sync.WaitGroup
}

// New constructs a Runtime from a loaded, validated config. It never spawns
// goroutines; Run does.
func New(cfg *config.Config, configPath string, log *zap.SugaredLogger) *Runtime {
	ring := buffer.New(cfg.Buffer.Capacity)
	hp := probe.New(probe.DefaultRoots())
	smp := sampler.New(hp, sampler.Config{
		RealtimeIntervalMs:  cfg.Collector.RealtimeIntervalMs,
		DiskUsageIntervalMs: cfg.Collector.DiskUsageIntervalMs,
		SessionIntervalMs:   cfg.Collector.SessionIntervalMs,
		IPCheckIntervalMs:   cfg.Collector.IPCheckIntervalMs,
		SendInitialFull:     cfg.Collector.SendInitialFull,
	}, ring)

	workDir := os.TempDir()
	dispatcher := executor.Build(cfg, Version, nil, workDir, log)

	return &Runtime{
		cfg:         cfg,
		configPath:  configPath,
		log:         log,
		ring:        ring,
		probe:       hp,
		sampler:     smp,
		dispatcher:  dispatcher,
		supervisors: make(map[string]*supervisor.Supervisor),
		cancels:     make(map[string]context.CancelFunc),
		events:      make(chan management.Event, 16),
	}
}

// Run starts the sampler, every configured supervisor, and (if enabled) the
// ManagementAPI, and blocks until ctx is cancelled (the process-wide
// shutdown signal). Every spawned task is awaited before Run returns.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.sampler.Run(ctx)
	}()

	broadcast := newFanout(r.sampler.Out)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		broadcast.run()
	}()

	for _, ep := range r.cfg.Servers {
		r.spawnSupervisor(ctx, ep, broadcast)
	}

	if err := r.maybeStartManagement(ctx); err != nil {
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.eventLoop(ctx, broadcast)
	}()

	<-ctx.Done()
	if r.mgmt != nil {
		_ = r.mgmt.Shutdown()
	}
	r.wg.Wait()
	return nil
}

// maybeStartManagement wires the management API with audit logging and
// rate limiting as middleware. A management API enabled without a token is
// auto-disabled with a warning (backward compatibility with pre-v2
// configs).
func (r *Runtime) maybeStartManagement(ctx context.Context) error {
	mc := r.cfg.Management
	if !mc.Enabled {
		return nil
	}
	if mc.APIToken == "" {
		r.log.Warnw("management.enabled is true but management.api_token is unset; auto-disabling the management API")
		return nil
	}

	auditPath := defaultAuditPath()
	sink, err := audit.Open(auditPath, 50, 5, 30)
	if err != nil {
		return fmt.Errorf("open audit sink: %w", err)
	}

	limiter := ratelimit.New(mc.RateLimitPerMinute, mc.RateLimitBurst)

	r.mgmt = &management.Server{
		BindAddr:   mc.BindAddr,
		APIToken:   mc.APIToken,
		ConfigPath: r.configPath,
		Version:    Version,
		Cfg:        r.cfg,
		ConfigMu:   &r.cfgMu,
		Status:     r.statusSnapshot,
		Events:     r.events,
		Limiter:    limiter,
		Audit:      sink,
		Log:        r.log,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer sink.Close()
		stop := make(chan struct{})
		go func() {
			<-ctx.Done()
			close(stop)
			_ = r.mgmt.Shutdown()
		}()
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			sink.RunCleanupLoop(24*time.Hour, stop)
		}()
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			limiter.RunEvictionLoop(stop)
		}()
		if err := r.mgmt.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.log.Warnw("management API server exited", "error", err)
		}
	}()
	return nil
}

func defaultAuditPath() string {
	if dir := os.Getenv("NANOAGENT_STATE_DIR"); dir != "" {
		return dir + "/audit.log"
	}
	return "/var/log/nanoagent/audit.log"
}

// statusSnapshot reports every configured endpoint's live connection state,
// supplied to ManagementAPI's GET /api/servers.
func (r *Runtime) statusSnapshot() []model.EndpointStatus {
	r.cfgMu.RLock()
	servers := append([]model.Endpoint(nil), r.cfg.Servers...)
	r.cfgMu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.EndpointStatus, 0, len(servers))
	for _, ep := range servers {
		st := model.EndpointStatus{Endpoint: ep, State: model.StateDisconnected, EffectivePermission: ep.Permission}
		if sv, ok := r.supervisors[ep.Key()]; ok {
			st.State = sv.State()
			st.EffectivePermission = sv.EffectivePermission()
		}
		out = append(out, st)
	}
	return out
}

// eventLoop consumes server-change broadcasts from the ManagementAPI in the
// order they were emitted's ordering guarantee: persistence
// to disk happens before the broadcast, so a crash between accept and
// broadcast cannot leave the process running on an endpoint the config no
// longer lists.
func (r *Runtime) eventLoop(ctx context.Context, broadcast *fanout) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			switch ev.Kind {
			case management.EventAdd:
				r.spawnSupervisor(ctx, ev.Endpoint, broadcast)
			case management.EventUpdate:
				r.mu.Lock()
				sv, ok := r.supervisors[ev.Endpoint.Key()]
				r.mu.Unlock()
				if ok {
					sv.Update(ev.Endpoint)
				} else {
					r.spawnSupervisor(ctx, ev.Endpoint, broadcast)
				}
			case management.EventRemove:
				r.removeSupervisor(ev.Endpoint)
			}
		}
	}
}

// spawnSupervisor creates and runs a Supervisor for ep, recording it so it
// can be addressed by later Update/Remove events.
func (r *Runtime) spawnSupervisor(ctx context.Context, ep model.Endpoint, broadcast *fanout) {
	r.mu.Lock()
	if _, exists := r.supervisors[ep.Key()]; exists {
		r.mu.Unlock()
		return
	}
	samples := broadcast.subscribe()
	sv := supervisor.New(ep, dialer, r.ring, r.dispatcher, samples, r.log)
	svCtx, cancel := context.WithCancel(ctx)
	r.supervisors[ep.Key()] = sv
	r.cancels[ep.Key()] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer broadcast.unsubscribe(samples)
		sv.Run(svCtx)
	}()
}

// removeSupervisor terminates and forgets the supervisor for ep.
func (r *Runtime) removeSupervisor(ep model.Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ep.Key()
	if sv, ok := r.supervisors[key]; ok {
		sv.Stop()
		delete(r.supervisors, key)
	}
	if cancel, ok := r.cancels[key]; ok {
		cancel()
		delete(r.cancels, key)
	}
}

// dialer is the production supervisor.TransportFactory, opening a real gRPC
// channel Tests substitute wire.MemTransport instead.
func dialer(ctx context.Context, ep model.Endpoint) (wire.Transport, error) {
	conn, err := wire.Dial(ctx, ep.Host, ep.Port, ep.TLSEnabled, ep.TLSVerify)
	if err != nil {
		return nil, err
	}
	return wire.NewGRPCTransport(conn), nil
}

// The three methods below satisfy internal/mcpsurface.StateProvider,
// projecting internal model types into mcpsurface's own read-only view
// types so mcpsurface never needs to import internal/model or
// internal/runtime.

// Status lists every configured endpoint's live connection state.
func (r *Runtime) Status() []mcpsurface.EndpointStatusView {
	statuses := r.statusSnapshot()
	out := make([]mcpsurface.EndpointStatusView, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, mcpsurface.EndpointStatusView{
			Host:                st.Host,
			Port:                st.Port,
			State:               string(st.State),
			EffectivePermission: int(st.EffectivePermission),
		})
	}
	return out
}

// LatestSample returns the most recently pushed ring buffer entry.
func (r *Runtime) LatestSample() (mcpsurface.SampleView, bool) {
	sample, ok := r.ring.Latest()
	if !ok {
		return mcpsurface.SampleView{}, false
	}
	return mcpsurface.SampleView{
		TimestampMs: sample.TimestampMs,
		Kind:        sample.Kind.String(),
		HasStatic:   sample.Static != nil,
		HasRealtime: sample.Realtime != nil,
		HasPeriodic: sample.Periodic != nil,
	}, true
}

// RingBufferStats reports the offline ring buffer's current fill level.
func (r *Runtime) RingBufferStats() mcpsurface.RingStatsView {
	view := mcpsurface.RingStatsView{
		Length:       r.ring.Len(),
		Capacity:     r.cfg.Buffer.Capacity,
		UsagePercent: r.ring.UsagePercent(),
		Empty:        r.ring.IsEmpty(),
	}
	if oldest, ok := r.ring.OldestTimestamp(); ok {
		view.OldestTimestamp = oldest
	}
	if newest, ok := r.ring.NewestTimestamp(); ok {
		view.NewestTimestamp = newest
	}
	return view
}

// MCPSurface constructs the stdio MCP server bound to this runtime's live
// state.
func (r *Runtime) MCPSurface() *mcpsurface.Server {
	return mcpsurface.NewServer(Version, r)
}
