package mcpsurface

// EndpointStatusView is the read-only projection of model.EndpointStatus
// this surface exposes, kept separate so mcpsurface has no import on
// internal/model or internal/runtime (see StateProvider's doc comment).
type EndpointStatusView struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	State               string `json:"state"`
	EffectivePermission int    `json:"effective_permission"`
}

// SampleView is the read-only projection of model.Sample this surface
// exposes.
type SampleView struct {
	TimestampMs int64  `json:"timestamp_ms"`
	Kind        string `json:"kind"`
	HasStatic   bool   `json:"has_static"`
	HasRealtime bool   `json:"has_realtime"`
	HasPeriodic bool   `json:"has_periodic"`
}

// RingStatsView is the read-only projection of buffer.RingBuffer state this
// surface exposes.
type RingStatsView struct {
	Length          int     `json:"length"`
	Capacity        int     `json:"capacity"`
	UsagePercent    float64 `json:"usage_percent"`
	OldestTimestamp int64   `json:"oldest_timestamp,omitempty"`
	NewestTimestamp int64   `json:"newest_timestamp,omitempty"`
	Empty           bool    `json:"empty"`
}
