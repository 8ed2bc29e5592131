package sampler

import "github.com/nanoagent/nanoagent/internal/model"

// RequestKind enumerates the on-demand data requests LayeredSampler serves
// alongside its ticker-driven emission.
type RequestKind int

const (
	RequestStatic RequestKind = iota
	RequestDiskUsage
	RequestNetworkInfo
	RequestUserSessions
	RequestGPUInfo
	RequestDiskHealth
	RequestFull
)

// DataRequest asks the sampler to produce one out-of-band emission. Reply is
// buffered (capacity 1) so a slow consumer never blocks the sampler's select
// loop; a request always produces at least one Sample, never
// silently dropped.
type DataRequest struct {
	Kind  RequestKind
	Reply chan model.Sample
}
