package supervisor

import "runtime"

// AgentVersion is overridden at build time via -ldflags; the zero value
// below is the development default.
var AgentVersion = "0.0.0-dev"

func agentOS() string   { return runtime.GOOS }
func agentArch() string { return runtime.GOARCH }
