package model

// Endpoint is a remote server the agent streams to. Uniqueness key is (Host, Port).
type Endpoint struct {
	Host       string          `yaml:"host" toml:"host" json:"host"`
	Port       int             `yaml:"port" toml:"port" json:"port"`
	Token      string          `yaml:"token" toml:"token" json:"-"`
	Permission PermissionLevel `yaml:"permission" toml:"permission" json:"permission"`
	TLSEnabled bool            `yaml:"tls_enabled" toml:"tls_enabled" json:"tls_enabled"`
	TLSVerify  bool            `yaml:"tls_verify" toml:"tls_verify" json:"tls_verify"`
}

// Key returns the (host, port) uniqueness key.
func (e Endpoint) Key() string {
	return e.Host + ":" + itoa(e.Port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ConnectionState is the supervisor's reported state for an endpoint, as
// surfaced by ManagementAPI's GET /api/servers.
type ConnectionState string

const (
	StateDisconnected   ConnectionState = "disconnected"
	StateConnecting     ConnectionState = "connecting"
	StateAuthenticating ConnectionState = "authenticating"
	StateStreaming      ConnectionState = "streaming"
	StateBackoff        ConnectionState = "backoff"
)

// EndpointStatus bundles an Endpoint with its live connection state, the
// way GET /api/servers reports it.
type EndpointStatus struct {
	Endpoint
	State              ConnectionState `json:"state"`
	EffectivePermission PermissionLevel `json:"effective_permission"`
}
