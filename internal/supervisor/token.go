package supervisor

import (
	"fmt"
	"os"
	"strings"
)

// ResolveToken implements the three token forms an Endpoint may carry: a
// literal string, "${ENV_NAME}" resolved from the environment,
// or "file://PATH" read and trimmed. Resolution happens at connect time, not
// at config load, so a rotated file-backed token is picked up on the next
// reconnect without a restart.
func ResolveToken(raw string) (string, error) {
	switch {
	case strings.HasPrefix(raw, "${") && strings.HasSuffix(raw, "}"):
		name := raw[2 : len(raw)-1]
		val, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("token environment variable %q is not set", name)
		}
		return val, nil
	case strings.HasPrefix(raw, "file://"):
		path := strings.TrimPrefix(raw, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read token file %q: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return raw, nil
	}
}
