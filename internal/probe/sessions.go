// Session probe: shells `who -u` to enumerate logged-in users, routed
// through internal/subprocess so the fast-timeout preset and NotFound
// handling apply uniformly.
package probe

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/nanoagent/nanoagent/internal/subprocess"
	"github.com/nanoagent/nanoagent/internal/model"
)

// SessionProbe lists active user sessions via `who`.
type SessionProbe struct{}

func NewSessionProbe() *SessionProbe {
	return &SessionProbe{}
}

// CollectSessions parses `who -u` output into UserSession records. Any
// field the platform's `who` doesn't report is left at its zero value --
// this is a best-effort enrichment, not a hard dependency.
func (p *SessionProbe) CollectSessions(ctx context.Context) []model.UserSession {
	res, err := subprocess.Run(ctx, "who", []string{"-u"}, subprocess.FastTimeout)
	if err != nil || res.Outcome != subprocess.Success {
		return nil
	}

	var out []model.UserSession
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		sess := model.UserSession{
			User: fields[0],
			TTY:  fields[1],
			Type: sessionType(fields[1]),
		}
		if len(fields) >= 5 {
			sess.LoginMs = parseWhoTimestamp(fields[2], fields[3]).UnixMilli()
			sess.IdleSec = idleSeconds(fields[4])
		}
		for _, f := range fields {
			if strings.HasPrefix(f, "(") && strings.HasSuffix(f, ")") {
				sess.Remote = strings.Trim(f, "()")
			}
		}
		out = append(out, sess)
	}
	return out
}

func sessionType(tty string) string {
	switch {
	case strings.HasPrefix(tty, "pts"):
		return "ssh"
	case strings.HasPrefix(tty, "tty"):
		return "console"
	default:
		return "console"
	}
}

// parseWhoTimestamp parses the "2024-01-02 15:04" shape `who` emits. On
// failure it returns the zero time rather than erroring -- sessions without
// a parseable login time still get listed with LoginMs=0.
func parseWhoTimestamp(date, clock string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", date+" "+clock)
	if err != nil {
		return time.Time{}
	}
	return t
}

// idleSeconds best-effort parses a `who -u` IDLE column ("." = active,
// "old" = very idle, "HH:MM" = idle duration).
func idleSeconds(col string) int64 {
	if col == "." || col == "" {
		return 0
	}
	if col == "old" {
		return 24 * 3600
	}
	parts := strings.Split(col, ":")
	if len(parts) != 2 {
		return 0
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0
	}
	return int64(h*3600 + m*60)
}
