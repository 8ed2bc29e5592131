package security

import "regexp"

// sensitivePatterns catches common secret shapes so ConfigManager reads and
// LogExecutor output share one scrubber.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*\S+`),
	regexp.MustCompile(`(?i)(token|secret|api[_-]?key)\s*[:=]\s*\S+`),
	regexp.MustCompile(`(?i)(postgres|mysql|mongodb|redis)://\S+`),
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`xoxb-[A-Za-z0-9-]+`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
}

const redactedPlaceholder = "***REDACTED***"

// Redact replaces every sensitive substring match in s with a placeholder.
// Used by ConfigManager.Read and LogExecutor before returning content to
// the server.
func Redact(s string) (out string, count int) {
	out = s
	for _, p := range sensitivePatterns {
		out = p.ReplaceAllStringFunc(out, func(match string) string {
			count++
			return redactedPlaceholder
		})
	}
	return out, count
}

// MaskToken is the audit sink's token-masking rule: len<=8 emits "***";
// otherwise first3 + "***" + last3.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:3] + "***" + token[len(token)-3:]
}
