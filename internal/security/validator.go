package security

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// metacharacters is the reject-set shared by process/service/container/
// script argument validation: shell metacharacters that could enable
// injection if passed through to an `exec`-style call.
const metacharacters = ";|&$`(){}<>\n\r\\\"'"

func containsMetacharacter(s string) bool {
	return strings.ContainsAny(s, metacharacters)
}

// DefaultPathDenylist is the default set of prefixes a path validator
// refuses regardless of allowlist configuration.
var DefaultPathDenylist = []string{
	"/etc/shadow",
	"/etc/passwd",
	"/etc/sudoers",
	"/root/.ssh",
	"/etc/ssh",
	`C:\Windows\System32\config`,
}

var homeSSHGlob = regexp.MustCompile(`^/home/[^/]+/\.ssh`)

// PathValidator validates and canonicalizes file paths:
// reject ".." anywhere, canonicalize (resolving symlinks; for
// non-existent files, canonicalize the parent and re-check), re-scan the
// canonical form for "..", reject denylist matches, and if an allowlist is
// configured require a match.
type PathValidator struct {
	Denylist  []string
	Allowlist []string
}

func NewPathValidator() *PathValidator {
	return &PathValidator{Denylist: append([]string(nil), DefaultPathDenylist...)}
}

// NewPathValidatorFrom builds a validator from configured allowlist/denylist
// entries, appended to the built-in denylist rather than replacing it.
func NewPathValidatorFrom(allowlist, denylist []string) *PathValidator {
	v := NewPathValidator()
	v.Denylist = append(v.Denylist, denylist...)
	v.Allowlist = allowlist
	return v
}

// Validate returns the canonical path, or an error naming the violated rule.
func (v *PathValidator) Validate(input string) (string, error) {
	if strings.Contains(input, "..") {
		return "", fmt.Errorf("path traversal detected: %q contains \"..\"", input)
	}

	canonical, err := v.canonicalize(input)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", input, err)
	}
	if strings.Contains(canonical, "..") {
		return "", fmt.Errorf("path traversal detected in canonical form: %q", canonical)
	}

	if v.denied(canonical) {
		return "", fmt.Errorf("path %q matches a denied location", canonical)
	}
	if len(v.Allowlist) > 0 && !v.allowed(canonical) {
		return "", fmt.Errorf("path %q is not in the configured allowlist", canonical)
	}
	return canonical, nil
}

// canonicalize resolves symlinks for an existing path; for a path that does
// not yet exist (e.g. an upload destination) it canonicalizes the parent
// directory and re-joins the base name.
func (v *PathValidator) canonicalize(input string) (string, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	parent, base := filepath.Split(abs)
	realParent, err := filepath.EvalSymlinks(parent)
	if err != nil {
		// Parent doesn't exist either -- fall back to the cleaned absolute
		// path; the caller (e.g. FileExecutor.upload) is responsible for
		// creating intermediate directories afterwards.
		return filepath.Clean(abs), nil
	}
	return filepath.Join(realParent, base), nil
}

func (v *PathValidator) denied(canonical string) bool {
	for _, d := range v.Denylist {
		if strings.HasPrefix(canonical, d) {
			return true
		}
	}
	if homeSSHGlob.MatchString(canonical) {
		return true
	}
	return false
}

func (v *PathValidator) allowed(canonical string) bool {
	for _, a := range v.Allowlist {
		if ok, _ := filepath.Match(a, canonical); ok {
			return true
		}
		if strings.HasPrefix(canonical, a) {
			return true
		}
	}
	return false
}

// ValidateProcessName rejects shell metacharacters.
func ValidateProcessName(name string) error {
	if name == "" {
		return fmt.Errorf("process name must not be empty")
	}
	if containsMetacharacter(name) {
		return fmt.Errorf("process name %q contains a disallowed character", name)
	}
	return nil
}

// ValidatePID rejects PID 0 and 1 unconditionally, and any PID below 10 as
// a protected system process.
func ValidatePID(pid int) error {
	if pid == 0 || pid == 1 {
		return fmt.Errorf("pid %d is not killable", pid)
	}
	if pid < 10 {
		return fmt.Errorf("pid %d is a protected system process", pid)
	}
	return nil
}

var serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-@.]+$`)

// ValidateServiceName rejects metacharacters and whitespace; only
// [A-Za-z0-9_-@.] is allowed.
func ValidateServiceName(name string) error {
	if name == "" {
		return fmt.Errorf("service name must not be empty")
	}
	if containsMetacharacter(name) || strings.ContainsAny(name, " \t") {
		return fmt.Errorf("service name %q contains a disallowed character", name)
	}
	if !serviceNamePattern.MatchString(name) {
		return fmt.Errorf("service name %q has an invalid format", name)
	}
	return nil
}

var hex12or64 = regexp.MustCompile(`^[0-9a-fA-F]{12}$|^[0-9a-fA-F]{64}$`)
var containerNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateContainerID accepts a 12- or 64-char hex ID, or a Docker-style
// container name.
func ValidateContainerID(id string) error {
	if id == "" {
		return fmt.Errorf("container id/name must not be empty")
	}
	if containsMetacharacter(id) {
		return fmt.Errorf("container id %q contains a disallowed character", id)
	}
	if hex12or64.MatchString(id) || containerNamePattern.MatchString(id) {
		return nil
	}
	return fmt.Errorf("container id %q has an invalid format", id)
}

var packageNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidatePackageName: length 1-255, must start alphanumeric, must not end
// with '.', no ".." substring, otherwise [A-Za-z0-9._-].
func ValidatePackageName(name string) error {
	if len(name) < 1 || len(name) > 255 {
		return fmt.Errorf("package name length must be 1-255, got %d", len(name))
	}
	if !isAlphaNumeric(rune(name[0])) {
		return fmt.Errorf("package name %q must start alphanumeric", name)
	}
	if strings.HasSuffix(name, ".") {
		return fmt.Errorf("package name %q must not end with '.'", name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("package name %q must not contain \"..\"", name)
	}
	if !packageNamePattern.MatchString(name) {
		return fmt.Errorf("package name %q has an invalid format", name)
	}
	return nil
}

func isAlphaNumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

const urlMetacharacters = "'\"`$\\;|&\n\r"

// ValidateURL requires http(s):// and rejects shell metacharacters; used
// for self-update download URLs.
func ValidateURL(u string) error {
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return fmt.Errorf("url %q must start with http:// or https://", u)
	}
	if strings.ContainsAny(u, urlMetacharacters) {
		return fmt.Errorf("url %q contains a disallowed character", u)
	}
	return nil
}

// ValidateScriptName rejects "..", "/", "\\" in the raw name; the caller
// (ScriptExecutor) is responsible for the additional canonical-path-inside-
// scripts-dir check once the name is joined to the scripts directory.
func ValidateScriptName(name string) error {
	if name == "" {
		return fmt.Errorf("script name must not be empty")
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("script name %q must not contain path separators or \"..\"", name)
	}
	return nil
}

// EnsureWithinDir verifies that canonical is inside canonicalDir, defending
// against a symlink that escapes the intended directory.
func EnsureWithinDir(canonical, canonicalDir string) error {
	rel, err := filepath.Rel(canonicalDir, canonical)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return fmt.Errorf("%q escapes required directory %q", canonical, canonicalDir)
	}
	return nil
}
