package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/nanoagent/nanoagent/internal/model"
	"github.com/nanoagent/nanoagent/internal/security"
)

// UpdateExecutor implements the self-update command family: version
// queries, release-metadata checks, asset download, and on-disk
// replacement of the running executable.
type UpdateExecutor struct {
	CurrentVersion string
	Source         UpdateSource
	HTTPClient     *http.Client
	WorkDir        string // temp/scratch directory for downloads
}

// UpdateSource abstracts where release metadata and assets come from:
// GitHub API, a Cloudflare R2 version.json, or a custom base URL.
type UpdateSource interface {
	// FetchLatest returns the latest version string and a map of platform
	// tag -> asset URL.
	FetchLatest(ctx context.Context) (version string, assets map[string]string, err error)
}

func NewUpdateExecutor(currentVersion string, source UpdateSource, workDir string) *UpdateExecutor {
	return &UpdateExecutor{
		CurrentVersion: currentVersion,
		Source:         source,
		HTTPClient:     &http.Client{},
		WorkDir:        workDir,
	}
}

func (e *UpdateExecutor) RegisterInto(d *Dispatcher) {
	d.Register(model.CmdUpdateGetVersion, e.GetVersion)
	d.Register(model.CmdUpdateCheck, e.CheckUpdate)
	d.Register(model.CmdUpdateDownload, e.DownloadUpdate)
	d.Register(model.CmdUpdateApply, e.ApplyUpdate)
}

// GetVersion is a pure read of the compile-time version.
func (e *UpdateExecutor) GetVersion(ctx context.Context, cmd model.Command) model.CommandResult {
	out := model.OK(cmd.ID, e.CurrentVersion)
	out.UpdateInfo = &model.UpdateInfo{CurrentVersion: e.CurrentVersion}
	return out
}

// CheckUpdate fetches release metadata and compares with semver-aware
// ordering (CompareVersions).
func (e *UpdateExecutor) CheckUpdate(ctx context.Context, cmd model.Command) model.CommandResult {
	latest, _, err := e.Source.FetchLatest(ctx)
	if err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("fetch release metadata: %v", err))
	}
	available := CompareVersions(latest, e.CurrentVersion) > 0
	out := model.OK(cmd.ID, fmt.Sprintf("current=%s latest=%s", e.CurrentVersion, latest))
	out.UpdateInfo = &model.UpdateInfo{
		CurrentVersion:  e.CurrentVersion,
		LatestVersion:   latest,
		UpdateAvailable: available,
	}
	return out
}

// assetTag names the release asset tag for the running platform.
func assetTag() string {
	switch runtime.GOOS {
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "linux-aarch64"
		}
		return "linux-x86_64"
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "macos-aarch64"
		}
		return "macos-x86_64"
	case "windows":
		return "windows-x86_64"
	default:
		return runtime.GOOS + "-" + runtime.GOARCH
	}
}

// DownloadUpdate fetches the platform-tagged asset to a temp path. The URL
// is validated before any request is made.
func (e *UpdateExecutor) DownloadUpdate(ctx context.Context, cmd model.Command) model.CommandResult {
	_, assets, err := e.Source.FetchLatest(ctx)
	if err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("fetch release metadata: %v", err))
	}
	tag := assetTag()
	url, ok := assets[tag]
	if !ok {
		return model.Fail(cmd.ID, fmt.Sprintf("no release asset for platform %q", tag))
	}
	if err := security.ValidateURL(url); err != nil {
		return model.Fail(cmd.ID, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("download %q: %v", url, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.Fail(cmd.ID, fmt.Sprintf("download %q: status %d", url, resp.StatusCode))
	}

	dest := filepath.Join(e.WorkDir, "nanoagentd.update")
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return model.Fail(cmd.ID, err.Error())
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("write update to %q: %v", dest, err))
	}

	out := model.OK(cmd.ID, "downloaded update to "+dest)
	out.UpdateInfo = &model.UpdateInfo{CurrentVersion: e.CurrentVersion, DownloadPath: dest}
	return out
}

// ApplyUpdate verifies SHA-256 if a checksum is supplied, then replaces the
// current executable. Unix: copy current->.bak, copy update->current, chmod
// 0755, remove temp + backup. Windows: write a deferred .bat the OS executes
// after the agent exits. Checksum comparison is length-checked then
// byte-wise via security.ConstantTimeEqual.
func (e *UpdateExecutor) ApplyUpdate(ctx context.Context, cmd model.Command) model.CommandResult {
	downloadPath := cmd.Params["download_path"]
	if downloadPath == "" {
		downloadPath = filepath.Join(e.WorkDir, "nanoagentd.update")
	}

	if checksum := cmd.Params["checksum"]; checksum != "" {
		sum, err := sha256File(downloadPath)
		if err != nil {
			return model.Fail(cmd.ID, fmt.Sprintf("checksum update file: %v", err))
		}
		if !security.ConstantTimeEqualString(strings.ToLower(checksum), sum) {
			return model.Fail(cmd.ID, "checksum mismatch: downloaded update does not match expected SHA-256")
		}
	}

	current, err := os.Executable()
	if err != nil {
		return model.Fail(cmd.ID, fmt.Sprintf("resolve current executable: %v", err))
	}

	if runtime.GOOS == "windows" {
		return e.applyWindows(cmd.ID, current, downloadPath)
	}
	return e.applyUnix(cmd.ID, current, downloadPath)
}

func (e *UpdateExecutor) applyUnix(id, current, downloadPath string) model.CommandResult {
	backup := current + ".bak"
	if err := copyFile(current, backup); err != nil {
		return model.Fail(id, fmt.Sprintf("backup current executable: %v", err))
	}
	if err := copyFile(downloadPath, current); err != nil {
		return model.Fail(id, fmt.Sprintf("install update: %v", err))
	}
	if err := os.Chmod(current, 0o755); err != nil {
		return model.Fail(id, fmt.Sprintf("chmod updated executable: %v", err))
	}
	_ = os.Remove(downloadPath)
	_ = os.Remove(backup)
	return model.OK(id, "update applied, restart required")
}

// applyWindows writes a deferred batch file because a running executable
// cannot be overwritten on NTFS; the batch uses delayed expansion to avoid
// variable-expansion injection via paths.
func (e *UpdateExecutor) applyWindows(id, current, downloadPath string) model.CommandResult {
	batPath := filepath.Join(e.WorkDir, "nanoagent_update.bat")
	script := "@echo off\r\n" +
		"setlocal EnableDelayedExpansion\r\n" +
		"timeout /t 2 /nobreak >nul\r\n" +
		"set \"CURRENT=" + current + "\"\r\n" +
		"set \"UPDATE=" + downloadPath + "\"\r\n" +
		"copy /y \"!UPDATE!\" \"!CURRENT!\"\r\n" +
		"del \"!UPDATE!\"\r\n" +
		"del \"%~f0\"\r\n"
	if err := os.WriteFile(batPath, []byte(script), 0o755); err != nil {
		return model.Fail(id, fmt.Sprintf("write deferred updater: %v", err))
	}
	return model.OK(id, "deferred update batch written, will apply after process exit")
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// CompareVersions implements a semver-aware ordering: split on "-" into
// release/prerelease; compare release parts
// pairwise as integers with missing parts = 0; a release with no
// prerelease outranks any prerelease of the same base; prereleases compare
// dot-segment-wise, numeric segments compared numerically against each
// other, and a numeric segment outranks a non-numeric one at the same
// position. Returns >0 if a > b, <0 if a < b, 0 if equal.
func CompareVersions(a, b string) int {
	aRelease, aPre := splitVersion(a)
	bRelease, bPre := splitVersion(b)

	if c := compareReleaseParts(aRelease, bRelease); c != 0 {
		return c
	}
	switch {
	case aPre == "" && bPre == "":
		return 0
	case aPre == "" && bPre != "":
		return 1
	case aPre != "" && bPre == "":
		return -1
	default:
		return comparePrerelease(aPre, bPre)
	}
}

func splitVersion(v string) (release, prerelease string) {
	v = strings.TrimPrefix(v, "v")
	if idx := strings.IndexByte(v, '-'); idx >= 0 {
		return v[:idx], v[idx+1:]
	}
	return v, ""
}

func compareReleaseParts(a, b string) int {
	ap := strings.Split(a, ".")
	bp := strings.Split(b, ".")
	n := len(ap)
	if len(bp) > n {
		n = len(bp)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(ap) {
			av, _ = strconv.Atoi(ap[i])
		}
		if i < len(bp) {
			bv, _ = strconv.Atoi(bp[i])
		}
		if av != bv {
			if av > bv {
				return 1
			}
			return -1
		}
	}
	return 0
}

func comparePrerelease(a, b string) int {
	ap := strings.Split(a, ".")
	bp := strings.Split(b, ".")
	n := len(ap)
	if len(bp) > n {
		n = len(bp)
	}
	for i := 0; i < n; i++ {
		if i >= len(ap) {
			return -1
		}
		if i >= len(bp) {
			return 1
		}
		as, bs := ap[i], bp[i]
		an, aerr := strconv.Atoi(as)
		bn, berr := strconv.Atoi(bs)
		switch {
		case aerr == nil && berr == nil:
			if an != bn {
				if an > bn {
					return 1
				}
				return -1
			}
		case aerr == nil && berr != nil:
			return 1 // numeric > non-numeric at the same position
		case aerr != nil && berr == nil:
			return -1
		default:
			if as != bs {
				if as > bs {
					return 1
				}
				return -1
			}
		}
	}
	return 0
}
