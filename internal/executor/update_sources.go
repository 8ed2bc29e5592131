package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// GitHubUpdateSource fetches the latest release from the GitHub releases
// API
type GitHubUpdateSource struct {
	Repo   string // "owner/repo"
	Client *http.Client
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name               string `json:"name"`
		BrowserDownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

func (s *GitHubUpdateSource) FetchLatest(ctx context.Context) (string, map[string]string, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	url := fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", s.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("github releases: status %d", resp.StatusCode)
	}

	var rel githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return "", nil, err
	}
	assets := make(map[string]string)
	for _, a := range rel.Assets {
		for _, tag := range []string{"linux-x86_64", "linux-aarch64", "macos-x86_64", "macos-aarch64", "windows-x86_64"} {
			if strings.Contains(a.Name, tag) {
				assets[tag] = a.BrowserDownloadURL
			}
		}
	}
	return strings.TrimPrefix(rel.TagName, "v"), assets, nil
}

// StaticManifestSource fetches a version.json manifest from a fixed base
// URL -- used for both the Cloudflare R2-hosted manifest and any custom
// update-source base URL
type StaticManifestSource struct {
	BaseURL string // e.g. "https://updates.example.com" or an R2 bucket URL
	Client  *http.Client
}

type manifest struct {
	Version string            `json:"version"`
	Assets  map[string]string `json:"assets"`
}

func (s *StaticManifestSource) FetchLatest(ctx context.Context) (string, map[string]string, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	url := strings.TrimRight(s.BaseURL, "/") + "/version.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("fetch %q: status %d", url, resp.StatusCode)
	}

	var m manifest
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return "", nil, err
	}
	return m.Version, m.Assets, nil
}
