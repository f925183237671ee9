// Package version reports the build version and checks for newer releases.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Version is set at build time with -ldflags "-X .../internal/version.Version=x.y.z"
var Version = "0.1.0-dev"

const (
	// ReleasesURL is the latest-release endpoint of the project
	ReleasesURL  = "https://api.github.com/repos/studiowebux/chatstress/releases/latest"
	checkTimeout = 5 * time.Second
)

// Release is the part of a release description the checker reads
type Release struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
}

// Version returns the tag without its leading "v"
func (r Release) Version() string {
	return strings.TrimPrefix(r.TagName, "v")
}

// Checker fetches the latest release
type Checker struct {
	URL    string
	Client *http.Client
}

// NewChecker returns a checker for the project's releases
func NewChecker() *Checker {
	return &Checker{
		URL:    ReleasesURL,
		Client: &http.Client{Timeout: checkTimeout},
	}
}

// Latest fetches the newest published release
func (c *Checker) Latest(ctx context.Context) (Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return Release{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "chatstress/"+Version)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return Release{}, fmt.Errorf("failed to fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Release{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return Release{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if release.TagName == "" {
		return Release{}, fmt.Errorf("release has no tag")
	}
	return release, nil
}

// Check reports whether a release newer than current exists
func (c *Checker) Check(ctx context.Context, current string) (Release, bool, error) {
	release, err := c.Latest(ctx)
	if err != nil {
		return Release{}, false, err
	}
	return release, Compare(release.Version(), strings.TrimPrefix(current, "v")) > 0, nil
}

// Compare orders two dotted versions numerically and returns -1, 0 or 1.
// Pre-release and build suffixes are ignored and missing parts count as 0.
func Compare(a, b string) int {
	pa, pb := numericParts(a), numericParts(b)
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		switch {
		case x > y:
			return 1
		case x < y:
			return -1
		}
	}
	return 0
}

func numericParts(v string) []int {
	if idx := strings.IndexAny(v, "-+"); idx != -1 {
		v = v[:idx]
	}
	var parts []int
	for _, field := range strings.Split(v, ".") {
		n, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		parts = append(parts, n)
	}
	return parts
}
