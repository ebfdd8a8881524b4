package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fonix232/caddy/internal/domain"
)

const (
	defaultPageSize = 100
	maxPages        = 3
)

// Client queries the GitHub releases API for the newest published tag.
type Client struct {
	baseURL  string
	repo     string
	token    string
	pageSize int
	client   *http.Client
	logger   *slog.Logger
}

// NewClient wires an API client; pageSize defaults to 100.
func NewClient(baseURL, repo, token string, pageSize int, log *slog.Logger) *Client {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		repo:     repo,
		token:    token,
		pageSize: pageSize,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   log,
	}
}

type apiRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// LatestRelease walks the release list (which may be unordered) and
// returns the maximum stable version. Draft and pre-release entries and
// unparseable tags are dropped; zero survivors is a fatal condition.
func (c *Client) LatestRelease(ctx context.Context) (domain.Release, error) {
	var (
		best    domain.Release
		found   bool
		dropped int
	)

	for page := 1; page <= maxPages; page++ {
		releases, err := c.fetchPage(ctx, page)
		if err != nil {
			return domain.Release{}, fmt.Errorf("releases for %s: %w", c.repo, err)
		}
		if len(releases) == 0 {
			break
		}

		for _, rel := range releases {
			if rel.Draft || rel.Prerelease {
				continue
			}
			v, ok := domain.ParseTag(rel.TagName)
			if !ok {
				dropped++
				continue
			}
			if !found || v.Compare(best.Version) > 0 {
				best = domain.Release{Tag: rel.TagName, Version: v}
				found = true
			}
		}

		if len(releases) < c.pageSize {
			break
		}
	}

	if !found {
		return domain.Release{}, fmt.Errorf("repo %s: %w", c.repo, domain.ErrNoReleases)
	}

	if dropped > 0 {
		c.debug("dropped unparseable release tags", "repo", c.repo, "count", dropped)
	}
	c.debug("latest upstream release", "repo", c.repo, "tag", best.Tag)
	return best, nil
}

func (c *Client) fetchPage(ctx context.Context, page int) ([]apiRelease, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/releases", c.baseURL, c.repo)
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid api url %s: %w", endpoint, err)
	}
	query := parsed.Query()
	query.Set("per_page", strconv.Itoa(c.pageSize))
	query.Set("page", strconv.Itoa(page))
	parsed.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "releasewatch/1.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request releases: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("github returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var releases []apiRelease
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("decode releases: %w", err)
	}

	return releases, nil
}

func (c *Client) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
