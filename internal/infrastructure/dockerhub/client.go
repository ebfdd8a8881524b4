package dockerhub

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

	"github.com/docker/cli/cli/config/configfile"

	"github.com/fonix232/caddy/internal/domain"
	"github.com/fonix232/caddy/internal/ports"
	"github.com/fonix232/caddy/internal/registry"
)

const (
	defaultBaseURL = "https://hub.docker.com"
	dockerIndex    = "https://index.docker.io/v1/"
	pageSize       = 100
	maxPages       = 5
)

// Client queries the Docker Hub tags API for a single repository.
type Client struct {
	name       string
	baseURL    string
	repository string
	username   string
	password   string
	client     *http.Client
	logger     *slog.Logger
}

var _ registry.TagRegistry = (*Client)(nil)
var _ ports.TagChecker = (*Client)(nil)

// NewClient wires a Hub client. Credentials are looked up in the Docker
// CLI config when one is provided; anonymous queries work for public
// repositories.
func NewClient(name, baseURL, repository string, dockerConfig *configfile.ConfigFile, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		name:       name,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		repository: repository,
		client:     &http.Client{Timeout: 45 * time.Second},
		logger:     log,
	}
	if dockerConfig != nil {
		if auth, err := dockerConfig.GetAuthConfig(dockerIndex); err == nil {
			c.username = auth.Username
			c.password = auth.Password
		}
	}
	return c
}

// Name identifies the registry inside the scan summary.
func (c *Client) Name() string { return c.name }

type tagImage struct {
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	Variant      string `json:"variant"`
}

type tagResult struct {
	Name   string     `json:"name"`
	Images []tagImage `json:"images"`
}

type tagPage struct {
	Next    string      `json:"next"`
	Results []tagResult `json:"results"`
}

// PublishedTags lists the currently published tags with their platform
// coverage, following pagination. Malformed tag names are dropped.
func (c *Client) PublishedTags(ctx context.Context) ([]domain.PublishedTag, error) {
	endpoint := fmt.Sprintf("%s/v2/repositories/%s/tags", c.baseURL, c.repository)
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid hub url %s: %w", endpoint, err)
	}
	query := parsed.Query()
	query.Set("page_size", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()

	var tags []domain.PublishedTag
	next := parsed.String()

	for page := 0; next != "" && page < maxPages; page++ {
		var body tagPage
		status, err := c.getJSON(ctx, next, &body)
		if err != nil {
			return nil, fmt.Errorf("hub tags for %s: %w", c.repository, err)
		}
		if status == http.StatusNotFound {
			// no tags published yet
			return nil, nil
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("hub tags for %s: unexpected status %d", c.repository, status)
		}

		for _, res := range body.Results {
			v, ok := domain.ParseTag(res.Name)
			if !ok {
				continue
			}
			tags = append(tags, domain.PublishedTag{
				Raw:       res.Name,
				Version:   v,
				Platforms: platformsFromImages(res.Images),
			})
		}

		next = body.Next
	}

	if c.logger != nil {
		c.logger.Debug("hub tags scanned", "repository", c.repository, "parseable", len(tags))
	}
	return tags, nil
}

// Tag checks a single tag, reporting whether it exists and which
// platforms its manifest covers. A 404 means not published.
func (c *Client) Tag(ctx context.Context, tag string) (domain.PublishedTag, bool, error) {
	endpoint := fmt.Sprintf("%s/v2/repositories/%s/tags/%s", c.baseURL, c.repository, tag)

	var body tagResult
	status, err := c.getJSON(ctx, endpoint, &body)
	if err != nil {
		return domain.PublishedTag{}, false, fmt.Errorf("hub tag %s for %s: %w", tag, c.repository, err)
	}
	switch status {
	case http.StatusNotFound:
		return domain.PublishedTag{}, false, nil
	case http.StatusOK:
	default:
		return domain.PublishedTag{}, false, fmt.Errorf("hub tag %s for %s: unexpected status %d", tag, c.repository, status)
	}

	v, _ := domain.ParseTag(tag)
	return domain.PublishedTag{
		Raw:       tag,
		Version:   v,
		Platforms: platformsFromImages(body.Images),
	}, true, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, target interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "releasewatch/1.0")
	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func platformsFromImages(images []tagImage) []string {
	var platforms []string
	for _, img := range images {
		if img.OS == "" || img.Architecture == "" {
			continue
		}
		platform := img.OS + "/" + img.Architecture
		if img.Variant != "" {
			platform += "/" + img.Variant
		}
		platforms = append(platforms, platform)
	}
	return platforms
}
