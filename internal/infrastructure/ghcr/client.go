package ghcr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docker/distribution/manifest/manifestlist"
	"github.com/docker/distribution/manifest/schema2"
	ociv1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/fonix232/caddy/internal/domain"
	"github.com/fonix232/caddy/internal/registry"
)

const defaultBaseURL = "https://ghcr.io"

var acceptedManifestTypes = strings.Join([]string{
	ociv1.MediaTypeImageIndex,
	manifestlist.MediaTypeManifestList,
	ociv1.MediaTypeImageManifest,
	schema2.MediaTypeManifest,
}, ", ")

// Client queries the GHCR registry API. The configured GitHub token is
// exchanged for a registry pull token; anonymous exchange works for
// public packages.
type Client struct {
	name        string
	baseURL     string
	repository  string
	githubToken string
	client      *http.Client
	logger      *slog.Logger
}

var _ registry.TagRegistry = (*Client)(nil)

// NewClient wires a GHCR client for one package repository.
func NewClient(name, baseURL, repository, githubToken string, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		name:        name,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		repository:  repository,
		githubToken: githubToken,
		client:      &http.Client{Timeout: 45 * time.Second},
		logger:      log,
	}
}

// Name identifies the registry inside the scan summary.
func (c *Client) Name() string { return c.name }

// PublishedTags lists the package tags and resolves the platform
// coverage of each parseable one. Tags whose manifest cannot be read
// are skipped rather than failing the registry.
func (c *Client) PublishedTags(ctx context.Context) ([]domain.PublishedTag, error) {
	token, err := c.registryToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("ghcr token for %s: %w", c.repository, err)
	}

	names, status, err := c.listTags(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("ghcr tags for %s: %w", c.repository, err)
	}
	switch status {
	case http.StatusNotFound:
		// no package or no tags yet
		return nil, nil
	case http.StatusOK:
	default:
		return nil, fmt.Errorf("ghcr tags for %s: unexpected status %d", c.repository, status)
	}

	var tags []domain.PublishedTag
	for _, name := range names {
		v, ok := domain.ParseTag(name)
		if !ok {
			continue
		}
		platforms, found, err := c.manifestPlatforms(ctx, token, name)
		if err != nil {
			c.warn("skipping tag, manifest unreadable", "tag", name, "error", err)
			continue
		}
		if !found {
			continue
		}
		tags = append(tags, domain.PublishedTag{Raw: name, Version: v, Platforms: platforms})
	}

	return tags, nil
}

// registryToken exchanges the GitHub token for a registry pull token,
// falling back to the raw token when the exchange is refused.
func (c *Client) registryToken(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("%s/token?scope=%s", c.baseURL,
		url.QueryEscape("repository:"+c.repository+":pull"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if c.githubToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.githubToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.warn("token exchange refused, using github token directly", "status", resp.StatusCode)
		return c.githubToken, nil
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if body.Token == "" {
		return c.githubToken, nil
	}
	return body.Token, nil
}

func (c *Client) listTags(ctx context.Context, token string) ([]string, int, error) {
	endpoint := fmt.Sprintf("%s/v2/%s/tags/list", c.baseURL, c.repository)

	resp, err := c.get(ctx, endpoint, token, "application/json")
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, nil
	}

	var body struct {
		Name string   `json:"name"`
		Tags []string `json:"tags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode tag list: %w", err)
	}
	return body.Tags, resp.StatusCode, nil
}

// manifestPlatforms resolves the platforms a tag manifest covers.
// Multi-arch indexes carry them inline; single manifests need the
// config blob.
func (c *Client) manifestPlatforms(ctx context.Context, token, tag string) ([]string, bool, error) {
	endpoint := fmt.Sprintf("%s/v2/%s/manifests/%s", c.baseURL, c.repository, tag)

	resp, err := c.get(ctx, endpoint, token, acceptedManifestTypes)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("manifest %s: unexpected status %d", tag, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read manifest %s: %w", tag, err)
	}

	mediaType := manifestMediaType(raw, resp.Header.Get("Content-Type"))
	switch mediaType {
	case ociv1.MediaTypeImageIndex, manifestlist.MediaTypeManifestList:
		var list manifestlist.ManifestList
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, false, fmt.Errorf("decode manifest list %s: %w", tag, err)
		}
		return platformsFromList(list), true, nil

	case ociv1.MediaTypeImageManifest, schema2.MediaTypeManifest:
		var manifest schema2.Manifest
		if err := json.Unmarshal(raw, &manifest); err != nil {
			return nil, false, fmt.Errorf("decode manifest %s: %w", tag, err)
		}
		platform, err := c.configPlatform(ctx, token, manifest.Config.Digest.String())
		if err != nil {
			return nil, false, err
		}
		if platform == "" {
			return nil, true, nil
		}
		return []string{platform}, true, nil

	default:
		return nil, false, fmt.Errorf("manifest %s: unknown media type %q", tag, mediaType)
	}
}

func (c *Client) configPlatform(ctx context.Context, token, digest string) (string, error) {
	if digest == "" {
		return "", nil
	}
	endpoint := fmt.Sprintf("%s/v2/%s/blobs/%s", c.baseURL, c.repository, digest)

	resp, err := c.get(ctx, endpoint, token, ociv1.MediaTypeImageConfig)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("config blob %s: unexpected status %d", digest, resp.StatusCode)
	}

	var cfg struct {
		OS           string `json:"os"`
		Architecture string `json:"architecture"`
		Variant      string `json:"variant"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return "", fmt.Errorf("decode config blob %s: %w", digest, err)
	}
	if cfg.OS == "" || cfg.Architecture == "" {
		return "", nil
	}
	platform := cfg.OS + "/" + cfg.Architecture
	if cfg.Variant != "" {
		platform += "/" + cfg.Variant
	}
	return platform, nil
}

func (c *Client) get(ctx context.Context, rawURL, token, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", "releasewatch/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}

func manifestMediaType(raw []byte, headerType string) string {
	var probe struct {
		MediaType string `json:"mediaType"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && probe.MediaType != "" {
		return probe.MediaType
	}
	if idx := strings.Index(headerType, ";"); idx >= 0 {
		headerType = headerType[:idx]
	}
	return strings.TrimSpace(headerType)
}

func platformsFromList(list manifestlist.ManifestList) []string {
	var platforms []string
	for _, desc := range list.Manifests {
		if desc.Platform.OS == "" || desc.Platform.Architecture == "" {
			continue
		}
		platform := desc.Platform.OS + "/" + desc.Platform.Architecture
		if desc.Platform.Variant != "" {
			platform += "/" + desc.Platform.Variant
		}
		platforms = append(platforms, platform)
	}
	return platforms
}

func (c *Client) warn(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
