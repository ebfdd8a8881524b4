package github

import (
	"context"
	"log/slog"

	"github.com/fonix232/caddy/internal/domain"
	"github.com/fonix232/caddy/internal/ports"
)

// Feed is the upstream release source: the API client first, the page
// scraper as an optional fallback. Both failing is fatal for the run.
type Feed struct {
	api      *Client
	fallback *PageScraper
	logger   *slog.Logger
}

var _ ports.ReleaseSource = (*Feed)(nil)

// NewFeed combines the API client with an optional HTML fallback.
func NewFeed(api *Client, fallback *PageScraper, log *slog.Logger) *Feed {
	return &Feed{api: api, fallback: fallback, logger: log}
}

// LatestRelease returns the newest upstream release.
func (f *Feed) LatestRelease(ctx context.Context) (domain.Release, error) {
	release, err := f.api.LatestRelease(ctx)
	if err == nil {
		return release, nil
	}

	if f.fallback == nil {
		return domain.Release{}, err
	}

	if f.logger != nil {
		f.logger.Warn("release api failed, falling back to page scrape", "error", err)
	}
	return f.fallback.LatestRelease(ctx)
}
