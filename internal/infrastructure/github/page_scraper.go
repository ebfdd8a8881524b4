package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/fonix232/caddy/internal/domain"
)

// PageScraper extracts release tags from the public releases page. It
// serves as a fallback when the API is rate limited or unavailable.
type PageScraper struct {
	baseURL string
	repo    string
	client  *http.Client
	logger  *slog.Logger
}

// NewPageScraper wires an HTTP client for the HTML fallback source.
func NewPageScraper(baseURL, repo string, log *slog.Logger) *PageScraper {
	return &PageScraper{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		repo:    repo,
		client:  &http.Client{Timeout: 20 * time.Second},
		logger:  log,
	}
}

// LatestRelease scrapes tag anchors from the releases page and returns
// the maximum parseable version.
func (p *PageScraper) LatestRelease(ctx context.Context) (domain.Release, error) {
	doc, err := p.fetchDocument(ctx, fmt.Sprintf("%s/%s/releases", p.baseURL, p.repo))
	if err != nil {
		return domain.Release{}, fmt.Errorf("releases page for %s: %w", p.repo, err)
	}

	var (
		best  domain.Release
		found bool
	)

	doc.Find(`a[href*="/releases/tag/"]`).Each(func(i int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		idx := strings.LastIndex(href, "/releases/tag/")
		if idx < 0 {
			return
		}
		raw := strings.Trim(href[idx+len("/releases/tag/"):], "/")

		v, ok := domain.ParseTag(raw)
		if !ok {
			return
		}
		if !found || v.Compare(best.Version) > 0 {
			best = domain.Release{Tag: raw, Version: v}
			found = true
		}
	})

	if !found {
		return domain.Release{}, fmt.Errorf("repo %s page: %w", p.repo, domain.ErrNoReleases)
	}

	if p.logger != nil {
		p.logger.Debug("latest release via page scrape", "repo", p.repo, "tag", best.Tag)
	}
	return best, nil
}

func (p *PageScraper) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "releasewatch/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("releases page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}
