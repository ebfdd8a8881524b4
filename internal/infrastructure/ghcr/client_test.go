package ghcr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fonix232/caddy/internal/domain"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("scope"); got != "repository:caddybuilds/caddy-cloudflare:pull" {
			t.Errorf("unexpected token scope: %s", got)
		}
		_, _ = w.Write([]byte(`{"token": "pull-token"}`))
	})

	mux.HandleFunc("/v2/caddybuilds/caddy-cloudflare/tags/list", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer pull-token" {
			t.Errorf("unexpected authorization: %s", got)
		}
		_, _ = w.Write([]byte(`{"name": "caddybuilds/caddy-cloudflare", "tags": ["2.9.0", "2.9.1", "latest"]}`))
	})

	mux.HandleFunc("/v2/caddybuilds/caddy-cloudflare/manifests/2.9.1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"mediaType": "application/vnd.oci.image.index.v1+json",
			"manifests": [
				{"platform": {"os": "linux", "architecture": "amd64"}},
				{"platform": {"os": "linux", "architecture": "arm64"}},
				{"platform": {"os": "unknown", "architecture": ""}}
			]
		}`))
	})

	mux.HandleFunc("/v2/caddybuilds/caddy-cloudflare/manifests/2.9.0", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"mediaType": "application/vnd.docker.distribution.manifest.v2+json",
			"config": {"digest": "sha256:abc123"}
		}`))
	})

	mux.HandleFunc("/v2/caddybuilds/caddy-cloudflare/blobs/sha256:abc123", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"os": "linux", "architecture": "amd64"}`))
	})

	return httptest.NewServer(mux)
}

func TestPublishedTags(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	defer server.Close()

	c := NewClient("ghcr-custom", server.URL, "caddybuilds/caddy-cloudflare", "gh-token", nil)

	tags, err := c.PublishedTags(context.Background())
	if err != nil {
		t.Fatalf("PublishedTags error: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("expected 2 parseable tags, got %d: %v", len(tags), tags)
	}

	byVersion := map[domain.Version][]string{}
	for _, tag := range tags {
		byVersion[tag.Version] = tag.Platforms
	}

	multi := byVersion[domain.Version{Major: 2, Minor: 9, Patch: 1}]
	if len(multi) != 2 {
		t.Fatalf("expected 2 platforms from the index, got %v", multi)
	}

	single := byVersion[domain.Version{Major: 2, Minor: 9, Patch: 0}]
	if len(single) != 1 || single[0] != "linux/amd64" {
		t.Fatalf("expected config-blob platform, got %v", single)
	}
}

func TestPublishedTagsNoPackage(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token": "pull-token"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewClient("ghcr-custom", server.URL, "caddybuilds/caddy-cloudflare", "", nil)

	tags, err := c.PublishedTags(context.Background())
	if err != nil {
		t.Fatalf("404 must mean no tags yet, got %v", err)
	}
	if len(tags) != 0 {
		t.Fatalf("expected empty set, got %v", tags)
	}
}

func TestPublishedTagsAuthFailure(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token": "pull-token"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewClient("ghcr-custom", server.URL, "caddybuilds/caddy-cloudflare", "bad", nil)

	if _, err := c.PublishedTags(context.Background()); err == nil {
		t.Fatalf("expected error on 403, so the aggregator can degrade")
	}
}

func TestTokenExchangeRefusedFallsBack(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})
	mux.HandleFunc("/v2/caddybuilds/caddy-cloudflare/tags/list", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer gh-token" {
			t.Errorf("expected fallback to github token, got %s", got)
		}
		_, _ = w.Write([]byte(`{"tags": []}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewClient("ghcr-custom", server.URL, "caddybuilds/caddy-cloudflare", "gh-token", nil)

	tags, err := c.PublishedTags(context.Background())
	if err != nil {
		t.Fatalf("PublishedTags error: %v", err)
	}
	if len(tags) != 0 {
		t.Fatalf("expected empty set, got %v", tags)
	}
}
