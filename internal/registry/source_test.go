package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/fonix232/caddy/internal/domain"
)

type fakeRegistry struct {
	name string
	tags []domain.PublishedTag
	err  error
}

func (f *fakeRegistry) Name() string { return f.name }

func (f *fakeRegistry) PublishedTags(ctx context.Context) ([]domain.PublishedTag, error) {
	return f.tags, f.err
}

func tag(raw string, platforms ...string) domain.PublishedTag {
	v, ok := domain.ParseTag(raw)
	if !ok {
		panic("bad test tag " + raw)
	}
	return domain.PublishedTag{Raw: raw, Version: v, Platforms: platforms}
}

func TestFetchPublishedUnion(t *testing.T) {
	t.Parallel()

	src := NewSource([]Member{
		{Registry: &fakeRegistry{name: "a", tags: []domain.PublishedTag{
			tag("2.9.0", "linux/amd64", "linux/arm64"),
			tag("2.9.1", "linux/amd64", "linux/arm64"),
		}}},
		{Registry: &fakeRegistry{name: "b", tags: []domain.PublishedTag{
			tag("2.9.1", "linux/amd64", "linux/arm64"),
			tag("2.8.4", "linux/amd64", "linux/arm64"),
		}}},
	}, []string{"linux/amd64", "linux/arm64"}, nil)

	got, err := src.FetchPublished(context.Background())
	if err != nil {
		t.Fatalf("FetchPublished error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 distinct versions, got %v", got)
	}
}

func TestFetchPublishedDegradedRegistry(t *testing.T) {
	t.Parallel()

	src := NewSource([]Member{
		{Registry: &fakeRegistry{name: "a", tags: []domain.PublishedTag{
			tag("2.9.1", "linux/amd64", "linux/arm64"),
		}}},
		{Registry: &fakeRegistry{name: "b", err: errors.New("rate limited")}, Optional: true},
	}, []string{"linux/amd64", "linux/arm64"}, nil)

	got, err := src.FetchPublished(context.Background())
	if err != nil {
		t.Fatalf("degraded registry must not abort the run: %v", err)
	}
	if len(got) != 1 || got[0] != (domain.Version{Major: 2, Minor: 9, Patch: 1}) {
		t.Fatalf("expected union from healthy registry only, got %v", got)
	}
}

func TestFetchPublishedSkipsIncompleteTags(t *testing.T) {
	t.Parallel()

	src := NewSource([]Member{
		{Registry: &fakeRegistry{name: "a", tags: []domain.PublishedTag{
			tag("2.9.1", "linux/amd64"),
			tag("2.9.0", "linux/amd64", "linux/arm64"),
		}}},
	}, []string{"linux/amd64", "linux/arm64"}, nil)

	got, err := src.FetchPublished(context.Background())
	if err != nil {
		t.Fatalf("FetchPublished error: %v", err)
	}
	if len(got) != 1 || got[0] != (domain.Version{Major: 2, Minor: 9, Patch: 0}) {
		t.Fatalf("platform-incomplete tag must not count as published, got %v", got)
	}
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register("dockerhub", nil)

	if _, err := reg.Resolve("dockerhub"); err != nil {
		t.Fatalf("resolve registered strategy: %v", err)
	}
	if _, err := reg.Resolve("quay"); err == nil {
		t.Fatalf("expected error for unregistered strategy")
	}
}
