package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fonix232/caddy/internal/domain"
	"github.com/fonix232/caddy/internal/ports"
)

// Member pairs a registry with its optional flag. Failures degrade the
// run either way; optional members just log quieter.
type Member struct {
	Registry TagRegistry
	Optional bool
}

// Source implements the published-set port over a group of registries.
// Each registry is queried independently; a failing registry contributes
// an empty set instead of aborting the run. A tag counts as published
// only when its manifest covers every required platform.
type Source struct {
	members   []Member
	platforms []string
	logger    *slog.Logger
}

var _ ports.PublishedSetSource = (*Source)(nil)

// NewSource wires the configured registries with the platform requirement.
func NewSource(members []Member, platforms []string, log *slog.Logger) *Source {
	return &Source{
		members:   members,
		platforms: platforms,
		logger:    log,
	}
}

// FetchPublished queries all registries concurrently and returns the
// union of platform-complete versions.
func (s *Source) FetchPublished(ctx context.Context) ([]domain.Version, error) {
	type result struct {
		name     string
		optional bool
		tags     []domain.PublishedTag
		err      error
	}

	results := make([]result, len(s.members))

	var wg sync.WaitGroup
	for i, member := range s.members {
		wg.Add(1)
		go func(i int, member Member) {
			defer wg.Done()
			tags, err := member.Registry.PublishedTags(ctx)
			results[i] = result{
				name:     member.Registry.Name(),
				optional: member.Optional,
				tags:     tags,
				err:      err,
			}
		}(i, member)
	}
	wg.Wait()

	seen := map[domain.Version]struct{}{}
	var union []domain.Version
	for _, res := range results {
		if res.err != nil {
			if res.optional {
				s.warn("optional registry degraded, contributing empty set", "registry", res.name, "error", res.err)
			} else {
				s.errorLog("registry degraded, contributing empty set", "registry", res.name, "error", res.err)
			}
			continue
		}

		published := 0
		for _, tag := range res.tags {
			if !tag.HasPlatforms(s.platforms) {
				s.debug("tag missing required platforms", "registry", res.name, "tag", tag.Raw, "platforms", tag.Platforms)
				continue
			}
			published++
			if _, ok := seen[tag.Version]; ok {
				continue
			}
			seen[tag.Version] = struct{}{}
			union = append(union, tag.Version)
		}
		s.debug("registry scanned", "registry", res.name, "tags", len(res.tags), "published", published)
	}

	return union, nil
}

func (s *Source) errorLog(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

func (s *Source) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Source) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
