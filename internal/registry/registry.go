package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docker/cli/cli/config/configfile"

	"github.com/fonix232/caddy/internal/config"
	"github.com/fonix232/caddy/internal/domain"
)

// TagRegistry captures a single artifact-registry strategy (Docker Hub,
// GHCR, etc.).
type TagRegistry interface {
	Name() string
	PublishedTags(ctx context.Context) ([]domain.PublishedTag, error)
}

// BuildDeps carries shared collaborators into registry builders.
type BuildDeps struct {
	Token        string
	DockerConfig *configfile.ConfigFile
	Logger       *slog.Logger
}

// Builder constructs a TagRegistry from its config entry.
type Builder func(cfg config.RegistryConfig, deps BuildDeps) (TagRegistry, error)

// Registry keeps a mapping from strategy type names to their builders.
type Registry struct {
	builders map[string]Builder
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: map[string]Builder{}}
}

// Register adds or replaces a strategy builder.
func (r *Registry) Register(name string, b Builder) {
	if r.builders == nil {
		r.builders = map[string]Builder{}
	}
	r.builders[name] = b
}

// Resolve returns a builder by type name or an error if it is absent.
func (r *Registry) Resolve(name string) (Builder, error) {
	if b, ok := r.builders[name]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("registry strategy %s is not registered", name)
}
