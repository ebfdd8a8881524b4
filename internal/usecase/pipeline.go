package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fonix232/caddy/internal/domain"
	"github.com/fonix232/caddy/internal/ports"
)

// PipelineDeps wires all driven adapters into the trigger pipeline.
type PipelineDeps struct {
	Source     ports.ReleaseSource
	Published  ports.PublishedSetSource
	BaseImage  ports.TagChecker
	Dispatcher ports.Dispatcher
	Store      ports.RunStore
	Observer   ports.RunObserver
	Logger     *slog.Logger

	// Platforms the base image must cover before a build is dispatched.
	Platforms []string
	// Registries named in the run record, audit only.
	Registries []string
}

// Pipeline implements one scan-decide-dispatch run. It holds no state
// across runs: the registries are the only memory of what was built,
// which is what makes re-running it at any time safe.
type Pipeline struct {
	source     ports.ReleaseSource
	published  ports.PublishedSetSource
	baseImage  ports.TagChecker
	dispatcher ports.Dispatcher
	store      ports.RunStore
	observer   ports.RunObserver
	logger     *slog.Logger
	platforms  []string
	registries []string
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		source:     deps.Source,
		published:  deps.Published,
		baseImage:  deps.BaseImage,
		dispatcher: deps.Dispatcher,
		store:      deps.Store,
		observer:   deps.Observer,
		logger:     deps.Logger,
		platforms:  deps.Platforms,
		registries: deps.Registries,
	}
}

// Run executes one pass: scan upstream, check the base image gate, scan
// the published set, decide, dispatch. Upstream failure is fatal and no
// signal is emitted; every other path dispatches exactly once.
func (p *Pipeline) Run(ctx context.Context) (domain.Decision, error) {
	started := time.Now().UTC()

	latest, err := p.source.LatestRelease(ctx)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("scan upstream releases: %w", err)
	}
	p.info("latest upstream release", "tag", latest.Tag)

	var decision domain.Decision
	decided := false

	if p.baseImage != nil {
		ready := p.baseImageReady(ctx, latest)
		if !ready {
			p.info("base image not ready, no build triggered", "tag", latest.Tag)
			decision = domain.Decision{NeedsBuild: false, Tag: latest.Tag, Reason: ReasonBaseNotReady}
			decided = true
		}
	}

	if !decided {
		published, err := p.published.FetchPublished(ctx)
		if err != nil {
			return domain.Decision{}, fmt.Errorf("scan published versions: %w", err)
		}
		decision = Decide(latest, published)
	}

	p.info("dispatch decision", "tag", decision.Tag, "needs_build", decision.NeedsBuild, "reason", decision.Reason)

	if err := p.dispatcher.Dispatch(ctx, decision); err != nil {
		return domain.Decision{}, fmt.Errorf("dispatch signal: %w", err)
	}

	rec := domain.RunRecord{
		ID:         uuid.NewString(),
		Tag:        decision.Tag,
		NeedsBuild: decision.NeedsBuild,
		Reason:     decision.Reason,
		Registries: p.registries,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}

	if p.store != nil {
		if err := p.store.RecordRun(ctx, rec); err != nil {
			p.warn("cannot persist run record", "error", err)
		}
	}
	if p.observer != nil {
		p.observer.Observe(rec)
	}

	return decision, nil
}

// baseImageReady checks the official image for the normalized tag. A
// query failure counts as not ready: the next scheduled run retries.
func (p *Pipeline) baseImageReady(ctx context.Context, latest domain.Release) bool {
	tag, found, err := p.baseImage.Tag(ctx, latest.Version.String())
	if err != nil {
		p.warn("base image check failed, treating as not ready", "error", err)
		return false
	}
	if !found {
		return false
	}
	if !tag.HasPlatforms(p.platforms) {
		p.info("base image missing required platforms", "tag", tag.Raw, "platforms", tag.Platforms)
		return false
	}
	return true
}

func (p *Pipeline) info(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
