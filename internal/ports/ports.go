package ports

import (
	"context"
	"time"

	"github.com/fonix232/caddy/internal/domain"
)

// ReleaseSource pulls the newest release from the upstream feed.
type ReleaseSource interface {
	LatestRelease(ctx context.Context) (domain.Release, error)
}

// PublishedSetSource fetches the union of versions already published
// across the configured artifact registries. Registry failures degrade
// to an empty contribution; the method itself never aborts the run.
type PublishedSetSource interface {
	FetchPublished(ctx context.Context) ([]domain.Version, error)
}

// TagChecker answers whether a single tag exists on a registry and
// which platforms its manifest covers.
type TagChecker interface {
	Tag(ctx context.Context, tag string) (domain.PublishedTag, bool, error)
}

// Dispatcher emits the dispatch signal consumed by the build executor.
type Dispatcher interface {
	Dispatch(ctx context.Context, decision domain.Decision) error
}

// RunStore persists run snapshots for audit/history.
type RunStore interface {
	RecordRun(ctx context.Context, rec domain.RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

// RunObserver receives the snapshot of each finished run.
type RunObserver interface {
	Observe(rec domain.RunRecord)
}

// Scheduler controls when daemon mode re-runs the pipeline.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
