package usecase

import (
	"context"
	"testing"
	"time"
)

type syncDriver struct {
	fires int
}

func (d *syncDriver) Start(ctx context.Context, job func(time.Time)) error {
	for i := 0; i < d.fires; i++ {
		job(time.Now())
	}
	return nil
}

func (d *syncDriver) Stop(ctx context.Context) error { return nil }

func TestSchedulerRunsPipelinePerTrigger(t *testing.T) {
	t.Parallel()

	dispatcher := &fakeDispatcher{}
	pipeline := NewPipeline(PipelineDeps{
		Source:     &fakeSource{release: release("v2.9.1")},
		Published:  &fakePublished{},
		Dispatcher: dispatcher,
	})

	s := NewScheduler(&syncDriver{fires: 3}, pipeline, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	if dispatcher.calls != 3 {
		t.Fatalf("expected 3 runs, got %d", dispatcher.calls)
	}
}

func TestSchedulerNilDriverIsNoop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, nil, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
}
