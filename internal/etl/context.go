package etl

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/BartekS5/bulkimport/pkg/models"
)

// Services are the collaborators a pipeline run delegates to.
type Services struct {
	Entities       EntityRepository
	Trackers       TrackerRepository
	Failures       FailureRecorder
	Dedup          DedupStore
	Counter        ObjectCounter
	IdentityMapper IdentityMapper
}

func (s Services) validate() error {
	switch {
	case s.Entities == nil:
		return errors.New("entity repository is required")
	case s.Trackers == nil:
		return errors.New("tracker repository is required")
	case s.Failures == nil:
		return errors.New("failure recorder is required")
	case s.Dedup == nil:
		return errors.New("dedup store is required")
	case s.Counter == nil:
		return errors.New("object counter is required")
	}
	return nil
}

// PipelineContext is the execution environment of one pipeline run. It holds identifiers
// only; state is read and written through Services.
type PipelineContext struct {
	EntityID      string
	TrackerID     string
	JobID         string
	Principal     string
	SourceBaseURL string

	Services
	extra map[string]any
}

type ContextOption func(*PipelineContext)

func WithJobID(id string) ContextOption {
	return func(pc *PipelineContext) {
		pc.JobID = id
	}
}

func WithPrincipal(principal string) ContextOption {
	return func(pc *PipelineContext) {
		pc.Principal = principal
	}
}

// WithSourceBaseURL sets the base URL used to build links in failure records.
func WithSourceBaseURL(u string) ContextOption {
	return func(pc *PipelineContext) {
		pc.SourceBaseURL = u
	}
}

// WithExtra attaches opaque caller data available to stages.
func WithExtra(key string, value any) ContextOption {
	return func(pc *PipelineContext) {
		if pc.extra == nil {
			pc.extra = make(map[string]any)
		}
		pc.extra[key] = value
	}
}

func NewPipelineContext(entityID, trackerID string, svc Services, opts ...ContextOption) (*PipelineContext, error) {
	if entityID == "" || trackerID == "" {
		return nil, errors.New("entity and tracker ids are required")
	}
	if err := svc.validate(); err != nil {
		return nil, err
	}

	pc := &PipelineContext{
		EntityID:  entityID,
		TrackerID: trackerID,
		Services:  svc,
	}
	for _, opt := range opts {
		opt(pc)
	}
	return pc, nil
}

func (pc *PipelineContext) Entity(ctx context.Context) (*models.Entity, error) {
	return pc.Entities.GetEntity(ctx, pc.EntityID)
}

func (pc *PipelineContext) Tracker(ctx context.Context) (*models.Tracker, error) {
	return pc.Trackers.GetTracker(ctx, pc.TrackerID)
}

// NextPage returns the tracker's stored cursor for extractors. Store errors are marked with
// ErrStoreFailure.
func (pc *PipelineContext) NextPage(ctx context.Context) (string, error) {
	tracker, err := pc.Tracker(ctx)
	if err != nil {
		return "", MarkStoreFailure(errors.Wrap(err, "load cursor"))
	}
	return tracker.NextPage, nil
}

func (pc *PipelineContext) CurrentPrincipal() string {
	return pc.Principal
}

// Extra returns caller data stored under key.
func (pc *PipelineContext) Extra(key string) (any, bool) {
	v, ok := pc.extra[key]
	return v, ok
}
