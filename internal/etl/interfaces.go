package etl

import (
	"context"

	"github.com/BartekS5/bulkimport/pkg/models"
)

// Extractor pulls one page from the source, resuming from the tracker's cursor.
type Extractor interface {
	Extract(ctx context.Context, pc *PipelineContext) (*ExtractedData, error)
}

// Transformer maps one record. Returning a nil record drops it.
type Transformer interface {
	Transform(ctx context.Context, pc *PipelineContext, record any) (any, error)
}

// Loader writes one record to the target. It should be idempotent.
type Loader interface {
	Load(ctx context.Context, pc *PipelineContext, record any) error
}

type ExtractorFunc func(ctx context.Context, pc *PipelineContext) (*ExtractedData, error)

func (f ExtractorFunc) Extract(ctx context.Context, pc *PipelineContext) (*ExtractedData, error) {
	return f(ctx, pc)
}

type TransformerFunc func(ctx context.Context, pc *PipelineContext, record any) (any, error)

func (f TransformerFunc) Transform(ctx context.Context, pc *PipelineContext, record any) (any, error) {
	return f(ctx, pc, record)
}

type LoaderFunc func(ctx context.Context, pc *PipelineContext, record any) error

func (f LoaderFunc) Load(ctx context.Context, pc *PipelineContext, record any) error {
	return f(ctx, pc, record)
}

// EntityRepository gives the runner access to the entity being migrated.
type EntityRepository interface {
	GetEntity(ctx context.Context, id string) (*models.Entity, error)
	FailEntity(ctx context.Context, id string) error
	TouchEntity(ctx context.Context, id string) error
}

// TrackerRepository gives the runner access to its tracker.
type TrackerRepository interface {
	GetTracker(ctx context.Context, id string) (*models.Tracker, error)
	UpdateCursor(ctx context.Context, id string, nextPage string, hasNextPage bool) error
	FailTracker(ctx context.Context, id string) error
	TouchTracker(ctx context.Context, id string) error
}

// FailureRecorder persists failure records. Implementations must be safe for concurrent use.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, failure models.Failure) error
}

// DedupStore remembers which record fingerprints were loaded for a tracker.
type DedupStore interface {
	IsProcessed(ctx context.Context, trackerID, fingerprint string) (bool, error)
	MarkProcessed(ctx context.Context, trackerID, fingerprint string) error
}

// ObjectCounter accumulates tracker counters. Implementations must be safe for concurrent use
// and must never decrease a counter.
type ObjectCounter interface {
	Set(ctx context.Context, trackerID string, kind models.CounterKind, value int64) error
	Increment(ctx context.Context, trackerID string, kind models.CounterKind, by int64) error
}

// IdentityMapper translates source user identifiers into target identifiers.
type IdentityMapper interface {
	MapIdentity(ctx context.Context, sourceID string) (string, error)
}
