// Package importer drives whole migrations: it runs every pipeline type of an entity in order,
// re-invokes pipelines that ask for a whole-unit retry and settles entity and tracker states.
package importer

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BartekS5/bulkimport/internal/etl"
	"github.com/BartekS5/bulkimport/pkg/models"
)

// ErrRetriesExhausted is the cause recorded when a pipeline kept asking for retries.
var ErrRetriesExhausted = errors.New("pipeline retries exhausted")

// EntityStore is the entity persistence the importer needs.
type EntityStore interface {
	etl.EntityRepository
	CreateEntity(ctx context.Context, e *models.Entity) error
	SetEntityState(ctx context.Context, id string, state models.State) error
}

// TrackerStore is the tracker persistence the importer needs. Trackers also hold the counters.
type TrackerStore interface {
	etl.TrackerRepository
	etl.ObjectCounter
	FindOrCreateTracker(ctx context.Context, entityID, pipeline string, batched bool) (*models.Tracker, error)
	SetTrackerState(ctx context.Context, id string, state models.State) error
	ListTrackers(ctx context.Context, entityID string) ([]models.Tracker, error)
}

type Stores struct {
	Entities       EntityStore
	Trackers       TrackerStore
	Failures       etl.FailureRecorder
	Dedup          etl.DedupStore
	IdentityMapper etl.IdentityMapper
}

type Settings struct {
	MaxAttempts   int
	RetryDelay    time.Duration
	Concurrency   int
	SourceBaseURL string
	Principal     string
}

// PipelineResult is the last outcome of one pipeline type for an entity.
type PipelineResult struct {
	Pipeline  string
	TrackerID string
	Attempts  int
	Outcome   etl.Outcome
}

type EntityResult struct {
	EntityID  string
	State     models.State
	Pipelines []PipelineResult
}

type Importer struct {
	registry *etl.Registry
	stores   Stores
	settings Settings
	log      *zap.SugaredLogger
	sleep    func(ctx context.Context, d time.Duration) error
}

type Option func(*Importer)

// WithSleep replaces the wait between retries.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(i *Importer) {
		i.sleep = fn
	}
}

func New(registry *etl.Registry, stores Stores, settings Settings, log *zap.SugaredLogger, opts ...Option) *Importer {
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 5
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	i := &Importer{
		registry: registry,
		stores:   stores,
		settings: settings,
		log:      log,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Submit registers a new entity for sourceFullPath in the created state.
func (i *Importer) Submit(ctx context.Context, sourceType, sourceFullPath, jobID string) (*models.Entity, error) {
	e := &models.Entity{
		JobID:          jobID,
		SourceType:     sourceType,
		SourceFullPath: sourceFullPath,
		State:          models.StateCreated,
	}
	if err := i.stores.Entities.CreateEntity(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Import runs all registered pipelines for one entity.
func (i *Importer) Import(ctx context.Context, entityID string) (EntityResult, error) {
	res := EntityResult{EntityID: entityID}

	entity, err := i.stores.Entities.GetEntity(ctx, entityID)
	if err != nil {
		return res, err
	}
	if entity.Failed() || entity.State == models.StateFinished {
		res.State = entity.State
		return res, nil
	}
	if err := i.stores.Entities.SetEntityState(ctx, entityID, models.StateStarted); err != nil {
		return res, errors.Wrap(err, "start entity")
	}
	log := i.log.With("entity_id", entityID, "job_id", entity.JobID)
	log.Infow("import started", "pipelines", len(i.registry.Ordered()))

	for _, def := range i.registry.Ordered() {
		pr, err := i.runPipeline(ctx, entity, def)
		res.Pipelines = append(res.Pipelines, pr)
		if err != nil {
			return res, err
		}

		switch pr.Outcome.Kind {
		case etl.OutcomeFinished:
			continue
		case etl.OutcomeRetry:
			if err := i.fail(ctx, entityID, pr.TrackerID); err != nil {
				return res, err
			}
			log.Warnw("import failed", "pipeline", def.Name, "attempts", pr.Attempts, "error", ErrRetriesExhausted)
			res.State = models.StateFailed
			return res, nil
		default:
			log.Warnw("import stopped", "pipeline", def.Name, "outcome", pr.Outcome.Kind.String())
			res.State = models.StateFailed
			return res, nil
		}
	}

	if err := i.stores.Entities.SetEntityState(ctx, entityID, models.StateFinished); err != nil {
		return res, errors.Wrap(err, "finish entity")
	}
	res.State = models.StateFinished
	log.Infow("import finished")
	return res, nil
}

func (i *Importer) runPipeline(ctx context.Context, entity *models.Entity, def *etl.Definition) (PipelineResult, error) {
	pr := PipelineResult{Pipeline: def.Name}

	tracker, err := i.stores.Trackers.FindOrCreateTracker(ctx, entity.ID, def.Name, def.Batched)
	if err != nil {
		return pr, errors.Wrapf(err, "tracker for %s", def.Name)
	}
	pr.TrackerID = tracker.ID
	if tracker.State == models.StateFinished {
		pr.Outcome.Kind = etl.OutcomeFinished
		return pr, nil
	}
	if err := i.stores.Trackers.SetTrackerState(ctx, tracker.ID, models.StateStarted); err != nil {
		return pr, errors.Wrap(err, "start tracker")
	}

	pc, err := etl.NewPipelineContext(entity.ID, tracker.ID, etl.Services{
		Entities:       i.stores.Entities,
		Trackers:       i.stores.Trackers,
		Failures:       i.stores.Failures,
		Dedup:          i.stores.Dedup,
		Counter:        i.stores.Trackers,
		IdentityMapper: i.stores.IdentityMapper,
	},
		etl.WithJobID(entity.JobID),
		etl.WithPrincipal(i.settings.Principal),
		etl.WithSourceBaseURL(i.settings.SourceBaseURL),
	)
	if err != nil {
		return pr, err
	}
	runner := etl.NewRunner(def, pc, i.log)

	for pr.Attempts < i.settings.MaxAttempts {
		pr.Attempts++
		out, err := runner.Run(ctx)
		pr.Outcome = out
		if err != nil {
			return pr, errors.Wrapf(err, "run %s", def.Name)
		}
		if out.Kind != etl.OutcomeRetry {
			break
		}
		if pr.Attempts == i.settings.MaxAttempts {
			break
		}

		delay := out.RetryAfter
		if delay <= 0 {
			delay = i.settings.RetryDelay
		}
		if err := i.sleep(ctx, delay); err != nil {
			return pr, err
		}
	}

	if pr.Outcome.Kind == etl.OutcomeFinished {
		if err := i.stores.Trackers.SetTrackerState(ctx, tracker.ID, models.StateFinished); err != nil {
			return pr, errors.Wrap(err, "finish tracker")
		}
	}
	return pr, nil
}

func (i *Importer) fail(ctx context.Context, entityID, trackerID string) error {
	if err := i.stores.Trackers.FailTracker(ctx, trackerID); err != nil {
		return errors.Wrap(err, "fail tracker")
	}
	return errors.Wrap(i.stores.Entities.FailEntity(ctx, entityID), "fail entity")
}

// ImportAll imports entities concurrently, at most Settings.Concurrency at a time. Results are
// returned in the order of entityIDs.
func (i *Importer) ImportAll(ctx context.Context, entityIDs []string) ([]EntityResult, error) {
	results := make([]EntityResult, len(entityIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.settings.Concurrency)
	for n, id := range entityIDs {
		g.Go(func() error {
			res, err := i.Import(gctx, id)
			results[n] = res
			return errors.Wrapf(err, "import %s", id)
		})
	}
	err := g.Wait()
	return results, err
}

// Status returns the entity with its trackers.
func (i *Importer) Status(ctx context.Context, entityID string) (*models.Entity, []models.Tracker, error) {
	entity, err := i.stores.Entities.GetEntity(ctx, entityID)
	if err != nil {
		return nil, nil, err
	}
	trackers, err := i.stores.Trackers.ListTrackers(ctx, entityID)
	if err != nil {
		return nil, nil, err
	}
	return entity, trackers, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
