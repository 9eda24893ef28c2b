package etl

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BartekS5/bulkimport/pkg/models"
)

// OutcomeKind tags the result of one Runner invocation.
type OutcomeKind int

const (
	// OutcomeFinished: every page was extracted; item failures may have been recorded.
	OutcomeFinished OutcomeKind = iota
	// OutcomeRetry: a transient error stopped the run; the caller should re-invoke later.
	OutcomeRetry
	// OutcomeAborted: an item failed under AbortOnFailure and the entity is now failed.
	OutcomeAborted
	// OutcomeSkipped: the entity was already failed, nothing ran.
	OutcomeSkipped
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFinished:
		return "finished"
	case OutcomeRetry:
		return "retry"
	case OutcomeAborted:
		return "aborted"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is what a run reports to its caller.
type Outcome struct {
	Kind       OutcomeKind
	Cause      error
	RetryAfter time.Duration
	Pages      int
	Imported   int
	Failures   int
}

// ErrEntityFailed is the cause of an abort observed when another run failed the entity.
var ErrEntityFailed = errors.New("entity is marked as failed")

// Runner drives one pipeline type for one entity. It is not safe for concurrent use and no two
// runners may share a tracker.
type Runner struct {
	def *Definition
	pc  *PipelineContext
	log *zap.SugaredLogger
	now func() time.Time
}

func NewRunner(def *Definition, pc *PipelineContext, log *zap.SugaredLogger) *Runner {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Runner{
		def: def,
		pc:  pc,
		log: log.With(
			"pipeline_class", def.Name,
			"entity_id", pc.EntityID,
			"tracker_id", pc.TrackerID,
			"job_id", pc.JobID,
		),
		now: time.Now,
	}
}

// Run extracts, transforms and loads pages until the source is exhausted. The returned error
// is reserved for collaborator failures (stores unreachable, including ErrStoreFailure raised by
// a stage) and for the end of ctx; pipeline results are in Outcome.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	var out Outcome

	tracker, err := r.pc.Tracker(ctx)
	if err != nil {
		return out, errors.Wrap(err, "load tracker")
	}
	cursor := tracker.NextPage
	firstPage := cursor == ""

	r.log.Infow("pipeline started", "next_page", cursor)

	for {
		entity, err := r.pc.Entity(ctx)
		if err != nil {
			return out, errors.Wrap(err, "load entity")
		}
		if entity.Failed() {
			if out.Pages == 0 {
				r.log.Warnw("pipeline skipped due to failed entity")
				out.Kind = OutcomeSkipped
				return out, nil
			}
			r.log.Warnw("aborting due to failed entity")
			out.Kind = OutcomeAborted
			out.Cause = ErrEntityFailed
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return r.interrupted(out, err, nil)
		}

		page, err := r.def.Extractor.Extract(ctx, r.pc)
		if err != nil {
			stageErr := &ItemError{Stage: StageExtractor, Err: err}
			if errors.Is(err, ErrStoreFailure) {
				return out, errors.Wrap(err, "extract")
			}
			if ctx.Err() != nil {
				return r.interrupted(out, ctx.Err(), stageErr)
			}
			if IsUnitRetriable(err) {
				return r.retry(out, stageErr), nil
			}
			if err := r.recordFailure(ctx, entity, stageErr); err != nil {
				return out, err
			}
			out.Failures++
			if r.def.AbortOnFailure {
				return r.abort(ctx, out, stageErr)
			}
			// Without a page there is no cursor to follow.
			break
		}
		out.Pages++

		r.log.Infow("page extracted",
			"records", page.Len(),
			"has_next_page", page.HasNextPage(),
		)

		if err := r.countSource(ctx, page, firstPage); err != nil {
			return out, err
		}
		firstPage = false

		for record := range page.Records() {
			if err := r.pc.Counter.Increment(ctx, r.pc.TrackerID, models.CounterFetched, 1); err != nil {
				return out, errors.Wrap(err, "increment fetched counter")
			}

			loaded, err := r.processRecord(ctx, record)
			if err == nil {
				if loaded {
					out.Imported++
				}
				continue
			}

			itemErr, ok := err.(*ItemError)
			if !ok {
				return out, err
			}
			if errors.Is(itemErr.Err, ErrStoreFailure) {
				return out, errors.Wrapf(itemErr.Err, "%s", itemErr.Stage)
			}
			if ctx.Err() != nil {
				return r.interrupted(out, ctx.Err(), itemErr)
			}
			if IsUnitRetriable(itemErr.Err) {
				return r.retry(out, itemErr), nil
			}
			if err := r.recordFailure(ctx, entity, itemErr); err != nil {
				return out, err
			}
			out.Failures++
			if r.def.AbortOnFailure {
				return r.abort(ctx, out, itemErr)
			}
		}

		if next, ok := page.NextPage(); ok {
			cursor = next
			if err := r.pc.Trackers.UpdateCursor(ctx, r.pc.TrackerID, cursor, true); err != nil {
				return out, errors.Wrap(err, "advance cursor")
			}
			continue
		}
		if err := r.pc.Trackers.UpdateCursor(ctx, r.pc.TrackerID, cursor, false); err != nil {
			return out, errors.Wrap(err, "close cursor")
		}
		break
	}

	if err := r.complete(ctx); err != nil {
		return out, err
	}

	out.Kind = OutcomeFinished
	r.log.Infow("pipeline finished",
		"pages", out.Pages,
		"imported", out.Imported,
		"failures", out.Failures,
	)
	return out, nil
}

// processRecord returns whether the record was loaded. Stage failures come back as *ItemError;
// any other error is a collaborator failure.
func (r *Runner) processRecord(ctx context.Context, record any) (bool, error) {
	rawKey := Fingerprint(record)
	done, err := r.pc.Dedup.IsProcessed(ctx, r.pc.TrackerID, rawKey)
	if err != nil {
		return false, errors.Wrap(err, "check dedup marker")
	}
	if done {
		return false, nil
	}

	transformed, err := r.def.transform(ctx, r.pc, record)
	if err != nil {
		return false, &ItemError{Stage: StageTransformer, Record: record, Err: err}
	}
	if transformed == nil {
		return false, nil
	}

	key := Fingerprint(transformed)
	if key != rawKey {
		done, err := r.pc.Dedup.IsProcessed(ctx, r.pc.TrackerID, key)
		if err != nil {
			return false, errors.Wrap(err, "check dedup marker")
		}
		if done {
			return false, nil
		}
	}

	if err := r.def.Loader.Load(ctx, r.pc, transformed); err != nil {
		return false, &ItemError{Stage: StageLoader, Record: transformed, Err: err}
	}

	if err := r.pc.Counter.Increment(ctx, r.pc.TrackerID, models.CounterImported, 1); err != nil {
		return true, errors.Wrap(err, "increment imported counter")
	}
	if err := r.pc.Dedup.MarkProcessed(ctx, r.pc.TrackerID, key); err != nil {
		return true, errors.Wrap(err, "mark record processed")
	}
	return true, nil
}

func (r *Runner) countSource(ctx context.Context, page *ExtractedData, firstPage bool) error {
	if total, ok := page.TotalCount(); ok {
		if !firstPage {
			return nil
		}
		return errors.Wrap(
			r.pc.Counter.Set(ctx, r.pc.TrackerID, models.CounterSource, total),
			"set source counter",
		)
	}
	return errors.Wrap(
		r.pc.Counter.Increment(ctx, r.pc.TrackerID, models.CounterSource, int64(page.Len())),
		"increment source counter",
	)
}

func (r *Runner) recordFailure(ctx context.Context, entity *models.Entity, itemErr *ItemError) error {
	d := DescribeFailure(itemErr.Stage, itemErr.Err, itemErr.Record, entity, r.pc.SourceBaseURL, r.def.SourcePath)

	r.log.Errorw("pipeline item failed",
		"pipeline_step", d.Stage,
		"exception_class", d.ErrorClass,
		"exception_message", d.Message,
		"source_title", d.SourceTitle,
	)

	failure := models.Failure{
		ID:           uuid.NewString(),
		EntityID:     r.pc.EntityID,
		TrackerID:    r.pc.TrackerID,
		PipelineName: r.def.Name,
		Stage:        string(d.Stage),
		ErrorClass:   d.ErrorClass,
		Message:      d.Message,
		SourceTitle:  d.SourceTitle,
		SourceURL:    d.SourceURL,
		CreatedAt:    r.now().UTC(),
	}
	return errors.Wrap(r.pc.Failures.RecordFailure(ctx, failure), "record failure")
}

// interrupted stops a run whose context ended. The tracker keeps its cursor so the next run
// resumes from the last completed page.
// Stage errors raised after the context ended are not recorded as failures.
func (r *Runner) interrupted(out Outcome, ctxErr error, stageErr *ItemError) (Outcome, error) {
	out.Kind = OutcomeRetry
	out.Cause = ctxErr
	fields := []any{"error", ctxErr, "pages", out.Pages, "imported", out.Imported}
	if stageErr != nil {
		out.Cause = errors.WithSecondaryError(ctxErr, stageErr)
		fields = append(fields, "pipeline_step", stageErr.Stage)
	}
	r.log.Warnw("pipeline interrupted", fields...)
	return out, errors.Wrap(out.Cause, "pipeline interrupted")
}

func (r *Runner) retry(out Outcome, cause *ItemError) Outcome {
	out.Kind = OutcomeRetry
	out.Cause = cause
	out.RetryAfter = RetryAfter(cause.Err)
	r.log.Infow("pipeline requires retry",
		"pipeline_step", cause.Stage,
		"error", cause.Err,
		"retry_after", out.RetryAfter,
	)
	return out
}

func (r *Runner) abort(ctx context.Context, out Outcome, cause *ItemError) (Outcome, error) {
	if err := r.pc.Entities.FailEntity(ctx, r.pc.EntityID); err != nil {
		return out, errors.Wrap(err, "mark entity failed")
	}
	if err := r.pc.Trackers.FailTracker(ctx, r.pc.TrackerID); err != nil {
		return out, errors.Wrap(err, "mark tracker failed")
	}
	r.log.Warnw("aborting due to pipeline failure",
		"pipeline_step", cause.Stage,
		"error", cause.Err,
	)
	out.Kind = OutcomeAborted
	out.Cause = cause
	return out, nil
}

func (r *Runner) complete(ctx context.Context) error {
	if r.def.Batched {
		if r.def.AfterRun != nil {
			if err := r.def.AfterRun(ctx, r.pc); err != nil {
				return errors.Wrap(err, "after run hook")
			}
		}
	} else if r.def.OnFinish != nil {
		if err := r.def.OnFinish(ctx, r.pc); err != nil {
			return errors.Wrap(err, "on finish hook")
		}
	}

	if err := r.pc.Entities.TouchEntity(ctx, r.pc.EntityID); err != nil {
		return errors.Wrap(err, "touch entity")
	}
	return errors.Wrap(r.pc.Trackers.TouchTracker(ctx, r.pc.TrackerID), "touch tracker")
}
