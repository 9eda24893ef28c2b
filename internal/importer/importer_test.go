package importer

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BartekS5/bulkimport/internal/etl"
	"github.com/BartekS5/bulkimport/internal/store"
	"github.com/BartekS5/bulkimport/pkg/models"
)

func memoryStores() Stores {
	return Stores{
		Entities: store.NewMemoryEntities(),
		Trackers: store.NewMemoryTrackers(),
		Failures: store.NewMemoryFailures(),
		Dedup:    store.NewMemoryDedup(),
	}
}

func staticPage(records ...any) etl.Extractor {
	return etl.ExtractorFunc(func(context.Context, *etl.PipelineContext) (*etl.ExtractedData, error) {
		return etl.NewExtractedData(records), nil
	})
}

func countingLoader(n *atomic.Int64) etl.Loader {
	return etl.LoaderFunc(func(context.Context, *etl.PipelineContext, any) error {
		n.Add(1)
		return nil
	})
}

func registryOf(t *testing.T, defs ...*etl.Definition) *etl.Registry {
	t.Helper()
	reg := etl.NewRegistry()
	for _, d := range defs {
		require.NoError(t, reg.Register(d))
	}
	return reg
}

func definition(t *testing.T, name string, ext etl.Extractor, loader etl.Loader, opts ...etl.DefinitionOption) *etl.Definition {
	t.Helper()
	d, err := etl.NewDefinition(name, ext, loader, opts...)
	require.NoError(t, err)
	return d
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func TestImporter_RunsPipelinesInOrder(t *testing.T) {
	ctx := context.Background()
	stores := memoryStores()
	var loaded atomic.Int64
	var order []string
	hook := func(name string) etl.HookFunc {
		return func(context.Context, *etl.PipelineContext) error {
			order = append(order, name)
			return nil
		}
	}
	reg := registryOf(t,
		definition(t, "labels", staticPage(map[string]any{"id": 1}), countingLoader(&loaded), etl.WithOnFinish(hook("labels"))),
		definition(t, "issues", staticPage(map[string]any{"id": 1}, map[string]any{"id": 2}), countingLoader(&loaded), etl.WithOnFinish(hook("issues"))),
	)
	imp := New(reg, stores, Settings{}, zaptest.NewLogger(t).Sugar())

	e, err := imp.Submit(ctx, "group", "group/project", "job-1")
	require.NoError(t, err)

	res, err := imp.Import(ctx, e.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StateFinished, res.State)
	assert.Equal(t, []string{"labels", "issues"}, order)
	assert.Equal(t, int64(3), loaded.Load())

	entity, trackers, err := imp.Status(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFinished, entity.State)
	require.Len(t, trackers, 2)
	for _, tr := range trackers {
		assert.Equal(t, models.StateFinished, tr.State)
	}
}

func TestImporter_RetriesWithHint(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int64
	header := http.Header{}
	header.Set("Retry-After", "7")
	ext := etl.ExtractorFunc(func(context.Context, *etl.PipelineContext) (*etl.ExtractedData, error) {
		if calls.Add(1) < 3 {
			return nil, etl.NewTransportError(http.StatusTooManyRequests, header, errors.New("slow down"))
		}
		return etl.NewExtractedData([]any{map[string]any{"id": 1}}), nil
	})
	var loaded atomic.Int64
	sleeper := &sleepRecorder{}
	imp := New(registryOf(t, definition(t, "issues", ext, countingLoader(&loaded))), memoryStores(),
		Settings{MaxAttempts: 5, RetryDelay: time.Minute}, nil, WithSleep(sleeper.sleep))

	e, err := imp.Submit(ctx, "group", "group/project", "job-1")
	require.NoError(t, err)
	res, err := imp.Import(ctx, e.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StateFinished, res.State)
	assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second}, sleeper.delays)
	require.Len(t, res.Pipelines, 1)
	assert.Equal(t, 3, res.Pipelines[0].Attempts)
	assert.Equal(t, int64(1), loaded.Load())
}

func TestImporter_RetryDefaultsToConfiguredDelay(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int64
	mapper := etl.TransformerFunc(func(_ context.Context, _ *etl.PipelineContext, r any) (any, error) {
		if calls.Add(1) == 1 {
			return nil, etl.NewUnitRetriable("failed to obtain lock for identity mapping 1", nil)
		}
		return r, nil
	})
	var loaded atomic.Int64
	sleeper := &sleepRecorder{}
	def := definition(t, "notes", staticPage(map[string]any{"id": 1}), countingLoader(&loaded), etl.WithTransformers(mapper))
	imp := New(registryOf(t, def), memoryStores(), Settings{MaxAttempts: 3, RetryDelay: 2 * time.Second}, nil, WithSleep(sleeper.sleep))

	e, err := imp.Submit(ctx, "project", "group/project", "job-1")
	require.NoError(t, err)
	res, err := imp.Import(ctx, e.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StateFinished, res.State)
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.delays)
}

func TestImporter_RetriesExhausted(t *testing.T) {
	ctx := context.Background()
	stores := memoryStores()
	ext := etl.ExtractorFunc(func(context.Context, *etl.PipelineContext) (*etl.ExtractedData, error) {
		return nil, etl.NewTransportError(http.StatusServiceUnavailable, nil, errors.New("down"))
	})
	var loaded atomic.Int64
	sleeper := &sleepRecorder{}
	imp := New(registryOf(t,
		definition(t, "issues", ext, countingLoader(&loaded)),
		definition(t, "labels", staticPage(map[string]any{"id": 1}), countingLoader(&loaded)),
	), stores, Settings{MaxAttempts: 3}, nil, WithSleep(sleeper.sleep))

	e, err := imp.Submit(ctx, "group", "group/project", "job-1")
	require.NoError(t, err)
	res, err := imp.Import(ctx, e.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StateFailed, res.State)
	assert.Len(t, sleeper.delays, 2)
	assert.Zero(t, loaded.Load())
	require.Len(t, res.Pipelines, 1)
	assert.Equal(t, 3, res.Pipelines[0].Attempts)

	failures, err := stores.Failures.(*store.MemoryFailures).ListFailures(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, failures)

	entity, trackers, err := imp.Status(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, entity.State)
	require.Len(t, trackers, 1)
	assert.Equal(t, models.StateFailed, trackers[0].State)
}

func TestImporter_AbortStopsLaterPipelines(t *testing.T) {
	ctx := context.Background()
	failing := etl.LoaderFunc(func(context.Context, *etl.PipelineContext, any) error {
		return errors.New("cannot load")
	})
	var loaded atomic.Int64
	imp := New(registryOf(t,
		definition(t, "members", staticPage(map[string]any{"id": 1}), failing, etl.WithAbortOnFailure()),
		definition(t, "issues", staticPage(map[string]any{"id": 1}), countingLoader(&loaded)),
	), memoryStores(), Settings{}, nil)

	e, err := imp.Submit(ctx, "group", "group/project", "job-1")
	require.NoError(t, err)
	res, err := imp.Import(ctx, e.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StateFailed, res.State)
	require.Len(t, res.Pipelines, 1)
	assert.Equal(t, etl.OutcomeAborted, res.Pipelines[0].Outcome.Kind)
	assert.Zero(t, loaded.Load())

	// A failed entity is not picked up again.
	again, err := imp.Import(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, again.State)
	assert.Empty(t, again.Pipelines)
}

func TestImporter_ResumeSkipsFinishedTrackers(t *testing.T) {
	ctx := context.Background()
	stores := memoryStores()
	var labelRuns atomic.Int64
	labels := etl.ExtractorFunc(func(context.Context, *etl.PipelineContext) (*etl.ExtractedData, error) {
		labelRuns.Add(1)
		return etl.NewExtractedData([]any{map[string]any{"id": 1}}), nil
	})
	var loaded atomic.Int64
	var failIssues atomic.Bool
	failIssues.Store(true)
	issues := etl.ExtractorFunc(func(context.Context, *etl.PipelineContext) (*etl.ExtractedData, error) {
		if failIssues.Load() {
			return nil, etl.NewTransportError(http.StatusBadGateway, nil, errors.New("gateway"))
		}
		return etl.NewExtractedData([]any{map[string]any{"id": 2}}), nil
	})
	reg := registryOf(t,
		definition(t, "labels", labels, countingLoader(&loaded)),
		definition(t, "issues", issues, countingLoader(&loaded)),
	)
	imp := New(reg, stores, Settings{MaxAttempts: 1}, nil)

	e, err := imp.Submit(ctx, "group", "group/project", "job-1")
	require.NoError(t, err)
	res, err := imp.Import(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, res.State)

	// An operator resets the entity; finished pipelines are not repeated.
	require.NoError(t, stores.Entities.SetEntityState(ctx, e.ID, models.StateStarted))
	failIssues.Store(false)
	res, err = imp.Import(ctx, e.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StateFinished, res.State)
	assert.Equal(t, int64(1), labelRuns.Load())
	assert.Equal(t, int64(2), loaded.Load())
}

func TestImporter_ImportAll(t *testing.T) {
	ctx := context.Background()
	stores := memoryStores()
	var loaded atomic.Int64
	reg := registryOf(t, definition(t, "issues",
		staticPage(map[string]any{"id": 1}, map[string]any{"id": 2}), countingLoader(&loaded)))
	imp := New(reg, stores, Settings{Concurrency: 3}, nil)

	var ids []string
	for _, path := range []string{"g/a", "g/b", "g/c", "g/d", "g/e"} {
		e, err := imp.Submit(ctx, "project", path, "job-1")
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	results, err := imp.ImportAll(ctx, ids)
	require.NoError(t, err)

	require.Len(t, results, 5)
	for n, r := range results {
		assert.Equal(t, ids[n], r.EntityID)
		assert.Equal(t, models.StateFinished, r.State)
	}
	assert.Equal(t, int64(10), loaded.Load())
}

func TestImporter_ImportAllReportsMissingEntity(t *testing.T) {
	var loaded atomic.Int64
	reg := registryOf(t, definition(t, "issues", staticPage(), countingLoader(&loaded)))
	imp := New(reg, memoryStores(), Settings{}, nil)

	_, err := imp.ImportAll(context.Background(), []string{"missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestImporter_CancelledImportAllLeavesTrackersUnfinished(t *testing.T) {
	ctx := context.Background()
	stores := memoryStores()
	blocking := etl.LoaderFunc(func(ctx context.Context, _ *etl.PipelineContext, _ any) error {
		<-ctx.Done()
		return ctx.Err()
	})
	reg := registryOf(t, definition(t, "issues", staticPage(map[string]any{"id": 1}), blocking))
	imp := New(reg, stores, Settings{Concurrency: 2}, nil)

	e, err := imp.Submit(ctx, "project", "g/a", "job-1")
	require.NoError(t, err)

	_, err = imp.ImportAll(ctx, []string{e.ID, "missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	entity, trackers, err := imp.Status(ctx, e.ID)
	require.NoError(t, err)
	assert.NotEqual(t, models.StateFinished, entity.State)
	for _, tr := range trackers {
		assert.NotEqual(t, models.StateFinished, tr.State)
		assert.Empty(t, tr.NextPage)
	}

	failures, err := stores.Failures.(*store.MemoryFailures).ListFailures(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, failures)
}
