package etl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BartekS5/bulkimport/pkg/models"
)

// stubRepos serves one entity and one tracker for stage tests that only read the cursor.
type stubRepos struct {
	entity     models.Entity
	tracker    models.Tracker
	trackerErr error
}

func (s *stubRepos) GetEntity(context.Context, string) (*models.Entity, error) {
	e := s.entity
	return &e, nil
}
func (s *stubRepos) FailEntity(context.Context, string) error  { return nil }
func (s *stubRepos) TouchEntity(context.Context, string) error { return nil }

func (s *stubRepos) GetTracker(context.Context, string) (*models.Tracker, error) {
	if s.trackerErr != nil {
		return nil, s.trackerErr
	}
	t := s.tracker
	return &t, nil
}
func (s *stubRepos) UpdateCursor(_ context.Context, _ string, next string, has bool) error {
	s.tracker.NextPage, s.tracker.HasNextPage = next, has
	return nil
}
func (s *stubRepos) FailTracker(context.Context, string) error  { return nil }
func (s *stubRepos) TouchTracker(context.Context, string) error { return nil }

func (s *stubRepos) RecordFailure(context.Context, models.Failure) error { return nil }

func (s *stubRepos) IsProcessed(context.Context, string, string) (bool, error) { return false, nil }
func (s *stubRepos) MarkProcessed(context.Context, string, string) error       { return nil }

func (s *stubRepos) Set(context.Context, string, models.CounterKind, int64) error       { return nil }
func (s *stubRepos) Increment(context.Context, string, models.CounterKind, int64) error { return nil }

func stubContext(t *testing.T, cursor string, opts ...ContextOption) *PipelineContext {
	t.Helper()
	return stubContextWith(t, &stubRepos{
		entity:  models.Entity{ID: "entity-1", SourceFullPath: "group/project"},
		tracker: models.Tracker{ID: "tracker-1", EntityID: "entity-1", NextPage: cursor},
	}, opts...)
}

func stubContextWith(t *testing.T, repos *stubRepos, opts ...ContextOption) *PipelineContext {
	t.Helper()
	pc, err := NewPipelineContext("entity-1", "tracker-1", Services{
		Entities: repos,
		Trackers: repos,
		Failures: repos,
		Dedup:    repos,
		Counter:  repos,
	}, opts...)
	require.NoError(t, err)
	return pc
}
