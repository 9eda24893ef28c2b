package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/BartekS5/bulkimport/pkg/models"
)

// ErrNotFound is returned when an entity or tracker does not exist.
var ErrNotFound = errors.New("not found")

// MemoryEntities keeps entities in process memory.
type MemoryEntities struct {
	mu       sync.RWMutex
	entities map[string]models.Entity
	now      func() time.Time
}

func NewMemoryEntities() *MemoryEntities {
	return &MemoryEntities{entities: make(map[string]models.Entity), now: time.Now}
}

func (m *MemoryEntities) CreateEntity(_ context.Context, e *models.Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, exists := m.entities[e.ID]; exists {
		return errors.Newf("entity %s already exists", e.ID)
	}
	if e.State == "" {
		e.State = models.StateCreated
	}
	now := m.now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	m.entities[e.ID] = *e
	return nil
}

func (m *MemoryEntities) GetEntity(_ context.Context, id string) (*models.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entities[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "entity %s", id)
	}
	return &e, nil
}

func (m *MemoryEntities) SetEntityState(_ context.Context, id string, state models.State) error {
	return m.update(id, func(e *models.Entity) { e.State = state })
}

func (m *MemoryEntities) FailEntity(ctx context.Context, id string) error {
	return m.SetEntityState(ctx, id, models.StateFailed)
}

func (m *MemoryEntities) TouchEntity(_ context.Context, id string) error {
	return m.update(id, func(*models.Entity) {})
}

func (m *MemoryEntities) update(id string, fn func(*models.Entity)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entities[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "entity %s", id)
	}
	fn(&e)
	e.UpdatedAt = m.now().UTC()
	m.entities[id] = e
	return nil
}

// MemoryTrackers keeps trackers and their counters in process memory.
type MemoryTrackers struct {
	mu       sync.RWMutex
	trackers map[string]models.Tracker
	now      func() time.Time
}

func NewMemoryTrackers() *MemoryTrackers {
	return &MemoryTrackers{trackers: make(map[string]models.Tracker), now: time.Now}
}

func (m *MemoryTrackers) FindOrCreateTracker(_ context.Context, entityID, pipeline string, batched bool) (*models.Tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.trackers {
		if t.EntityID == entityID && t.Pipeline == pipeline {
			return &t, nil
		}
	}

	now := m.now().UTC()
	t := models.Tracker{
		ID:        uuid.NewString(),
		EntityID:  entityID,
		Pipeline:  pipeline,
		State:     models.StateCreated,
		Batched:   batched,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.trackers[t.ID] = t
	return &t, nil
}

func (m *MemoryTrackers) GetTracker(_ context.Context, id string) (*models.Tracker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.trackers[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "tracker %s", id)
	}
	return &t, nil
}

func (m *MemoryTrackers) ListTrackers(_ context.Context, entityID string) ([]models.Tracker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Tracker
	for _, t := range m.trackers {
		if t.EntityID == entityID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryTrackers) UpdateCursor(_ context.Context, id string, nextPage string, hasNextPage bool) error {
	return m.update(id, func(t *models.Tracker) {
		t.NextPage = nextPage
		t.HasNextPage = hasNextPage
	})
}

func (m *MemoryTrackers) SetTrackerState(_ context.Context, id string, state models.State) error {
	return m.update(id, func(t *models.Tracker) { t.State = state })
}

func (m *MemoryTrackers) FailTracker(ctx context.Context, id string) error {
	return m.SetTrackerState(ctx, id, models.StateFailed)
}

func (m *MemoryTrackers) TouchTracker(_ context.Context, id string) error {
	return m.update(id, func(*models.Tracker) {})
}

// Set raises the counter to value; counters never go down.
func (m *MemoryTrackers) Set(_ context.Context, id string, kind models.CounterKind, value int64) error {
	return m.updateCounter(id, kind, func(c *int64) {
		if value > *c {
			*c = value
		}
	})
}

func (m *MemoryTrackers) Increment(_ context.Context, id string, kind models.CounterKind, by int64) error {
	if by < 0 {
		return errors.Newf("negative increment %d for %s counter", by, kind)
	}
	return m.updateCounter(id, kind, func(c *int64) { *c += by })
}

func (m *MemoryTrackers) updateCounter(id string, kind models.CounterKind, fn func(*int64)) error {
	var err error
	updateErr := m.update(id, func(t *models.Tracker) {
		switch kind {
		case models.CounterSource:
			fn(&t.SourceCount)
		case models.CounterFetched:
			fn(&t.FetchedCount)
		case models.CounterImported:
			fn(&t.ImportedCount)
		default:
			err = errors.Newf("unknown counter %q", kind)
		}
	})
	if updateErr != nil {
		return updateErr
	}
	return err
}

func (m *MemoryTrackers) update(id string, fn func(*models.Tracker)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trackers[id]
	if !ok {
		return errors.Wrapf(ErrNotFound, "tracker %s", id)
	}
	fn(&t)
	t.UpdatedAt = m.now().UTC()
	m.trackers[id] = t
	return nil
}

// MemoryDedup is a set of (tracker, fingerprint) markers.
type MemoryDedup struct {
	mu      sync.RWMutex
	markers map[string]map[string]struct{}
}

func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{markers: make(map[string]map[string]struct{})}
}

func (m *MemoryDedup) IsProcessed(_ context.Context, trackerID, fingerprint string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.markers[trackerID][fingerprint]
	return ok, nil
}

func (m *MemoryDedup) MarkProcessed(_ context.Context, trackerID, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.markers[trackerID]
	if !ok {
		set = make(map[string]struct{})
		m.markers[trackerID] = set
	}
	set[fingerprint] = struct{}{}
	return nil
}

// Count returns how many markers a tracker has.
func (m *MemoryDedup) Count(trackerID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.markers[trackerID])
}

// MemoryFailures collects failure records in insertion order.
type MemoryFailures struct {
	mu       sync.RWMutex
	failures []models.Failure
}

func NewMemoryFailures() *MemoryFailures {
	return &MemoryFailures{}
}

func (m *MemoryFailures) RecordFailure(_ context.Context, f models.Failure) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	m.failures = append(m.failures, f)
	return nil
}

func (m *MemoryFailures) ListFailures(_ context.Context, entityID string) ([]models.Failure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Failure
	for _, f := range m.failures {
		if entityID == "" || f.EntityID == entityID {
			out = append(out, f)
		}
	}
	return out, nil
}
