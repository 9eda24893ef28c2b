package store

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/BartekS5/bulkimport/internal/etl"
)

// ResolveFunc finds the target identity for a source user id.
type ResolveFunc func(ctx context.Context, sourceID string) (string, error)

// MemoryIdentityMapper caches source-to-target identity mappings. Resolving the same id from
// two runs at once fails the second one with a unit retriable error instead of blocking.
type MemoryIdentityMapper struct {
	mu       sync.Mutex
	mappings map[string]string
	locked   map[string]struct{}
	resolve  ResolveFunc
}

func NewMemoryIdentityMapper(resolve ResolveFunc) *MemoryIdentityMapper {
	return &MemoryIdentityMapper{
		mappings: make(map[string]string),
		locked:   make(map[string]struct{}),
		resolve:  resolve,
	}
}

func (m *MemoryIdentityMapper) MapIdentity(ctx context.Context, sourceID string) (string, error) {
	m.mu.Lock()
	if target, ok := m.mappings[sourceID]; ok {
		m.mu.Unlock()
		return target, nil
	}
	if _, busy := m.locked[sourceID]; busy {
		m.mu.Unlock()
		return "", etl.NewUnitRetriable("failed to obtain lock for identity mapping "+sourceID, nil)
	}
	m.locked[sourceID] = struct{}{}
	m.mu.Unlock()

	target, err := m.resolve(ctx, sourceID)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locked, sourceID)
	if err != nil {
		return "", err
	}
	m.mappings[sourceID] = target
	return target, nil
}

const identitiesCollection = "bulk_import_identities"

// NewMongoIdentityResolver looks source ids up in the identities collection
// ({_id: source id, target_id: ...}). Unknown ids resolve to fallback, or to themselves when
// fallback is empty.
func NewMongoIdentityResolver(db *mongo.Database, fallback string) ResolveFunc {
	coll := db.Collection(identitiesCollection)
	return func(ctx context.Context, sourceID string) (string, error) {
		var doc struct {
			TargetID string `bson:"target_id"`
		}
		err := coll.FindOne(ctx, bson.M{"_id": sourceID}).Decode(&doc)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			if fallback != "" {
				return fallback, nil
			}
			return sourceID, nil
		case err != nil:
			return "", errors.Wrapf(err, "resolve identity %s", sourceID)
		}
		return doc.TargetID, nil
	}
}
