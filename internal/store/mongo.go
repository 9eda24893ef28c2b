package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/bulkimport/pkg/models"
)

const (
	entitiesCollection = "bulk_import_entities"
	trackersCollection = "bulk_import_trackers"
	markersCollection  = "bulk_import_dedup_markers"
)

// MongoEntities stores entities in MongoDB.
type MongoEntities struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoEntities(db *mongo.Database) *MongoEntities {
	return &MongoEntities{coll: db.Collection(entitiesCollection), now: time.Now}
}

func (m *MongoEntities) CreateEntity(ctx context.Context, e *models.Entity) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.State == "" {
		e.State = models.StateCreated
	}
	now := m.now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now

	if _, err := m.coll.InsertOne(ctx, e); err != nil {
		return errors.Wrapf(err, "insert entity %s", e.ID)
	}
	return nil
}

func (m *MongoEntities) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	var e models.Entity
	err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(ErrNotFound, "entity %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find entity %s", id)
	}
	return &e, nil
}

func (m *MongoEntities) SetEntityState(ctx context.Context, id string, state models.State) error {
	return m.set(ctx, id, bson.M{"state": state})
}

func (m *MongoEntities) FailEntity(ctx context.Context, id string) error {
	return m.SetEntityState(ctx, id, models.StateFailed)
}

func (m *MongoEntities) TouchEntity(ctx context.Context, id string) error {
	return m.set(ctx, id, bson.M{})
}

func (m *MongoEntities) set(ctx context.Context, id string, fields bson.M) error {
	fields["updated_at"] = m.now().UTC()
	res, err := m.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return errors.Wrapf(err, "update entity %s", id)
	}
	if res.MatchedCount == 0 {
		return errors.Wrapf(ErrNotFound, "entity %s", id)
	}
	return nil
}

// MongoTrackers stores trackers, including their counters, in MongoDB.
type MongoTrackers struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoTrackers(db *mongo.Database) *MongoTrackers {
	return &MongoTrackers{coll: db.Collection(trackersCollection), now: time.Now}
}

// EnsureIndexes creates the (entity, pipeline) uniqueness index.
func (m *MongoTrackers) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "entity_id", Value: 1}, {Key: "pipeline", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errors.Wrap(err, "create tracker index")
}

func (m *MongoTrackers) FindOrCreateTracker(ctx context.Context, entityID, pipeline string, batched bool) (*models.Tracker, error) {
	now := m.now().UTC()
	filter := bson.M{"entity_id": entityID, "pipeline": pipeline}
	update := bson.M{"$setOnInsert": bson.M{
		"_id":            uuid.NewString(),
		"state":          models.StateCreated,
		"batched":        batched,
		"has_next_page":  false,
		"source_count":   int64(0),
		"fetched_count":  int64(0),
		"imported_count": int64(0),
		"created_at":     now,
		"updated_at":     now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var t models.Tracker
	if err := m.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&t); err != nil {
		return nil, errors.Wrapf(err, "find or create tracker %s/%s", entityID, pipeline)
	}
	return &t, nil
}

func (m *MongoTrackers) GetTracker(ctx context.Context, id string) (*models.Tracker, error) {
	var t models.Tracker
	err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(ErrNotFound, "tracker %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find tracker %s", id)
	}
	return &t, nil
}

func (m *MongoTrackers) ListTrackers(ctx context.Context, entityID string) ([]models.Tracker, error) {
	cursor, err := m.coll.Find(ctx, bson.M{"entity_id": entityID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, errors.Wrapf(err, "list trackers of %s", entityID)
	}
	var out []models.Tracker
	if err := cursor.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode trackers")
	}
	return out, nil
}

func (m *MongoTrackers) UpdateCursor(ctx context.Context, id string, nextPage string, hasNextPage bool) error {
	return m.apply(ctx, id, bson.M{"$set": bson.M{"next_page": nextPage, "has_next_page": hasNextPage}})
}

func (m *MongoTrackers) SetTrackerState(ctx context.Context, id string, state models.State) error {
	return m.apply(ctx, id, bson.M{"$set": bson.M{"state": state}})
}

func (m *MongoTrackers) FailTracker(ctx context.Context, id string) error {
	return m.SetTrackerState(ctx, id, models.StateFailed)
}

func (m *MongoTrackers) TouchTracker(ctx context.Context, id string) error {
	return m.apply(ctx, id, bson.M{})
}

// Set uses $max so a counter never decreases.
func (m *MongoTrackers) Set(ctx context.Context, id string, kind models.CounterKind, value int64) error {
	field, err := counterField(kind)
	if err != nil {
		return err
	}
	return m.apply(ctx, id, bson.M{"$max": bson.M{field: value}})
}

func (m *MongoTrackers) Increment(ctx context.Context, id string, kind models.CounterKind, by int64) error {
	if by < 0 {
		return errors.Newf("negative increment %d for %s counter", by, kind)
	}
	field, err := counterField(kind)
	if err != nil {
		return err
	}
	return m.apply(ctx, id, bson.M{"$inc": bson.M{field: by}})
}

func (m *MongoTrackers) apply(ctx context.Context, id string, update bson.M) error {
	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
		update["$set"] = set
	}
	set["updated_at"] = m.now().UTC()

	res, err := m.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return errors.Wrapf(err, "update tracker %s", id)
	}
	if res.MatchedCount == 0 {
		return errors.Wrapf(ErrNotFound, "tracker %s", id)
	}
	return nil
}

func counterField(kind models.CounterKind) (string, error) {
	switch kind {
	case models.CounterSource:
		return "source_count", nil
	case models.CounterFetched:
		return "fetched_count", nil
	case models.CounterImported:
		return "imported_count", nil
	default:
		return "", errors.Newf("unknown counter %q", kind)
	}
}

// MongoDedup persists dedup markers, one document per (tracker, fingerprint).
type MongoDedup struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoDedup(db *mongo.Database) *MongoDedup {
	return &MongoDedup{coll: db.Collection(markersCollection), now: time.Now}
}

func markerID(trackerID, fingerprint string) string {
	return trackerID + ":" + fingerprint
}

func (m *MongoDedup) IsProcessed(ctx context.Context, trackerID, fingerprint string) (bool, error) {
	err := m.coll.FindOne(ctx, bson.M{"_id": markerID(trackerID, fingerprint)},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "find dedup marker")
	}
	return true, nil
}

func (m *MongoDedup) MarkProcessed(ctx context.Context, trackerID, fingerprint string) error {
	_, err := m.coll.UpdateOne(ctx,
		bson.M{"_id": markerID(trackerID, fingerprint)},
		bson.M{"$setOnInsert": bson.M{
			"tracker_id":  trackerID,
			"fingerprint": fingerprint,
			"created_at":  m.now().UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	return errors.Wrap(err, "upsert dedup marker")
}
