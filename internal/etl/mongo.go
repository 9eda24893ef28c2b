package etl

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/bulkimport/pkg/models"
	"github.com/BartekS5/bulkimport/pkg/utils"
)

// MongoLoader upserts each document by its mapped id, so reloading a record is harmless.
type MongoLoader struct {
	Collection *mongo.Collection
	Config     *models.MappingSchema
}

func NewMongoLoader(db *mongo.Database, config *models.MappingSchema) *MongoLoader {
	return &MongoLoader{
		Collection: db.Collection(config.MongoCollection),
		Config:     config,
	}
}

func (m *MongoLoader) Load(ctx context.Context, _ *PipelineContext, record any) error {
	doc, err := asDocument(record)
	if err != nil {
		return err
	}

	idVal := doc[m.Config.IDStrategy.MongoField]
	if idVal == nil {
		return &ValidationError{Field: m.Config.IDStrategy.MongoField, Reason: "missing required id"}
	}

	filter := bson.M{m.Config.IDStrategy.MongoField: idVal}
	update := bson.M{"$set": doc}
	_, err = m.Collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return classifyMongoError(err)
}

// MongoExtractor pages through a collection sorted by id. The cursor is the skip offset.
type MongoExtractor struct {
	Collection *mongo.Collection
	Config     *models.MappingSchema
	BatchSize  int
}

func NewMongoExtractor(db *mongo.Database, config *models.MappingSchema, batchSize int) *MongoExtractor {
	return &MongoExtractor{
		Collection: db.Collection(config.MongoCollection),
		Config:     config,
		BatchSize:  batchSize,
	}
}

func (m *MongoExtractor) Extract(ctx context.Context, pc *PipelineContext) (*ExtractedData, error) {
	page, err := pc.NextPage(ctx)
	if err != nil {
		return nil, err
	}
	skip, err := utils.ParseOffset(page)
	if err != nil {
		return nil, err
	}

	size := int64(m.BatchSize)
	if size <= 0 {
		size = defaultBatchSize
	}

	findOpts := options.Find().
		SetLimit(size).
		SetSkip(skip).
		SetSort(bson.D{{Key: m.Config.IDStrategy.MongoField, Value: 1}})

	cursor, err := m.Collection.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, classifyMongoError(err)
	}
	defer cursor.Close(ctx)

	var records []any
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decode mongo document")
		}
		records = append(records, map[string]interface{}(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, classifyMongoError(err)
	}

	var opts []PageOption
	if int64(len(records)) == size {
		opts = append(opts, WithNextPage(strconv.FormatInt(skip+size, 10)))
	}
	if skip == 0 {
		total, err := m.Collection.CountDocuments(ctx, bson.M{})
		if err != nil {
			return nil, classifyMongoError(err)
		}
		opts = append(opts, WithTotalCount(total))
	}

	return NewExtractedData(records, opts...), nil
}

// classifyMongoError maps network failures to retriable transport errors and concurrent
// duplicate-key races to unit retries.
func classifyMongoError(err error) error {
	switch {
	case err == nil:
		return nil
	case mongo.IsNetworkError(err) || mongo.IsTimeout(err):
		return &TransportError{Status: http.StatusServiceUnavailable, Retriable: true, Err: err}
	case mongo.IsDuplicateKeyError(err):
		return NewUnitRetriable("concurrent upsert on the same key", err)
	default:
		return err
	}
}
