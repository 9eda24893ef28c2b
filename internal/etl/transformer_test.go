package etl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/BartekS5/bulkimport/pkg/models"
)

func TestMappingTransformer_SQLToMongo(t *testing.T) {
	mapping := usersMapping()
	mapping.Fields["registered"] = models.FieldConfig{SQLColumn: "registered_at", MongoField: "registeredAt", Type: "datetime"}
	tr := NewMappingTransformer(mapping, SQLToMongo)

	registered := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out, err := tr.Transform(context.Background(), nil, map[string]interface{}{
		"id":            int64(1),
		"user_name":     "alice",
		"points":        int64(10),
		"registered_at": registered,
		"password":      "secret",
	})
	require.NoError(t, err)

	doc := out.(map[string]interface{})
	assert.Equal(t, "alice", doc["username"])
	assert.Contains(t, doc, "_id")
	assert.Contains(t, doc, "points")
	assert.Contains(t, doc, "registeredAt")
	assert.NotContains(t, doc, "password")
	assert.NotContains(t, doc, "user_name")
}

func TestMappingTransformer_MongoToSQL(t *testing.T) {
	tr := NewMappingTransformer(usersMapping(), MongoToSQL)

	out, err := tr.Transform(context.Background(), nil, bson.D{
		{Key: "_id", Value: int64(5)},
		{Key: "username", Value: "bob"},
	})
	require.NoError(t, err)

	row := out.(map[string]interface{})
	assert.Equal(t, "bob", row["user_name"])
	assert.Contains(t, row, "id")
	assert.NotContains(t, row, "points")
}

func TestMappingTransformer_UnsupportedRecord(t *testing.T) {
	tr := NewMappingTransformer(usersMapping(), SQLToMongo)

	_, err := tr.Transform(context.Background(), nil, []string{"not", "a", "document"})
	assert.Error(t, err)
}

func TestValidator(t *testing.T) {
	v := NewValidator("_id")

	_, err := v.Transform(context.Background(), nil, primitive.M{"_id": 1})
	assert.NoError(t, err)

	_, err = v.Transform(context.Background(), nil, map[string]interface{}{"_id": nil})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "id is null", vErr.Reason)

	_, err = v.Transform(context.Background(), nil, map[string]interface{}{"name": "x"})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "missing required id", vErr.Reason)
}

type mapperFunc func(ctx context.Context, id string) (string, error)

func (f mapperFunc) MapIdentity(ctx context.Context, id string) (string, error) { return f(ctx, id) }

func TestIdentityTransformer(t *testing.T) {
	pc := stubContext(t, "")
	pc.IdentityMapper = mapperFunc(func(_ context.Context, id string) (string, error) {
		return "target-" + id, nil
	})
	tr := NewIdentityTransformer("author_id")

	in := map[string]interface{}{"iid": 1, "author_id": 42}
	out, err := tr.Transform(context.Background(), pc, in)
	require.NoError(t, err)

	assert.Equal(t, "target-42", out.(map[string]interface{})["author_id"])
	assert.Equal(t, 42, in["author_id"], "input record must not be mutated")

	untouched, err := tr.Transform(context.Background(), pc, map[string]interface{}{"iid": 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"iid": 2}, untouched)
}

func TestIdentityTransformer_LockContention(t *testing.T) {
	pc := stubContext(t, "")
	pc.IdentityMapper = mapperFunc(func(context.Context, string) (string, error) {
		return "", NewUnitRetriable("failed to obtain lock for identity mapping", nil)
	})

	_, err := NewIdentityTransformer("author_id").Transform(context.Background(), pc, map[string]interface{}{"author_id": 1})
	assert.True(t, IsUnitRetriable(err))
}
