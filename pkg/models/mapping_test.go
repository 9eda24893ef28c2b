package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipelinesYAML = `
version: "1"
pipelines:
  - name: users
    source:
      kind: sql
    target:
      kind: mongo
    batchSize: 50
    abortOnFailure: true
    validate: true
    mapping:
      entity: AppUser
      sqlTable: users
      mongoCollection: users
      idStrategy:
        sqlField: id
        mongoField: _id
        type: long
      fields:
        userName:
          sql: user_name
          mongo: username
          type: string
  - name: issues
    source:
      kind: http
      url: https://source.example.com/api/issues
      requestsPerSecond: 5
    target:
      kind: mongo
    batched: true
    sourcePath: -/issues
    identityField: author_id
    mapping:
      mongoCollection: issues
      idStrategy:
        sqlField: iid
        mongoField: _id
`

func TestParsePipelineFile_YAML(t *testing.T) {
	f, err := ParsePipelineFile([]byte(pipelinesYAML), "yaml")
	require.NoError(t, err)
	require.Len(t, f.Pipelines, 2)

	users := f.Pipelines[0]
	assert.Equal(t, SourceSQL, users.Source.Kind)
	assert.Equal(t, TargetMongo, users.Target.Kind)
	assert.Equal(t, 50, users.BatchSize)
	assert.True(t, users.AbortOnFailure)
	assert.Equal(t, "user_name", users.Mapping.Fields["userName"].SQLColumn)

	issues := f.Pipelines[1]
	assert.Equal(t, SourceHTTP, issues.Source.Kind)
	assert.Equal(t, 5.0, issues.Source.RequestsPerSecond)
	assert.True(t, issues.Batched)
	assert.Equal(t, "-/issues", issues.SourcePath)
	assert.Equal(t, "author_id", issues.IdentityField)
}

func TestParsePipelineFile_JSON(t *testing.T) {
	data := []byte(`{"version":"1","pipelines":[{"name":"users","source":{"kind":"mongo"},"target":{"kind":"sql"},
		"mapping":{"sqlTable":"users","idStrategy":{"sqlField":"id","mongoField":"_id"}}}]}`)

	f, err := ParsePipelineFile(data, "json")
	require.NoError(t, err)
	require.Len(t, f.Pipelines, 1)
	assert.Equal(t, SourceMongo, f.Pipelines[0].Source.Kind)
	assert.Equal(t, "users", f.Pipelines[0].Mapping.SQLTable)
}

func TestParsePipelineFile_Errors(t *testing.T) {
	_, err := ParsePipelineFile([]byte(`{`), "json")
	assert.Error(t, err)

	_, err = ParsePipelineFile([]byte("pipelines: ["), "yml")
	assert.Error(t, err)

	_, err = ParsePipelineFile([]byte(`{}`), "toml")
	assert.Error(t, err)
}

func TestLoadMapping(t *testing.T) {
	m, err := LoadMapping([]byte(`{"entity":"AppUser","sqlTable":"users","mongoCollection":"users",
		"idStrategy":{"sqlField":"id","mongoField":"_id","type":"long"},
		"fields":{"email":{"sql":"email","mongo":"email","type":"string"}}}`))
	require.NoError(t, err)

	assert.Equal(t, "AppUser", m.Entity)
	assert.Equal(t, "long", m.IDStrategy.Type)
	assert.Equal(t, "email", m.Fields["email"].MongoField)
}

func TestStateHelpers(t *testing.T) {
	assert.True(t, (&Entity{State: StateFailed}).Failed())
	assert.False(t, (&Entity{State: StateStarted}).Failed())
	assert.True(t, (&Tracker{State: StateFailed}).Failed())
}
