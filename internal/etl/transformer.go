package etl

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/BartekS5/bulkimport/pkg/models"
	"github.com/BartekS5/bulkimport/pkg/utils"
)

// Direction is the way records flow through a mapping.
type Direction string

const (
	SQLToMongo Direction = "sql-to-mongo"
	MongoToSQL Direction = "mongo-to-sql"
)

// MappingTransformer renames and converts fields according to a mapping schema.
type MappingTransformer struct {
	Config    *models.MappingSchema
	Direction Direction
}

func NewMappingTransformer(config *models.MappingSchema, dir Direction) *MappingTransformer {
	return &MappingTransformer{Config: config, Direction: dir}
}

func (t *MappingTransformer) Transform(_ context.Context, _ *PipelineContext, record any) (any, error) {
	doc, err := asDocument(record)
	if err != nil {
		return nil, err
	}
	if t.Direction == MongoToSQL {
		return t.TransformMongoToSQL(doc)
	}
	return t.TransformSQLToMongo(doc)
}

func (t *MappingTransformer) TransformSQLToMongo(sqlRow map[string]interface{}) (map[string]interface{}, error) {
	doc := make(map[string]interface{}, len(t.Config.Fields)+1)

	if idVal, ok := sqlRow[t.Config.IDStrategy.SQLField]; ok {
		id, err := utils.ConvertToMongoType(idVal, models.FieldConfig{Type: t.Config.IDStrategy.Type})
		if err != nil {
			return nil, fmt.Errorf("id %s: %w", t.Config.IDStrategy.SQLField, err)
		}
		doc[t.Config.IDStrategy.MongoField] = id
	}

	for _, fieldCfg := range t.Config.Fields {
		val, exists := sqlRow[fieldCfg.SQLColumn]
		if !exists {
			continue
		}
		converted, err := utils.ConvertToMongoType(val, fieldCfg)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fieldCfg.SQLColumn, err)
		}
		doc[fieldCfg.MongoField] = converted
	}

	return doc, nil
}

func (t *MappingTransformer) TransformMongoToSQL(mongoDoc map[string]interface{}) (map[string]interface{}, error) {
	row := make(map[string]interface{}, len(t.Config.Fields)+1)

	if idVal, ok := mongoDoc[t.Config.IDStrategy.MongoField]; ok {
		id, err := utils.ConvertToSQLType(idVal, models.FieldConfig{Type: t.Config.IDStrategy.Type})
		if err != nil {
			return nil, fmt.Errorf("id %s: %w", t.Config.IDStrategy.MongoField, err)
		}
		row[t.Config.IDStrategy.SQLField] = id
	}

	for _, fieldCfg := range t.Config.Fields {
		val, exists := mongoDoc[fieldCfg.MongoField]
		if !exists {
			continue
		}
		converted, err := utils.ConvertToSQLType(val, fieldCfg)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fieldCfg.MongoField, err)
		}
		row[fieldCfg.SQLColumn] = converted
	}
	return row, nil
}

// asDocument views a record as a plain map. Mongo documents arrive as bson.M or bson.D.
func asDocument(record any) (map[string]interface{}, error) {
	switch r := record.(type) {
	case map[string]interface{}:
		return r, nil
	case primitive.M:
		return map[string]interface{}(r), nil
	case primitive.D:
		m := make(map[string]interface{}, len(r))
		for _, e := range r {
			m[e.Key] = e.Value
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported record type %T", record)
	}
}
