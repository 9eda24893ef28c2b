package models

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// MappingSchema describes how one entity's fields move between the SQL and Mongo shapes.
type MappingSchema struct {
	Entity          string                 `json:"entity" yaml:"entity"`
	SQLTable        string                 `json:"sqlTable" yaml:"sqlTable"`
	MongoCollection string                 `json:"mongoCollection" yaml:"mongoCollection"`
	IDStrategy      IDStrategy             `json:"idStrategy" yaml:"idStrategy"`
	Fields          map[string]FieldConfig `json:"fields" yaml:"fields"`
}

type IDStrategy struct {
	SQLField   string `json:"sqlField" yaml:"sqlField"`
	MongoField string `json:"mongoField" yaml:"mongoField"`
	Type       string `json:"type" yaml:"type"`
}

type FieldConfig struct {
	SQLColumn  string `json:"sql" yaml:"sql"`
	MongoField string `json:"mongo" yaml:"mongo"`
	Type       string `json:"type" yaml:"type"`
	Format     string `json:"format,omitempty" yaml:"format,omitempty"`
}

// SourceKind selects the extractor implementation of a pipeline.
type SourceKind string

const (
	SourceSQL   SourceKind = "sql"
	SourceMongo SourceKind = "mongo"
	SourceHTTP  SourceKind = "http"
)

// TargetKind selects the loader implementation of a pipeline.
type TargetKind string

const (
	TargetMongo TargetKind = "mongo"
	TargetSQL   TargetKind = "sql"
)

type SourceConfig struct {
	Kind SourceKind `json:"kind" yaml:"kind"`
	// URL is only used by http sources.
	URL               string  `json:"url,omitempty" yaml:"url,omitempty"`
	RequestsPerSecond float64 `json:"requestsPerSecond,omitempty" yaml:"requestsPerSecond,omitempty"`
}

type TargetConfig struct {
	Kind TargetKind `json:"kind" yaml:"kind"`
}

// PipelineConfig is the declarative form of one pipeline type.
type PipelineConfig struct {
	Name           string        `json:"name" yaml:"name"`
	Source         SourceConfig  `json:"source" yaml:"source"`
	Target         TargetConfig  `json:"target" yaml:"target"`
	Mapping        MappingSchema `json:"mapping" yaml:"mapping"`
	BatchSize      int           `json:"batchSize" yaml:"batchSize"`
	AbortOnFailure bool          `json:"abortOnFailure" yaml:"abortOnFailure"`
	Batched        bool          `json:"batched" yaml:"batched"`
	SourcePath     string        `json:"sourcePath,omitempty" yaml:"sourcePath,omitempty"`
	Validate       bool          `json:"validate" yaml:"validate"`
	IdentityField  string        `json:"identityField,omitempty" yaml:"identityField,omitempty"`
}

// PipelineFile is the root of a pipeline definition file. Pipelines run in file order.
type PipelineFile struct {
	Version   string           `json:"version" yaml:"version"`
	Pipelines []PipelineConfig `json:"pipelines" yaml:"pipelines"`
}

func LoadMapping(data []byte) (*MappingSchema, error) {
	var m MappingSchema
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ParsePipelineFile decodes a definition file. format is "json" or "yaml".
func ParsePipelineFile(data []byte, format string) (*PipelineFile, error) {
	var f PipelineFile
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	case "json", "":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported pipeline file format %q", format)
	}
	return &f, nil
}
