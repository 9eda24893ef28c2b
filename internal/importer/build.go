package importer

import (
	"database/sql"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/BartekS5/bulkimport/internal/etl"
	"github.com/BartekS5/bulkimport/pkg/models"
)

// Backends are the connections stage implementations are built on. Either may be nil when no
// pipeline needs it.
type Backends struct {
	SQL       *sql.DB
	SQLDriver string
	Mongo     *mongo.Database
}

// BuildRegistry turns a pipeline file into registered definitions, in file order.
func BuildRegistry(file *models.PipelineFile, b Backends) (*etl.Registry, error) {
	if file == nil || len(file.Pipelines) == 0 {
		return nil, errors.New("pipeline file defines no pipelines")
	}

	reg := etl.NewRegistry()
	for n := range file.Pipelines {
		def, err := BuildDefinition(&file.Pipelines[n], b)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// BuildDefinition selects the extractor, transformer chain and loader for one pipeline.
func BuildDefinition(cfg *models.PipelineConfig, b Backends) (*etl.Definition, error) {
	mapping := &cfg.Mapping
	if (cfg.Source.Kind == models.SourceSQL && cfg.Target.Kind == models.TargetSQL) ||
		(cfg.Source.Kind == models.SourceMongo && cfg.Target.Kind == models.TargetMongo) {
		return nil, errors.Newf("pipeline %s: source and target are the same store kind", cfg.Name)
	}

	ext, err := buildExtractor(cfg, b)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %s", cfg.Name)
	}
	loader, err := buildLoader(cfg, b)
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %s", cfg.Name)
	}

	// The target decides which side of the mapping the source keys are read from.
	dir := etl.SQLToMongo
	if cfg.Target.Kind == models.TargetSQL {
		dir = etl.MongoToSQL
	}
	transformers := []etl.Transformer{etl.NewMappingTransformer(mapping, dir)}

	if cfg.IdentityField != "" {
		transformers = append(transformers, etl.NewIdentityTransformer(cfg.IdentityField))
	}
	if cfg.Validate {
		idField := mapping.IDStrategy.MongoField
		if cfg.Target.Kind == models.TargetSQL {
			idField = mapping.IDStrategy.SQLField
		}
		transformers = append(transformers, etl.NewValidator(idField))
	}

	opts := []etl.DefinitionOption{
		etl.WithTransformers(transformers...),
		etl.WithSourcePath(cfg.SourcePath),
	}
	if cfg.AbortOnFailure {
		opts = append(opts, etl.WithAbortOnFailure())
	}
	if cfg.Batched {
		opts = append(opts, etl.WithBatched(nil))
	}
	return etl.NewDefinition(cfg.Name, ext, loader, opts...)
}

func buildExtractor(cfg *models.PipelineConfig, b Backends) (etl.Extractor, error) {
	switch cfg.Source.Kind {
	case models.SourceSQL:
		if b.SQL == nil {
			return nil, errors.New("sql source needs a SQL connection")
		}
		return &etl.SQLExtractor{DB: b.SQL, Config: &cfg.Mapping, BatchSize: cfg.BatchSize}, nil
	case models.SourceMongo:
		if b.Mongo == nil {
			return nil, errors.New("mongo source needs a MongoDB connection")
		}
		return etl.NewMongoExtractor(b.Mongo, &cfg.Mapping, cfg.BatchSize), nil
	case models.SourceHTTP:
		if cfg.Source.URL == "" {
			return nil, errors.New("http source needs a url")
		}
		return etl.NewHTTPExtractor(cfg.Source.URL, cfg.BatchSize, cfg.Source.RequestsPerSecond), nil
	default:
		return nil, errors.Newf("unknown source kind %q", cfg.Source.Kind)
	}
}

func buildLoader(cfg *models.PipelineConfig, b Backends) (etl.Loader, error) {
	switch cfg.Target.Kind {
	case models.TargetMongo:
		if b.Mongo == nil {
			return nil, errors.New("mongo target needs a MongoDB connection")
		}
		return etl.NewMongoLoader(b.Mongo, &cfg.Mapping), nil
	case models.TargetSQL:
		if b.SQL == nil {
			return nil, errors.New("sql target needs a SQL connection")
		}
		return &etl.SQLLoader{DB: b.SQL, Config: &cfg.Mapping, Driver: b.SQLDriver}, nil
	default:
		return nil, errors.Newf("unknown target kind %q", cfg.Target.Kind)
	}
}
