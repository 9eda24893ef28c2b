package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/BartekS5/bulkimport/pkg/models"
)

// LoadMapping reads and parses a single mapping JSON file.
func LoadMapping(filePath string) (*models.MappingSchema, error) {
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read mapping file '%s'", filePath)
	}
	m, err := models.LoadMapping(bytes)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse mapping file '%s'", filePath)
	}
	return m, nil
}

// LoadPipelineFile reads a pipeline definition file. The format follows the extension:
// .yaml and .yml are YAML, anything else is JSON.
func LoadPipelineFile(filePath string) (*models.PipelineFile, error) {
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read pipeline file '%s'", filePath)
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
	if format != "yaml" && format != "yml" {
		format = "json"
	}

	file, err := models.ParsePipelineFile(bytes, format)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse pipeline file '%s'", filePath)
	}
	if err := validatePipelineFile(file); err != nil {
		return nil, errors.Wrapf(err, "invalid pipeline file '%s'", filePath)
	}
	return file, nil
}

func validatePipelineFile(f *models.PipelineFile) error {
	if len(f.Pipelines) == 0 {
		return errors.New("no pipelines defined")
	}
	seen := make(map[string]struct{}, len(f.Pipelines))
	for n, p := range f.Pipelines {
		if p.Name == "" {
			return errors.Newf("pipeline #%d has no name", n+1)
		}
		if _, dup := seen[p.Name]; dup {
			return errors.Newf("pipeline %s defined twice", p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.Mapping.IDStrategy.SQLField == "" || p.Mapping.IDStrategy.MongoField == "" {
			return errors.Newf("pipeline %s: mapping idStrategy needs sqlField and mongoField", p.Name)
		}
	}
	return nil
}
