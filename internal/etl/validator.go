package etl

import (
	"context"
	"fmt"
)

// ValidationError reports a document that cannot be loaded.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) ErrorClass() string {
	return "ValidationError"
}

// Validator rejects documents that lack the field the loader keys on.
type Validator struct {
	IDField string
}

func NewValidator(idField string) *Validator {
	return &Validator{IDField: idField}
}

func (v *Validator) Transform(_ context.Context, _ *PipelineContext, record any) (any, error) {
	doc, err := asDocument(record)
	if err != nil {
		return nil, err
	}
	if err := v.ValidateDocument(doc); err != nil {
		return nil, err
	}
	return record, nil
}

// ValidateDocument checks the id field is present and not null.
func (v *Validator) ValidateDocument(doc map[string]interface{}) error {
	val, ok := doc[v.IDField]
	if !ok {
		return &ValidationError{Field: v.IDField, Reason: "missing required id"}
	}
	if val == nil {
		return &ValidationError{Field: v.IDField, Reason: "id is null"}
	}
	return nil
}
