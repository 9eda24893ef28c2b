package etl

import (
	"context"
	"fmt"
)

// IdentityTransformer rewrites a user reference field through the context's identity mapper.
// Records without the field pass through untouched.
type IdentityTransformer struct {
	Field string
}

func NewIdentityTransformer(field string) *IdentityTransformer {
	return &IdentityTransformer{Field: field}
}

func (t *IdentityTransformer) Transform(ctx context.Context, pc *PipelineContext, record any) (any, error) {
	if pc.IdentityMapper == nil {
		return record, nil
	}
	doc, err := asDocument(record)
	if err != nil {
		return nil, err
	}
	val, ok := doc[t.Field]
	if !ok || val == nil {
		return record, nil
	}

	mapped, err := pc.IdentityMapper.MapIdentity(ctx, fmt.Sprintf("%v", val))
	if err != nil {
		return nil, err
	}

	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	out[t.Field] = mapped
	return out, nil
}
