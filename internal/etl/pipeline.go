package etl

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
)

// HookFunc runs at the end of a pipeline invocation.
type HookFunc func(ctx context.Context, pc *PipelineContext) error

// Definition is a pipeline type: one extractor, a transformer chain and one loader.
type Definition struct {
	Name           string
	Extractor      Extractor
	Transformers   []Transformer
	Loader         Loader
	AbortOnFailure bool
	// Batched pipelines span several invocations; AfterRun runs after each of them.
	// Single-shot pipelines run OnFinish once at completion.
	Batched  bool
	AfterRun HookFunc
	OnFinish HookFunc
	// SourcePath is the sub-path of the source item, used to link failure records.
	SourcePath string
}

type DefinitionOption func(*Definition)

func WithTransformers(t ...Transformer) DefinitionOption {
	return func(d *Definition) {
		d.Transformers = append(d.Transformers, t...)
	}
}

func WithAbortOnFailure() DefinitionOption {
	return func(d *Definition) {
		d.AbortOnFailure = true
	}
}

func WithBatched(afterRun HookFunc) DefinitionOption {
	return func(d *Definition) {
		d.Batched = true
		d.AfterRun = afterRun
	}
}

func WithOnFinish(hook HookFunc) DefinitionOption {
	return func(d *Definition) {
		d.OnFinish = hook
	}
}

func WithSourcePath(path string) DefinitionOption {
	return func(d *Definition) {
		d.SourcePath = path
	}
}

func NewDefinition(name string, ext Extractor, loader Loader, opts ...DefinitionOption) (*Definition, error) {
	if name == "" {
		return nil, errors.New("pipeline name is required")
	}
	if ext == nil || loader == nil {
		return nil, errors.Newf("pipeline %s: extractor and loader are required", name)
	}

	d := &Definition{
		Name:      name,
		Extractor: ext,
		Loader:    loader,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// transform applies the chain in order. A nil result from any transformer drops the record.
func (d *Definition) transform(ctx context.Context, pc *PipelineContext, record any) (any, error) {
	current := record
	for _, t := range d.Transformers {
		out, err := t.Transform(ctx, pc, current)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, nil
		}
		current = out
	}
	return current, nil
}

// Registry maps pipeline names to definitions. It is filled once at startup.
type Registry struct {
	defs  map[string]*Definition
	order []string
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

func (r *Registry) Register(d *Definition) error {
	if _, exists := r.defs[d.Name]; exists {
		return errors.Newf("pipeline %s already registered", d.Name)
	}
	r.defs[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

func (r *Registry) Get(name string) (*Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Ordered returns definitions in registration order.
func (r *Registry) Ordered() []*Definition {
	out := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}
