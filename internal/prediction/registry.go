package prediction

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownComponent is returned for an extractor kind with no constructor.
var ErrUnknownComponent = errors.New("prediction: unknown component")

// ExtractorKind names a registered feature extractor.
type ExtractorKind string

const (
	KindWeekDay ExtractorKind = "weekday"
	KindName    ExtractorKind = "name"
	KindType    ExtractorKind = "type"
)

// ExtractorParams configure an extractor instance.
type ExtractorParams struct {
	Kind      ExtractorKind `mapstructure:"kind"`
	RunColumn string        `mapstructure:"run_column"`
}

// Constructor builds an extractor from its params.
type Constructor func(params ExtractorParams) (Extractor, error)

// Registry maps extractor kinds to constructors.
type Registry struct {
	ctors map[ExtractorKind]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[ExtractorKind]Constructor)}
}

// Register adds a constructor. Panics on duplicate kind.
func (r *Registry) Register(kind ExtractorKind, ctor Constructor) {
	if _, ok := r.ctors[kind]; ok {
		panic("duplicate extractor kind: " + string(kind))
	}
	r.ctors[kind] = ctor
}

// Build constructs an extractor, failing with ErrUnknownComponent for
// unregistered kinds.
func (r *Registry) Build(params ExtractorParams) (Extractor, error) {
	ctor, ok := r.ctors[ExtractorKind(strings.ToLower(string(params.Kind)))]
	if !ok {
		return nil, fmt.Errorf("%w: extractor %q (known: %s)", ErrUnknownComponent, params.Kind, strings.Join(r.kinds(), ", "))
	}
	return ctor(params)
}

// BuildPipeline constructs every extractor in order.
func (r *Registry) BuildPipeline(params []ExtractorParams) (*Pipeline, error) {
	extractors := make([]Extractor, 0, len(params))
	for _, p := range params {
		ex, err := r.Build(p)
		if err != nil {
			return nil, err
		}
		extractors = append(extractors, ex)
	}
	return NewPipeline(extractors...), nil
}

func (r *Registry) kinds() []string {
	out := make([]string, 0, len(r.ctors))
	for k := range r.ctors {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry returns a registry with the built-in extractors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindWeekDay, func(p ExtractorParams) (Extractor, error) {
		return &WeekDayExtractor{column: columnOr(p.RunColumn, "processed_date")}, nil
	})
	r.Register(KindName, func(p ExtractorParams) (Extractor, error) {
		return &NameExtractor{
			column:      columnOr(p.RunColumn, "description"),
			switchTerms: switchTerms,
			brands:      brands,
			stopwords:   stopwords,
		}, nil
	})
	r.Register(KindType, func(p ExtractorParams) (Extractor, error) {
		return &TypeExtractor{
			column:         columnOr(p.RunColumn, ColumnNormalized),
			nameRules:      nameTypeRules,
			normalizations: typeNormalizations,
		}, nil
	})
	return r
}

// DefaultExtractors is the pipeline used when none is configured.
func DefaultExtractors() []ExtractorParams {
	return []ExtractorParams{{Kind: KindName}, {Kind: KindType}, {Kind: KindWeekDay}}
}

func columnOr(col, fallback string) string {
	if col == "" {
		return fallback
	}
	return col
}
