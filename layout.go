package kokia

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Discriminant describes the variant-discriminator member of a
// generator's tagged-union shape (spec.md §3/§4.1).
type Discriminant struct {
	Offset      int64
	Size        int64
	Signed      bool
	VariantMap  map[int64]int // discriminant value -> Variant index
}

// Field is one member of an active variant, in declared order.
type Field struct {
	RawName        string
	NormalizedName string
	Offset         int64
	Size           int64
	Type           TypeRef
}

// Variant is one alternative field set a generator object can hold.
type Variant struct {
	Index  int
	Fields []Field
}

// GeneratorDescriptor is the runtime-friendly description of a
// generator type's layout, the output of the Layout Analyzer (spec.md
// §3/§4.1).
type GeneratorDescriptor struct {
	TypeName     string
	Discriminant Discriminant
	Variants     []Variant
}

// VariantFor resolves the active Variant for an observed discriminant
// value, or (nil, false) if the value is not in the variant map.
func (g *GeneratorDescriptor) VariantFor(discrValue int64) (*Variant, bool) {
	idx, ok := g.Discriminant.VariantMap[discrValue]
	if !ok || idx < 0 || idx >= len(g.Variants) {
		return nil, false
	}
	return &g.Variants[idx], true
}

// LayoutAnalyzer is the Layout Analyzer (C1). It wraps the external
// Debug-Info Oracle's raw ResolveGenerator with type-hash caching and
// source-visible name normalization (spec.md §4.1): the oracle produces
// the raw member shape, the analyzer turns it into the cached,
// normalized runtime descriptor.
type LayoutAnalyzer struct {
	oracle DebugInfoOracle

	mu    sync.Mutex
	cache map[uint64]*GeneratorDescriptor

	// denyList holds type names the analyzer intentionally refuses to
	// treat as generators, e.g. compiler-synthesized combinator/
	// trampoline types that should stay transparent to the task graph
	// (spec.md §9 Open Questions, "non-generator intermediates are
	// transparent").
	denyList map[string]bool
}

func newLayoutAnalyzer(oracle DebugInfoOracle, denyList []string) *LayoutAnalyzer {
	deny := make(map[string]bool, len(denyList))
	for _, n := range denyList {
		deny[n] = true
	}
	return &LayoutAnalyzer{
		oracle:   oracle,
		cache:    make(map[uint64]*GeneratorDescriptor),
		denyList: deny,
	}
}

// Resolve returns the cached, normalized descriptor for a type, calling
// through to the oracle on a cache miss. Returns ErrNotAGenerator,
// ErrMissingDebugInfo, or ErrSkipType as appropriate.
func (la *LayoutAnalyzer) Resolve(t TypeRef, typeName string) (*GeneratorDescriptor, error) {
	if la.denyList[typeName] {
		return nil, ErrSkipType
	}

	hash := typeHashOf(typeName)

	la.mu.Lock()
	if d, ok := la.cache[hash]; ok {
		la.mu.Unlock()
		return d, nil
	}
	la.mu.Unlock()

	raw, err := la.oracle.ResolveGenerator(t)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, ErrMissingDebugInfo
	}

	normalized := normalizeDescriptor(raw)

	la.mu.Lock()
	la.cache[hash] = normalized
	la.mu.Unlock()

	return normalized, nil
}

// invalidate drops the whole cache; called only on debug-info reload
// (spec.md §4.1 "cache is invalidated on debug-info reload only").
func (la *LayoutAnalyzer) invalidate() {
	la.mu.Lock()
	la.cache = make(map[uint64]*GeneratorDescriptor)
	la.mu.Unlock()
}

var (
	suspendSuffixRE = regexp.MustCompile(`__suspend_\d+$`)
	tupleIndexRE    = regexp.MustCompile(`^\.(\d+)$`)
	upvalueRE       = regexp.MustCompile(`^__upvar_(.+)$`)
)

// normalizeDescriptor applies name normalization to every field in every
// variant, in declared order, retaining the raw name and disambiguating
// collisions within the same variant (spec.md §4.1 "Name normalization").
func normalizeDescriptor(raw *GeneratorDescriptor) *GeneratorDescriptor {
	out := &GeneratorDescriptor{
		TypeName:     raw.TypeName,
		Discriminant: raw.Discriminant,
		Variants:     make([]Variant, len(raw.Variants)),
	}

	for vi, v := range raw.Variants {
		seen := make(map[string]int)
		fields := make([]Field, len(v.Fields))
		for fi, f := range v.Fields {
			norm := normalizeFieldName(f.RawName)
			if n := seen[norm]; n > 0 {
				seen[norm] = n + 1
				norm = norm + "#" + strconv.Itoa(n)
			} else {
				seen[norm] = 1
			}
			fields[fi] = Field{
				RawName:        f.RawName,
				NormalizedName: norm,
				Offset:         f.Offset,
				Size:           f.Size,
				Type:           f.Type,
			}
		}
		out.Variants[vi] = Variant{Index: v.Index, Fields: fields}
	}

	return out
}

func normalizeFieldName(raw string) string {
	name := suspendSuffixRE.ReplaceAllString(raw, "")

	if m := tupleIndexRE.FindStringSubmatch(name); m != nil {
		return "field" + m[1]
	}

	if m := upvalueRE.FindStringSubmatch(name); m != nil {
		return m[1]
	}

	return strings.TrimPrefix(name, "__")
}
