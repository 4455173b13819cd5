package kokia

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NormalizeFieldName(t *testing.T) {
	cases := map[string]string{
		"counter__suspend_3": "counter",
		".0":                 "field0",
		".12":                "field12",
		"__upvar_total":      "total",
		"__hidden":           "hidden",
		"plain":              "plain",
	}
	for raw, want := range cases {
		assert.Equal(t, want, normalizeFieldName(raw), "raw=%q", raw)
	}
}

func Test_NormalizeDescriptor_DisambiguatesCollisions(t *testing.T) {
	raw := &GeneratorDescriptor{
		TypeName: "FooFuture",
		Variants: []Variant{
			{Index: 0, Fields: []Field{
				{RawName: "__upvar_x"},
				{RawName: ".0"}, // normalizes to "field0", distinct
				{RawName: "x__suspend_1"},
			}},
		},
	}
	out := normalizeDescriptor(raw)
	names := []string{
		out.Variants[0].Fields[0].NormalizedName,
		out.Variants[0].Fields[1].NormalizedName,
		out.Variants[0].Fields[2].NormalizedName,
	}
	assert.Equal(t, "x", names[0])
	assert.Equal(t, "field0", names[1])
	assert.Equal(t, "x#1", names[2])
}

type fakeOracle struct {
	gen    *GeneratorDescriptor
	err    error
	calls  int
}

func (f *fakeOracle) TypeForSymbol(string) (TypeRef, error) { return "t", nil }
func (f *fakeOracle) FunctionRange(Addr) (Addr, Addr, bool) { return 0, 0, false }
func (f *fakeOracle) PCToSource(Addr) (string, int, bool)   { return "", 0, false }
func (f *fakeOracle) VariablesInScope(Addr) ([]ScopedVariable, error) {
	return nil, nil
}
func (f *fakeOracle) ResolveGenerator(TypeRef) (*GeneratorDescriptor, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.gen, nil
}
func (f *fakeOracle) GeneratorTypeName(Addr) (string, bool) {
	if f.gen == nil {
		return "", false
	}
	return f.gen.TypeName, true
}
func (f *fakeOracle) SymbolForAddress(Addr) (string, bool) { return "", false }

func Test_LayoutAnalyzer_Resolve_CachesAcrossCalls(t *testing.T) {
	oracle := &fakeOracle{gen: &GeneratorDescriptor{TypeName: "FooFuture"}}
	la := newLayoutAnalyzer(oracle, nil)

	d1, err := la.Resolve("t", "FooFuture")
	require.NoError(t, err)
	d2, err := la.Resolve("t", "FooFuture")
	require.NoError(t, err)

	assert.Same(t, d1, d2)
	assert.Equal(t, 1, oracle.calls)
}

func Test_LayoutAnalyzer_Resolve_RespectsDenyList(t *testing.T) {
	oracle := &fakeOracle{gen: &GeneratorDescriptor{TypeName: "TrampolineFuture"}}
	la := newLayoutAnalyzer(oracle, []string{"TrampolineFuture"})

	_, err := la.Resolve("t", "TrampolineFuture")
	assert.ErrorIs(t, err, ErrSkipType)
	assert.Equal(t, 0, oracle.calls)
}

func Test_LayoutAnalyzer_Invalidate_ClearsCache(t *testing.T) {
	oracle := &fakeOracle{gen: &GeneratorDescriptor{TypeName: "FooFuture"}}
	la := newLayoutAnalyzer(oracle, nil)

	_, _ = la.Resolve("t", "FooFuture")
	la.invalidate()
	_, _ = la.Resolve("t", "FooFuture")

	assert.Equal(t, 2, oracle.calls)
}

func Test_GeneratorDescriptor_VariantFor(t *testing.T) {
	g := &GeneratorDescriptor{
		Discriminant: Discriminant{VariantMap: map[int64]int{0: 0, 1: 1}},
		Variants:     []Variant{{Index: 0}, {Index: 1}},
	}
	v, ok := g.VariantFor(1)
	assert.True(t, ok)
	assert.Equal(t, 1, v.Index)

	_, ok = g.VariantFor(5)
	assert.False(t, ok)
}
