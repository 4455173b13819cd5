package kokia

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

// TypeKind is the closed set of type shapes the Value Decoder dispatches
// on (spec.md §4.3). Variants-within-variants and composite pieces are
// modeled as tagged data here, not as a class hierarchy (spec.md §9).
type TypeKind int

const (
	KindBool TypeKind = iota
	KindInt
	KindUint
	KindFloat
	KindChar
	KindRawPointer
	KindFuncPointer
	KindReference
	KindBox
	KindSlice
	KindStringView
	KindOwnedString
	KindVector
	KindPathLike
	KindOptionResult
	KindRc
	KindStruct
	KindSumUser
	KindDynPointer
)

// TypeDescriptor is the richer, decoder-facing view of a TypeRef. The
// Debug-Info Oracle's TypeRef values are expected to satisfy this
// interface when decoding (not just resolving generators); kokia keeps
// it separate from DebugInfoOracle itself to preserve a small, cohesive
// capability per concern (spec.md §9).
type TypeDescriptor interface {
	Kind() TypeKind
	Name() string
	Size() int64
	Elem() TypeDescriptor          // pointer/slice/vector/box element type
	Fields() []Field               // struct fields
	VariantFields(variantIndex int) []Field // fields of one sum-type variant (KindOptionResult/KindSumUser)
	Discriminant() (Discriminant, bool)
	Signed() bool // meaningful only for KindInt/KindUint
}

func asTypeDescriptor(t TypeRef) (TypeDescriptor, bool) {
	td, ok := t.(TypeDescriptor)
	return td, ok
}

// DecodeLimits are the hard safety caps of spec.md §4.3: bounded reads,
// bounded recursion, bounded elements, with explicit truncation markers.
type DecodeLimits struct {
	MaxPerRead  int
	MaxTotal    int
	MaxDepth    int
	MaxElements int
}

// DefaultDecodeLimits matches the defaults named in SPEC_FULL.md §4.9.
func DefaultDecodeLimits() DecodeLimits {
	return DecodeLimits{MaxPerRead: 4096, MaxTotal: 1 << 20, MaxDepth: 3, MaxElements: 16}
}

// ValueDecoder is the Value Decoder (C3).
type ValueDecoder struct {
	limits DecodeLimits

	// symbolize resolves a raw address to a symbolic name, backing the
	// best-effort pointer/vtable symbolization of spec.md §4.3. Nil
	// means no oracle is wired (e.g. in unit tests), in which case
	// pointers render as bare hex.
	symbolize func(Addr) (string, bool)

	// metrics, when non-nil, is incremented at the decoder's own
	// optimized-out and budget-exceeded observation points, rather than
	// callers inferring those events from the rendered string.
	metrics *Metrics
}

func newValueDecoder(limits DecodeLimits) *ValueDecoder {
	return &ValueDecoder{limits: limits}
}

// withSymbolizer attaches a best-effort address-to-symbol resolver.
func (d *ValueDecoder) withSymbolizer(sym func(Addr) (string, bool)) *ValueDecoder {
	d.symbolize = sym
	return d
}

// withMetrics attaches the session's counters.
func (d *ValueDecoder) withMetrics(m *Metrics) *ValueDecoder {
	d.metrics = m
	return d
}

type cycleKey struct {
	addr     Addr
	typeHash uint64
}

type decodeCtx struct {
	mem          MemoryReader
	remaining    int
	visited      map[cycleKey]bool
	limits       DecodeLimits
	truncated    bool
	optimizedOut bool
}

func (c *decodeCtx) read(addr Addr, length int) ([]byte, bool) {
	if length > c.limits.MaxPerRead {
		length = c.limits.MaxPerRead
		c.truncated = true
	}
	if length > c.remaining {
		length = c.remaining
		c.truncated = true
	}
	if length <= 0 {
		return nil, false
	}
	b, err := c.mem(addr, length)
	if err != nil {
		return nil, false
	}
	c.remaining -= len(b)
	return b, true
}

// Decode renders loc (interpreted as type typ) to a display string,
// honoring depth/element/byte caps and detecting cycles (spec.md §4.3).
// It never reads in-process memory directly: every byte comes from the
// supplied MemoryReader, which the caller backs with the out-of-process
// ProcessBackend (spec.md §4.3(a)).
func (d *ValueDecoder) Decode(loc Location, typ TypeRef, mem MemoryReader) string {
	return d.DecodeWithLimits(loc, typ, mem, d.limits)
}

// DecodeWithLimits is Decode with an explicit limits override, letting a
// caller narrow the decode budget per generator type via a DecodePolicy
// (decode_policy.go, SPEC_FULL.md §4.9) without constructing a second
// ValueDecoder.
func (d *ValueDecoder) DecodeWithLimits(loc Location, typ TypeRef, mem MemoryReader, limits DecodeLimits) string {
	ctx := &decodeCtx{
		mem:       mem,
		remaining: limits.MaxTotal,
		visited:   make(map[cycleKey]bool),
		limits:    limits,
	}
	out := d.decode(loc, typ, ctx, 0)
	if d.metrics != nil {
		if ctx.optimizedOut {
			d.metrics.incr(MetricOptimizedOut)
		}
		if ctx.truncated {
			d.metrics.incr(MetricBudgetExceeded)
		}
	}
	return out
}

func (d *ValueDecoder) decode(loc Location, typ TypeRef, ctx *decodeCtx, depth int) string {
	if loc.Kind == LocationEmpty {
		ctx.optimizedOut = true
		return "<optimized out>"
	}

	td, ok := asTypeDescriptor(typ)
	if !ok {
		return "<missing type info>"
	}

	if depth > ctx.limits.MaxDepth {
		ctx.truncated = true
		return "…(truncated)"
	}

	switch loc.Kind {
	case LocationRegister:
		return d.decodeFromBytes(regBytes(loc.Register), td, ctx, depth)
	case LocationPieces:
		return d.decodePieces(loc.Pieces, td, ctx, depth)
	case LocationAddress:
		return d.decodeAtAddress(loc.Address, td, ctx, depth)
	default:
		ctx.optimizedOut = true
		return "<optimized out>"
	}
}

func regBytes(reg int) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(reg))
	return b[:]
}

func (d *ValueDecoder) decodePieces(pieces []Piece, td TypeDescriptor, ctx *decodeCtx, depth int) string {
	total := make([]byte, 0)
	for _, p := range pieces {
		if p.InRegister {
			total = append(total, regBytes(p.Register)[:min(p.Size, 8)]...)
			continue
		}
		b, ok := ctx.read(p.Address, p.Size)
		if !ok {
			return "<invalid-address>"
		}
		total = append(total, b...)
	}
	return d.decodeFromBytes(total, td, ctx, depth)
}

func (d *ValueDecoder) decodeAtAddress(addr Addr, td TypeDescriptor, ctx *decodeCtx, depth int) string {
	key := cycleKey{addr: addr, typeHash: typeHashOf(td.Name())}
	if ctx.visited[key] {
		return "…(cycle)"
	}
	ctx.visited[key] = true
	defer delete(ctx.visited, key)

	size := td.Size()
	if size <= 0 {
		size = 8
	}
	b, ok := ctx.read(addr, int(size))
	if !ok {
		return "<invalid-address>"
	}
	return d.decodeFromBytesAt(addr, b, td, ctx, depth)
}

func (d *ValueDecoder) decodeFromBytes(b []byte, td TypeDescriptor, ctx *decodeCtx, depth int) string {
	return d.decodeFromBytesAt(0, b, td, ctx, depth)
}

// decodeFromBytesAt renders a value whose raw storage is already in b;
// addr (if non-zero) is the storage address, used by pointer-like kinds
// to follow one more hop of indirection.
func (d *ValueDecoder) decodeFromBytesAt(addr Addr, b []byte, td TypeDescriptor, ctx *decodeCtx, depth int) string {
	switch td.Kind() {
	case KindBool:
		if len(b) == 0 {
			return "<invalid-address>"
		}
		return strconv.FormatBool(b[0] != 0)

	case KindChar:
		r, _ := utf8.DecodeRune(b)
		return strconv.QuoteRune(r)

	case KindInt:
		return strconv.FormatInt(decodeSignedLE(b), 10)

	case KindUint:
		return strconv.FormatUint(decodeUnsignedLE(b), 10)

	case KindFloat:
		return decodeFloat(b)

	case KindRawPointer, KindFuncPointer:
		ptr := decodeUnsignedLE(b)
		if d.symbolize != nil {
			if name, ok := d.symbolize(Addr(ptr)); ok {
				return fmt.Sprintf("0x%x <%s>", ptr, name)
			}
		}
		return fmt.Sprintf("0x%x", ptr)

	case KindReference, KindBox:
		return d.decodeIndirect(b, td, ctx, depth)

	case KindSlice:
		return d.decodeSequence(b, td, ctx, depth, false)

	case KindVector:
		return d.decodeSequence(b, td, ctx, depth, true)

	case KindStringView, KindOwnedString:
		return d.decodeString(ctx, b)

	case KindPathLike:
		return d.decodeOpaqueBytes(ctx, b)

	case KindOptionResult:
		return d.decodeSum(addr, b, td, ctx, depth)

	case KindRc:
		return d.decodeRc(b, td)

	case KindStruct:
		return d.decodeStruct(addr, td, ctx, depth)

	case KindSumUser:
		return d.decodeSum(addr, b, td, ctx, depth)

	case KindDynPointer:
		return d.decodeDyn(b)

	default:
		return "<unsupported type>"
	}
}

func decodeSignedLE(b []byte) int64 {
	switch len(b) {
	case 1:
		return int64(int8(b[0]))
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	default:
		var buf [8]byte
		copy(buf[:], b)
		return int64(binary.LittleEndian.Uint64(buf[:]))
	}
}

func decodeUnsignedLE(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		var buf [8]byte
		copy(buf[:], b)
		return binary.LittleEndian.Uint64(buf[:])
	}
}

func decodeFloat(b []byte) string {
	switch len(b) {
	case 4:
		return strconv.FormatFloat(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), 'g', -1, 32)
	default:
		var buf [8]byte
		copy(buf[:], b)
		return strconv.FormatFloat(math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), 'g', -1, 64)
	}
}

// decodeIndirect unwraps one layer of a reference/box-like smart
// pointer and recurses into the pointee (spec.md §4.3).
func (d *ValueDecoder) decodeIndirect(b []byte, td TypeDescriptor, ctx *decodeCtx, depth int) string {
	elem := td.Elem()
	if elem == nil {
		return fmt.Sprintf("0x%x", decodeUnsignedLE(b))
	}
	ptr := Addr(decodeUnsignedLE(b))
	if ptr == 0 {
		return "nil"
	}
	return d.decodeAtAddress(ptr, elem, ctx, depth+1)
}

// decodeSequence reads a (ptr,len[,cap]) header and renders up to
// MaxElements items with a tail marker (spec.md §4.3).
func (d *ValueDecoder) decodeSequence(b []byte, td TypeDescriptor, ctx *decodeCtx, depth int, hasCap bool) string {
	if len(b) < 16 {
		return "<invalid-address>"
	}
	ptr := Addr(binary.LittleEndian.Uint64(b[0:8]))
	length := int64(binary.LittleEndian.Uint64(b[8:16]))
	if ptr == 0 || length == 0 {
		return "[]"
	}
	if length < 0 {
		return "<invalid-address>"
	}

	elem := td.Elem()
	if elem == nil {
		return "<missing type info>"
	}
	elemSize := elem.Size()
	if elemSize <= 0 {
		elemSize = 8
	}

	count := length
	capped := false
	if count > int64(ctx.limits.MaxElements) {
		count = int64(ctx.limits.MaxElements)
		capped = true
		ctx.truncated = true
	}

	items := make([]string, 0, count)
	for i := int64(0); i < count; i++ {
		itemAddr := ptr + Addr(i*elemSize)
		items = append(items, d.decodeAtAddress(itemAddr, elem, ctx, depth+1))
	}

	out := "[" + join(items, ", ")
	if capped {
		out += fmt.Sprintf(", … %d more", length-count)
	}
	out += "]"
	return out
}

// decodeString reads the (ptr,len[,cap]) header's backing bytes,
// validates them as UTF-8, and quotes them; invalid UTF-8 falls back to
// hex bytes with the logical length shown (spec.md §4.3), and a read
// failure renders the pointer and logical length only.
func (d *ValueDecoder) decodeString(ctx *decodeCtx, b []byte) string {
	if len(b) < 16 {
		return "<invalid-address>"
	}
	ptr := Addr(binary.LittleEndian.Uint64(b[0:8]))
	length := int64(binary.LittleEndian.Uint64(b[8:16]))
	if ptr == 0 || length == 0 {
		return `""`
	}
	if length < 0 {
		return "<invalid-address>"
	}

	raw, ok := ctx.read(ptr, int(length))
	if !ok {
		return fmt.Sprintf("<string ptr=0x%x len=%d>", ptr, length)
	}
	if !utf8.Valid(raw) {
		return fmt.Sprintf("<invalid-utf8 len=%d bytes=%x>", length, raw)
	}
	out := strconv.Quote(string(raw))
	if int64(len(raw)) < length {
		out += fmt.Sprintf("…(truncated, %d of %d bytes)", len(raw), length)
	}
	return out
}

// decodeOpaqueBytes renders a path-like/OS-string container as plain hex
// bytes, since its encoding is not assumed to be UTF-8. The logical
// length is shown only when the read is truncated or fails; a complete
// read renders the hex bytes alone.
func (d *ValueDecoder) decodeOpaqueBytes(ctx *decodeCtx, b []byte) string {
	if len(b) < 16 {
		return "<invalid-address>"
	}
	ptr := Addr(binary.LittleEndian.Uint64(b[0:8]))
	length := int64(binary.LittleEndian.Uint64(b[8:16]))
	if ptr == 0 || length == 0 {
		return `""`
	}
	if length < 0 {
		return "<invalid-address>"
	}

	raw, ok := ctx.read(ptr, int(length))
	if !ok {
		return fmt.Sprintf("<path len=%d>", length)
	}
	out := fmt.Sprintf("%x", raw)
	if int64(len(raw)) < length {
		out += fmt.Sprintf("…(truncated, %d of %d bytes)", len(raw), length)
	}
	return out
}

// decodeSum resolves the active variant via the discriminant and
// recurses into its payload (spec.md §4.3, covers both the known
// optional/result shape and user-defined sum types).
func (d *ValueDecoder) decodeSum(addr Addr, b []byte, td TypeDescriptor, ctx *decodeCtx, depth int) string {
	discr, ok := td.Discriminant()
	if !ok {
		return "<missing type info>"
	}
	if int(discr.Offset+discr.Size) > len(b) {
		return "<invalid-address>"
	}

	raw := b[discr.Offset : discr.Offset+discr.Size]
	var val int64
	if discr.Signed {
		val = decodeSignedLE(raw)
	} else {
		val = int64(decodeUnsignedLE(raw))
	}

	variantIdx, ok := discr.VariantMap[val]
	if !ok || variantIdx < 0 {
		return fmt.Sprintf("<variant %d>", val)
	}

	fields := td.VariantFields(variantIdx)
	if len(fields) == 0 {
		return fmt.Sprintf("variant(%d)", val)
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		fd, ok := asTypeDescriptor(f.Type)
		if !ok {
			parts = append(parts, f.NormalizedName+": <missing type info>")
			continue
		}
		fv := d.decodeAtAddress(addr+Addr(f.Offset), fd, ctx, depth+1)
		parts = append(parts, f.NormalizedName+": "+fv)
	}
	return fmt.Sprintf("variant(%d){%s}", variantIdx, join(parts, ", "))
}

// decodeRc renders a reference-counted pointer's target address only;
// the strong/weak counts are not read or rendered.
func (d *ValueDecoder) decodeRc(b []byte, td TypeDescriptor) string {
	if len(b) < 8 {
		return "<invalid-address>"
	}
	ptr := decodeUnsignedLE(b[:8])
	return fmt.Sprintf("rc(0x%x)", ptr)
}

// decodeStruct recurses into a product type's fields (spec.md §4.3).
func (d *ValueDecoder) decodeStruct(addr Addr, td TypeDescriptor, ctx *decodeCtx, depth int) string {
	fields := td.Fields()
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		fd, ok := asTypeDescriptor(f.Type)
		if !ok {
			parts = append(parts, f.NormalizedName+": <missing type info>")
			continue
		}
		val := d.decodeAtAddress(addr+Addr(f.Offset), fd, ctx, depth+1)
		parts = append(parts, f.NormalizedName+": "+val)
	}
	return "{" + join(parts, ", ") + "}"
}

// decodeDyn renders a dynamic-dispatch (data, vtable) pair: the data
// address, and the vtable's symbolic type name if recoverable (spec.md
// §4.3). Vtable symbolization is best-effort and delegated to the
// decoder's attached symbolizer; without one, or if it can't resolve
// the vtable address, we fall back to the raw pointer pair.
func (d *ValueDecoder) decodeDyn(b []byte) string {
	if len(b) < 16 {
		return "<invalid-address>"
	}
	data := decodeUnsignedLE(b[0:8])
	vtable := decodeUnsignedLE(b[8:16])
	if d.symbolize != nil {
		if name, ok := d.symbolize(Addr(vtable)); ok {
			return fmt.Sprintf("dyn(data=0x%x, type=%s)", data, name)
		}
	}
	return fmt.Sprintf("dyn(data=0x%x, vtable=0x%x)", data, vtable)
}

// typeNameOf returns typ's declared name, or "" if typ doesn't carry a
// TypeDescriptor (used to key a DecodePolicy lookup).
func typeNameOf(t TypeRef) string {
	if td, ok := asTypeDescriptor(t); ok {
		return td.Name()
	}
	return ""
}

func join(items []string, sep string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += sep
		}
		out += s
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
