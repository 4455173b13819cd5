package kokia

import (
	"encoding/binary"

	"github.com/go-delve/delve/pkg/dwarf/op"
)

// LocationExpr is a raw DWARF location expression (a byte-encoded
// recipe of opcodes), as produced by the Debug-Info Oracle.
type LocationExpr []byte

// LocationKind discriminates the four outcomes the Location Evaluator
// can produce (spec.md §4.2).
type LocationKind int

const (
	LocationEmpty LocationKind = iota
	LocationRegister
	LocationAddress
	LocationPieces
)

// Piece is one storage location composing a composite variable.
type Piece struct {
	Register int  // valid iff InRegister
	Address  Addr // valid iff !InRegister
	Size     int
	InRegister bool
}

// Location is the Location Evaluator's result: exactly one of Register,
// Address+Size, Pieces, or Empty (spec.md §4.2).
type Location struct {
	Kind     LocationKind
	Register int
	Address  Addr
	Size     int
	Pieces   []Piece
}

func emptyLocation() Location { return Location{Kind: LocationEmpty} }

// MemoryReader is the subset of ProcessBackend the evaluator needs; it
// is passed explicitly rather than a whole ProcessBackend so unit tests
// can supply a tiny fake.
type MemoryReader func(addr Addr, length int) ([]byte, error)

// LocationEvaluator is the Location Evaluator (C2): it interprets the
// DWARF location-expression machine (spec.md §4.2). Only the opcode
// subset relevant to generator-field and frame-local recovery is
// implemented; anything else surfaces ErrUnsupportedOpcode without
// aborting the caller's broader update (spec.md §7, "UnsupportedOpcode
// (reported, not fatal)").
type LocationEvaluator struct{}

func newLocationEvaluator() *LocationEvaluator { return &LocationEvaluator{} }

// Evaluate runs expr against the given PC, registers, and memory
// reader. pc is required because location lists vary by instruction
// range, even though this evaluator is only ever handed the single
// already-selected expression for that range (list selection is the
// Debug-Info Oracle's job).
func (le *LocationEvaluator) Evaluate(expr LocationExpr, pc Addr, regs Registers, mem MemoryReader) (Location, error) {
	if len(expr) == 0 {
		return emptyLocation(), nil
	}

	var stack []int64
	var pieces []Piece
	i := 0

	push := func(v int64) { stack = append(stack, v) }
	popv := func() int64 {
		n := len(stack)
		if n == 0 {
			return 0
		}
		v := stack[n-1]
		stack = stack[:n-1]
		return v
	}

	for i < len(expr) {
		opcode := op.Opcode(expr[i])
		i++

		switch opcode {
		case op.DW_OP_addr:
			if i+8 > len(expr) {
				return Location{}, ErrUnsupportedOpcode
			}
			push(int64(binary.LittleEndian.Uint64(expr[i : i+8])))
			i += 8

		case op.DW_OP_fbreg:
			v, n := decodeSLEB128(expr[i:])
			i += n
			push(int64(regs.FrameBase) + v)

		case op.DW_OP_call_frame_cfa:
			push(int64(regs.FrameBase))

		case op.DW_OP_plus_uconst:
			v, n := decodeULEB128(expr[i:])
			i += n
			push(popv() + int64(v))

		case op.DW_OP_consts:
			v, n := decodeSLEB128(expr[i:])
			i += n
			push(v)

		case op.DW_OP_deref:
			addr := Addr(popv())
			buf, err := mem(addr, 8)
			if err != nil {
				return Location{}, ErrUnreadableMemory
			}
			push(int64(binary.LittleEndian.Uint64(buf)))

		case op.DW_OP_regx:
			regNum, n := decodeULEB128(expr[i:])
			i += n
			return Location{Kind: LocationRegister, Register: int(regNum)}, nil

		case op.DW_OP_piece:
			size, n := decodeULEB128(expr[i:])
			i += n
			if len(stack) > 0 {
				addr := Addr(popv())
				pieces = append(pieces, Piece{Address: addr, Size: int(size)})
			} else {
				pieces = append(pieces, Piece{InRegister: true, Size: int(size)})
			}

		default:
			if opcode >= op.DW_OP_breg0 && opcode <= op.DW_OP_breg0+31 {
				regNum := int(opcode - op.DW_OP_breg0)
				v, n := decodeSLEB128(expr[i:])
				i += n
				base, ok := regs.Values[regNum]
				if !ok {
					return Location{}, ErrUnsupportedOpcode
				}
				push(int64(base) + v)
				continue
			}
			if opcode >= op.DW_OP_reg0 && opcode <= op.DW_OP_reg0+31 {
				return Location{Kind: LocationRegister, Register: int(opcode - op.DW_OP_reg0)}, nil
			}
			return Location{}, ErrUnsupportedOpcode
		}
	}

	if len(pieces) > 0 {
		return Location{Kind: LocationPieces, Pieces: pieces}, nil
	}

	if len(stack) == 0 {
		return emptyLocation(), nil
	}

	return Location{Kind: LocationAddress, Address: Addr(popv()), Size: 8}, nil
}

func decodeULEB128(b []byte) (uint64, int) {
	var result uint64
	var shift uint
	var i int
	for i = 0; i < len(b); i++ {
		byt := b[i]
		result |= uint64(byt&0x7f) << shift
		if byt&0x80 == 0 {
			i++
			break
		}
		shift += 7
	}
	return result, i
}

func decodeSLEB128(b []byte) (int64, int) {
	var result int64
	var shift uint
	var i int
	var byt byte
	for i = 0; i < len(b); i++ {
		byt = b[i]
		result |= int64(byt&0x7f) << shift
		shift += 7
		if byt&0x80 == 0 {
			i++
			break
		}
	}
	if shift < 64 && (byt&0x40) != 0 {
		result |= -1 << shift
	}
	return result, i
}
