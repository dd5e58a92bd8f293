package vm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"slotvm/pkg/value"
)

// OpCode defines the instruction tags of the flat byte-encoded stream. Each
// instruction is the 1-byte tag followed by fixed-size little-endian
// operands.
type OpCode uint8

const (
	OpPushConst  OpCode = iota // ConstIdx(u32): push a view of consts[ConstIdx]
	OpPushAccess               // AccIdx(u32): push a view read from accessors[AccIdx]
	OpPushMove                 // AccIdx(u32): push an owned value moved out of accessors[AccIdx]
	OpPushLocal                // StackOff(i32): push a view of the entry StackOff below the top
	OpPop
	OpSwap

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpIDiv
	OpMod
	OpNegate
	OpNumConvert // TargetTag(u8): numeric conversion of the top entry

	OpLogicNot

	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
	OpEq
	OpNeq
	OpCmp3w
	OpCollCmp3w // pops collator, rhs, lhs

	OpFillEmpty

	OpGetField
	OpGetElement

	OpAggSum
	OpAggMin
	OpAggMax
	OpAggFirst
	OpAggLast

	OpExists
	OpIsNull
	OpIsObject
	OpIsArray
	OpIsString
	OpIsNumber
	OpIsDate
	OpIsNaN
	OpTypeMatch // Mask(u32): test the top entry's tag against a bit mask

	OpFunction      // Builtin(u8) Arity(u32)
	OpFunctionSmall // Builtin(u8) Arity(u8)

	OpJump        // Off(i32): relative to the position after the operand
	OpJumpTrue    // Off(i32): pops the condition
	OpJumpNothing // Off(i32): peeks, never pops

	OpFail // pops error code (Int64) and message (string), raises

	lastOpCode
)

// stackDelta records the net operand-stack effect per fixed-arity opcode.
// Function opcodes compute theirs from the encoded arity.
var stackDelta = [lastOpCode]int{
	OpPushConst:  1,
	OpPushAccess: 1,
	OpPushMove:   1,
	OpPushLocal:  1,
	OpPop:        -1,
	OpSwap:       0,

	OpAdd:        -1,
	OpSub:        -1,
	OpMul:        -1,
	OpDiv:        -1,
	OpIDiv:       -1,
	OpMod:        -1,
	OpNegate:     0,
	OpNumConvert: 0,

	OpLogicNot: 0,

	OpLess:      -1,
	OpLessEq:    -1,
	OpGreater:   -1,
	OpGreaterEq: -1,
	OpEq:        -1,
	OpNeq:       -1,
	OpCmp3w:     -1,
	OpCollCmp3w: -2,

	OpFillEmpty: -1,

	OpGetField:   -1,
	OpGetElement: -1,

	OpAggSum:   -1,
	OpAggMin:   -1,
	OpAggMax:   -1,
	OpAggFirst: -1,
	OpAggLast:  -1,

	OpExists:    0,
	OpIsNull:    0,
	OpIsObject:  0,
	OpIsArray:   0,
	OpIsString:  0,
	OpIsNumber:  0,
	OpIsDate:    0,
	OpIsNaN:     0,
	OpTypeMatch: 0,

	OpJump:        0,
	OpJumpTrue:    -1,
	OpJumpNothing: 0,

	OpFail: -1,
}

// operandWidth is the fixed byte size of an opcode's operands.
func operandWidth(op OpCode) int {
	switch op {
	case OpPushConst, OpPushAccess, OpPushMove, OpPushLocal,
		OpTypeMatch, OpJump, OpJumpTrue, OpJumpNothing:
		return 4
	case OpNumConvert:
		return 1
	case OpFunction:
		return 5
	case OpFunctionSmall:
		return 2
	}
	return 0
}

func (op OpCode) String() string {
	switch op {
	case OpPushConst:
		return "pushConstVal"
	case OpPushAccess:
		return "pushAccessVal"
	case OpPushMove:
		return "pushMoveVal"
	case OpPushLocal:
		return "pushLocalVal"
	case OpPop:
		return "pop"
	case OpSwap:
		return "swap"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpIDiv:
		return "idiv"
	case OpMod:
		return "mod"
	case OpNegate:
		return "negate"
	case OpNumConvert:
		return "numConvert"
	case OpLogicNot:
		return "logicNot"
	case OpLess:
		return "less"
	case OpLessEq:
		return "lessEq"
	case OpGreater:
		return "greater"
	case OpGreaterEq:
		return "greaterEq"
	case OpEq:
		return "eq"
	case OpNeq:
		return "neq"
	case OpCmp3w:
		return "cmp3w"
	case OpCollCmp3w:
		return "collCmp3w"
	case OpFillEmpty:
		return "fillEmpty"
	case OpGetField:
		return "getField"
	case OpGetElement:
		return "getElement"
	case OpAggSum:
		return "aggSum"
	case OpAggMin:
		return "aggMin"
	case OpAggMax:
		return "aggMax"
	case OpAggFirst:
		return "aggFirst"
	case OpAggLast:
		return "aggLast"
	case OpExists:
		return "exists"
	case OpIsNull:
		return "isNull"
	case OpIsObject:
		return "isObject"
	case OpIsArray:
		return "isArray"
	case OpIsString:
		return "isString"
	case OpIsNumber:
		return "isNumber"
	case OpIsDate:
		return "isDate"
	case OpIsNaN:
		return "isNaN"
	case OpTypeMatch:
		return "typeMatch"
	case OpFunction:
		return "function"
	case OpFunctionSmall:
		return "functionSmall"
	case OpJump:
		return "jmp"
	case OpJumpTrue:
		return "jmpTrue"
	case OpJumpNothing:
		return "jmpNothing"
	case OpFail:
		return "fail"
	default:
		return "unknown"
	}
}

// TypeMask builds the bit mask tested by the typeMatch opcode.
func TypeMask(tags ...value.TypeTag) uint32 {
	var mask uint32
	for _, t := range tags {
		mask |= 1 << uint(t)
	}
	return mask
}

// FrameID names a lexical frame whose local-variable offsets may still need
// fixing up when fragments are concatenated.
type FrameID int

type fixUp struct {
	frameID FrameID
	offset  int // byte offset of the i32 stack-offset operand
}

// CodeFragment is an append-only instruction buffer plus the side tables the
// instructions index into. Once built it is immutable and may be executed
// concurrently by independent interpreters.
type CodeFragment struct {
	instrs    []byte
	consts    []value.Value
	accessors []SlotAccessor
	fixUps    []fixUp
	stackSize int
}

func NewCodeFragment() *CodeFragment {
	return &CodeFragment{}
}

// StackSize is the compile-time net stack effect of the fragment.
func (c *CodeFragment) StackSize() int { return c.stackSize }

func (c *CodeFragment) Instrs() []byte { return c.instrs }

func (c *CodeFragment) adjustStackSimple(op OpCode) {
	c.stackSize += stackDelta[op]
}

func (c *CodeFragment) appendSimple(op OpCode) {
	c.adjustStackSimple(op)
	c.instrs = append(c.instrs, byte(op))
}

func (c *CodeFragment) appendU32(v uint32) {
	c.instrs = binary.LittleEndian.AppendUint32(c.instrs, v)
}

// fixupLocals shifts every pending local-variable operand by delta.
func (c *CodeFragment) fixupLocals(delta int) {
	for _, fx := range c.fixUps {
		off := int32(binary.LittleEndian.Uint32(c.instrs[fx.offset:]))
		binary.LittleEndian.PutUint32(c.instrs[fx.offset:], uint32(off+int32(delta)))
	}
}

// RemoveFixup drops fixups for a frame whose locals went out of scope.
func (c *CodeFragment) RemoveFixup(frameID FrameID) {
	kept := c.fixUps[:0]
	for _, fx := range c.fixUps {
		if fx.frameID != frameID {
			kept = append(kept, fx)
		}
	}
	c.fixUps = kept
}

// copyCodeAndFixup relocates from's instructions onto the receiver: const and
// accessor indexes are rebased onto the merged side tables and fixup records
// are shifted to their new byte offsets. The caller must have applied the
// stack-size fixup to from first.
func (c *CodeFragment) copyCodeAndFixup(from *CodeFragment) {
	base := len(c.instrs)
	constBase := uint32(len(c.consts))
	accBase := uint32(len(c.accessors))

	code := append([]byte(nil), from.instrs...)
	for pos := 0; pos < len(code); {
		op := OpCode(code[pos])
		switch op {
		case OpPushConst:
			idx := binary.LittleEndian.Uint32(code[pos+1:])
			binary.LittleEndian.PutUint32(code[pos+1:], idx+constBase)
		case OpPushAccess, OpPushMove:
			idx := binary.LittleEndian.Uint32(code[pos+1:])
			binary.LittleEndian.PutUint32(code[pos+1:], idx+accBase)
		}
		pos += 1 + operandWidth(op)
	}

	for _, fx := range from.fixUps {
		c.fixUps = append(c.fixUps, fixUp{frameID: fx.frameID, offset: fx.offset + base})
	}
	c.instrs = append(c.instrs, code...)
	c.consts = append(c.consts, from.consts...)
	c.accessors = append(c.accessors, from.accessors...)
}

// Append concatenates code after the receiver, shifting code's local-variable
// offsets by the receiver's current stack height.
func (c *CodeFragment) Append(code *CodeFragment) {
	code.fixupLocals(c.stackSize)
	c.copyCodeAndFixup(code)
	c.stackSize += code.stackSize
}

// AppendBranches concatenates two alternative arms of which exactly one runs
// (the compiler jumps around the other). Both must have the same net stack
// effect, which is counted once.
func (c *CodeFragment) AppendBranches(lhs, rhs *CodeFragment) {
	if lhs.stackSize != rhs.stackSize {
		panic("fragments must have the same stack effect")
	}
	lhs.fixupLocals(c.stackSize)
	rhs.fixupLocals(c.stackSize)
	c.copyCodeAndFixup(lhs)
	c.copyCodeAndFixup(rhs)
	c.stackSize += lhs.stackSize
}

// AppendConstVal pushes a constant. The fragment owns the constant; the
// instruction pushes an unowned view of it at run time.
func (c *CodeFragment) AppendConstVal(v value.Value) {
	c.adjustStackSimple(OpPushConst)
	c.instrs = append(c.instrs, byte(OpPushConst))
	c.appendU32(uint32(len(c.consts)))
	c.consts = append(c.consts, v)
}

func (c *CodeFragment) AppendAccessVal(a SlotAccessor) {
	c.adjustStackSimple(OpPushAccess)
	c.instrs = append(c.instrs, byte(OpPushAccess))
	c.appendU32(uint32(len(c.accessors)))
	c.accessors = append(c.accessors, a)
}

func (c *CodeFragment) AppendMoveVal(a SlotAccessor) {
	c.adjustStackSimple(OpPushMove)
	c.instrs = append(c.instrs, byte(OpPushMove))
	c.appendU32(uint32(len(c.accessors)))
	c.accessors = append(c.accessors, a)
}

func (c *CodeFragment) AppendLocalVal(frameID FrameID, stackOffset int) {
	c.adjustStackSimple(OpPushLocal)
	c.instrs = append(c.instrs, byte(OpPushLocal))
	c.fixUps = append(c.fixUps, fixUp{frameID: frameID, offset: len(c.instrs)})
	c.appendU32(uint32(int32(stackOffset)))
}

func (c *CodeFragment) AppendPop()  { c.appendSimple(OpPop) }
func (c *CodeFragment) AppendSwap() { c.appendSimple(OpSwap) }

func (c *CodeFragment) AppendAdd()    { c.appendSimple(OpAdd) }
func (c *CodeFragment) AppendSub()    { c.appendSimple(OpSub) }
func (c *CodeFragment) AppendMul()    { c.appendSimple(OpMul) }
func (c *CodeFragment) AppendDiv()    { c.appendSimple(OpDiv) }
func (c *CodeFragment) AppendIDiv()   { c.appendSimple(OpIDiv) }
func (c *CodeFragment) AppendMod()    { c.appendSimple(OpMod) }
func (c *CodeFragment) AppendNegate() { c.appendSimple(OpNegate) }
func (c *CodeFragment) AppendNot()    { c.appendSimple(OpLogicNot) }

func (c *CodeFragment) AppendNumericConvert(target value.TypeTag) {
	c.adjustStackSimple(OpNumConvert)
	c.instrs = append(c.instrs, byte(OpNumConvert), byte(target))
}

func (c *CodeFragment) AppendLess()      { c.appendSimple(OpLess) }
func (c *CodeFragment) AppendLessEq()    { c.appendSimple(OpLessEq) }
func (c *CodeFragment) AppendGreater()   { c.appendSimple(OpGreater) }
func (c *CodeFragment) AppendGreaterEq() { c.appendSimple(OpGreaterEq) }
func (c *CodeFragment) AppendEq()        { c.appendSimple(OpEq) }
func (c *CodeFragment) AppendNeq()       { c.appendSimple(OpNeq) }
func (c *CodeFragment) AppendCmp3w()     { c.appendSimple(OpCmp3w) }
func (c *CodeFragment) AppendCollCmp3w() { c.appendSimple(OpCollCmp3w) }

func (c *CodeFragment) AppendFillEmpty()  { c.appendSimple(OpFillEmpty) }
func (c *CodeFragment) AppendGetField()   { c.appendSimple(OpGetField) }
func (c *CodeFragment) AppendGetElement() { c.appendSimple(OpGetElement) }

func (c *CodeFragment) AppendSum()   { c.appendSimple(OpAggSum) }
func (c *CodeFragment) AppendMin()   { c.appendSimple(OpAggMin) }
func (c *CodeFragment) AppendMax()   { c.appendSimple(OpAggMax) }
func (c *CodeFragment) AppendFirst() { c.appendSimple(OpAggFirst) }
func (c *CodeFragment) AppendLast()  { c.appendSimple(OpAggLast) }

func (c *CodeFragment) AppendExists()   { c.appendSimple(OpExists) }
func (c *CodeFragment) AppendIsNull()   { c.appendSimple(OpIsNull) }
func (c *CodeFragment) AppendIsObject() { c.appendSimple(OpIsObject) }
func (c *CodeFragment) AppendIsArray()  { c.appendSimple(OpIsArray) }
func (c *CodeFragment) AppendIsString() { c.appendSimple(OpIsString) }
func (c *CodeFragment) AppendIsNumber() { c.appendSimple(OpIsNumber) }
func (c *CodeFragment) AppendIsDate()   { c.appendSimple(OpIsDate) }
func (c *CodeFragment) AppendIsNaN()    { c.appendSimple(OpIsNaN) }

func (c *CodeFragment) AppendTypeMatch(mask uint32) {
	c.adjustStackSimple(OpTypeMatch)
	c.instrs = append(c.instrs, byte(OpTypeMatch))
	c.appendU32(mask)
}

// AppendFunction emits a builtin call. Arities that fit a byte use the small
// encoding. The stack effect is 1 - arity.
func (c *CodeFragment) AppendFunction(f Builtin, arity int) {
	if arity < 0 || arity > 1<<30 {
		panic("bad builtin arity")
	}
	c.stackSize += 1 - arity
	if arity <= 0xFF {
		c.instrs = append(c.instrs, byte(OpFunctionSmall), byte(f), byte(arity))
		return
	}
	c.instrs = append(c.instrs, byte(OpFunction), byte(f))
	c.appendU32(uint32(arity))
}

func (c *CodeFragment) appendJumpOp(op OpCode, jumpOffset int) {
	c.adjustStackSimple(op)
	c.instrs = append(c.instrs, byte(op))
	c.appendU32(uint32(int32(jumpOffset)))
}

// AppendJump emits an unconditional jump of jumpOffset bytes, measured from
// the position after the operand.
func (c *CodeFragment) AppendJump(jumpOffset int) { c.appendJumpOp(OpJump, jumpOffset) }

// AppendJumpTrue pops the condition and jumps when it is Boolean true.
func (c *CodeFragment) AppendJumpTrue(jumpOffset int) { c.appendJumpOp(OpJumpTrue, jumpOffset) }

// AppendJumpNothing peeks at the top entry and jumps when it is Nothing. The
// entry stays on the stack either way.
func (c *CodeFragment) AppendJumpNothing(jumpOffset int) { c.appendJumpOp(OpJumpNothing, jumpOffset) }

func (c *CodeFragment) AppendFail() { c.appendSimple(OpFail) }

// String disassembles the fragment.
func (c *CodeFragment) String() string {
	var sb strings.Builder
	for pos := 0; pos < len(c.instrs); {
		op := OpCode(c.instrs[pos])
		fmt.Fprintf(&sb, "%04d %-14s", pos, op)
		operand := c.instrs[pos+1:]
		switch op {
		case OpPushConst:
			idx := binary.LittleEndian.Uint32(operand)
			fmt.Fprintf(&sb, " %d (%s)", idx, c.consts[idx])
		case OpPushAccess, OpPushMove:
			fmt.Fprintf(&sb, " slot %d", binary.LittleEndian.Uint32(operand))
		case OpPushLocal:
			fmt.Fprintf(&sb, " off %d", int32(binary.LittleEndian.Uint32(operand)))
		case OpNumConvert:
			fmt.Fprintf(&sb, " %s", value.TypeTag(operand[0]))
		case OpTypeMatch:
			fmt.Fprintf(&sb, " mask %#x", binary.LittleEndian.Uint32(operand))
		case OpFunction:
			fmt.Fprintf(&sb, " %s/%d", Builtin(operand[0]), binary.LittleEndian.Uint32(operand[1:]))
		case OpFunctionSmall:
			fmt.Fprintf(&sb, " %s/%d", Builtin(operand[0]), operand[1])
		case OpJump, OpJumpTrue, OpJumpNothing:
			fmt.Fprintf(&sb, " %+d", int32(binary.LittleEndian.Uint32(operand)))
		}
		sb.WriteByte('\n')
		pos += 1 + operandWidth(op)
	}
	return sb.String()
}
