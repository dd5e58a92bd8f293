package vm

import (
	"encoding/binary"
	"fmt"

	"slotvm/pkg/value"
)

type entry struct {
	owned bool
	val   value.Value
}

// VM executes code fragments over an operand stack of tagged values. A VM is
// cheap and reusable but not safe for concurrent use; fragments are immutable
// and may be shared between VMs.
type VM struct {
	stack []entry

	// fieldLookupHook runs before every getField lookup; a non-nil error
	// aborts the run. Test seam for injecting lookup failures.
	fieldLookupHook func(field string) error
}

type Option func(*VM)

// WithFieldLookupHook installs a callback consulted before each getField.
func WithFieldLookupHook(hook func(field string) error) Option {
	return func(m *VM) { m.fieldLookupHook = hook }
}

func NewVM(opts ...Option) *VM {
	m := &VM{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *VM) push(owned bool, v value.Value) {
	m.stack = append(m.stack, entry{owned: owned, val: v})
}

func (m *VM) top() *entry { return &m.stack[len(m.stack)-1] }

func (m *VM) pop() entry {
	e := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return e
}

func (e entry) release() {
	if e.owned {
		e.val.Release()
	}
}

// arg reads the i-th argument of a builtin whose argument window starts at
// base. Arguments are read in place; the interpreter pops them afterwards.
func (m *VM) arg(base, i int) value.Value { return m.stack[base+i].val }

// stealArg takes ownership of an argument, leaving an unowned Nothing in its
// slot so the post-call pop does not release it. A builtin must never mutate
// storage it does not own, so an unowned argument comes back as a deep copy.
func (m *VM) stealArg(base, i int) value.Value {
	e := m.stack[base+i]
	m.stack[base+i] = entry{owned: false, val: value.Nothing}
	if e.owned {
		return e.val
	}
	return e.val.Copy()
}

// Run executes the fragment and returns the single value it leaves behind,
// with a flag telling the caller whether it owns the result. On error every
// owned entry still on the stack is released before returning.
func (m *VM) Run(code *CodeFragment) (result value.Value, owned bool, err error) {
	m.stack = m.stack[:0]

	defer func() {
		if err != nil {
			for _, e := range m.stack {
				e.release()
			}
			m.stack = m.stack[:0]
		}
	}()

	if err = m.runInstrs(code); err != nil {
		return value.Nothing, false, err
	}

	if len(m.stack) != 1 {
		panic(fmt.Sprintf("stack must hold exactly one value after execution, got %d", len(m.stack)))
	}
	e := m.pop()
	return e.val, e.owned, nil
}

// RunPredicate executes the fragment as a filter: any result other than
// Boolean true, including Nothing, is false.
func (m *VM) RunPredicate(code *CodeFragment) (bool, error) {
	res, owned, err := m.Run(code)
	if err != nil {
		return false, err
	}
	pass := res.Tag() == value.TypeBoolean && res.AsBool()
	if owned {
		res.Release()
	}
	return pass, nil
}

func (m *VM) runInstrs(code *CodeFragment) error {
	instrs := code.instrs

	for pc := 0; pc < len(instrs); {
		op := OpCode(instrs[pc])
		pc++

		switch op {
		case OpPushConst:
			idx := binary.LittleEndian.Uint32(instrs[pc:])
			pc += 4
			m.push(false, code.consts[idx])

		case OpPushAccess:
			idx := binary.LittleEndian.Uint32(instrs[pc:])
			pc += 4
			m.push(false, code.accessors[idx].GetViewOfValue())

		case OpPushMove:
			idx := binary.LittleEndian.Uint32(instrs[pc:])
			pc += 4
			v, own := code.accessors[idx].CopyOrMoveValue()
			m.push(own, v)

		case OpPushLocal:
			off := int32(binary.LittleEndian.Uint32(instrs[pc:]))
			pc += 4
			m.push(false, m.stack[len(m.stack)-1-int(off)].val)

		case OpPop:
			m.pop().release()

		case OpSwap:
			n := len(m.stack)
			m.stack[n-1], m.stack[n-2] = m.stack[n-2], m.stack[n-1]

		case OpAdd, OpSub, OpMul, OpDiv, OpIDiv, OpMod,
			OpAggSum, OpAggMin, OpAggMax, OpAggFirst, OpAggLast:
			rhs := *m.top()
			lhs := m.stack[len(m.stack)-2]
			res, own, err := m.binaryOp(op, lhs.val, rhs.val)
			if err != nil {
				return err
			}
			m.pop()
			m.stack[len(m.stack)-1] = entry{owned: own, val: res}
			lhs.release()
			rhs.release()

		case OpNegate:
			e := *m.top()
			res, own, err := genericNegate(e.val)
			if err != nil {
				return err
			}
			m.stack[len(m.stack)-1] = entry{owned: own, val: res}
			e.release()

		case OpNumConvert:
			target := value.TypeTag(instrs[pc])
			pc++
			e := *m.top()
			res, own := genericNumConvert(e.val, target)
			m.stack[len(m.stack)-1] = entry{owned: own, val: res}
			e.release()

		case OpLogicNot:
			e := *m.top()
			res, own, _ := genericNot(e.val)
			m.stack[len(m.stack)-1] = entry{owned: own, val: res}
			e.release()

		case OpLess, OpLessEq, OpGreater, OpGreaterEq, OpEq, OpNeq, OpCmp3w:
			rhs := m.pop()
			lhs := *m.top()
			var res value.Value
			if op == OpCmp3w {
				res = compare3way(lhs.val, rhs.val, nil)
			} else {
				res = genericCompare(compareOpFor(op), lhs.val, rhs.val, nil)
			}
			m.stack[len(m.stack)-1] = entry{owned: false, val: res}
			lhs.release()
			rhs.release()

		case OpCollCmp3w:
			coll := m.pop()
			rhs := m.pop()
			lhs := *m.top()
			res := value.Nothing
			if coll.val.Tag() == value.TypeCollator {
				res = compare3way(lhs.val, rhs.val, coll.val.AsCollator())
			}
			m.stack[len(m.stack)-1] = entry{owned: false, val: res}
			lhs.release()
			rhs.release()
			coll.release()

		case OpFillEmpty:
			rhs := m.pop()
			lhs := *m.top()
			if lhs.val.IsNothing() {
				m.stack[len(m.stack)-1] = rhs
				lhs.release()
			} else {
				rhs.release()
			}

		case OpGetField:
			rhs := m.pop()
			lhs := *m.top()
			res, own, err := m.getField(lhs.val, rhs.val)
			if err != nil {
				return err
			}
			m.stack[len(m.stack)-1] = entry{owned: own, val: res}
			lhs.release()
			rhs.release()

		case OpGetElement:
			rhs := m.pop()
			lhs := *m.top()
			res, own := getElement(lhs.val, rhs.val)
			m.stack[len(m.stack)-1] = entry{owned: own, val: res}
			lhs.release()
			rhs.release()

		case OpExists:
			e := *m.top()
			m.stack[len(m.stack)-1] = entry{owned: false, val: value.NewBool(!e.val.IsNothing())}
			e.release()

		case OpIsNull, OpIsObject, OpIsArray, OpIsString, OpIsNumber, OpIsDate, OpIsNaN:
			e := *m.top()
			if !e.val.IsNothing() {
				m.stack[len(m.stack)-1] = entry{owned: false, val: value.NewBool(typePredicate(op, e.val))}
				e.release()
			}

		case OpTypeMatch:
			mask := binary.LittleEndian.Uint32(instrs[pc:])
			pc += 4
			e := *m.top()
			if !e.val.IsNothing() {
				match := mask&(1<<uint(e.val.Tag())) != 0
				m.stack[len(m.stack)-1] = entry{owned: false, val: value.NewBool(match)}
				e.release()
			}

		case OpFunction, OpFunctionSmall:
			f := Builtin(instrs[pc])
			var arity int
			if op == OpFunction {
				arity = int(binary.LittleEndian.Uint32(instrs[pc+1:]))
				pc += 5
			} else {
				arity = int(instrs[pc+1])
				pc += 2
			}
			base := len(m.stack) - arity
			res, own, err := m.dispatchBuiltin(f, base, arity)
			if err != nil {
				return err
			}
			for i := 0; i < arity; i++ {
				m.pop().release()
			}
			m.push(own, res)

		case OpJump:
			off := int32(binary.LittleEndian.Uint32(instrs[pc:]))
			pc += 4 + int(off)

		case OpJumpTrue:
			off := int32(binary.LittleEndian.Uint32(instrs[pc:]))
			pc += 4
			cond := m.pop()
			if cond.val.Tag() == value.TypeBoolean && cond.val.AsBool() {
				pc += int(off)
			}
			cond.release()

		case OpJumpNothing:
			off := int32(binary.LittleEndian.Uint32(instrs[pc:]))
			pc += 4
			if m.top().val.IsNothing() {
				pc += int(off)
			}

		case OpFail:
			msg := m.top().val
			code := m.stack[len(m.stack)-2].val
			if code.Tag() != value.TypeNumberInt64 || !msg.IsString() {
				panic("fail requires an Int64 code and a string message")
			}
			return newError(code.AsInt64(), msg.AsString())

		default:
			panic(fmt.Sprintf("unknown opcode %d", op))
		}
	}
	return nil
}

func (m *VM) binaryOp(op OpCode, lhs, rhs value.Value) (value.Value, bool, error) {
	switch op {
	case OpAdd:
		return genericAdd(lhs, rhs)
	case OpSub:
		return genericSub(lhs, rhs)
	case OpMul:
		return genericMul(lhs, rhs)
	case OpDiv:
		return genericDiv(lhs, rhs)
	case OpIDiv:
		return genericIDiv(lhs, rhs)
	case OpMod:
		return genericMod(lhs, rhs)
	case OpAggSum:
		return aggSum(lhs, rhs)
	case OpAggMin:
		return aggMin(lhs, rhs, nil)
	case OpAggMax:
		return aggMax(lhs, rhs, nil)
	case OpAggFirst:
		return aggFirst(lhs, rhs)
	default:
		return aggLast(lhs, rhs)
	}
}

func compareOpFor(op OpCode) compareOp {
	switch op {
	case OpLess:
		return cmpLess
	case OpLessEq:
		return cmpLessEq
	case OpGreater:
		return cmpGreater
	case OpGreaterEq:
		return cmpGreaterEq
	case OpEq:
		return cmpEq
	default:
		return cmpNeq
	}
}

func typePredicate(op OpCode, v value.Value) bool {
	switch op {
	case OpIsNull:
		return v.Tag() == value.TypeNull
	case OpIsObject:
		return v.IsObject()
	case OpIsArray:
		return v.IsArray()
	case OpIsString:
		return v.IsString()
	case OpIsNumber:
		return v.IsNumber()
	case OpIsDate:
		return v.Tag() == value.TypeDate
	default:
		return v.IsNaN()
	}
}

// getField looks a string field up in an object-class value. The result is an
// unowned view except for payloads that cannot be viewed in place.
func (m *VM) getField(obj, field value.Value) (value.Value, bool, error) {
	if !field.IsString() {
		return value.Nothing, false, nil
	}
	name := field.AsString()

	if m.fieldLookupHook != nil {
		if err := m.fieldLookupHook(name); err != nil {
			if vmErr, ok := err.(*Error); ok {
				return value.Nothing, false, vmErr
			}
			return value.Nothing, false, newError(CodeFieldPoisoned, err.Error())
		}
	}

	switch obj.Tag() {
	case value.TypeObject:
		return obj.AsObject().Get(name), false, nil
	case value.TypeBSONObject:
		res, owned := value.BSONObjectGetField(obj.AsRawBytes(), name)
		return res, owned, nil
	}
	return value.Nothing, false, nil
}

// getElement indexes an array-class value with an Int32. Negative indexes
// count from the back.
func getElement(arr, idx value.Value) (value.Value, bool) {
	if idx.Tag() != value.TypeNumberInt32 {
		return value.Nothing, false
	}
	i := int(idx.AsInt32())

	switch arr.Tag() {
	case value.TypeArray:
		a := arr.AsArray()
		if i < 0 {
			i += a.Len()
		}
		if i < 0 || i >= a.Len() {
			return value.Nothing, false
		}
		return a.At(i), false
	case value.TypeArraySet:
		s := arr.AsArraySet()
		if i < 0 {
			i += s.Len()
		}
		if i < 0 || i >= s.Len() {
			return value.Nothing, false
		}
		return s.At(i), false
	case value.TypeBSONArray:
		raw := arr.AsRawBytes()
		if i < 0 {
			i += value.BSONArrayLen(raw)
		}
		if i < 0 {
			return value.Nothing, false
		}
		return value.BSONArrayGetElement(raw, i)
	}
	return value.Nothing, false
}
