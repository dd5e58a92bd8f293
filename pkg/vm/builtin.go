package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"slotvm/pkg/value"
)

// Builtin names a function callable through the function opcodes. Builtins
// read their arguments in place on the operand stack; the interpreter pops
// them and pushes the result afterwards.
type Builtin uint8

const (
	BuiltinSplit Builtin = iota
	BuiltinRegexCompile
	BuiltinRegexMatch
	BuiltinRegexFind
	BuiltinDropFields
	BuiltinNewObj
	BuiltinKsToString
	BuiltinNewKs
	BuiltinAbs
	BuiltinCeil
	BuiltinFloor
	BuiltinTrunc
	BuiltinExp
	BuiltinLn
	BuiltinLog10
	BuiltinSqrt
	BuiltinSin
	BuiltinCos
	BuiltinTan
	BuiltinAsin
	BuiltinAcos
	BuiltinAtan
	BuiltinAtan2
	BuiltinSinh
	BuiltinCosh
	BuiltinTanh
	BuiltinDegreesToRadians
	BuiltinRadiansToDegrees
	BuiltinAddToArray
	BuiltinAddToSet
	BuiltinCollAddToSet
	BuiltinDoubleDoubleSum
	BuiltinAggDoubleDoubleSum
	BuiltinDoubleDoubleSumFinalize
	BuiltinAggStdDev
	BuiltinStdDevPopFinalize
	BuiltinStdDevSampFinalize
	BuiltinConcat
	BuiltinToUpper
	BuiltinToLower
	BuiltinCoerceToString
	BuiltinIsMember
	BuiltinCollIsMember
)

func (f Builtin) String() string {
	switch f {
	case BuiltinSplit:
		return "split"
	case BuiltinRegexCompile:
		return "regexCompile"
	case BuiltinRegexMatch:
		return "regexMatch"
	case BuiltinRegexFind:
		return "regexFind"
	case BuiltinDropFields:
		return "dropFields"
	case BuiltinNewObj:
		return "newObj"
	case BuiltinKsToString:
		return "ksToString"
	case BuiltinNewKs:
		return "newKs"
	case BuiltinAbs:
		return "abs"
	case BuiltinCeil:
		return "ceil"
	case BuiltinFloor:
		return "floor"
	case BuiltinTrunc:
		return "trunc"
	case BuiltinExp:
		return "exp"
	case BuiltinLn:
		return "ln"
	case BuiltinLog10:
		return "log10"
	case BuiltinSqrt:
		return "sqrt"
	case BuiltinSin:
		return "sin"
	case BuiltinCos:
		return "cos"
	case BuiltinTan:
		return "tan"
	case BuiltinAsin:
		return "asin"
	case BuiltinAcos:
		return "acos"
	case BuiltinAtan:
		return "atan"
	case BuiltinAtan2:
		return "atan2"
	case BuiltinSinh:
		return "sinh"
	case BuiltinCosh:
		return "cosh"
	case BuiltinTanh:
		return "tanh"
	case BuiltinDegreesToRadians:
		return "degreesToRadians"
	case BuiltinRadiansToDegrees:
		return "radiansToDegrees"
	case BuiltinAddToArray:
		return "addToArray"
	case BuiltinAddToSet:
		return "addToSet"
	case BuiltinCollAddToSet:
		return "collAddToSet"
	case BuiltinDoubleDoubleSum:
		return "doubleDoubleSum"
	case BuiltinAggDoubleDoubleSum:
		return "aggDoubleDoubleSum"
	case BuiltinDoubleDoubleSumFinalize:
		return "doubleDoubleSumFinalize"
	case BuiltinAggStdDev:
		return "aggStdDev"
	case BuiltinStdDevPopFinalize:
		return "stdDevPopFinalize"
	case BuiltinStdDevSampFinalize:
		return "stdDevSampFinalize"
	case BuiltinConcat:
		return "concat"
	case BuiltinToUpper:
		return "toUpper"
	case BuiltinToLower:
		return "toLower"
	case BuiltinCoerceToString:
		return "coerceToString"
	case BuiltinIsMember:
		return "isMember"
	case BuiltinCollIsMember:
		return "collIsMember"
	default:
		return "unknown"
	}
}

func (m *VM) dispatchBuiltin(f Builtin, base, arity int) (value.Value, bool, error) {
	switch f {
	case BuiltinSplit:
		return m.builtinSplit(base, arity)
	case BuiltinRegexCompile:
		return m.builtinRegexCompile(base, arity)
	case BuiltinRegexMatch:
		return m.builtinRegexSingleMatch(base, arity, true)
	case BuiltinRegexFind:
		return m.builtinRegexSingleMatch(base, arity, false)
	case BuiltinDropFields:
		return m.builtinDropFields(base, arity)
	case BuiltinNewObj:
		return m.builtinNewObj(base, arity)
	case BuiltinKsToString:
		return m.builtinKsToString(base, arity)
	case BuiltinNewKs:
		return m.builtinNewKs(base, arity)
	case BuiltinAbs:
		return genericAbs(m.arg(base, 0))
	case BuiltinCeil:
		return genericCeil(m.arg(base, 0))
	case BuiltinFloor:
		return genericFloor(m.arg(base, 0))
	case BuiltinTrunc:
		return genericTrunc(m.arg(base, 0))
	case BuiltinExp:
		return genericExp(m.arg(base, 0))
	case BuiltinLn:
		return genericLn(m.arg(base, 0))
	case BuiltinLog10:
		return genericLog10(m.arg(base, 0))
	case BuiltinSqrt:
		return genericSqrt(m.arg(base, 0))
	case BuiltinSin:
		return genericTrig(m.arg(base, 0), math.Sin)
	case BuiltinCos:
		return genericTrig(m.arg(base, 0), math.Cos)
	case BuiltinTan:
		return genericTrig(m.arg(base, 0), math.Tan)
	case BuiltinAsin:
		return genericBoundedTrig(m.arg(base, 0), -1, 1, math.Asin)
	case BuiltinAcos:
		return genericBoundedTrig(m.arg(base, 0), -1, 1, math.Acos)
	case BuiltinAtan:
		return genericTrig(m.arg(base, 0), math.Atan)
	case BuiltinAtan2:
		return genericAtan2(m.arg(base, 0), m.arg(base, 1))
	case BuiltinSinh:
		return genericTrig(m.arg(base, 0), math.Sinh)
	case BuiltinCosh:
		return genericTrig(m.arg(base, 0), math.Cosh)
	case BuiltinTanh:
		return genericTrig(m.arg(base, 0), math.Tanh)
	case BuiltinDegreesToRadians:
		return genericTrig(m.arg(base, 0), degreesToRadians)
	case BuiltinRadiansToDegrees:
		return genericTrig(m.arg(base, 0), radiansToDegrees)
	case BuiltinAddToArray:
		return m.builtinAddToArray(base, arity)
	case BuiltinAddToSet:
		return m.builtinAddToSet(base, arity, nil)
	case BuiltinCollAddToSet:
		return m.builtinCollAddToSet(base, arity)
	case BuiltinDoubleDoubleSum:
		return m.builtinDoubleDoubleSum(base, arity)
	case BuiltinAggDoubleDoubleSum:
		return m.builtinAggDoubleDoubleSum(base, arity)
	case BuiltinDoubleDoubleSumFinalize:
		return m.builtinDoubleDoubleSumFinalize(base, arity)
	case BuiltinAggStdDev:
		return m.builtinAggStdDev(base, arity)
	case BuiltinStdDevPopFinalize:
		return m.builtinStdDevFinalize(base, arity, false)
	case BuiltinStdDevSampFinalize:
		return m.builtinStdDevFinalize(base, arity, true)
	case BuiltinConcat:
		return m.builtinConcat(base, arity)
	case BuiltinToUpper:
		return m.builtinToUpper(base, arity)
	case BuiltinToLower:
		return m.builtinToLower(base, arity)
	case BuiltinCoerceToString:
		return m.builtinCoerceToString(base, arity)
	case BuiltinIsMember:
		return m.builtinIsMember(base, arity, nil)
	case BuiltinCollIsMember:
		return m.builtinCollIsMember(base, arity)
	default:
		panic(fmt.Sprintf("unknown builtin %d", f))
	}
}

// builtinSplit splits the input on every occurrence of the separator. A
// trailing separator yields a trailing empty segment.
func (m *VM) builtinSplit(base, arity int) (value.Value, bool, error) {
	input := m.arg(base, 0)
	separator := m.arg(base, 1)
	if !input.IsString() || !separator.IsString() {
		return value.Nothing, false, nil
	}

	arr := value.NewArray()
	in, sep := input.AsString(), separator.AsString()
	start := 0
	for {
		pos := strings.Index(in[start:], sep)
		if pos < 0 || len(sep) == 0 {
			break
		}
		arr.Push(value.NewString(in[start : start+pos]))
		start += pos + len(sep)
	}
	arr.Push(value.NewString(in[start:]))
	return value.NewArrayValue(arr), true, nil
}

func (m *VM) builtinRegexCompile(base, arity int) (value.Value, bool, error) {
	pattern := m.arg(base, 0)
	options := m.arg(base, 1)

	if pattern.Tag() == value.TypeNull {
		return value.Null, false, nil
	}
	if !pattern.IsString() || !options.IsString() {
		return value.Nothing, false, nil
	}
	pat, opts := pattern.AsString(), options.AsString()
	if strings.IndexByte(pat, 0) >= 0 || strings.IndexByte(opts, 0) >= 0 {
		return value.Nothing, false, nil
	}
	re, err := value.CompileRegex(pat, opts)
	if err != nil {
		return value.Nothing, false, nil
	}
	return value.NewPcreRegexValue(re), true, nil
}

// builtinRegexSingleMatch backs both regexMatch (Boolean) and regexFind
// (first-match object or Null).
func (m *VM) builtinRegexSingleMatch(base, arity int, isMatch bool) (value.Value, bool, error) {
	regex := m.arg(base, 0)
	input := m.arg(base, 1)

	if regex.Tag() != value.TypePcreRegex || !input.IsString() {
		return value.Nothing, false, nil
	}
	re := regex.AsPcreRegex()
	in := input.AsString()

	if isMatch {
		return value.NewBool(re.MatchString(in)), false, nil
	}

	match := re.FindFirst(in)
	if match == nil {
		return value.Null, false, nil
	}
	captures := value.NewArray()
	for _, c := range match.Captures {
		if c.Tag() == value.TypeNull {
			// Containers drop Nothing but keep Null placeholders.
			captures.Push(value.Null)
			continue
		}
		captures.Push(c)
	}
	obj := value.NewObject()
	obj.Set("match", value.NewString(match.Match))
	obj.Set("idx", value.NewInt32(int32(match.Index)))
	obj.Set("captures", value.NewArrayValue(captures))
	return value.NewObjectValue(obj), true, nil
}

// builtinDropFields rebuilds the object without the named fields, preserving
// the order of the survivors.
func (m *VM) builtinDropFields(base, arity int) (value.Value, bool, error) {
	in := m.arg(base, 0)
	if !in.IsObject() {
		return value.Nothing, false, nil
	}

	dropped := make(map[string]struct{}, arity-1)
	for idx := 1; idx < arity; idx++ {
		name := m.arg(base, idx)
		if !name.IsString() {
			return value.Nothing, false, nil
		}
		dropped[name.AsString()] = struct{}{}
	}

	out := value.NewObject()
	names, vals := value.ObjectFields(in)
	for i, name := range names {
		if _, ok := dropped[name]; ok {
			continue
		}
		out.Set(name, vals[i].Copy())
	}
	return value.NewObjectValue(out), true, nil
}

// builtinNewObj builds an object from alternating name, value arguments.
func (m *VM) builtinNewObj(base, arity int) (value.Value, bool, error) {
	if arity%2 != 0 {
		return value.Nothing, false, nil
	}
	obj := value.NewObject()
	for idx := 0; idx < arity; idx += 2 {
		name := m.arg(base, idx)
		if !name.IsString() {
			return value.Nothing, false, nil
		}
		obj.Set(name.AsString(), m.arg(base, idx+1).Copy())
	}
	return value.NewObjectValue(obj), true, nil
}

func (m *VM) builtinKsToString(base, arity int) (value.Value, bool, error) {
	key := m.arg(base, 0)
	if key.Tag() != value.TypeKeyString {
		return value.Nothing, false, nil
	}
	return value.NewString(key.AsKeyString().String()), true, nil
}

// builtinNewKs builds an index key: version, ordering bits, the components,
// and a trailing discriminator. Components must be numbers or strings.
func (m *VM) builtinNewKs(base, arity int) (value.Value, bool, error) {
	// Version, ordering and discriminator are the minimum argument set.
	if arity < 3 {
		return value.Nothing, false, nil
	}
	version := m.arg(base, 0)
	if !version.IsNumber() {
		return value.Nothing, false, nil
	}
	v := value.CastInt64(version)
	if v != 0 && v != 1 {
		return value.Nothing, false, nil
	}

	ordering := m.arg(base, 1)
	if !ordering.IsNumber() {
		return value.Nothing, false, nil
	}

	kb := value.NewKeyStringBuilder(value.KeyStringVersion(v), uint32(value.CastInt32(ordering)))
	for idx := 2; idx < arity-1; idx++ {
		component := m.arg(base, idx)
		switch {
		case component.IsNumber():
			kb.AppendInt64(value.CastInt64(component))
		case component.IsString():
			s := component.AsString()
			if strings.IndexByte(s, 0) >= 0 {
				return value.Nothing, false, nil
			}
			kb.AppendString(s)
		default:
			return value.Nothing, false, newError(CodeBadKeyOperand, "unsupported key string type")
		}
	}

	discrim := m.arg(base, arity-1)
	if !discrim.IsNumber() {
		return value.Nothing, false, nil
	}
	d := value.CastInt64(discrim)
	if d < 0 || d > 2 {
		return value.Nothing, false, nil
	}

	return value.NewKeyStringValue(kb.Release(value.Discriminator(d))), true, nil
}

// builtinAddToArray appends a copy of the field to the accumulated array,
// creating the array on first use. An owned accumulator is stolen from the
// stack rather than copied.
func (m *VM) builtinAddToArray(base, arity int) (value.Value, bool, error) {
	acc := m.arg(base, 0)
	field := m.arg(base, 1)

	var arr *value.Array
	if acc.IsNothing() {
		arr = value.NewArray()
		acc = value.NewArrayValue(arr)
	} else {
		if acc.Tag() != value.TypeArray {
			return value.Nothing, false, nil
		}
		acc = m.stealArg(base, 0)
		arr = acc.AsArray()
	}

	arr.Push(field.Copy())
	return acc, true, nil
}

func (m *VM) builtinAddToSet(base, arity int, coll *value.Collator) (value.Value, bool, error) {
	acc := m.arg(base, 0)
	field := m.arg(base, 1)

	var set *value.ArraySet
	if acc.IsNothing() {
		set = value.NewArraySetWithCollator(coll)
		acc = value.NewArraySetValue(set)
	} else {
		if acc.Tag() != value.TypeArraySet {
			return value.Nothing, false, nil
		}
		acc = m.stealArg(base, 0)
		set = acc.AsArraySet()
	}

	set.Push(field.Copy())
	return acc, true, nil
}

// builtinCollAddToSet takes the collator as a leading extra argument.
func (m *VM) builtinCollAddToSet(base, arity int) (value.Value, bool, error) {
	coll := m.arg(base, 0)
	if coll.Tag() != value.TypeCollator {
		return value.Nothing, false, nil
	}
	return m.builtinAddToSet(base+1, arity-1, coll.AsCollator())
}

// builtinDoubleDoubleSum is the variadic compensated sum. At most one Date
// operand is allowed; its presence turns the result back into a Date.
func (m *VM) builtinDoubleDoubleSum(base, arity int) (value.Value, bool, error) {
	resultTag := value.TypeNumberInt32
	haveDate := false

	for idx := 0; idx < arity; idx++ {
		v := m.arg(base, idx)
		tag := v.Tag()
		if tag == value.TypeDate {
			if haveDate {
				return value.Nothing, false, newError(CodeMultipleDates, "only one date allowed in an $add expression")
			}
			haveDate = true
			tag = value.TypeNumberInt64
		}
		if !v.IsNumber() && v.Tag() != value.TypeDate {
			return value.Nothing, false, nil
		}
		resultTag = value.WidestNumericType(resultTag, tag)
	}

	if resultTag == value.TypeNumberDecimal {
		sum := new(apd.Decimal)
		for idx := 0; idx < arity; idx++ {
			v := m.arg(base, idx)
			if v.Tag() == value.TypeDate {
				part := new(apd.Decimal)
				part.SetInt64(v.AsDate())
				value.DecimalCtx.Add(sum, sum, part)
				continue
			}
			value.DecimalCtx.Add(sum, sum, value.CastDecimal(v))
		}
		if haveDate {
			i, err := sum.Int64()
			if err != nil {
				return value.Nothing, false, errDateOverflow
			}
			return value.NewDate(i), false, nil
		}
		return value.NewDecimal(sum), true, nil
	}

	var sum doubleDouble
	for idx := 0; idx < arity; idx++ {
		v := m.arg(base, idx)
		if v.Tag() == value.TypeDate {
			sum.addInt64(v.AsDate())
			continue
		}
		sum.addValue(v)
	}
	if haveDate {
		if !sum.fitsInt64() {
			return value.Nothing, false, errDateOverflow
		}
		return value.NewDate(sum.totalInt64()), false, nil
	}
	switch resultTag {
	case value.TypeNumberInt32:
		if sum.fitsInt64() {
			t := sum.totalInt64()
			if t >= -1<<31 && t <= 1<<31-1 {
				return value.NewInt32(int32(t)), false, nil
			}
			return value.NewInt64(t), false, nil
		}
		return value.NewDouble(sum.total()), false, nil
	case value.TypeNumberInt64:
		if sum.fitsInt64() {
			return value.NewInt64(sum.totalInt64()), false, nil
		}
		return value.NewDouble(sum.total()), false, nil
	default:
		return value.NewDouble(sum.total()), false, nil
	}
}

// builtinAggDoubleDoubleSum folds one value into the partial-sum state
// array, creating the state on first use.
func (m *VM) builtinAggDoubleDoubleSum(base, arity int) (value.Value, bool, error) {
	acc := m.arg(base, 0)
	field := m.arg(base, 1)

	var arr *value.Array
	if acc.IsNothing() {
		arr = newDoubleDoubleSumState()
		acc = value.NewArrayValue(arr)
	} else {
		if acc.Tag() != value.TypeArray {
			return value.Nothing, false, nil
		}
		acc = m.stealArg(base, 0)
		arr = acc.AsArray()
	}

	aggDoubleDoubleSumImpl(arr, field)
	return acc, true, nil
}

func (m *VM) builtinDoubleDoubleSumFinalize(base, arity int) (value.Value, bool, error) {
	state := m.arg(base, 0)
	if state.Tag() != value.TypeArray || state.AsArray().Len() < aggSumStateSize-1 {
		return value.Nothing, false, nil
	}
	res, owned := doubleDoubleSumFinalizeImpl(state.AsArray())
	return res, owned, nil
}

func (m *VM) builtinAggStdDev(base, arity int) (value.Value, bool, error) {
	acc := m.arg(base, 0)
	field := m.arg(base, 1)

	var arr *value.Array
	if acc.IsNothing() {
		arr = newStdDevState()
		acc = value.NewArrayValue(arr)
	} else {
		if acc.Tag() != value.TypeArray {
			return value.Nothing, false, nil
		}
		acc = m.stealArg(base, 0)
		arr = acc.AsArray()
	}

	aggStdDevImpl(arr, field)
	return acc, true, nil
}

func (m *VM) builtinStdDevFinalize(base, arity int, isSamp bool) (value.Value, bool, error) {
	state := m.arg(base, 0)
	if state.Tag() != value.TypeArray || state.AsArray().Len() != aggStdDevStateSize {
		return value.Nothing, false, nil
	}
	return aggStdDevFinalizeImpl(state.AsArray(), isSamp), false, nil
}

func (m *VM) builtinConcat(base, arity int) (value.Value, bool, error) {
	var sb strings.Builder
	for idx := 0; idx < arity; idx++ {
		v := m.arg(base, idx)
		if !v.IsString() {
			return value.Nothing, false, nil
		}
		sb.WriteString(v.AsString())
	}
	return value.NewString(sb.String()), true, nil
}

func (m *VM) builtinToUpper(base, arity int) (value.Value, bool, error) {
	v := m.arg(base, 0)
	if !v.IsString() {
		return value.Nothing, false, nil
	}
	return value.NewString(strings.ToUpper(v.AsString())), true, nil
}

func (m *VM) builtinToLower(base, arity int) (value.Value, bool, error) {
	v := m.arg(base, 0)
	if !v.IsString() {
		return value.Nothing, false, nil
	}
	return value.NewString(strings.ToLower(v.AsString())), true, nil
}

func (m *VM) builtinCoerceToString(base, arity int) (value.Value, bool, error) {
	v := m.arg(base, 0)
	switch {
	case v.IsString():
		return v.Copy(), true, nil
	case v.Tag() == value.TypeNumberInt32:
		return value.NewString(strconv.FormatInt(int64(v.AsInt32()), 10)), true, nil
	case v.Tag() == value.TypeNumberInt64:
		return value.NewString(strconv.FormatInt(v.AsInt64(), 10)), true, nil
	case v.Tag() == value.TypeNumberDouble:
		return value.NewString(strconv.FormatFloat(v.AsDouble(), 'g', -1, 64)), true, nil
	case v.Tag() == value.TypeNumberDecimal:
		return value.NewString(v.AsDecimal().Text('f')), true, nil
	case v.Tag() == value.TypeBoolean:
		return value.NewString(strconv.FormatBool(v.AsBool())), true, nil
	case v.Tag() == value.TypeDate:
		t := time.UnixMilli(v.AsDate()).UTC()
		return value.NewString(t.Format("2006-01-02T15:04:05.000Z")), true, nil
	case v.Tag() == value.TypeTimestamp:
		return value.NewString(fmt.Sprintf("Timestamp(%d, %d)", uint32(v.AsTimestamp()>>32), uint32(v.AsTimestamp()))), true, nil
	case v.Tag() == value.TypeNull:
		return value.NewString(""), true, nil
	}
	return value.Nothing, false, nil
}

// builtinIsMember tests membership in any array-class value via the total
// order. A non-array right operand yields Nothing.
func (m *VM) builtinIsMember(base, arity int, coll *value.Collator) (value.Value, bool, error) {
	input := m.arg(base, 0)
	container := m.arg(base, 1)

	switch container.Tag() {
	case value.TypeArraySet:
		set := container.AsArraySet()
		if coll == nil {
			return value.NewBool(set.Contains(input)), false, nil
		}
		for i := 0; i < set.Len(); i++ {
			if value.Compare(set.At(i), input, coll) == 0 {
				return value.True, false, nil
			}
		}
		return value.False, false, nil
	case value.TypeArray, value.TypeBSONArray:
		for _, el := range value.ArrayElements(container) {
			if value.Compare(el, input, coll) == 0 {
				return value.True, false, nil
			}
		}
		return value.False, false, nil
	}
	return value.Nothing, false, nil
}

func (m *VM) builtinCollIsMember(base, arity int) (value.Value, bool, error) {
	coll := m.arg(base, 0)
	if coll.Tag() != value.TypeCollator {
		return value.Nothing, false, nil
	}
	return m.builtinIsMember(base+1, arity-1, coll.AsCollator())
}
