package vm

import (
	"math"

	"github.com/cockroachdb/apd/v3"

	"slotvm/pkg/value"
)

// Simple accumulator steps. Each takes the current accumulator state and the
// next field value and returns the new state. A Nothing field leaves the
// state unchanged; a Nothing state is seeded from the field.

func aggSum(acc, field value.Value) (value.Value, bool, error) {
	if field.IsNothing() {
		return acc.Copy(), true, nil
	}
	if acc.IsNothing() {
		acc = value.NewInt64(0)
	}
	return genericAdd(acc, field)
}

func aggMin(acc, field value.Value, coll *value.Collator) (value.Value, bool, error) {
	if field.IsNothing() {
		return acc.Copy(), true, nil
	}
	if acc.IsNothing() {
		return field.Copy(), true, nil
	}
	if value.Compare(acc, field, coll) <= 0 {
		return acc.Copy(), true, nil
	}
	return field.Copy(), true, nil
}

func aggMax(acc, field value.Value, coll *value.Collator) (value.Value, bool, error) {
	if field.IsNothing() {
		return acc.Copy(), true, nil
	}
	if acc.IsNothing() {
		return field.Copy(), true, nil
	}
	if value.Compare(acc, field, coll) >= 0 {
		return acc.Copy(), true, nil
	}
	return field.Copy(), true, nil
}

func aggFirst(acc, field value.Value) (value.Value, bool, error) {
	if field.IsNothing() || !acc.IsNothing() {
		return acc.Copy(), true, nil
	}
	return field.Copy(), true, nil
}

func aggLast(acc, field value.Value) (value.Value, bool, error) {
	if field.IsNothing() {
		return acc.Copy(), true, nil
	}
	return field.Copy(), true, nil
}

// doubleDouble is compensated (Neumaier) summation: sum carries the running
// total and addend the accumulated rounding error.
type doubleDouble struct {
	sum    float64
	addend float64
}

func (d *doubleDouble) addDouble(x float64) {
	s := d.sum + x
	if math.Abs(d.sum) >= math.Abs(x) {
		d.addend += (d.sum - s) + x
	} else {
		d.addend += (x - s) + d.sum
	}
	d.sum = s
}

// addInt64 splits the operand into two exactly representable halves so large
// integers do not lose low bits on the way in.
func (d *doubleDouble) addInt64(x int64) {
	hi := (x >> 32) << 32
	d.addDouble(float64(hi))
	d.addDouble(float64(x - hi))
}

func (d *doubleDouble) addValue(v value.Value) {
	switch v.Tag() {
	case value.TypeNumberInt32:
		d.addDouble(float64(v.AsInt32()))
	case value.TypeNumberInt64:
		d.addInt64(v.AsInt64())
	case value.TypeNumberDouble:
		d.addDouble(v.AsDouble())
	default:
		panic("double-double addend must be a non-decimal number")
	}
}

func (d *doubleDouble) total() float64 { return d.sum + d.addend }

// fitsInt64 reports whether the exact total is representable as an int64.
func (d *doubleDouble) fitsInt64() bool {
	t := d.total()
	if math.IsNaN(t) || math.IsInf(t, 0) || math.Trunc(t) != t {
		return false
	}
	return t < math.MaxInt64 && t >= math.MinInt64
}

func (d *doubleDouble) totalInt64() int64 {
	// Sum the parts as integers so the addend's low bits are not lost when
	// sum alone exceeds 2^53.
	return int64(d.sum) + int64(d.addend)
}

func (d *doubleDouble) asDecimal() *apd.Decimal {
	res := new(apd.Decimal)
	part := new(apd.Decimal)
	if _, err := res.SetFloat64(d.sum); err != nil {
		res.Form = apd.NaN
		return res
	}
	if _, err := part.SetFloat64(d.addend); err != nil {
		res.Form = apd.NaN
		return res
	}
	value.DecimalCtx.Add(res, res, part)
	return res
}

// State array layout for the double-double sum accumulator. The tag element
// records the widest non-decimal type seen; the decimal element appears only
// after the first decimal input.
const (
	aggSumElemTag = iota
	aggSumElemSum
	aggSumElemAddend
	aggSumElemDecimal
	aggSumStateSize
)

func newDoubleDoubleSumState() *value.Array {
	arr := value.NewArray()
	arr.Reserve(aggSumStateSize)
	arr.Push(value.NewInt32(0))
	arr.Push(value.NewDouble(0))
	arr.Push(value.NewDouble(0))
	return arr
}

func loadDoubleDouble(arr *value.Array) doubleDouble {
	return doubleDouble{
		sum:    arr.At(aggSumElemSum).AsDouble(),
		addend: arr.At(aggSumElemAddend).AsDouble(),
	}
}

func storeNonDecimalTotal(arr *value.Array, tag value.TypeTag, dd doubleDouble) {
	var marker value.Value
	switch tag {
	case value.TypeNumberInt32:
		marker = value.NewInt32(0)
	case value.TypeNumberInt64:
		marker = value.NewInt64(0)
	default:
		marker = value.NewDouble(0)
	}
	arr.SetAt(aggSumElemTag, marker)
	arr.SetAt(aggSumElemSum, value.NewDouble(dd.sum))
	arr.SetAt(aggSumElemAddend, value.NewDouble(dd.addend))
}

func storeDecimalTotal(arr *value.Array, tag value.TypeTag, dd doubleDouble, total *apd.Decimal) {
	storeNonDecimalTotal(arr, tag, dd)
	if arr.Len() < aggSumStateSize {
		arr.Push(value.NewDecimal(total))
	} else {
		arr.SetAt(aggSumElemDecimal, value.NewDecimal(total))
	}
}

// aggDoubleDoubleSumImpl folds one field value into the state array.
// Non-numeric fields are ignored. Once a decimal is seen the state grows a
// fourth element holding the exact decimal partial sum; the compensated
// non-decimal partial sum continues alongside and the two merge at
// finalization.
func aggDoubleDoubleSumImpl(arr *value.Array, field value.Value) {
	if !field.IsNumber() {
		return
	}

	nonDecimalTag := arr.At(aggSumElemTag).Tag()
	dd := loadDoubleDouble(arr)

	if arr.Len() < aggSumStateSize {
		if value.WidestNumericType(nonDecimalTag, field.Tag()) == value.TypeNumberDecimal {
			d := new(apd.Decimal)
			d.Set(field.AsDecimal())
			storeDecimalTotal(arr, nonDecimalTag, dd, d)
			return
		}
		dd.addValue(field)
		storeNonDecimalTotal(arr, value.WidestNumericType(nonDecimalTag, field.Tag()), dd)
		return
	}

	total := new(apd.Decimal)
	total.Set(arr.At(aggSumElemDecimal).AsDecimal())
	if field.Tag() == value.TypeNumberDecimal {
		value.DecimalCtx.Add(total, total, field.AsDecimal())
	} else {
		nonDecimalTag = value.WidestNumericType(nonDecimalTag, field.Tag())
		dd.addValue(field)
	}
	storeDecimalTotal(arr, nonDecimalTag, dd, total)
}

// doubleDoubleSumFinalizeImpl collapses the state array into a single value.
// The result tag is the narrowest type that holds the exact total.
func doubleDoubleSumFinalizeImpl(arr *value.Array) (value.Value, bool) {
	nonDecimalTag := arr.At(aggSumElemTag).Tag()
	dd := loadDoubleDouble(arr)

	if arr.Len() == aggSumStateSize {
		res := new(apd.Decimal)
		value.DecimalCtx.Add(res, arr.At(aggSumElemDecimal).AsDecimal(), dd.asDecimal())
		return value.NewDecimal(res), true
	}

	switch nonDecimalTag {
	case value.TypeNumberInt32:
		if dd.fitsInt64() {
			t := dd.totalInt64()
			if t >= math.MinInt32 && t <= math.MaxInt32 {
				return value.NewInt32(int32(t)), false
			}
			return value.NewInt64(t), false
		}
		return value.NewDouble(dd.total()), false
	case value.TypeNumberInt64:
		if dd.fitsInt64() {
			return value.NewInt64(dd.totalInt64()), false
		}
		return value.NewDouble(dd.total()), false
	default:
		return value.NewDouble(dd.total()), false
	}
}

// State array layout for the Welford variance accumulator.
const (
	aggStdDevElemCount = iota
	aggStdDevElemMean
	aggStdDevElemM2
	aggStdDevStateSize
)

func newStdDevState() *value.Array {
	arr := value.NewArray()
	arr.Reserve(aggStdDevStateSize)
	arr.Push(value.NewInt64(0))
	arr.Push(value.NewDouble(0))
	arr.Push(value.NewDouble(0))
	return arr
}

// aggStdDevImpl folds one field value into the Welford state. Decimal inputs
// are downcast to double; variance does not preserve decimal precision.
func aggStdDevImpl(arr *value.Array, field value.Value) {
	if !field.IsNumber() {
		return
	}

	x := value.CastDouble(field)
	count := arr.At(aggStdDevElemCount).AsInt64() + 1
	mean := arr.At(aggStdDevElemMean).AsDouble()
	m2 := arr.At(aggStdDevElemM2).AsDouble()

	delta := x - mean
	mean += delta / float64(count)
	m2 += delta * (x - mean)

	arr.SetAt(aggStdDevElemCount, value.NewInt64(count))
	arr.SetAt(aggStdDevElemMean, value.NewDouble(mean))
	arr.SetAt(aggStdDevElemM2, value.NewDouble(m2))
}

// aggStdDevFinalizeImpl returns the standard deviation, Null when it is
// undefined: zero observations, or a single observation under sample
// variance.
func aggStdDevFinalizeImpl(arr *value.Array, isSamp bool) value.Value {
	count := arr.At(aggStdDevElemCount).AsInt64()
	if count == 0 {
		return value.Null
	}
	if isSamp && count == 1 {
		return value.Null
	}
	m2 := arr.At(aggStdDevElemM2).AsDouble()
	var variance float64
	if isSamp {
		variance = m2 / float64(count-1)
	} else {
		variance = m2 / float64(count)
	}
	return value.NewDouble(math.Sqrt(variance))
}
