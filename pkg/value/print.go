package value

import (
	"fmt"
	"strings"
)

// String renders a value for diagnostics and disassembly. Not a data format.
func (v Value) String() string {
	switch v.tag {
	case TypeNothing:
		return "Nothing"
	case TypeNull:
		return "null"
	case TypeBoolean:
		if v.AsBool() {
			return "true"
		}
		return "false"
	case TypeNumberInt32:
		return fmt.Sprintf("%d", v.AsInt32())
	case TypeNumberInt64:
		return fmt.Sprintf("%dll", v.AsInt64())
	case TypeNumberDouble:
		return fmt.Sprintf("%g", v.AsDouble())
	case TypeNumberDecimal:
		return v.AsDecimal().Text('f') + "m"
	case TypeStringSmall, TypeStringBig, TypeBSONString:
		return fmt.Sprintf("%q", v.AsString())
	case TypeDate:
		return fmt.Sprintf("Date(%d)", v.AsDate())
	case TypeTimestamp:
		return fmt.Sprintf("Timestamp(%d)", v.AsTimestamp())
	case TypeArray:
		arr := v.AsArray()
		parts := make([]string, arr.Len())
		for i := range parts {
			parts[i] = arr.At(i).String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeArraySet:
		set := v.AsArraySet()
		parts := make([]string, set.Len())
		for i := range parts {
			parts[i] = set.At(i).String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeObject:
		obj := v.AsObject()
		parts := make([]string, obj.Len())
		for i := range parts {
			name, val := obj.FieldAt(i)
			parts[i] = fmt.Sprintf("%q: %s", name, val)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case TypeBSONObject:
		names, vals := objectFields(v)
		parts := make([]string, len(names))
		for i := range parts {
			parts[i] = fmt.Sprintf("%q: %s", names[i], vals[i])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case TypeBSONArray:
		els := arrayElements(v)
		parts := make([]string, len(els))
		for i := range parts {
			parts[i] = els[i].String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeKeyString:
		return v.AsKeyString().String()
	case TypePcreRegex:
		return v.AsPcreRegex().String()
	case TypeCollator:
		return fmt.Sprintf("Collator(%s)", v.AsCollator().Locale())
	default:
		return "unknown"
	}
}
