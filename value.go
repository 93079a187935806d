package apkparser

import (
	"fmt"
	"math"
	"strconv"
)

// ValueKind identifies how a (type_tag, data) pair decoded per spec
// section 4.E should be rendered. Grounded on original_source's
// model/value.rs Value enum, ported from Rust's single discriminated
// union into an explicit kind tag, per the "sum types over chunk"
// design note (spec section 9).
type ValueKind int

const (
	ValueUnknown ValueKind = iota
	ValueReferenceId
	ValueAttributeReferenceId
	ValueStringReference
	ValueFloat
	ValueDimension
	ValueFraction
	ValueInteger
	ValueFlags
	ValueBoolean
	ValueColorARGB8
	ValueColorRGB8
	ValueColorARGB4
	ValueColorRGB4
)

var dimensionUnits = [...]string{"px", "dip", "sp", "pt", "in", "mm"}
var fractionUnits = [...]string{"%", "%p"}

// Value is a decoded attribute/entry payload. StringReference and the
// two reference kinds carry only the raw data; turning them into text
// needs a string table or resource model, which Value itself does not
// have access to (spec section 4.E only covers the (tag, data) -> typed
// value step; resolution against pools/tables is component D).
type Value struct {
	Kind      ValueKind
	Tag       AttrType
	Data      uint32
	formatted string // pre-rendered text for kinds that are self-contained
}

// DecodeValue implements spec section 4.E's tag table. Unknown tags
// yield ValueUnknown rather than an error, matching spec.md ("all other
// tags yield Unknown(tag, data)").
func DecodeValue(tag AttrType, data uint32) (Value, error) {
	switch tag {
	case AttrTypeReference, AttrTypeDynReference:
		return Value{Kind: ValueReferenceId, Tag: tag, Data: data}, nil
	case AttrTypeAttribute, AttrTypeDynAttribute:
		return Value{Kind: ValueAttributeReferenceId, Tag: tag, Data: data}, nil
	case AttrTypeString:
		return Value{Kind: ValueStringReference, Tag: tag, Data: data}, nil
	case AttrTypeFloat:
		f := math.Float32frombits(data)
		return Value{Kind: ValueFloat, Tag: tag, Data: data, formatted: formatF32(f, 1)}, nil
	case AttrTypeDimension:
		unitIdx := data & 0xF
		if int(unitIdx) >= len(dimensionUnits) {
			return Value{}, newErr(KindUnknownUnit, "DecodeValue", fmt.Errorf("dimension unit index %d out of range", unitIdx))
		}
		v := complexValue(data)
		return Value{Kind: ValueDimension, Tag: tag, Data: data, formatted: formatF32(v, 1) + dimensionUnits[unitIdx]}, nil
	case AttrTypeFraction:
		unitIdx := data & 0xF
		if int(unitIdx) >= len(fractionUnits) {
			return Value{}, newErr(KindUnknownUnit, "DecodeValue", fmt.Errorf("fraction unit index %d out of range", unitIdx))
		}
		finalValue := complexValue(data) * 100
		integer := float32(math.Round(float64(finalValue)))
		diff := finalValue - integer
		if diff < 0 {
			diff = -diff
		}
		var formatted string
		if diff > 0.0000001 {
			formatted = formatF32(finalValue, 6) + fractionUnits[unitIdx]
		} else {
			formatted = formatF32(finalValue, 1) + fractionUnits[unitIdx]
		}
		return Value{Kind: ValueFraction, Tag: tag, Data: data, formatted: formatted}, nil
	case AttrTypeIntDec:
		return Value{Kind: ValueInteger, Tag: tag, Data: data}, nil
	case AttrTypeFlags:
		return Value{Kind: ValueFlags, Tag: tag, Data: data}, nil
	case AttrTypeIntBool:
		return Value{Kind: ValueBoolean, Tag: tag, Data: data}, nil
	case AttrTypeIntColorArgb8:
		return Value{Kind: ValueColorARGB8, Tag: tag, Data: data, formatted: fmt.Sprintf("#%08x", data)}, nil
	case AttrTypeIntColorRgb8:
		return Value{Kind: ValueColorRGB8, Tag: tag, Data: data, formatted: fmt.Sprintf("#%08x", data)}, nil
	case AttrTypeIntColorArgb4:
		return Value{Kind: ValueColorARGB4, Tag: tag, Data: data, formatted: fmt.Sprintf("#%08x", data)}, nil
	case AttrTypeIntColorRgb4:
		return Value{Kind: ValueColorRGB4, Tag: tag, Data: data, formatted: fmt.Sprintf("#%08x", data)}, nil
	default:
		return Value{Kind: ValueUnknown, Tag: tag, Data: data}, nil
	}
}

// complexValue implements spec section 4.E's packed 24.8 fixed-point
// decode: mantissa = data & 0xFFFFFF00 (signed), scaled by one of four
// radixes selected by bits [5:4]. Arithmetic is kept in float32 (not
// float64) because the canonical output strings (spec.md section 8,
// scenario 4) depend on float32 rounding of the final value.
func complexValue(data uint32) float32 {
	mantissa := int32(data & 0xFFFFFF00)
	m := float32(mantissa)

	const mm = float32(1) / 256
	radix := [4]float32{
		1 * mm,
		1.0 / 128 * mm,
		1.0 / 32768 * mm,
		1.0 / 8388608 * mm,
	}

	idx := (data >> 4) & 0x3
	return m * radix[idx]
}

func formatF32(v float32, decimals int) string {
	return strconv.FormatFloat(float64(v), 'f', decimals, 32)
}

// String renders self-contained kinds (everything but string/attribute
// references, which need a resource model to resolve - see resources.go's
// resolveReference). Reference kinds fall back to the unresolved "@id/0x.."
// / "?id/0x.." form from spec section 4.E's table.
func (v Value) String() string {
	switch v.Kind {
	case ValueReferenceId:
		return fmt.Sprintf("@id/0x%x", v.Data)
	case ValueAttributeReferenceId:
		return fmt.Sprintf("?id/0x%x", v.Data)
	case ValueStringReference:
		return fmt.Sprintf("@string/%d", v.Data)
	case ValueInteger, ValueFlags:
		return strconv.FormatInt(int64(int32(v.Data)), 10)
	case ValueBoolean:
		return strconv.FormatBool(v.Data != 0)
	case ValueFloat, ValueDimension, ValueFraction,
		ValueColorARGB8, ValueColorRGB8, ValueColorARGB4, ValueColorRGB4:
		return v.formatted
	default:
		return fmt.Sprintf("@0x%08x", v.Data)
	}
}
