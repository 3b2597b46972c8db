package json

import (
	"encoding/base64"
	"reflect"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/wippyai/framecodec/errors"
	"github.com/wippyai/framecodec/registry"
)

// fromString converts the text of a string token to ti.
func fromString(ti *registry.TypeInfo, s string) (reflect.Value, error) {
	if ti.Shape == registry.ShapeInterface {
		return dynamic(ti, reflect.ValueOf(s), "string")
	}
	out := reflect.New(ti.Type).Elem()

	if ti.Shape == registry.ShapeEnum {
		ord, ok := ti.Enum.Ordinal(s)
		if !ok {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil || !ti.Enum.Valid(n) {
				return out, errors.InvalidEnum(errors.PhaseDecode, nil, s, ti.Type.String())
			}
			ord = n
		}
		setOrdinal(ti, out, ord)
		return out, nil
	}

	var err error
	switch ti.Kind {
	case registry.KindString:
		out.SetString(s)
	case registry.KindBool:
		var b bool
		b, err = strconv.ParseBool(s)
		out.SetBool(b)
	case registry.KindInt:
		var n int64
		n, err = strconv.ParseInt(s, 10, ti.Type.Bits())
		out.SetInt(n)
	case registry.KindUint:
		var n uint64
		n, err = strconv.ParseUint(s, 10, ti.Type.Bits())
		out.SetUint(n)
	case registry.KindFloat32, registry.KindFloat64:
		var x float64
		x, err = strconv.ParseFloat(s, ti.Type.Bits())
		out.SetFloat(x)
	case registry.KindTime:
		var t time.Time
		t, err = time.Parse(time.RFC3339Nano, s)
		out.Set(reflect.ValueOf(t))
	case registry.KindDuration:
		var dur time.Duration
		dur, err = time.ParseDuration(s)
		out.SetInt(int64(dur))
	case registry.KindUUID:
		var u uuid.UUID
		u, err = uuid.Parse(s)
		out.Set(reflect.ValueOf(u))
	case registry.KindBytes:
		var b []byte
		b, err = base64.StdEncoding.DecodeString(s)
		out.SetBytes(b)
	default:
		return out, errors.TypeMismatch(errors.PhaseDecode, nil, ti.Type.String(), "string")
	}
	if err != nil {
		return out, errors.Coercion(errors.PhaseDecode, nil, s, ti.Type.String(), err)
	}
	return out, nil
}

// fromNumber converts the text of a number token to ti. Integer targets
// take integer text only.
func fromNumber(ti *registry.TypeInfo, text string) (reflect.Value, error) {
	if ti.Shape == registry.ShapeInterface {
		x, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return reflect.Value{}, errors.Coercion(errors.PhaseDecode, nil, text, "float64", err)
		}
		return dynamic(ti, reflect.ValueOf(x), "number")
	}
	out := reflect.New(ti.Type).Elem()

	if ti.Shape == registry.ShapeEnum {
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil || !ti.Enum.Valid(n) {
			return out, errors.InvalidEnum(errors.PhaseDecode, nil, text, ti.Type.String())
		}
		setOrdinal(ti, out, n)
		return out, nil
	}

	var err error
	switch ti.Kind {
	case registry.KindInt:
		var n int64
		n, err = strconv.ParseInt(text, 10, ti.Type.Bits())
		out.SetInt(n)
	case registry.KindDuration:
		var n int64
		n, err = strconv.ParseInt(text, 10, 64)
		out.SetInt(n)
	case registry.KindUint:
		var n uint64
		n, err = strconv.ParseUint(text, 10, ti.Type.Bits())
		out.SetUint(n)
	case registry.KindFloat32, registry.KindFloat64:
		var x float64
		x, err = strconv.ParseFloat(text, ti.Type.Bits())
		out.SetFloat(x)
	case registry.KindString:
		out.SetString(text)
	case registry.KindBool, registry.KindTime, registry.KindUUID, registry.KindBytes:
		return out, errors.Coercion(errors.PhaseDecode, nil, text, ti.Type.String(), nil)
	default:
		return out, errors.TypeMismatch(errors.PhaseDecode, nil, ti.Type.String(), "number")
	}
	if err != nil {
		return out, errors.Coercion(errors.PhaseDecode, nil, text, ti.Type.String(), err)
	}
	return out, nil
}

// fromBool converts a true or false token to ti. String targets take the
// literal text.
func fromBool(ti *registry.TypeInfo, b bool) (reflect.Value, error) {
	if ti.Shape == registry.ShapeInterface {
		return dynamic(ti, reflect.ValueOf(b), "bool")
	}
	out := reflect.New(ti.Type).Elem()
	switch {
	case ti.Shape == registry.ShapeEnum:
	case ti.Kind == registry.KindBool:
		out.SetBool(b)
		return out, nil
	case ti.Kind == registry.KindString:
		out.SetString(strconv.FormatBool(b))
		return out, nil
	case !ti.Shape.IsScalar():
		return out, errors.TypeMismatch(errors.PhaseDecode, nil, ti.Type.String(), "bool")
	}
	return out, errors.Coercion(errors.PhaseDecode, nil, strconv.FormatBool(b), ti.Type.String(), nil)
}

// dynamic returns v for an empty-interface slot. Other interfaces need a
// type key to pick the concrete type.
func dynamic(ti *registry.TypeInfo, v reflect.Value, token string) (reflect.Value, error) {
	if ti.Type.NumMethod() != 0 {
		return reflect.Value{}, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			GoType(ti.Type.String()).
			WireType(token).
			Detail("polymorphic value needs a type key").
			Build()
	}
	return v, nil
}

func setOrdinal(ti *registry.TypeInfo, out reflect.Value, ord int64) {
	if ti.Kind == registry.KindUint {
		out.SetUint(uint64(ord))
		return
	}
	out.SetInt(ord)
}
