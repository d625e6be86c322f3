package clarity

import (
	"encoding/hex"
	"math/big"

	"github.com/pkg/errors"
)

// ToValue converts a Clarity value into plain Go data.
//
// Responses and optionals are unwrapped (none becomes nil), integers become *big.Int,
// buffers become 0x-prefixed hex, principals become their string form, tuples become
// map[string]interface{} and lists become []interface{}.
func ToValue(v Value) interface{} {
	switch cv := v.(type) {
	case nil:
		return nil
	case IntCV:
		return cv.Value
	case UIntCV:
		return cv.Value
	case BufferCV:
		return "0x" + hex.EncodeToString(cv)
	case BoolCV:
		return bool(cv)
	case StandardPrincipalCV:
		return cv.String()
	case ContractPrincipalCV:
		return cv.String()
	case ResponseCV:
		return ToValue(cv.Value)
	case OptionalCV:
		return ToValue(cv.Value)
	case ListCV:
		out := make([]interface{}, 0, len(cv))
		for _, item := range cv {
			out = append(out, ToValue(item))
		}
		return out
	case TupleCV:
		out := make(map[string]interface{}, len(cv))
		for k, item := range cv {
			out[k] = ToValue(item)
		}
		return out
	case StringASCIICV:
		return string(cv)
	case StringUTF8CV:
		return string(cv)
	}
	return nil
}

// Unwrap strips ok/some wrappers. A none, or an err response, yields nil and ok=false.
func Unwrap(v Value) (Value, bool) {
	for {
		switch cv := v.(type) {
		case ResponseCV:
			if !cv.Ok {
				return cv.Value, false
			}
			v = cv.Value
		case OptionalCV:
			if cv.Value == nil {
				return nil, false
			}
			v = cv.Value
		default:
			return v, v != nil
		}
	}
}

// AsBool reads a bool out of an (optionally wrapped) value
func AsBool(v Value) (bool, error) {
	inner, ok := Unwrap(v)
	if !ok {
		return false, errors.Errorf("clarity: expected bool, got %s", describe(inner))
	}
	b, ok := inner.(BoolCV)
	if !ok {
		return false, errors.Errorf("clarity: expected bool, got %s", describe(inner))
	}
	return bool(b), nil
}

// AsUint64 reads an int or uint that fits 64 bits
func AsUint64(v Value) (uint64, error) {
	n, err := AsBig(v)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, errors.Wrapf(ErrOutOfRange, "%s does not fit uint64", n)
	}
	return n.Uint64(), nil
}

// AsBig reads an int or uint
func AsBig(v Value) (*big.Int, error) {
	inner, _ := Unwrap(v)
	switch cv := inner.(type) {
	case UIntCV:
		return cv.Value, nil
	case IntCV:
		return cv.Value, nil
	}
	return nil, errors.Errorf("clarity: expected integer, got %s", describe(inner))
}

// AsString reads a string-ascii, string-utf8 or principal
func AsString(v Value) (string, error) {
	inner, _ := Unwrap(v)
	switch cv := inner.(type) {
	case StringASCIICV:
		return string(cv), nil
	case StringUTF8CV:
		return string(cv), nil
	case StandardPrincipalCV:
		return cv.String(), nil
	case ContractPrincipalCV:
		return cv.String(), nil
	}
	return "", errors.Errorf("clarity: expected string, got %s", describe(inner))
}

// AsTuple reads a tuple. ok is false for none and err responses.
func AsTuple(v Value) (TupleCV, bool, error) {
	inner, ok := Unwrap(v)
	if !ok {
		return nil, false, nil
	}
	t, isTuple := inner.(TupleCV)
	if !isTuple {
		return nil, false, errors.Errorf("clarity: expected tuple, got %s", describe(inner))
	}
	return t, true, nil
}

func describe(v Value) string {
	if v == nil {
		return "none"
	}
	switch v.Type() {
	case TypeInt:
		return "int"
	case TypeUInt:
		return "uint"
	case TypeBuffer:
		return "buffer"
	case TypeTrue, TypeFalse:
		return "bool"
	case TypeStandardPrincipal, TypeContractPrincipal:
		return "principal"
	case TypeResponseOk, TypeResponseErr:
		return "response"
	case TypeOptionalNone, TypeOptionalSome:
		return "optional"
	case TypeList:
		return "list"
	case TypeTuple:
		return "tuple"
	}
	return "string"
}
