package clarity

import (
	"math/big"
	"sort"
)

// Type is the one-byte prefix of a serialized Clarity value
type Type byte

const (
	TypeInt               Type = 0x00
	TypeUInt              Type = 0x01
	TypeBuffer            Type = 0x02
	TypeTrue              Type = 0x03
	TypeFalse             Type = 0x04
	TypeStandardPrincipal Type = 0x05
	TypeContractPrincipal Type = 0x06
	TypeResponseOk        Type = 0x07
	TypeResponseErr       Type = 0x08
	TypeOptionalNone      Type = 0x09
	TypeOptionalSome      Type = 0x0a
	TypeList              Type = 0x0b
	TypeTuple             Type = 0x0c
	TypeStringASCII       Type = 0x0d
	TypeStringUTF8        Type = 0x0e
)

// Value is a Clarity value as passed to and returned from contract calls
type Value interface {
	Type() Type
}

// IntCV - signed 128-bit integer
type IntCV struct {
	Value *big.Int
}

// UIntCV - unsigned 128-bit integer
type UIntCV struct {
	Value *big.Int
}

// BufferCV -
type BufferCV []byte

// BoolCV -
type BoolCV bool

// StandardPrincipalCV is an account address: a version byte and a hash160
type StandardPrincipalCV struct {
	Version byte
	Hash160 [20]byte
}

// ContractPrincipalCV is a contract identifier: the deployer address plus the contract name
type ContractPrincipalCV struct {
	Version byte
	Hash160 [20]byte
	Name    string
}

// ResponseCV is (ok value) or (err value)
type ResponseCV struct {
	Ok    bool
	Value Value
}

// OptionalCV is (some value), or none when Value is nil
type OptionalCV struct {
	Value Value
}

// ListCV -
type ListCV []Value

// TupleCV -
type TupleCV map[string]Value

// StringASCIICV -
type StringASCIICV string

// StringUTF8CV -
type StringUTF8CV string

func (IntCV) Type() Type               { return TypeInt }
func (UIntCV) Type() Type              { return TypeUInt }
func (BufferCV) Type() Type            { return TypeBuffer }
func (ListCV) Type() Type              { return TypeList }
func (TupleCV) Type() Type             { return TypeTuple }
func (StringASCIICV) Type() Type       { return TypeStringASCII }
func (StringUTF8CV) Type() Type        { return TypeStringUTF8 }
func (StandardPrincipalCV) Type() Type { return TypeStandardPrincipal }
func (ContractPrincipalCV) Type() Type { return TypeContractPrincipal }

func (b BoolCV) Type() Type {
	if b {
		return TypeTrue
	}
	return TypeFalse
}

func (r ResponseCV) Type() Type {
	if r.Ok {
		return TypeResponseOk
	}
	return TypeResponseErr
}

func (o OptionalCV) Type() Type {
	if o.Value == nil {
		return TypeOptionalNone
	}
	return TypeOptionalSome
}

// UInt builds a uint value
func UInt(v uint64) UIntCV {
	return UIntCV{Value: new(big.Int).SetUint64(v)}
}

// Int builds an int value
func Int(v int64) IntCV {
	return IntCV{Value: big.NewInt(v)}
}

// Bool -
func Bool(v bool) BoolCV {
	return BoolCV(v)
}

// Buffer copies b into a buffer value
func Buffer(b []byte) BufferCV {
	out := make([]byte, len(b))
	copy(out, b)
	return BufferCV(out)
}

// Some -
func Some(v Value) OptionalCV {
	return OptionalCV{Value: v}
}

// None -
func None() OptionalCV {
	return OptionalCV{}
}

// Ok -
func Ok(v Value) ResponseCV {
	return ResponseCV{Ok: true, Value: v}
}

// Err -
func Err(v Value) ResponseCV {
	return ResponseCV{Ok: false, Value: v}
}

// List -
func List(values ...Value) ListCV {
	return ListCV(values)
}

// ASCII -
func ASCII(s string) StringASCIICV {
	return StringASCIICV(s)
}

// UTF8 -
func UTF8(s string) StringUTF8CV {
	return StringUTF8CV(s)
}

// UIntList maps ids to a list of uint values
func UIntList(ids []uint64) ListCV {
	out := make(ListCV, 0, len(ids))
	for _, id := range ids {
		out = append(out, UInt(id))
	}
	return out
}

// BoolList maps flags to a list of bool values
func BoolList(flags []bool) ListCV {
	out := make(ListCV, 0, len(flags))
	for _, f := range flags {
		out = append(out, Bool(f))
	}
	return out
}

// keys returns tuple keys in serialization order
func (t TupleCV) keys() []string {
	names := make([]string, 0, len(t))
	for k := range t {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
