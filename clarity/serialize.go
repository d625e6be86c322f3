package clarity

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

const (
	maxDepth     = 64
	maxNameLen   = 128
	intByteWidth = 16
)

var (
	// ErrTruncated is returned when the input ends in the middle of a value
	ErrTruncated = errors.New("clarity: truncated value")

	// ErrUnknownType is returned for a type prefix outside 0x00..0x0e
	ErrUnknownType = errors.New("clarity: unknown type prefix")

	// ErrOutOfRange is returned for integers that do not fit 128 bits
	ErrOutOfRange = errors.New("clarity: integer out of range")

	twoTo127 = new(big.Int).Lsh(big.NewInt(1), 127)
	twoTo128 = new(big.Int).Lsh(big.NewInt(1), 128)
)

// Serialize encodes v in the consensus binary format
func Serialize(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := write(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeHex serializes v as a 0x-prefixed hex string, the form used by the node API
func EncodeHex(v Value) (string, error) {
	b, err := Serialize(v)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}

// DecodeHex parses a serialized value from hex, with or without the 0x prefix
func DecodeHex(s string) (Value, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "clarity: bad hex")
	}
	return Deserialize(b)
}

func write(buf *bytes.Buffer, v Value) error {
	if v == nil {
		return errors.New("clarity: nil value")
	}
	buf.WriteByte(byte(v.Type()))

	switch cv := v.(type) {
	case IntCV:
		return writeInt(buf, cv.Value, true)
	case UIntCV:
		return writeInt(buf, cv.Value, false)
	case BufferCV:
		writeLen(buf, len(cv))
		buf.Write(cv)
	case BoolCV:
	case StandardPrincipalCV:
		buf.WriteByte(cv.Version)
		buf.Write(cv.Hash160[:])
	case ContractPrincipalCV:
		if len(cv.Name) == 0 || len(cv.Name) > maxNameLen {
			return errors.Errorf("clarity: bad contract name length %d", len(cv.Name))
		}
		buf.WriteByte(cv.Version)
		buf.Write(cv.Hash160[:])
		buf.WriteByte(byte(len(cv.Name)))
		buf.WriteString(cv.Name)
	case ResponseCV:
		return write(buf, cv.Value)
	case OptionalCV:
		if cv.Value != nil {
			return write(buf, cv.Value)
		}
	case ListCV:
		writeLen(buf, len(cv))
		for _, item := range cv {
			if err := write(buf, item); err != nil {
				return err
			}
		}
	case TupleCV:
		writeLen(buf, len(cv))
		for _, name := range cv.keys() {
			if len(name) == 0 || len(name) > maxNameLen {
				return errors.Errorf("clarity: bad tuple key %q", name)
			}
			buf.WriteByte(byte(len(name)))
			buf.WriteString(name)
			if err := write(buf, cv[name]); err != nil {
				return err
			}
		}
	case StringASCIICV:
		writeLen(buf, len(cv))
		buf.WriteString(string(cv))
	case StringUTF8CV:
		writeLen(buf, len(cv))
		buf.WriteString(string(cv))
	default:
		return errors.Errorf("clarity: cannot serialize %T", v)
	}
	return nil
}

func writeLen(buf *bytes.Buffer, n int) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(n))
	buf.Write(l[:])
}

func writeInt(buf *bytes.Buffer, n *big.Int, signed bool) error {
	if n == nil {
		n = new(big.Int)
	}
	v := new(big.Int).Set(n)
	if signed {
		if v.Cmp(twoTo127) >= 0 || v.Cmp(new(big.Int).Neg(twoTo127)) < 0 {
			return ErrOutOfRange
		}
		if v.Sign() < 0 {
			v.Add(v, twoTo128)
		}
	} else if v.Sign() < 0 || v.Cmp(twoTo128) >= 0 {
		return ErrOutOfRange
	}

	var out [intByteWidth]byte
	v.FillBytes(out[:])
	buf.Write(out[:])
	return nil
}

// Deserialize decodes exactly one value from b
func Deserialize(b []byte) (Value, error) {
	r := &reader{data: b}
	v, err := r.value(0)
	if err != nil {
		return nil, err
	}
	if r.pos != len(r.data) {
		return nil, errors.Errorf("clarity: %d trailing bytes", len(r.data)-r.pos)
	}
	return v, nil
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, ErrTruncated
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) readByte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) length() (int, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(b)
	if int(n) > len(r.data)-r.pos {
		return 0, ErrTruncated
	}
	return int(n), nil
}

func (r *reader) principal() (byte, [20]byte, error) {
	var hash [20]byte
	version, err := r.readByte()
	if err != nil {
		return 0, hash, err
	}
	b, err := r.take(20)
	if err != nil {
		return 0, hash, err
	}
	copy(hash[:], b)
	return version, hash, nil
}

func (r *reader) name() (string, error) {
	n, err := r.readByte()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) value(depth int) (Value, error) {
	if depth > maxDepth {
		return nil, errors.New("clarity: value nested too deeply")
	}
	prefix, err := r.readByte()
	if err != nil {
		return nil, err
	}

	switch Type(prefix) {
	case TypeInt, TypeUInt:
		b, err := r.take(intByteWidth)
		if err != nil {
			return nil, err
		}
		n := new(big.Int).SetBytes(b)
		if Type(prefix) == TypeUInt {
			return UIntCV{Value: n}, nil
		}
		if n.Cmp(twoTo127) >= 0 {
			n.Sub(n, twoTo128)
		}
		return IntCV{Value: n}, nil
	case TypeBuffer:
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		b, err := r.take(n)
		if err != nil {
			return nil, err
		}
		return Buffer(b), nil
	case TypeTrue:
		return BoolCV(true), nil
	case TypeFalse:
		return BoolCV(false), nil
	case TypeStandardPrincipal:
		version, hash, err := r.principal()
		if err != nil {
			return nil, err
		}
		return StandardPrincipalCV{Version: version, Hash160: hash}, nil
	case TypeContractPrincipal:
		version, hash, err := r.principal()
		if err != nil {
			return nil, err
		}
		name, err := r.name()
		if err != nil {
			return nil, err
		}
		return ContractPrincipalCV{Version: version, Hash160: hash, Name: name}, nil
	case TypeResponseOk, TypeResponseErr:
		inner, err := r.value(depth + 1)
		if err != nil {
			return nil, err
		}
		return ResponseCV{Ok: Type(prefix) == TypeResponseOk, Value: inner}, nil
	case TypeOptionalNone:
		return None(), nil
	case TypeOptionalSome:
		inner, err := r.value(depth + 1)
		if err != nil {
			return nil, err
		}
		return Some(inner), nil
	case TypeList:
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		list := make(ListCV, 0, n)
		for i := 0; i < n; i++ {
			item, err := r.value(depth + 1)
			if err != nil {
				return nil, err
			}
			list = append(list, item)
		}
		return list, nil
	case TypeTuple:
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		tuple := make(TupleCV, n)
		for i := 0; i < n; i++ {
			key, err := r.name()
			if err != nil {
				return nil, err
			}
			item, err := r.value(depth + 1)
			if err != nil {
				return nil, err
			}
			tuple[key] = item
		}
		return tuple, nil
	case TypeStringASCII, TypeStringUTF8:
		n, err := r.length()
		if err != nil {
			return nil, err
		}
		b, err := r.take(n)
		if err != nil {
			return nil, err
		}
		if Type(prefix) == TypeStringASCII {
			return StringASCIICV(b), nil
		}
		return StringUTF8CV(b), nil
	}

	return nil, errors.Wrapf(ErrUnknownType, "0x%02x", prefix)
}
