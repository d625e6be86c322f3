package clarity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// Address versions for single-signature and multi-signature accounts
const (
	VersionMainnetSingleSig byte = 22
	VersionMainnetMultiSig  byte = 20
	VersionTestnetSingleSig byte = 26
	VersionTestnetMultiSig  byte = 21
)

const c32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// ErrBadAddress is returned for strings that are not valid Stacks addresses
var ErrBadAddress = errors.New("clarity: bad address")

// Address formats a version byte and hash160 as a c32check address
func Address(version byte, hash160 [20]byte) string {
	if version >= 32 {
		return ""
	}
	payload := append(append([]byte{}, hash160[:]...), checksum(version, hash160[:])...)
	return "S" + string(c32Alphabet[version]) + c32Encode(payload)
}

// ParseAddress decodes a c32check address into its version byte and hash160
func ParseAddress(addr string) (byte, [20]byte, error) {
	var hash [20]byte
	addr = normalize(addr)
	if len(addr) < 3 || addr[0] != 'S' {
		return 0, hash, errors.Wrapf(ErrBadAddress, "%q", addr)
	}

	version := strings.IndexByte(c32Alphabet, addr[1])
	if version < 0 {
		return 0, hash, errors.Wrapf(ErrBadAddress, "%q: bad version character", addr)
	}

	payload, err := c32Decode(addr[2:])
	if err != nil {
		return 0, hash, errors.Wrapf(ErrBadAddress, "%q: %v", addr, err)
	}
	if len(payload) != 24 {
		return 0, hash, errors.Wrapf(ErrBadAddress, "%q: payload is %d bytes", addr, len(payload))
	}

	copy(hash[:], payload[:20])
	if !bytes.Equal(checksum(byte(version), hash[:]), payload[20:]) {
		return 0, hash, errors.Wrapf(ErrBadAddress, "%q: checksum mismatch", addr)
	}
	return byte(version), hash, nil
}

// Principal parses an account address (SP…) or a contract identifier (SP….name)
func Principal(s string) (Value, error) {
	addr, name, isContract := strings.Cut(s, ".")
	version, hash, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	if !isContract {
		return StandardPrincipalCV{Version: version, Hash160: hash}, nil
	}
	if len(name) == 0 || len(name) > maxNameLen {
		return nil, errors.Wrapf(ErrBadAddress, "%q: bad contract name", s)
	}
	return ContractPrincipalCV{Version: version, Hash160: hash, Name: name}, nil
}

// MustPrincipal is Principal for literals known to be valid
func MustPrincipal(s string) Value {
	v, err := Principal(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String -
func (p StandardPrincipalCV) String() string {
	return Address(p.Version, p.Hash160)
}

// String -
func (p ContractPrincipalCV) String() string {
	return Address(p.Version, p.Hash160) + "." + p.Name
}

// HashHex returns the hash160 as lower-case hex
func (p StandardPrincipalCV) HashHex() string {
	return hex.EncodeToString(p.Hash160[:])
}

// IsMainnet reports whether the address version belongs to mainnet
func IsMainnet(version byte) bool {
	return version == VersionMainnetSingleSig || version == VersionMainnetMultiSig
}

func checksum(version byte, data []byte) []byte {
	first := sha256.Sum256(append([]byte{version}, data...))
	second := sha256.Sum256(first[:])
	return second[:4]
}

func normalize(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "O", "0")
	s = strings.ReplaceAll(s, "L", "1")
	return strings.ReplaceAll(s, "I", "1")
}

// c32Encode is a base-32 conversion of data, with one leading '0' per leading zero byte
func c32Encode(data []byte) string {
	zeros := 0
	for zeros < len(data) && data[zeros] == 0 {
		zeros++
	}

	n := new(big.Int).SetBytes(data)
	base := big.NewInt(32)
	mod := new(big.Int)
	var digits []byte
	for n.Sign() > 0 {
		n.DivMod(n, base, mod)
		digits = append(digits, c32Alphabet[mod.Int64()])
	}

	out := make([]byte, 0, zeros+len(digits))
	for i := 0; i < zeros; i++ {
		out = append(out, c32Alphabet[0])
	}
	for i := len(digits) - 1; i >= 0; i-- {
		out = append(out, digits[i])
	}
	return string(out)
}

func c32Decode(s string) ([]byte, error) {
	zeros := 0
	for zeros < len(s) && s[zeros] == c32Alphabet[0] {
		zeros++
	}

	n := new(big.Int)
	base := big.NewInt(32)
	for i := zeros; i < len(s); i++ {
		d := strings.IndexByte(c32Alphabet, s[i])
		if d < 0 {
			return nil, errors.Errorf("invalid character %q", s[i])
		}
		n.Mul(n, base)
		n.Add(n, big.NewInt(int64(d)))
	}

	return append(make([]byte, zeros), n.Bytes()...), nil
}
