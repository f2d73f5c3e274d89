package evmkit

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// CoerceArgs converts loosely typed Go values into the exact types the
// go-ethereum ABI packer requires for inputs. method is used for error
// reporting only; pass "" for constructors.
//
// Accepted conversions per ABI type:
//   - intN/uintN: any Go integer, *big.Int, *uint256.Int, json.Number, or a
//     decimal / 0x-hex string; range-checked against N
//   - address: common.Address, *common.Address, [20]byte, hex string
//   - bool: bool, "true"/"false"
//   - string: string, []byte
//   - bytes: []byte, common.Hash, hex string
//   - bytesN: [N]byte, common.Hash (N=32), []byte or hex string of exactly N bytes
//   - T[] / T[k]: any slice or array, or a JSON array string, element-wise
//
// Non-integer values that already have the exact Go type pass through unchanged;
// integers are always range-checked.
func CoerceArgs(method string, inputs abi.Arguments, args []any) ([]any, error) {
	if len(args) != len(inputs) {
		return nil, &ArgumentError{
			Method: method,
			Index:  len(args),
			Err:    fmt.Errorf("expected %d arguments, got %d", len(inputs), len(args)),
		}
	}

	out := make([]any, len(args))
	for i, arg := range args {
		v, err := CoerceValue(inputs[i].Type, arg)
		if err != nil {
			return nil, &ArgumentError{Method: method, Index: i, Err: err}
		}
		out[i] = v
	}
	return out, nil
}

// CoerceValue converts value into the Go type t.GetType() reports.
func CoerceValue(t abi.Type, value any) (any, error) {
	if value == nil {
		return nil, fmt.Errorf("nil value for %s", t.String())
	}
	target := t.GetType()
	if t.T != abi.IntTy && t.T != abi.UintTy && reflect.TypeOf(value) == target {
		return value, nil
	}

	switch t.T {
	case abi.IntTy, abi.UintTy:
		return coerceInteger(t, target, value)
	case abi.AddressTy:
		return coerceAddress(value)
	case abi.BoolTy:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(v))
		}
	case abi.StringTy:
		switch v := value.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	case abi.BytesTy:
		switch v := value.(type) {
		case []byte:
			return v, nil
		case common.Hash:
			return v.Bytes(), nil
		case string:
			return hexutil.Decode(strings.TrimSpace(v))
		}
	case abi.FixedBytesTy:
		return coerceFixedBytes(t, target, value)
	case abi.SliceTy, abi.ArrayTy:
		return coerceList(t, target, value)
	}
	return nil, fmt.Errorf("cannot use %T as %s", value, t.String())
}

func coerceInteger(t abi.Type, target reflect.Type, value any) (any, error) {
	n, err := toBigInt(value)
	if err != nil {
		return nil, err
	}
	if err := checkIntegerRange(t, n); err != nil {
		return nil, err
	}
	if target == bigIntType {
		return n, nil
	}

	rv := reflect.New(target).Elem()
	switch target.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		rv.SetInt(n.Int64())
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		rv.SetUint(n.Uint64())
	default:
		return nil, fmt.Errorf("unsupported integer type %s", target)
	}
	return rv.Interface(), nil
}

func checkIntegerRange(t abi.Type, n *big.Int) error {
	if t.T == abi.UintTy {
		if n.Sign() < 0 {
			return fmt.Errorf("negative value %s for %s", n, t.String())
		}
		if n.BitLen() > t.Size {
			return fmt.Errorf("value %s overflows %s", n, t.String())
		}
		return nil
	}

	// intN holds [-2^(N-1), 2^(N-1)-1].
	mag := n
	if n.Sign() < 0 {
		mag = new(big.Int).Neg(n)
		mag.Sub(mag, big.NewInt(1))
	}
	if mag.BitLen() > t.Size-1 {
		return fmt.Errorf("value %s overflows %s", n, t.String())
	}
	return nil
}

func toBigInt(value any) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, errors.New("nil *big.Int")
		}
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case *uint256.Int:
		if v == nil {
			return nil, errors.New("nil *uint256.Int")
		}
		return v.ToBig(), nil
	case uint256.Int:
		return v.ToBig(), nil
	case json.Number:
		return parseBigInt(v.String())
	case string:
		return parseBigInt(v)
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return new(big.Int).SetUint64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("cannot use %T as integer", value)
}

// parseBigInt accepts decimal and 0x-prefixed hex, optionally signed.
func parseBigInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

func coerceAddress(value any) (any, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		if v == nil {
			return nil, errors.New("nil address")
		}
		return *v, nil
	case [common.AddressLength]byte:
		return common.Address(v), nil
	case string:
		s := strings.TrimSpace(v)
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", v)
		}
		return common.HexToAddress(s), nil
	}
	return nil, fmt.Errorf("cannot use %T as address", value)
}

func coerceFixedBytes(t abi.Type, target reflect.Type, value any) (any, error) {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case common.Hash:
		raw = v.Bytes()
	case string:
		b, err := hexutil.Decode(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", t.String(), v, err)
		}
		raw = b
	default:
		return nil, fmt.Errorf("cannot use %T as %s", value, t.String())
	}
	if len(raw) != t.Size {
		return nil, fmt.Errorf("%s needs %d bytes, got %d", t.String(), t.Size, len(raw))
	}

	rv := reflect.New(target).Elem()
	reflect.Copy(rv, reflect.ValueOf(raw))
	return rv.Interface(), nil
}

func coerceList(t abi.Type, target reflect.Type, value any) (any, error) {
	if s, ok := value.(string); ok {
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		var elems []any
		if err := dec.Decode(&elems); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", t.String(), s, err)
		}
		value = elems
	}

	src := reflect.ValueOf(value)
	if src.Kind() != reflect.Slice && src.Kind() != reflect.Array {
		return nil, fmt.Errorf("cannot use %T as %s", value, t.String())
	}
	if t.T == abi.ArrayTy && src.Len() != t.Size {
		return nil, fmt.Errorf("%s needs %d elements, got %d", t.String(), t.Size, src.Len())
	}

	var dst reflect.Value
	if t.T == abi.SliceTy {
		dst = reflect.MakeSlice(target, src.Len(), src.Len())
	} else {
		dst = reflect.New(target).Elem()
	}
	for i := 0; i < src.Len(); i++ {
		elem, err := CoerceValue(*t.Elem, src.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		dst.Index(i).Set(reflect.ValueOf(elem))
	}
	return dst.Interface(), nil
}
