package basic

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/zhukovaskychina/xminidb/util"
)

// TypeID specifies the runtime type of a Value.
type TypeID uint8

const (
	TypeInvalid TypeID = iota
	TypeBoolean
	TypeInteger
	TypeDecimal
	TypeVarchar
)

var (
	ErrTypeMismatch   = errors.New("value type mismatch")
	ErrNotComparable  = errors.New("values are not comparable")
	ErrNotArithmetic  = errors.New("value type does not support arithmetic")
	ErrValueCorrupted = errors.New("serialized value corrupted")
	ErrKeyTooLarge    = errors.New("value does not fit index key width")
	ErrKeyUnsupported = errors.New("value type cannot be an index key")
)

func (t TypeID) String() string {
	switch t {
	case TypeBoolean:
		return "BOOLEAN"
	case TypeInteger:
		return "INTEGER"
	case TypeDecimal:
		return "DECIMAL"
	case TypeVarchar:
		return "VARCHAR"
	default:
		return "INVALID"
	}
}

// Value 引擎内部的类型化值
type Value struct {
	typ  TypeID
	null bool

	i int64
	b bool
	d decimal.Decimal
	s string
}

func NewIntegerValue(v int64) Value {
	return Value{typ: TypeInteger, i: v}
}

func NewBooleanValue(v bool) Value {
	return Value{typ: TypeBoolean, b: v}
}

func NewDecimalValue(v decimal.Decimal) Value {
	return Value{typ: TypeDecimal, d: v}
}

func NewVarcharValue(v string) Value {
	return Value{typ: TypeVarchar, s: v}
}

// NewNullValue 返回指定类型的NULL值
func NewNullValue(typ TypeID) Value {
	return Value{typ: typ, null: true}
}

func (v Value) TypeID() TypeID { return v.typ }
func (v Value) IsNull() bool   { return v.null }

func (v Value) AsInteger() int64           { return v.i }
func (v Value) AsBoolean() bool            { return v.b }
func (v Value) AsDecimal() decimal.Decimal { return v.d }
func (v Value) AsVarchar() string          { return v.s }

func (v Value) String() string {
	if v.null {
		return "<NULL>"
	}
	switch v.typ {
	case TypeBoolean:
		return fmt.Sprintf("%t", v.b)
	case TypeInteger:
		return fmt.Sprintf("%d", v.i)
	case TypeDecimal:
		return v.d.String()
	case TypeVarchar:
		return v.s
	default:
		return "<INVALID>"
	}
}

// Compare orders two values of the same type. NULL sorts before any
// non-NULL value, matching the sort executor contract.
func (v Value) Compare(other Value) (int, error) {
	if v.typ != other.typ {
		return 0, ErrTypeMismatch
	}
	if v.null || other.null {
		if v.null && other.null {
			return 0, nil
		}
		if v.null {
			return -1, nil
		}
		return 1, nil
	}
	switch v.typ {
	case TypeBoolean:
		vi, oi := 0, 0
		if v.b {
			vi = 1
		}
		if other.b {
			oi = 1
		}
		return vi - oi, nil
	case TypeInteger:
		switch {
		case v.i < other.i:
			return -1, nil
		case v.i > other.i:
			return 1, nil
		}
		return 0, nil
	case TypeDecimal:
		return v.d.Cmp(other.d), nil
	case TypeVarchar:
		return bytes.Compare([]byte(v.s), []byte(other.s)), nil
	}
	return 0, ErrNotComparable
}

// CompareEquals 判断两个值是否相等，NULL与任何值都不相等
func (v Value) CompareEquals(other Value) bool {
	if v.null || other.null {
		return false
	}
	cmp, err := v.Compare(other)
	return err == nil && cmp == 0
}

// CompareExactlyEquals treats two NULLs as equal, used when diffing old and
// new tuple images in the update executor.
func (v Value) CompareExactlyEquals(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	if v.null || other.null {
		return v.null == other.null
	}
	cmp, err := v.Compare(other)
	return err == nil && cmp == 0
}

func (v Value) CompareLessThan(other Value) bool {
	if v.null || other.null {
		return false
	}
	cmp, err := v.Compare(other)
	return err == nil && cmp < 0
}

func (v Value) CompareGreaterThan(other Value) bool {
	if v.null || other.null {
		return false
	}
	cmp, err := v.Compare(other)
	return err == nil && cmp > 0
}

// Add 数值相加，用于SUM/COUNT聚合
func (v Value) Add(other Value) (Value, error) {
	if v.typ != other.typ {
		return Value{}, ErrTypeMismatch
	}
	switch v.typ {
	case TypeInteger:
		return NewIntegerValue(v.i + other.i), nil
	case TypeDecimal:
		return NewDecimalValue(v.d.Add(other.d)), nil
	}
	return Value{}, ErrNotArithmetic
}

// Sub 数值相减
func (v Value) Sub(other Value) (Value, error) {
	if v.typ != other.typ {
		return Value{}, ErrTypeMismatch
	}
	switch v.typ {
	case TypeInteger:
		return NewIntegerValue(v.i - other.i), nil
	case TypeDecimal:
		return NewDecimalValue(v.d.Sub(other.d)), nil
	}
	return Value{}, ErrNotArithmetic
}

func (v Value) Min(other Value) Value {
	if other.CompareLessThan(v) {
		return other
	}
	return v
}

func (v Value) Max(other Value) Value {
	if other.CompareGreaterThan(v) {
		return other
	}
	return v
}

// SerializedSize 返回该值序列化后占用的字节数
func (v Value) SerializedSize() int {
	if v.null {
		return 1
	}
	switch v.typ {
	case TypeBoolean:
		return 2
	case TypeInteger:
		return 9
	case TypeDecimal:
		return 3 + len(v.d.String())
	case TypeVarchar:
		return 3 + len(v.s)
	}
	return 1
}

// SerializeTo 将值写入buf，返回写入的字节数
func (v Value) SerializeTo(buf []byte) int {
	if v.null {
		buf[0] = 1
		return 1
	}
	buf[0] = 0
	switch v.typ {
	case TypeBoolean:
		if v.b {
			buf[1] = 1
		} else {
			buf[1] = 0
		}
		return 2
	case TypeInteger:
		binary.LittleEndian.PutUint64(buf[1:], uint64(v.i))
		return 9
	case TypeDecimal:
		s := v.d.String()
		binary.LittleEndian.PutUint16(buf[1:], uint16(len(s)))
		copy(buf[3:], s)
		return 3 + len(s)
	case TypeVarchar:
		binary.LittleEndian.PutUint16(buf[1:], uint16(len(v.s)))
		copy(buf[3:], v.s)
		return 3 + len(v.s)
	}
	return 1
}

// DeserializeValue 从buf按类型解码一个值，返回值和消耗的字节数
func DeserializeValue(buf []byte, typ TypeID) (Value, int, error) {
	if len(buf) < 1 {
		return Value{}, 0, ErrValueCorrupted
	}
	if buf[0] == 1 {
		return NewNullValue(typ), 1, nil
	}
	switch typ {
	case TypeBoolean:
		if len(buf) < 2 {
			return Value{}, 0, ErrValueCorrupted
		}
		return NewBooleanValue(buf[1] == 1), 2, nil
	case TypeInteger:
		if len(buf) < 9 {
			return Value{}, 0, ErrValueCorrupted
		}
		return NewIntegerValue(int64(binary.LittleEndian.Uint64(buf[1:]))), 9, nil
	case TypeDecimal:
		if len(buf) < 3 {
			return Value{}, 0, ErrValueCorrupted
		}
		n := int(binary.LittleEndian.Uint16(buf[1:]))
		if len(buf) < 3+n {
			return Value{}, 0, ErrValueCorrupted
		}
		d, err := decimal.NewFromString(string(buf[3 : 3+n]))
		if err != nil {
			return Value{}, 0, ErrValueCorrupted
		}
		return NewDecimalValue(d), 3 + n, nil
	case TypeVarchar:
		if len(buf) < 3 {
			return Value{}, 0, ErrValueCorrupted
		}
		n := int(binary.LittleEndian.Uint16(buf[1:]))
		if len(buf) < 3+n {
			return Value{}, 0, ErrValueCorrupted
		}
		return NewVarcharValue(string(buf[3 : 3+n])), 3 + n, nil
	}
	return Value{}, 0, ErrValueCorrupted
}

// IndexKey 将值编码为定宽索引键
//
// Varchar and decimal keys carry a 2-byte length prefix so that values
// sharing a prefix still encode distinctly; a value that does not fit the
// key width is rejected rather than silently truncated.
func (v Value) IndexKey(width int) ([]byte, error) {
	key := make([]byte, width)
	switch v.typ {
	case TypeInteger:
		if width < 8 {
			return nil, fmt.Errorf("%w: integer needs 8 bytes, key width %d", ErrKeyTooLarge, width)
		}
		binary.LittleEndian.PutUint64(key, uint64(v.i))
	case TypeBoolean:
		if width < 1 {
			return nil, fmt.Errorf("%w: boolean needs 1 byte, key width %d", ErrKeyTooLarge, width)
		}
		if v.b {
			key[0] = 1
		}
	case TypeDecimal:
		s := v.d.String()
		if len(s)+2 > width {
			return nil, fmt.Errorf("%w: decimal %q needs %d bytes, key width %d", ErrKeyTooLarge, s, len(s)+2, width)
		}
		binary.LittleEndian.PutUint16(key, uint16(len(s)))
		copy(key[2:], s)
	case TypeVarchar:
		if len(v.s)+2 > width {
			return nil, fmt.Errorf("%w: varchar of %d bytes, key width %d", ErrKeyTooLarge, len(v.s), width)
		}
		binary.LittleEndian.PutUint16(key, uint16(len(v.s)))
		copy(key[2:], v.s)
	default:
		return nil, fmt.Errorf("%w: %s", ErrKeyUnsupported, v.typ)
	}
	return key, nil
}

// Hash 计算值的哈希，用于哈希连接和聚合分组
func (v Value) Hash() uint64 {
	if v.null {
		return 0
	}
	buf := make([]byte, v.SerializedSize())
	v.SerializeTo(buf)
	return util.HashCode(buf)
}

// HashValues 将一组键值混合为一个哈希
func HashValues(values []Value) uint64 {
	var h uint64
	for _, v := range values {
		if !v.IsNull() {
			h = util.CombineHashes(h, v.Hash())
		}
	}
	return h
}
