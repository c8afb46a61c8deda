// Package table implements the slotted-page tuple store: the tuple codec,
// the table heap and its iterator.
package table

import (
	"errors"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/common"
)

var ErrTupleCorrupted = errors.New("serialized tuple corrupted")

// Tuple is an ordered list of typed values. Undo logs store partial tuples
// that carry only the modified columns.
type Tuple struct {
	values []basic.Value
	rid    common.RID
}

func NewTuple(values []basic.Value) *Tuple {
	return &Tuple{values: values, rid: common.InvalidRID}
}

func NewTupleWithRID(values []basic.Value, rid common.RID) *Tuple {
	return &Tuple{values: values, rid: rid}
}

func (t *Tuple) Value(i int) basic.Value { return t.values[i] }
func (t *Tuple) Values() []basic.Value   { return t.values }
func (t *Tuple) ColumnCount() int        { return len(t.values) }

func (t *Tuple) RID() common.RID       { return t.rid }
func (t *Tuple) SetRID(rid common.RID) { t.rid = rid }

// Clone copies the tuple's value slice; values themselves are immutable.
func (t *Tuple) Clone() *Tuple {
	values := make([]basic.Value, len(t.values))
	copy(values, t.values)
	return &Tuple{values: values, rid: t.rid}
}

func (t *Tuple) String() string {
	s := "("
	for i, v := range t.values {
		if i > 0 {
			s += ", "
		}
		s += v.String()
	}
	return s + ")"
}

// Serialize encodes the tuple as a self-describing byte string: one type
// byte per column followed by the value payload.
func (t *Tuple) Serialize() []byte {
	size := 0
	for _, v := range t.values {
		size += 1 + v.SerializedSize()
	}
	buf := make([]byte, size)
	pos := 0
	for _, v := range t.values {
		buf[pos] = byte(v.TypeID())
		pos++
		pos += v.SerializeTo(buf[pos:])
	}
	return buf
}

// DeserializeTuple decodes a tuple from its exact serialized image.
func DeserializeTuple(buf []byte) (*Tuple, error) {
	values := make([]basic.Value, 0, 4)
	pos := 0
	for pos < len(buf) {
		typ := basic.TypeID(buf[pos])
		pos++
		v, n, err := basic.DeserializeValue(buf[pos:], typ)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		pos += n
	}
	return NewTuple(values), nil
}
