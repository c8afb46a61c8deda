package basic

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueCompare(t *testing.T) {
	t.Run("整数比较", func(t *testing.T) {
		a := NewIntegerValue(1)
		b := NewIntegerValue(2)
		assert.True(t, a.CompareLessThan(b))
		assert.True(t, b.CompareGreaterThan(a))
		assert.True(t, a.CompareEquals(NewIntegerValue(1)))
		assert.False(t, a.CompareEquals(b))
	})

	t.Run("NULL不等于任何值", func(t *testing.T) {
		null := NewNullValue(TypeInteger)
		one := NewIntegerValue(1)
		assert.False(t, null.CompareEquals(one))
		assert.False(t, null.CompareEquals(null))
		assert.True(t, null.CompareExactlyEquals(NewNullValue(TypeInteger)))
		assert.False(t, null.CompareExactlyEquals(one))
	})

	t.Run("类型不匹配报错", func(t *testing.T) {
		_, err := NewIntegerValue(1).Compare(NewVarcharValue("1"))
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("小数比较与求和", func(t *testing.T) {
		a := NewDecimalValue(decimal.RequireFromString("1.50"))
		b := NewDecimalValue(decimal.RequireFromString("2.25"))
		assert.True(t, a.CompareLessThan(b))

		sum, err := a.Add(b)
		require.NoError(t, err)
		assert.Equal(t, "3.75", sum.AsDecimal().String())
	})
}

func TestValueArithmetic(t *testing.T) {
	sum, err := NewIntegerValue(40).Add(NewIntegerValue(2))
	require.NoError(t, err)
	assert.Equal(t, int64(42), sum.AsInteger())

	diff, err := NewIntegerValue(40).Sub(NewIntegerValue(2))
	require.NoError(t, err)
	assert.Equal(t, int64(38), diff.AsInteger())

	_, err = NewVarcharValue("a").Add(NewVarcharValue("b"))
	assert.ErrorIs(t, err, ErrNotArithmetic)

	assert.Equal(t, int64(2), NewIntegerValue(2).Min(NewIntegerValue(5)).AsInteger())
	assert.Equal(t, int64(5), NewIntegerValue(2).Max(NewIntegerValue(5)).AsInteger())
}

func TestValueSerialization(t *testing.T) {
	cases := []Value{
		NewIntegerValue(-12345),
		NewBooleanValue(true),
		NewVarcharValue("variable width"),
		NewDecimalValue(decimal.RequireFromString("-3.14")),
		NewNullValue(TypeVarchar),
	}
	for _, v := range cases {
		buf := make([]byte, v.SerializedSize())
		n := v.SerializeTo(buf)
		require.Equal(t, len(buf), n)

		decoded, consumed, err := DeserializeValue(buf, v.TypeID())
		require.NoError(t, err)
		assert.Equal(t, n, consumed)
		assert.Equal(t, v.IsNull(), decoded.IsNull())
		if !v.IsNull() {
			assert.True(t, v.CompareEquals(decoded), "round trip of %s", v)
		}
	}
}

func TestValueSerializationCorruption(t *testing.T) {
	_, _, err := DeserializeValue(nil, TypeInteger)
	assert.ErrorIs(t, err, ErrValueCorrupted)

	_, _, err = DeserializeValue([]byte{0, 1, 2}, TypeInteger)
	assert.ErrorIs(t, err, ErrValueCorrupted)
}

func TestIndexKeyAndHash(t *testing.T) {
	t.Run("键编码定宽且区分值", func(t *testing.T) {
		a, err := NewIntegerValue(100).IndexKey(8)
		require.NoError(t, err)
		b, err := NewIntegerValue(101).IndexKey(8)
		require.NoError(t, err)
		assert.Len(t, a, 8)
		assert.NotEqual(t, a, b)
		again, err := NewIntegerValue(100).IndexKey(8)
		require.NoError(t, err)
		assert.Equal(t, a, again)
	})

	t.Run("共享前缀的变长键互不碰撞", func(t *testing.T) {
		a, err := NewVarcharValue("prefix-shared-aaaa").IndexKey(64)
		require.NoError(t, err)
		b, err := NewVarcharValue("prefix-shared-aaaa-longer").IndexKey(64)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)

		c, err := NewDecimalValue(decimal.RequireFromString("1.25")).IndexKey(32)
		require.NoError(t, err)
		d, err := NewDecimalValue(decimal.RequireFromString("1.250001")).IndexKey(32)
		require.NoError(t, err)
		assert.NotEqual(t, c, d)
	})

	t.Run("超宽的键值被拒绝而不是截断", func(t *testing.T) {
		long := make([]byte, 80)
		for i := range long {
			long[i] = 'x'
		}
		_, err := NewVarcharValue(string(long)).IndexKey(64)
		assert.ErrorIs(t, err, ErrKeyTooLarge)

		_, err = NewIntegerValue(1).IndexKey(4)
		assert.ErrorIs(t, err, ErrKeyTooLarge)

		_, err = NewNullValue(TypeInvalid).IndexKey(8)
		assert.ErrorIs(t, err, ErrKeyUnsupported)
	})

	t.Run("相同值哈希一致", func(t *testing.T) {
		assert.Equal(t, NewVarcharValue("k").Hash(), NewVarcharValue("k").Hash())
		assert.Equal(t, uint64(0), NewNullValue(TypeInteger).Hash())
	})

	t.Run("组合哈希对顺序敏感", func(t *testing.T) {
		ab := HashValues([]Value{NewIntegerValue(1), NewIntegerValue(2)})
		ba := HashValues([]Value{NewIntegerValue(2), NewIntegerValue(1)})
		assert.NotEqual(t, ab, ba)
	})
}
