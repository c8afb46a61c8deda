package table

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/buffer_pool"
	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/storage/disk"
	"github.com/zhukovaskychina/xminidb/storage/pages"
)

func newTestHeap(t *testing.T) *TableHeap {
	t.Helper()
	bpm := buffer_pool.NewBufferPoolManager(buffer_pool.Config{
		PoolSize:  16,
		PageSize:  common.DefaultPageSize,
		ReplacerK: 2,
	}, disk.NewMemoryManager(common.DefaultPageSize))
	t.Cleanup(bpm.Close)

	heap, err := NewTableHeap(bpm)
	require.NoError(t, err)
	return heap
}

func makeRow(id int64, name string) *Tuple {
	return NewTuple([]basic.Value{
		basic.NewIntegerValue(id),
		basic.NewVarcharValue(name),
	})
}

func TestTupleCodec(t *testing.T) {
	tuple := NewTuple([]basic.Value{
		basic.NewIntegerValue(-7),
		basic.NewVarcharValue("hello"),
		basic.NewBooleanValue(true),
		basic.NewNullValue(basic.TypeInteger),
	})
	decoded, err := DeserializeTuple(tuple.Serialize())
	require.NoError(t, err)
	require.Equal(t, 4, decoded.ColumnCount())
	assert.Equal(t, int64(-7), decoded.Value(0).AsInteger())
	assert.Equal(t, "hello", decoded.Value(1).AsVarchar())
	assert.True(t, decoded.Value(2).AsBoolean())
	assert.True(t, decoded.Value(3).IsNull())
}

func TestTableHeap(t *testing.T) {
	t.Run("插入后按RID读取", func(t *testing.T) {
		heap := newTestHeap(t)

		rid, err := heap.InsertTuple(pages.TupleMeta{TS: 1}, makeRow(10, "alice"))
		require.NoError(t, err)
		assert.True(t, rid.IsValid())

		meta, tuple, err := heap.GetTuple(rid)
		require.NoError(t, err)
		assert.Equal(t, common.Timestamp(1), meta.TS)
		assert.Equal(t, int64(10), tuple.Value(0).AsInteger())
		assert.Equal(t, "alice", tuple.Value(1).AsVarchar())
		assert.Equal(t, rid, tuple.RID())
	})

	t.Run("跨页插入与迭代", func(t *testing.T) {
		heap := newTestHeap(t)

		const rows = 500
		rids := make(map[common.RID]int64, rows)
		for i := int64(0); i < rows; i++ {
			rid, err := heap.InsertTuple(pages.TupleMeta{TS: 1}, makeRow(i, fmt.Sprintf("row-%04d", i)))
			require.NoError(t, err)
			rids[rid] = i
		}
		// 500 rows at ~40 bytes each cannot fit one 4 KiB page.
		assert.Greater(t, len(rids), 0)

		seen := 0
		var last int64 = -1
		for it := heap.MakeIterator(); !it.IsEnd(); it.Next() {
			_, tuple := it.Tuple()
			id := tuple.Value(0).AsInteger()
			assert.Equal(t, rids[it.RID()], id)
			// heap order is insertion order
			assert.Equal(t, last+1, id)
			last = id
			seen++
		}
		assert.Equal(t, rows, seen)
	})

	t.Run("原位更新", func(t *testing.T) {
		heap := newTestHeap(t)

		rid, err := heap.InsertTuple(pages.TupleMeta{TS: 1}, makeRow(1, "before"))
		require.NoError(t, err)

		require.NoError(t, heap.UpdateTupleInPlace(pages.TupleMeta{TS: 2}, makeRow(2, "after!"), rid))
		meta, tuple, err := heap.GetTuple(rid)
		require.NoError(t, err)
		assert.Equal(t, common.Timestamp(2), meta.TS)
		assert.Equal(t, int64(2), tuple.Value(0).AsInteger())
		assert.Equal(t, "after!", tuple.Value(1).AsVarchar())
	})

	t.Run("仅改写元数据", func(t *testing.T) {
		heap := newTestHeap(t)

		rid, err := heap.InsertTuple(pages.TupleMeta{TS: 1}, makeRow(1, "x"))
		require.NoError(t, err)

		require.NoError(t, heap.UpdateTupleMeta(pages.TupleMeta{TS: 5, IsDeleted: true}, rid))
		meta, err := heap.GetTupleMeta(rid)
		require.NoError(t, err)
		assert.Equal(t, common.Timestamp(5), meta.TS)
		assert.True(t, meta.IsDeleted)

		// payload untouched
		_, tuple, err := heap.GetTuple(rid)
		require.NoError(t, err)
		assert.Equal(t, "x", tuple.Value(1).AsVarchar())
	})
}
