package manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/buffer_pool"
	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/conf"
	"github.com/zhukovaskychina/xminidb/metadata"
	"github.com/zhukovaskychina/xminidb/storage/disk"
	"github.com/zhukovaskychina/xminidb/storage/pages"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

func newTestEnv(t *testing.T) (*TransactionManager, *metadata.Catalog) {
	t.Helper()
	cfg := conf.NewCfg()
	bpm := buffer_pool.NewBufferPoolManager(buffer_pool.Config{
		PoolSize:  32,
		PageSize:  cfg.PageSize,
		ReplacerK: cfg.ReplacerK,
	}, disk.NewMemoryManager(cfg.PageSize))
	t.Cleanup(bpm.Close)

	catalog := metadata.NewCatalog(bpm, cfg)
	return NewTransactionManager(catalog), catalog
}

func singleIntSchema() *metadata.Schema {
	return metadata.NewSchema([]metadata.Column{{Name: "x", Type: basic.TypeInteger}})
}

func intRow(v int64) *table.Tuple {
	return table.NewTuple([]basic.Value{basic.NewIntegerValue(v)})
}

func TestTransactionLifecycle(t *testing.T) {
	tm, _ := newTestEnv(t)

	t.Run("事务ID带标记位且单调递增", func(t *testing.T) {
		txn1 := tm.Begin(SnapshotIsolation)
		txn2 := tm.Begin(SnapshotIsolation)
		assert.True(t, common.IsTxnTimestamp(txn1.ID()))
		assert.True(t, common.IsTxnTimestamp(txn2.ID()))
		assert.Greater(t, txn2.ID(), txn1.ID())
		assert.Equal(t, TxnRunning, txn1.State())

		require.NoError(t, tm.Abort(txn1))
		require.NoError(t, tm.Abort(txn2))
	})

	t.Run("提交分配单调的提交时间戳", func(t *testing.T) {
		before := tm.LastCommitTS()
		txn := tm.Begin(SnapshotIsolation)
		require.NoError(t, tm.Commit(txn))
		assert.Equal(t, TxnCommitted, txn.State())
		assert.Equal(t, before+1, txn.CommitTS())
		assert.Equal(t, before+1, tm.LastCommitTS())
	})

	t.Run("重复提交被拒绝", func(t *testing.T) {
		txn := tm.Begin(SnapshotIsolation)
		require.NoError(t, tm.Commit(txn))
		assert.ErrorIs(t, tm.Commit(txn), ErrTxnNotRunning)
	})

	t.Run("污染的事务只能回滚", func(t *testing.T) {
		txn := tm.Begin(SnapshotIsolation)
		txn.SetTainted()
		assert.ErrorIs(t, tm.Commit(txn), ErrTxnNotRunning)
		require.NoError(t, tm.Abort(txn))
		assert.Equal(t, TxnAborted, txn.State())
		assert.ErrorIs(t, tm.Abort(txn), ErrTxnNotActive)
	})

	t.Run("无活跃事务时水位线等于最近提交", func(t *testing.T) {
		txn := tm.Begin(SnapshotIsolation)
		require.NoError(t, tm.Commit(txn))
		assert.Equal(t, tm.LastCommitTS(), tm.GetWatermark())
	})
}

func TestCommitStampsWrites(t *testing.T) {
	tm, catalog := newTestEnv(t)
	info, err := catalog.CreateTable("t", singleIntSchema())
	require.NoError(t, err)

	txn := tm.Begin(SnapshotIsolation)
	rid, err := info.Heap.InsertTuple(pages.TupleMeta{TS: txn.TempTS()}, intRow(7))
	require.NoError(t, err)
	txn.AppendWriteSet(info.OID, rid)

	meta, err := info.Heap.GetTupleMeta(rid)
	require.NoError(t, err)
	assert.True(t, common.IsTxnTimestamp(meta.TS))

	require.NoError(t, tm.Commit(txn))

	meta, err = info.Heap.GetTupleMeta(rid)
	require.NoError(t, err)
	assert.False(t, common.IsTxnTimestamp(meta.TS))
	assert.Equal(t, txn.CommitTS(), meta.TS)
}

func TestVisibilityAndReconstruction(t *testing.T) {
	tm, catalog := newTestEnv(t)
	schema := singleIntSchema()
	info, err := catalog.CreateTable("t", schema)
	require.NoError(t, err)

	// Writer commits x=1 at ts 1.
	writer := tm.Begin(SnapshotIsolation)
	rid, err := info.Heap.InsertTuple(pages.TupleMeta{TS: writer.TempTS()}, intRow(1))
	require.NoError(t, err)
	writer.AppendWriteSet(info.OID, rid)
	require.NoError(t, tm.Commit(writer))

	// Reader snapshots at ts 1 before the second writer runs.
	reader := tm.Begin(SnapshotIsolation)

	// Second writer updates x to 2 in place, logging the pre-image.
	updater := tm.Begin(SnapshotIsolation)
	meta, oldTuple, err := info.Heap.GetTuple(rid)
	require.NoError(t, err)
	undoLink := updater.AppendUndoLog(UndoLog{
		ModifiedFields: []bool{true},
		Tuple:          oldTuple.Clone(),
		TS:             meta.TS,
	})
	tm.UpdateUndoLink(rid, undoLink)
	require.NoError(t, info.Heap.UpdateTupleInPlace(pages.TupleMeta{TS: updater.TempTS()}, intRow(2), rid))
	updater.AppendWriteSet(info.OID, rid)

	t.Run("写者读到自己未提交的写", func(t *testing.T) {
		baseMeta, baseTuple, err := info.Heap.GetTuple(rid)
		require.NoError(t, err)
		tuple, visible := VisibleTuple(tm, updater, schema, baseMeta, baseTuple)
		require.True(t, visible)
		assert.Equal(t, int64(2), tuple.Value(0).AsInteger())
	})

	t.Run("快照读者沿版本链读到旧值", func(t *testing.T) {
		baseMeta, baseTuple, err := info.Heap.GetTuple(rid)
		require.NoError(t, err)
		tuple, visible := VisibleTuple(tm, reader, schema, baseMeta, baseTuple)
		require.True(t, visible)
		assert.Equal(t, int64(1), tuple.Value(0).AsInteger())
	})

	t.Run("提交后新事务读到新值", func(t *testing.T) {
		require.NoError(t, tm.Commit(updater))
		late := tm.Begin(SnapshotIsolation)
		baseMeta, baseTuple, err := info.Heap.GetTuple(rid)
		require.NoError(t, err)
		tuple, visible := VisibleTuple(tm, late, schema, baseMeta, baseTuple)
		require.True(t, visible)
		assert.Equal(t, int64(2), tuple.Value(0).AsInteger())
		require.NoError(t, tm.Abort(late))
	})

	t.Run("早于插入的快照看不到元组", func(t *testing.T) {
		// The pre-insert snapshot is read_ts=0; the only chain entry has
		// ts=1, so nothing is visible.
		baseMeta, baseTuple, err := info.Heap.GetTuple(rid)
		require.NoError(t, err)
		early := &Transaction{id: common.TxnStartID + 999, readTS: 0}
		_, visible := VisibleTuple(tm, early, schema, baseMeta, baseTuple)
		assert.False(t, visible)
	})

	t.Run("垃圾回收折叠版本链", func(t *testing.T) {
		require.NoError(t, tm.Abort(reader))

		// All live snapshots are at the latest commit now: the updater's
		// undo log is unreachable and its transaction record collapses.
		tm.GarbageCollection()

		_, ok := tm.GetTransaction(updater.ID())
		assert.False(t, ok, "updater's logs are all unreachable")

		link, _ := tm.GetUndoLink(rid)
		if link.IsValid() {
			_, ok := tm.GetUndoLog(link)
			assert.False(t, ok, "chain must be empty after gc")
		}

		baseMeta, err := info.Heap.GetTupleMeta(rid)
		require.NoError(t, err)
		assert.Equal(t, tm.LastCommitTS(), baseMeta.TS)
	})
}

func TestReconstructTuple(t *testing.T) {
	schema := metadata.NewSchema([]metadata.Column{
		{Name: "a", Type: basic.TypeInteger},
		{Name: "b", Type: basic.TypeInteger},
	})
	base := table.NewTuple([]basic.Value{basic.NewIntegerValue(10), basic.NewIntegerValue(20)})

	t.Run("按列应用部分元组", func(t *testing.T) {
		logs := []UndoLog{{
			ModifiedFields: []bool{false, true},
			Tuple:          table.NewTuple([]basic.Value{basic.NewIntegerValue(2)}),
			TS:             1,
		}}
		tuple, ok := ReconstructTuple(schema, base, pages.TupleMeta{TS: 5}, logs)
		require.True(t, ok)
		assert.Equal(t, int64(10), tuple.Value(0).AsInteger())
		assert.Equal(t, int64(2), tuple.Value(1).AsInteger())
	})

	t.Run("删除日志产生空结果", func(t *testing.T) {
		logs := []UndoLog{{IsDeleted: true, TS: 1}}
		_, ok := ReconstructTuple(schema, base, pages.TupleMeta{TS: 5}, logs)
		assert.False(t, ok)
	})

	t.Run("多条日志按新到旧折叠", func(t *testing.T) {
		logs := []UndoLog{
			{
				ModifiedFields: []bool{true, false},
				Tuple:          table.NewTuple([]basic.Value{basic.NewIntegerValue(11)}),
				TS:             3,
			},
			{
				ModifiedFields: []bool{true, true},
				Tuple:          table.NewTuple([]basic.Value{basic.NewIntegerValue(1), basic.NewIntegerValue(2)}),
				TS:             1,
			},
		}
		tuple, ok := ReconstructTuple(schema, base, pages.TupleMeta{TS: 5}, logs)
		require.True(t, ok)
		assert.Equal(t, int64(1), tuple.Value(0).AsInteger())
		assert.Equal(t, int64(2), tuple.Value(1).AsInteger())
	})
}
