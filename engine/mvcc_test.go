package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/manager"
	"github.com/zhukovaskychina/xminidb/metadata"
	"github.com/zhukovaskychina/xminidb/plan"
)

func accountsSchema() *metadata.Schema {
	return metadata.NewSchema([]metadata.Column{
		{Name: "id", Type: basic.TypeInteger},
		{Name: "x", Type: basic.TypeInteger},
	})
}

// seedAccounts commits one row (id=1, x=1).
func seedAccounts(t *testing.T, eng *StorageEngine) {
	t.Helper()
	_, err := eng.Catalog().CreateTable("accounts", accountsSchema())
	require.NoError(t, err)

	txn := eng.Begin(manager.SnapshotIsolation)
	values := plan.NewValuesPlan(accountsSchema(), [][]plan.Expression{
		{intConst(1), intConst(1)},
	})
	insert := plan.NewInsertPlan(countSchema(), "accounts", values)
	_, err = eng.ExecutePlan(context.Background(), txn, insert)
	require.NoError(t, err)
	require.NoError(t, eng.TxnManager().Commit(txn))
}

func scanAccounts() *plan.SeqScanPlan {
	return plan.NewSeqScanPlan(accountsSchema(), "accounts", nil)
}

// updateAccountsX sets x to the given constant on every row.
func updateAccountsX(eng *StorageEngine, txn *manager.Transaction, x int64) error {
	update := plan.NewUpdatePlan(countSchema(), "accounts", scanAccounts(), []plan.Expression{
		plan.NewColumnValue(0, 0, basic.TypeInteger),
		intConst(x),
	})
	_, err := eng.ExecutePlan(context.Background(), txn, update)
	return err
}

func readAccountsX(t *testing.T, eng *StorageEngine, txn *manager.Transaction) []int64 {
	t.Helper()
	rows, err := eng.ExecutePlan(context.Background(), txn, scanAccounts())
	require.NoError(t, err)
	out := make([]int64, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Tuple.Value(1).AsInteger())
	}
	return out
}

func TestMVCCReadYourWrite(t *testing.T) {
	eng := newTestEngine(t)
	seedAccounts(t, eng)

	// A updates x from 1 to 2 but does not commit yet.
	txnA := eng.Begin(manager.SnapshotIsolation)
	require.NoError(t, updateAccountsX(eng, txnA, 2))

	t.Run("A读到自己的未提交更新", func(t *testing.T) {
		assert.Equal(t, []int64{2}, readAccountsX(t, eng, txnA))
	})

	t.Run("同快照的B读到旧值", func(t *testing.T) {
		txnB := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txnB)
		assert.Equal(t, []int64{1}, readAccountsX(t, eng, txnB))
	})

	t.Run("A提交后新事务读到新值", func(t *testing.T) {
		require.NoError(t, eng.TxnManager().Commit(txnA))
		txnC := eng.Begin(manager.SnapshotIsolation)
		defer eng.TxnManager().Abort(txnC)
		assert.Equal(t, []int64{2}, readAccountsX(t, eng, txnC))
	})
}

func TestMVCCWriteWriteConflict(t *testing.T) {
	eng := newTestEngine(t)
	seedAccounts(t, eng)

	txnA := eng.Begin(manager.SnapshotIsolation)
	txnB := eng.Begin(manager.SnapshotIsolation)

	require.NoError(t, updateAccountsX(eng, txnA, 2))

	t.Run("B的并发更新被拒绝并污染", func(t *testing.T) {
		err := updateAccountsX(eng, txnB, 3)
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrWriteWriteConflict.Error())
		assert.Equal(t, manager.TxnTainted, txnB.State())
		require.NoError(t, eng.TxnManager().Abort(txnB))
	})

	t.Run("已提交写之后的旧快照写也冲突", func(t *testing.T) {
		// txnD snapshots before A commits; once A's commit timestamp passes
		// txnD's read timestamp, txnD's write must conflict.
		txnD := eng.Begin(manager.SnapshotIsolation)
		require.NoError(t, eng.TxnManager().Commit(txnA))

		err := updateAccountsX(eng, txnD, 4)
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrWriteWriteConflict.Error())
		assert.Equal(t, manager.TxnTainted, txnD.State())
		require.NoError(t, eng.TxnManager().Abort(txnD))

		// A fresh snapshot updates cleanly.
		txnE := eng.Begin(manager.SnapshotIsolation)
		require.NoError(t, updateAccountsX(eng, txnE, 4))
		require.NoError(t, eng.TxnManager().Commit(txnE))
	})
}

func TestMVCCDeleteAndGC(t *testing.T) {
	eng := newTestEngine(t)
	seedAccounts(t, eng)
	tm := eng.TxnManager()

	t.Run("删除对自身立即可见", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		del := plan.NewDeletePlan(countSchema(), "accounts", scanAccounts())
		rows, err := eng.ExecutePlan(context.Background(), txn, del)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(1), rows[0].Tuple.Value(0).AsInteger())

		assert.Empty(t, readAccountsX(t, eng, txn))

		// A concurrent snapshot still sees the row.
		other := eng.Begin(manager.SnapshotIsolation)
		assert.Equal(t, []int64{1}, readAccountsX(t, eng, other))
		require.NoError(t, tm.Abort(other))

		require.NoError(t, tm.Commit(txn))
	})

	t.Run("提交后的删除对新快照不可见", func(t *testing.T) {
		txn := eng.Begin(manager.SnapshotIsolation)
		defer tm.Abort(txn)
		assert.Empty(t, readAccountsX(t, eng, txn))
	})

	t.Run("垃圾回收清空不可达的版本链", func(t *testing.T) {
		info, err := eng.Catalog().GetTable("accounts")
		require.NoError(t, err)

		manager.DumpVersionChain(tm, info)
		tm.GarbageCollection()
		it := info.Heap.MakeIterator()
		require.False(t, it.IsEnd())
		rid := it.RID()

		if link, ok := tm.GetUndoLink(rid); ok && link.IsValid() {
			_, reachable := tm.GetUndoLog(link)
			assert.False(t, reachable, "all undo logs must be collected")
		}
	})
}

func TestMVCCRepeatUpdateMergesUndoLog(t *testing.T) {
	eng := newTestEngine(t)
	seedAccounts(t, eng)
	tm := eng.TxnManager()

	txn := eng.Begin(manager.SnapshotIsolation)
	require.NoError(t, updateAccountsX(eng, txn, 2))
	require.NoError(t, updateAccountsX(eng, txn, 3))

	// One log per (txn, RID): the repeat update rebuilt the existing log.
	assert.Equal(t, 1, txn.UndoLogCount())

	// A concurrent snapshot reconstructs the original value through the
	// merged log.
	other := eng.Begin(manager.SnapshotIsolation)
	assert.Equal(t, []int64{1}, readAccountsX(t, eng, other))
	require.NoError(t, tm.Abort(other))

	require.NoError(t, tm.Commit(txn))
	late := eng.Begin(manager.SnapshotIsolation)
	assert.Equal(t, []int64{3}, readAccountsX(t, eng, late))
	require.NoError(t, tm.Abort(late))
}

func TestMVCCAbortLeavesWritesInvisible(t *testing.T) {
	eng := newTestEngine(t)
	seedAccounts(t, eng)
	tm := eng.TxnManager()

	txn := eng.Begin(manager.SnapshotIsolation)
	require.NoError(t, updateAccountsX(eng, txn, 9))
	require.NoError(t, tm.Abort(txn))

	// The aborted write is stamped with a dead transaction id: readers
	// resolve the committed version through the undo chain.
	reader := eng.Begin(manager.SnapshotIsolation)
	assert.Equal(t, []int64{1}, readAccountsX(t, eng, reader))
	require.NoError(t, tm.Abort(reader))
}
