package engine

import (
	"context"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/manager"
	"github.com/zhukovaskychina/xminidb/plan"
	"github.com/zhukovaskychina/xminidb/storage/pages"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

// DeleteExecutor buffers its child's rows, checks every one for write-write
// conflicts, then marks them deleted under the transaction's temporary
// timestamp. The full pre-image goes into an undo log unless the row already
// carries this transaction's id (its own insert, or a row it updated earlier
// whose undo log already holds the pre-image).
type DeleteExecutor struct {
	baseExecutor
	execCtx *ExecutionContext
	plan    *plan.DeletePlan
	done    bool
}

func NewDeleteExecutor(execCtx *ExecutionContext, p *plan.DeletePlan, child Executor) *DeleteExecutor {
	return &DeleteExecutor{
		baseExecutor: baseExecutor{children: []Executor{child}, schema: p.OutputSchema()},
		execCtx:      execCtx,
		plan:         p,
	}
}

func (e *DeleteExecutor) Next(ctx context.Context) (*Row, error) {
	if e.done {
		return nil, nil
	}
	e.done = true

	txn := e.execCtx.Txn
	txnMgr := e.execCtx.TxnMgr
	tableInfo, err := e.execCtx.Catalog.GetTable(e.plan.TableName)
	if err != nil {
		return nil, errors.Annotatef(err, "delete from %s", e.plan.TableName)
	}
	childSchema := e.child().Schema()

	var buffer []*Row
	for {
		row, err := e.child().Next(ctx)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if row == nil {
			break
		}
		buffer = append(buffer, row)
	}

	// First pass: conflict detection over current metas.
	metas := make([]pages.TupleMeta, len(buffer))
	for i, row := range buffer {
		meta, err := tableInfo.Heap.GetTupleMeta(row.RID)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if err := checkWriteConflict(txn, meta, row.RID); err != nil {
			return nil, err
		}
		metas[i] = meta
	}

	// Second pass: log the pre-image and stamp the delete marker.
	var num int64
	for i, row := range buffer {
		meta := metas[i]
		if meta.TS != txn.TempTS() {
			modified := make([]bool, childSchema.ColumnCount())
			for j := range modified {
				modified[j] = true
			}
			head, _ := txnMgr.GetUndoLink(row.RID)
			undoLog := manager.UndoLog{
				IsDeleted:      false,
				ModifiedFields: modified,
				Tuple:          row.Tuple.Clone(),
				TS:             meta.TS,
				PrevVersion:    head,
			}
			newHead := txn.AppendUndoLog(undoLog)
			txnMgr.UpdateUndoLink(row.RID, newHead)
		}
		meta.TS = txn.TempTS()
		meta.IsDeleted = true
		if err := tableInfo.Heap.UpdateTupleMeta(meta, row.RID); err != nil {
			return nil, errors.Trace(err)
		}
		txn.AppendWriteSet(tableInfo.OID, row.RID)
		num++
	}

	countTuple := table.NewTuple([]basic.Value{basic.NewIntegerValue(num)})
	return &Row{Tuple: countTuple}, nil
}
