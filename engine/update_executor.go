package engine

import (
	"context"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/manager"
	"github.com/zhukovaskychina/xminidb/metadata"
	"github.com/zhukovaskychina/xminidb/plan"
	"github.com/zhukovaskychina/xminidb/storage/pages"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

// UpdateExecutor rewrites the rows its child produces. The undo log records
// only the columns the update actually changed; a repeat update by the same
// transaction rebuilds its existing log against the original pre-image so at
// most one log per (txn, RID) exists.
type UpdateExecutor struct {
	baseExecutor
	execCtx *ExecutionContext
	plan    *plan.UpdatePlan
	done    bool
}

func NewUpdateExecutor(execCtx *ExecutionContext, p *plan.UpdatePlan, child Executor) *UpdateExecutor {
	return &UpdateExecutor{
		baseExecutor: baseExecutor{children: []Executor{child}, schema: p.OutputSchema()},
		execCtx:      execCtx,
		plan:         p,
	}
}

func (e *UpdateExecutor) Next(ctx context.Context) (*Row, error) {
	if e.done {
		return nil, nil
	}
	e.done = true

	txn := e.execCtx.Txn
	txnMgr := e.execCtx.TxnMgr
	tableInfo, err := e.execCtx.Catalog.GetTable(e.plan.TableName)
	if err != nil {
		return nil, errors.Annotatef(err, "update %s", e.plan.TableName)
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

	var num int64
	for i, row := range buffer {
		meta := metas[i]
		oldTuple := row.Tuple

		newValues := make([]basic.Value, 0, len(e.plan.TargetExpressions))
		for _, target := range e.plan.TargetExpressions {
			v, err := target.Evaluate(oldTuple, childSchema)
			if err != nil {
				return nil, errors.Trace(err)
			}
			newValues = append(newValues, v)
		}

		if meta.TS != txn.TempTS() {
			// First write of this RID by this transaction: capture the
			// changed columns' old values.
			if err := e.appendFirstWriteLog(txnMgr, txn, childSchema, meta, oldTuple, newValues, row); err != nil {
				return nil, err
			}
		} else {
			// Repeat write: merge into the existing log so it still captures
			// the pre-image at the transaction's read timestamp.
			if err := e.mergeRepeatWriteLog(txnMgr, txn, childSchema, meta, oldTuple, newValues, row); err != nil {
				return nil, err
			}
		}

		newTuple := table.NewTupleWithRID(newValues, row.RID)
		meta.TS = txn.TempTS()
		meta.IsDeleted = false
		if err := tableInfo.Heap.UpdateTupleInPlace(meta, newTuple, row.RID); err != nil {
			return nil, errors.Trace(err)
		}
		txn.AppendWriteSet(tableInfo.OID, row.RID)
		num++
	}

	countTuple := table.NewTuple([]basic.Value{basic.NewIntegerValue(num)})
	return &Row{Tuple: countTuple}, nil
}

// appendFirstWriteLog prepends a delta log with the old values of changed
// columns. Updates that change nothing produce no log.
func (e *UpdateExecutor) appendFirstWriteLog(txnMgr *manager.TransactionManager, txn *manager.Transaction, schema *metadata.Schema, meta pages.TupleMeta, oldTuple *table.Tuple, newValues []basic.Value, row *Row) error {
	modified := make([]bool, schema.ColumnCount())
	var undoValues []basic.Value
	changed := 0
	for i := 0; i < schema.ColumnCount(); i++ {
		oldValue := oldTuple.Value(i)
		if newValues[i].CompareExactlyEquals(oldValue) {
			continue
		}
		modified[i] = true
		undoValues = append(undoValues, oldValue)
		changed++
	}
	if changed == 0 {
		return nil
	}
	head, _ := txnMgr.GetUndoLink(row.RID)
	undoLog := manager.UndoLog{
		IsDeleted:      false,
		ModifiedFields: modified,
		Tuple:          table.NewTuple(undoValues),
		TS:             meta.TS,
		PrevVersion:    head,
	}
	newHead := txn.AppendUndoLog(undoLog)
	txnMgr.UpdateUndoLink(row.RID, newHead)
	return nil
}

// mergeRepeatWriteLog rebuilds this transaction's existing log for the RID
// against the original pre-image, widening the modified-column set as
// needed.
func (e *UpdateExecutor) mergeRepeatWriteLog(txnMgr *manager.TransactionManager, txn *manager.Transaction, schema *metadata.Schema, meta pages.TupleMeta, oldTuple *table.Tuple, newValues []basic.Value, row *Row) error {
	head, ok := txnMgr.GetUndoLink(row.RID)
	if !ok || !head.IsValid() || head.PrevTxn != txn.ID() {
		// This transaction inserted the row, or its earlier update changed
		// nothing: there is no log of ours to merge into.
		return nil
	}
	originLog, ok := txnMgr.GetUndoLog(head)
	if !ok {
		return nil
	}
	originTuple, alive := manager.ReconstructTuple(schema, oldTuple, meta, []manager.UndoLog{originLog})
	if !alive {
		return nil
	}

	modified := make([]bool, schema.ColumnCount())
	var undoValues []basic.Value
	changed := 0
	for i := 0; i < schema.ColumnCount(); i++ {
		originValue := originTuple.Value(i)
		if newValues[i].CompareExactlyEquals(originValue) && !originLog.ModifiedFields[i] {
			continue
		}
		modified[i] = true
		undoValues = append(undoValues, originValue)
		changed++
	}
	if changed == 0 {
		return nil
	}
	txn.ModifyUndoLog(head.PrevLogIdx, manager.UndoLog{
		IsDeleted:      false,
		ModifiedFields: modified,
		Tuple:          table.NewTuple(undoValues),
		TS:             originLog.TS,
		PrevVersion:    originLog.PrevVersion,
	})
	return nil
}
