package engine

import (
	"context"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/manager"
	"github.com/zhukovaskychina/xminidb/metadata"
	"github.com/zhukovaskychina/xminidb/plan"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

// SeqScanExecutor walks a heap and yields the version of each row visible at
// the transaction's read timestamp, applying the pushed-down filter.
type SeqScanExecutor struct {
	baseExecutor
	execCtx *ExecutionContext
	plan    *plan.SeqScanPlan

	tableInfo *metadata.TableInfo
	iter      *table.TableIterator
}

func NewSeqScanExecutor(execCtx *ExecutionContext, p *plan.SeqScanPlan) *SeqScanExecutor {
	return &SeqScanExecutor{
		baseExecutor: baseExecutor{schema: p.OutputSchema()},
		execCtx:      execCtx,
		plan:         p,
	}
}

func (e *SeqScanExecutor) Open(ctx context.Context) error {
	info, err := e.execCtx.Catalog.GetTable(e.plan.TableName)
	if err != nil {
		return errors.Annotatef(err, "seq scan %s", e.plan.TableName)
	}
	e.tableInfo = info
	e.iter = info.Heap.MakeIterator()
	return nil
}

func (e *SeqScanExecutor) Next(ctx context.Context) (*Row, error) {
	for ; !e.iter.IsEnd(); e.iter.Next() {
		meta, baseTuple := e.iter.Tuple()
		rid := e.iter.RID()

		tuple, visible := manager.VisibleTuple(e.execCtx.TxnMgr, e.execCtx.Txn, e.tableInfo.Schema, meta, baseTuple)
		if !visible {
			continue
		}
		if e.plan.Filter != nil {
			v, err := e.plan.Filter.Evaluate(tuple, e.schema)
			if err != nil {
				return nil, errors.Trace(err)
			}
			if v.IsNull() || !v.AsBoolean() {
				continue
			}
		}
		e.iter.Next()
		return &Row{Tuple: tuple, RID: rid}, nil
	}
	return nil, e.iter.Err()
}
