package engine

import (
	"context"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/manager"
	"github.com/zhukovaskychina/xminidb/plan"
)

// IndexScanExecutor probes a hash index with the predicate's constant key,
// resolves MVCC visibility on the matching row and applies the residual
// filter.
type IndexScanExecutor struct {
	baseExecutor
	execCtx *ExecutionContext
	plan    *plan.IndexScanPlan

	results []*Row
	pos     int
}

func NewIndexScanExecutor(execCtx *ExecutionContext, p *plan.IndexScanPlan) *IndexScanExecutor {
	return &IndexScanExecutor{
		baseExecutor: baseExecutor{schema: p.OutputSchema()},
		execCtx:      execCtx,
		plan:         p,
	}
}

func (e *IndexScanExecutor) Open(ctx context.Context) error {
	e.results = nil
	e.pos = 0

	tableInfo, err := e.execCtx.Catalog.GetTable(e.plan.TableName)
	if err != nil {
		return errors.Annotatef(err, "index scan %s", e.plan.TableName)
	}
	idxInfo, err := e.execCtx.Catalog.GetIndexByName(e.plan.TableName, e.plan.IndexName)
	if err != nil {
		return errors.Annotatef(err, "index scan %s", e.plan.IndexName)
	}

	key, err := e.plan.PredKey.Val.IndexKey(int(idxInfo.Index.KeySize()))
	if err != nil {
		// A probe key the index cannot encode matches nothing.
		return nil
	}
	rid, found, err := idxInfo.Index.GetValue(key)
	if err != nil {
		return errors.Trace(err)
	}
	if !found {
		return nil
	}

	meta, baseTuple, err := tableInfo.Heap.GetTuple(rid)
	if err != nil {
		return errors.Trace(err)
	}
	tuple, visible := manager.VisibleTuple(e.execCtx.TxnMgr, e.execCtx.Txn, tableInfo.Schema, meta, baseTuple)
	if !visible {
		return nil
	}
	if e.plan.Filter != nil {
		v, err := e.plan.Filter.Evaluate(tuple, e.schema)
		if err != nil {
			return errors.Trace(err)
		}
		if v.IsNull() || !v.AsBoolean() {
			return nil
		}
	}
	e.results = append(e.results, &Row{Tuple: tuple, RID: rid})
	return nil
}

func (e *IndexScanExecutor) Next(ctx context.Context) (*Row, error) {
	if e.pos >= len(e.results) {
		return nil, nil
	}
	row := e.results[e.pos]
	e.pos++
	return row, nil
}
