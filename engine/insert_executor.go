package engine

import (
	"context"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/plan"
	"github.com/zhukovaskychina/xminidb/storage/pages"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

// InsertExecutor consumes its child to completion, inserts every row stamped
// with the transaction's temporary timestamp and yields a single count row.
// A primary-key duplicate taints the transaction.
type InsertExecutor struct {
	baseExecutor
	execCtx *ExecutionContext
	plan    *plan.InsertPlan
	done    bool
}

func NewInsertExecutor(execCtx *ExecutionContext, p *plan.InsertPlan, child Executor) *InsertExecutor {
	return &InsertExecutor{
		baseExecutor: baseExecutor{children: []Executor{child}, schema: p.OutputSchema()},
		execCtx:      execCtx,
		plan:         p,
	}
}

func (e *InsertExecutor) Next(ctx context.Context) (*Row, error) {
	if e.done {
		return nil, nil
	}
	e.done = true

	txn := e.execCtx.Txn
	tableInfo, err := e.execCtx.Catalog.GetTable(e.plan.TableName)
	if err != nil {
		return nil, errors.Annotatef(err, "insert into %s", e.plan.TableName)
	}
	indexes := e.execCtx.Catalog.GetTableIndexes(e.plan.TableName)
	primary := e.execCtx.Catalog.PrimaryIndex(e.plan.TableName)

	var num int64
	for {
		row, err := e.child().Next(ctx)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if row == nil {
			break
		}

		// Primary-key uniqueness: a row already bound to the key, whatever
		// its version state, taints this transaction.
		if primary != nil {
			key, err := row.Tuple.Value(primary.KeyColumn).IndexKey(int(primary.Index.KeySize()))
			if err != nil {
				return nil, errors.Trace(err)
			}
			if _, found, err := primary.Index.GetValue(key); err != nil {
				return nil, errors.Trace(err)
			} else if found {
				txn.SetTainted()
				return nil, errors.Annotatef(ErrUniqueKeyViolation, "table %s", e.plan.TableName)
			}
		}

		meta := pages.TupleMeta{TS: txn.TempTS(), IsDeleted: false}
		rid, err := tableInfo.Heap.InsertTuple(meta, row.Tuple)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, idxInfo := range indexes {
			key, err := row.Tuple.Value(idxInfo.KeyColumn).IndexKey(int(idxInfo.Index.KeySize()))
			if err != nil {
				return nil, errors.Trace(err)
			}
			if _, err := idxInfo.Index.Insert(key, rid); err != nil {
				return nil, errors.Trace(err)
			}
		}
		txn.AppendWriteSet(tableInfo.OID, rid)
		num++
	}

	countTuple := table.NewTuple([]basic.Value{basic.NewIntegerValue(num)})
	return &Row{Tuple: countTuple}, nil
}
