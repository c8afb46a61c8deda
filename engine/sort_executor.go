package engine

import (
	"context"
	"sort"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/metadata"
	"github.com/zhukovaskychina/xminidb/plan"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

// compareOrderBy orders two tuples under an order-by list: negative when a
// sorts before b. ASC and DEFAULT are ascending, DESC descends.
func compareOrderBy(orderBys []plan.OrderBy, schema *metadata.Schema, a, b *table.Tuple) (int, error) {
	for _, ob := range orderBys {
		va, err := ob.Expr.Evaluate(a, schema)
		if err != nil {
			return 0, err
		}
		vb, err := ob.Expr.Evaluate(b, schema)
		if err != nil {
			return 0, err
		}
		cmp, err := va.Compare(vb)
		if err != nil {
			return 0, err
		}
		if cmp == 0 {
			continue
		}
		if ob.Type == plan.OrderByDesc {
			return -cmp, nil
		}
		return cmp, nil
	}
	return 0, nil
}

// SortExecutor materializes its child and orders it by the plan's order-by
// list with lexicographic key comparison.
type SortExecutor struct {
	baseExecutor
	execCtx *ExecutionContext
	plan    *plan.SortPlan

	result []*Row
	pos    int
}

func NewSortExecutor(execCtx *ExecutionContext, p *plan.SortPlan, child Executor) *SortExecutor {
	return &SortExecutor{
		baseExecutor: baseExecutor{children: []Executor{child}, schema: p.OutputSchema()},
		execCtx:      execCtx,
		plan:         p,
	}
}

func (e *SortExecutor) Open(ctx context.Context) error {
	if err := e.baseExecutor.Open(ctx); err != nil {
		return err
	}
	e.result = nil
	e.pos = 0

	for {
		row, err := e.child().Next(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if row == nil {
			break
		}
		e.result = append(e.result, row)
	}

	childSchema := e.child().Schema()
	var sortErr error
	sort.SliceStable(e.result, func(i, j int) bool {
		cmp, err := compareOrderBy(e.plan.OrderBys, childSchema, e.result[i].Tuple, e.result[j].Tuple)
		if err != nil && sortErr == nil {
			sortErr = err
		}
		return cmp < 0
	})
	return errors.Trace(sortErr)
}

func (e *SortExecutor) Next(ctx context.Context) (*Row, error) {
	if e.pos >= len(e.result) {
		return nil, nil
	}
	row := e.result[e.pos]
	e.pos++
	return row, nil
}
