package engine

import (
	"context"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/plan"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

// NestedLoopJoinExecutor joins by the classic double loop: the right side is
// materialized once, then every left row is probed against it. LEFT joins
// pad unmatched left rows with NULLs.
type NestedLoopJoinExecutor struct {
	baseExecutor
	execCtx *ExecutionContext
	plan    *plan.NestedLoopJoinPlan

	result []*Row
	pos    int
}

func NewNestedLoopJoinExecutor(execCtx *ExecutionContext, p *plan.NestedLoopJoinPlan, left, right Executor) (*NestedLoopJoinExecutor, error) {
	if p.JoinType != plan.InnerJoin && p.JoinType != plan.LeftJoin {
		return nil, errors.Annotatef(ErrUnsupportedJoinType, "join type %d", p.JoinType)
	}
	return &NestedLoopJoinExecutor{
		baseExecutor: baseExecutor{children: []Executor{left, right}, schema: p.OutputSchema()},
		execCtx:      execCtx,
		plan:         p,
	}, nil
}

func (e *NestedLoopJoinExecutor) left() Executor  { return e.children[0] }
func (e *NestedLoopJoinExecutor) right() Executor { return e.children[1] }

// joinValues concatenates left and right tuples into one output row.
func joinValues(left *table.Tuple, right *table.Tuple, rightSchemaWidth int, rightTypes func(i int) basic.TypeID) *table.Tuple {
	values := make([]basic.Value, 0, left.ColumnCount()+rightSchemaWidth)
	values = append(values, left.Values()...)
	if right != nil {
		values = append(values, right.Values()...)
	} else {
		for i := 0; i < rightSchemaWidth; i++ {
			values = append(values, basic.NewNullValue(rightTypes(i)))
		}
	}
	return table.NewTuple(values)
}

func (e *NestedLoopJoinExecutor) Open(ctx context.Context) error {
	if err := e.baseExecutor.Open(ctx); err != nil {
		return err
	}
	e.result = nil
	e.pos = 0

	rightSchema := e.right().Schema()
	var rights []*Row
	for {
		row, err := e.right().Next(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if row == nil {
			break
		}
		rights = append(rights, row)
	}

	for {
		leftRow, err := e.left().Next(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if leftRow == nil {
			break
		}
		matched := false
		for _, rightRow := range rights {
			v, err := e.plan.Predicate.EvaluateJoin(leftRow.Tuple, e.left().Schema(), rightRow.Tuple, rightSchema)
			if err != nil {
				return errors.Trace(err)
			}
			if v.IsNull() || !v.AsBoolean() {
				continue
			}
			matched = true
			e.result = append(e.result, &Row{Tuple: joinValues(leftRow.Tuple, rightRow.Tuple, rightSchema.ColumnCount(), nil)})
		}
		if !matched && e.plan.JoinType == plan.LeftJoin {
			e.result = append(e.result, &Row{Tuple: joinValues(leftRow.Tuple, nil, rightSchema.ColumnCount(),
				func(i int) basic.TypeID { return rightSchema.Column(i).Type })})
		}
	}
	return nil
}

func (e *NestedLoopJoinExecutor) Next(ctx context.Context) (*Row, error) {
	if e.pos >= len(e.result) {
		return nil, nil
	}
	row := e.result[e.pos]
	e.pos++
	return row, nil
}
