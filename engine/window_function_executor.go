package engine

import (
	"context"
	"sort"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/metadata"
	"github.com/zhukovaskychina/xminidb/plan"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

// WindowFunctionExecutor materializes its child, optionally sorts it by the
// window order-by, and computes one value column per window function.
//
// A function with an order-by emits the running value at every row; without
// one it emits the partition's final value for every row. RANK gives tied
// rows one rank and jumps by the tie count afterwards (1,1,1,4,...).
type WindowFunctionExecutor struct {
	baseExecutor
	execCtx *ExecutionContext
	plan    *plan.WindowPlan

	result []*Row
	pos    int
}

func NewWindowFunctionExecutor(execCtx *ExecutionContext, p *plan.WindowPlan, child Executor) *WindowFunctionExecutor {
	return &WindowFunctionExecutor{
		baseExecutor: baseExecutor{children: []Executor{child}, schema: p.OutputSchema()},
		execCtx:      execCtx,
		plan:         p,
	}
}

// partitionKey serializes the partition-by values of one row.
func partitionKey(exprs []plan.Expression, tuple *table.Tuple, schema *metadata.Schema) (string, error) {
	var key []byte
	for _, expr := range exprs {
		v, err := expr.Evaluate(tuple, schema)
		if err != nil {
			return "", err
		}
		buf := make([]byte, 1+v.SerializedSize())
		buf[0] = byte(v.TypeID())
		v.SerializeTo(buf[1:])
		key = append(key, buf...)
	}
	return string(key), nil
}

func windowAggType(t plan.WindowFunctionType) plan.AggregationType {
	switch t {
	case plan.WindowCountStar:
		return plan.AggCountStar
	case plan.WindowCount:
		return plan.AggCount
	case plan.WindowSum:
		return plan.AggSum
	case plan.WindowMin:
		return plan.AggMin
	case plan.WindowMax:
		return plan.AggMax
	}
	return plan.AggCountStar
}

func (e *WindowFunctionExecutor) Open(ctx context.Context) error {
	if err := e.baseExecutor.Open(ctx); err != nil {
		return err
	}
	e.result = nil
	e.pos = 0

	childSchema := e.child().Schema()
	var rows []*Row
	for {
		row, err := e.child().Next(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	// Sort once by the first window order-by, as all functions in one plan
	// share it.
	for _, wf := range e.plan.Functions {
		if len(wf.OrderBy) == 0 {
			continue
		}
		orderBy := wf.OrderBy
		var sortErr error
		sort.SliceStable(rows, func(i, j int) bool {
			cmp, err := compareOrderBy(orderBy, childSchema, rows[i].Tuple, rows[j].Tuple)
			if err != nil && sortErr == nil {
				sortErr = err
			}
			return cmp < 0
		})
		if sortErr != nil {
			return errors.Trace(sortErr)
		}
		break
	}

	// One output column per function.
	outputs := make([][]basic.Value, len(e.plan.Functions))
	for fnIdx, wf := range e.plan.Functions {
		column, err := e.computeFunction(wf, rows, childSchema)
		if err != nil {
			return err
		}
		outputs[fnIdx] = column
	}

	// Assemble the output rows: placeholders consume function columns in
	// declaration order.
	for rowIdx, row := range rows {
		values := make([]basic.Value, 0, len(e.plan.Columns))
		fnIdx := 0
		for _, colExpr := range e.plan.Columns {
			if col, ok := colExpr.(*plan.ColumnValueExpression); ok && col.ColIdx == plan.WindowPlaceholderColIdx {
				values = append(values, outputs[fnIdx][rowIdx])
				fnIdx++
				continue
			}
			v, err := colExpr.Evaluate(row.Tuple, childSchema)
			if err != nil {
				return errors.Trace(err)
			}
			values = append(values, v)
		}
		e.result = append(e.result, &Row{Tuple: table.NewTuple(values), RID: row.RID})
	}
	return nil
}

// computeFunction produces one value per input row for a single window
// function.
func (e *WindowFunctionExecutor) computeFunction(wf plan.WindowFunction, rows []*Row, childSchema *metadata.Schema) ([]basic.Value, error) {
	running := make(map[string]basic.Value)
	column := make([]basic.Value, len(rows))

	// RANK bookkeeping: the previous order-by key and the size of its run.
	type rankRun struct {
		lastKey basic.Value
		ties    int64
	}
	rankRuns := make(map[string]*rankRun)

	keys := make([]string, len(rows))
	for i, row := range rows {
		key, err := partitionKey(wf.PartitionBy, row.Tuple, childSchema)
		if err != nil {
			return nil, errors.Trace(err)
		}
		keys[i] = key

		current, ok := running[key]
		if !ok {
			if wf.Type == plan.WindowCountStar {
				current = basic.NewIntegerValue(0)
			} else {
				current = basic.NewNullValue(basic.TypeInteger)
			}
		}

		if wf.Type == plan.WindowRank {
			input, err := wf.OrderBy[0].Expr.Evaluate(row.Tuple, childSchema)
			if err != nil {
				return nil, errors.Trace(err)
			}
			if !input.IsNull() {
				run, started := rankRuns[key]
				if !started || current.IsNull() {
					current = basic.NewIntegerValue(1)
					rankRuns[key] = &rankRun{lastKey: input, ties: 1}
				} else if input.CompareEquals(run.lastKey) {
					run.ties++
				} else {
					current, _ = current.Add(basic.NewIntegerValue(run.ties))
					run.lastKey = input
					run.ties = 1
				}
			}
		} else {
			input := basic.NewNullValue(basic.TypeInteger)
			if wf.Function != nil {
				var err error
				input, err = wf.Function.Evaluate(row.Tuple, childSchema)
				if err != nil {
					return nil, errors.Trace(err)
				}
			}
			var err error
			current, err = combineAggregate(windowAggType(wf.Type), current, input)
			if err != nil {
				return nil, errors.Trace(err)
			}
		}
		running[key] = current

		if len(wf.OrderBy) > 0 {
			column[i] = current
		}
	}

	// Without an order-by, every row of a partition gets the final value.
	if len(wf.OrderBy) == 0 {
		for i := range rows {
			column[i] = running[keys[i]]
		}
	}
	return column, nil
}

func (e *WindowFunctionExecutor) Next(ctx context.Context) (*Row, error) {
	if e.pos >= len(e.result) {
		return nil, nil
	}
	row := e.result[e.pos]
	e.pos++
	return row, nil
}
