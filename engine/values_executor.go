package engine

import (
	"context"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/plan"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

// ValuesExecutor yields literal rows, one per expression list in the plan.
type ValuesExecutor struct {
	baseExecutor
	plan *plan.ValuesPlan
	pos  int
}

func NewValuesExecutor(execCtx *ExecutionContext, p *plan.ValuesPlan) *ValuesExecutor {
	return &ValuesExecutor{
		baseExecutor: baseExecutor{schema: p.OutputSchema()},
		plan:         p,
	}
}

func (e *ValuesExecutor) Open(ctx context.Context) error {
	e.pos = 0
	return nil
}

func (e *ValuesExecutor) Next(ctx context.Context) (*Row, error) {
	if e.pos >= len(e.plan.Rows) {
		return nil, nil
	}
	exprs := e.plan.Rows[e.pos]
	e.pos++

	values := make([]basic.Value, 0, len(exprs))
	for _, expr := range exprs {
		v, err := expr.Evaluate(nil, e.schema)
		if err != nil {
			return nil, errors.Trace(err)
		}
		values = append(values, v)
	}
	return &Row{Tuple: table.NewTuple(values)}, nil
}
