package engine

import (
	"context"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/plan"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

// ProjectionExecutor evaluates one expression per output column against each
// input row.
type ProjectionExecutor struct {
	baseExecutor
	plan *plan.ProjectionPlan
}

func NewProjectionExecutor(execCtx *ExecutionContext, p *plan.ProjectionPlan, child Executor) *ProjectionExecutor {
	return &ProjectionExecutor{
		baseExecutor: baseExecutor{children: []Executor{child}, schema: p.OutputSchema()},
		plan:         p,
	}
}

func (e *ProjectionExecutor) Next(ctx context.Context) (*Row, error) {
	row, err := e.child().Next(ctx)
	if err != nil || row == nil {
		return nil, err
	}
	childSchema := e.child().Schema()
	values := make([]basic.Value, 0, len(e.plan.Expressions))
	for _, expr := range e.plan.Expressions {
		v, err := expr.Evaluate(row.Tuple, childSchema)
		if err != nil {
			return nil, errors.Trace(err)
		}
		values = append(values, v)
	}
	return &Row{Tuple: table.NewTuple(values), RID: row.RID}, nil
}
