package engine

import (
	"context"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/plan"
)

// FilterExecutor drops input rows whose predicate does not evaluate to true.
type FilterExecutor struct {
	baseExecutor
	plan *plan.FilterPlan
}

func NewFilterExecutor(execCtx *ExecutionContext, p *plan.FilterPlan, child Executor) *FilterExecutor {
	return &FilterExecutor{
		baseExecutor: baseExecutor{children: []Executor{child}, schema: p.OutputSchema()},
		plan:         p,
	}
}

func (e *FilterExecutor) Next(ctx context.Context) (*Row, error) {
	childSchema := e.child().Schema()
	for {
		row, err := e.child().Next(ctx)
		if err != nil || row == nil {
			return nil, err
		}
		v, err := e.plan.Predicate.Evaluate(row.Tuple, childSchema)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if !v.IsNull() && v.AsBoolean() {
			return row, nil
		}
	}
}
