package engine

import (
	"context"

	"github.com/zhukovaskychina/xminidb/plan"
)

// LimitExecutor passes through the first N child rows.
type LimitExecutor struct {
	baseExecutor
	plan    *plan.LimitPlan
	emitted int
}

func NewLimitExecutor(execCtx *ExecutionContext, p *plan.LimitPlan, child Executor) *LimitExecutor {
	return &LimitExecutor{
		baseExecutor: baseExecutor{children: []Executor{child}, schema: p.OutputSchema()},
		plan:         p,
	}
}

func (e *LimitExecutor) Open(ctx context.Context) error {
	e.emitted = 0
	return e.baseExecutor.Open(ctx)
}

func (e *LimitExecutor) Next(ctx context.Context) (*Row, error) {
	if e.emitted >= e.plan.Limit {
		return nil, nil
	}
	row, err := e.child().Next(ctx)
	if err != nil || row == nil {
		return nil, err
	}
	e.emitted++
	return row, nil
}
