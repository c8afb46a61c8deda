package engine

import (
	"context"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/plan"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

// aggState is one hash-table slot: the group-by values plus one running
// value per aggregate.
type aggState struct {
	groupBys   []basic.Value
	aggregates []basic.Value
}

// AggregationExecutor builds a hash table keyed by the group-by values and
// folds every child row into its group's aggregate states.
//
// Initial states: COUNT(*) starts at 0, everything else at NULL. NULL inputs
// are ignored by every aggregate except COUNT(*).
type AggregationExecutor struct {
	baseExecutor
	execCtx *ExecutionContext
	plan    *plan.AggregationPlan

	groups map[string]*aggState
	order  []string
	pos    int
}

func NewAggregationExecutor(execCtx *ExecutionContext, p *plan.AggregationPlan, child Executor) *AggregationExecutor {
	return &AggregationExecutor{
		baseExecutor: baseExecutor{children: []Executor{child}, schema: p.OutputSchema()},
		execCtx:      execCtx,
		plan:         p,
	}
}

func (e *AggregationExecutor) initialAggregates() []basic.Value {
	values := make([]basic.Value, len(e.plan.AggTypes))
	for i, t := range e.plan.AggTypes {
		if t == plan.AggCountStar {
			values[i] = basic.NewIntegerValue(0)
		} else {
			values[i] = basic.NewNullValue(basic.TypeInteger)
		}
	}
	return values
}

// combine folds one input into a running aggregate value.
func combineAggregate(t plan.AggregationType, current, input basic.Value) (basic.Value, error) {
	one := basic.NewIntegerValue(1)
	switch t {
	case plan.AggCountStar:
		return current.Add(one)
	case plan.AggCount:
		if input.IsNull() {
			return current, nil
		}
		if current.IsNull() {
			return one, nil
		}
		return current.Add(one)
	case plan.AggSum:
		if input.IsNull() {
			return current, nil
		}
		if current.IsNull() {
			return input, nil
		}
		return current.Add(input)
	case plan.AggMin:
		if input.IsNull() {
			return current, nil
		}
		if current.IsNull() {
			return input, nil
		}
		return current.Min(input), nil
	case plan.AggMax:
		if input.IsNull() {
			return current, nil
		}
		if current.IsNull() {
			return input, nil
		}
		return current.Max(input), nil
	}
	return current, nil
}

func (e *AggregationExecutor) Open(ctx context.Context) error {
	if err := e.baseExecutor.Open(ctx); err != nil {
		return err
	}
	e.groups = make(map[string]*aggState)
	e.order = nil
	e.pos = 0

	childSchema := e.child().Schema()
	for {
		row, err := e.child().Next(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if row == nil {
			break
		}

		groupValues := make([]basic.Value, 0, len(e.plan.GroupBys))
		var keyBytes []byte
		for _, expr := range e.plan.GroupBys {
			v, err := expr.Evaluate(row.Tuple, childSchema)
			if err != nil {
				return errors.Trace(err)
			}
			groupValues = append(groupValues, v)
			buf := make([]byte, 1+v.SerializedSize())
			buf[0] = byte(v.TypeID())
			v.SerializeTo(buf[1:])
			keyBytes = append(keyBytes, buf...)
		}
		key := string(keyBytes)

		state, ok := e.groups[key]
		if !ok {
			state = &aggState{groupBys: groupValues, aggregates: e.initialAggregates()}
			e.groups[key] = state
			e.order = append(e.order, key)
		}
		for i, expr := range e.plan.Aggregates {
			input, err := expr.Evaluate(row.Tuple, childSchema)
			if err != nil {
				return errors.Trace(err)
			}
			state.aggregates[i], err = combineAggregate(e.plan.AggTypes[i], state.aggregates[i], input)
			if err != nil {
				return errors.Trace(err)
			}
		}
	}

	// No group-bys over an empty input still yields one row of initial
	// aggregate values.
	if len(e.plan.GroupBys) == 0 && len(e.groups) == 0 {
		e.groups[""] = &aggState{aggregates: e.initialAggregates()}
		e.order = append(e.order, "")
	}
	return nil
}

func (e *AggregationExecutor) Next(ctx context.Context) (*Row, error) {
	if e.pos >= len(e.order) {
		return nil, nil
	}
	state := e.groups[e.order[e.pos]]
	e.pos++

	values := make([]basic.Value, 0, len(state.groupBys)+len(state.aggregates))
	values = append(values, state.groupBys...)
	values = append(values, state.aggregates...)
	return &Row{Tuple: table.NewTuple(values)}, nil
}
