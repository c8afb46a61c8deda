package engine

import (
	"context"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/metadata"
	"github.com/zhukovaskychina/xminidb/plan"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

// HashJoinExecutor builds a hash table over the right child keyed by the
// right key expressions, then probes it with every left row. Rows whose key
// contains NULL never match; LEFT joins pad them.
type HashJoinExecutor struct {
	baseExecutor
	execCtx *ExecutionContext
	plan    *plan.HashJoinPlan

	result []*Row
	pos    int
}

func NewHashJoinExecutor(execCtx *ExecutionContext, p *plan.HashJoinPlan, left, right Executor) (*HashJoinExecutor, error) {
	if p.JoinType != plan.InnerJoin && p.JoinType != plan.LeftJoin {
		return nil, errors.Annotatef(ErrUnsupportedJoinType, "join type %d", p.JoinType)
	}
	return &HashJoinExecutor{
		baseExecutor: baseExecutor{children: []Executor{left, right}, schema: p.OutputSchema()},
		execCtx:      execCtx,
		plan:         p,
	}, nil
}

func (e *HashJoinExecutor) left() Executor  { return e.children[0] }
func (e *HashJoinExecutor) right() Executor { return e.children[1] }

// makeJoinKey evaluates the key expressions and serializes the values into a
// map key. ok is false when any key value is NULL.
func makeJoinKey(exprs []plan.Expression, tuple *table.Tuple, schema *metadata.Schema) (string, bool, error) {
	var key []byte
	for _, expr := range exprs {
		v, err := expr.Evaluate(tuple, schema)
		if err != nil {
			return "", false, errors.Trace(err)
		}
		if v.IsNull() {
			return "", false, nil
		}
		buf := make([]byte, 1+v.SerializedSize())
		buf[0] = byte(v.TypeID())
		v.SerializeTo(buf[1:])
		key = append(key, buf...)
	}
	return string(key), true, nil
}

func (e *HashJoinExecutor) Open(ctx context.Context) error {
	if err := e.baseExecutor.Open(ctx); err != nil {
		return err
	}
	e.result = nil
	e.pos = 0

	rightSchema := e.right().Schema()

	// Build side: right child, in arrival order for determinism.
	build := make(map[string][]*table.Tuple)
	for {
		row, err := e.right().Next(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if row == nil {
			break
		}
		key, ok, err := makeJoinKey(e.plan.RightKeys, row.Tuple, rightSchema)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		build[key] = append(build[key], row.Tuple)
	}

	// Probe side: left child.
	for {
		leftRow, err := e.left().Next(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if leftRow == nil {
			break
		}
		key, ok, err := makeJoinKey(e.plan.LeftKeys, leftRow.Tuple, e.left().Schema())
		if err != nil {
			return err
		}
		matches := build[key]
		if ok && len(matches) > 0 {
			for _, rightTuple := range matches {
				e.result = append(e.result, &Row{Tuple: joinValues(leftRow.Tuple, rightTuple, rightSchema.ColumnCount(), nil)})
			}
		} else if e.plan.JoinType == plan.LeftJoin {
			e.result = append(e.result, &Row{Tuple: joinValues(leftRow.Tuple, nil, rightSchema.ColumnCount(),
				func(i int) basic.TypeID { return rightSchema.Column(i).Type })})
		}
	}
	return nil
}

func (e *HashJoinExecutor) Next(ctx context.Context) (*Row, error) {
	if e.pos >= len(e.result) {
		return nil, nil
	}
	row := e.result[e.pos]
	e.pos++
	return row, nil
}
