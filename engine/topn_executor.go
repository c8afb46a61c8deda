package engine

import (
	"container/heap"
	"context"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/metadata"
	"github.com/zhukovaskychina/xminidb/plan"
)

// topNHeap is a max-heap under the plan's ordering, so the root is the worst
// of the kept rows and overflow pops it.
type topNHeap struct {
	rows     []*Row
	orderBys []plan.OrderBy
	schema   *metadata.Schema
	err      error
}

func (h *topNHeap) Len() int { return len(h.rows) }

func (h *topNHeap) Less(i, j int) bool {
	cmp, err := compareOrderBy(h.orderBys, h.schema, h.rows[i].Tuple, h.rows[j].Tuple)
	if err != nil && h.err == nil {
		h.err = err
	}
	return cmp > 0
}

func (h *topNHeap) Swap(i, j int) { h.rows[i], h.rows[j] = h.rows[j], h.rows[i] }

func (h *topNHeap) Push(x interface{}) { h.rows = append(h.rows, x.(*Row)) }

func (h *topNHeap) Pop() interface{} {
	last := h.rows[len(h.rows)-1]
	h.rows = h.rows[:len(h.rows)-1]
	return last
}

// TopNExecutor keeps the N first rows under the plan's ordering in a bounded
// heap, then drains it back to front.
type TopNExecutor struct {
	baseExecutor
	execCtx *ExecutionContext
	plan    *plan.TopNPlan

	result []*Row
	pos    int
}

func NewTopNExecutor(execCtx *ExecutionContext, p *plan.TopNPlan, child Executor) *TopNExecutor {
	return &TopNExecutor{
		baseExecutor: baseExecutor{children: []Executor{child}, schema: p.OutputSchema()},
		execCtx:      execCtx,
		plan:         p,
	}
}

func (e *TopNExecutor) Open(ctx context.Context) error {
	if err := e.baseExecutor.Open(ctx); err != nil {
		return err
	}
	e.result = nil
	e.pos = 0

	h := &topNHeap{orderBys: e.plan.OrderBys, schema: e.child().Schema()}
	heap.Init(h)
	for {
		row, err := e.child().Next(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		if row == nil {
			break
		}
		heap.Push(h, row)
		if h.Len() > e.plan.N {
			heap.Pop(h)
		}
	}
	if h.err != nil {
		return errors.Trace(h.err)
	}

	// Drain worst-first, then reverse into the output order.
	e.result = make([]*Row, h.Len())
	for i := h.Len() - 1; i >= 0; i-- {
		e.result[i] = heap.Pop(h).(*Row)
	}
	return nil
}

func (e *TopNExecutor) Next(ctx context.Context) (*Row, error) {
	if e.pos >= len(e.result) {
		return nil, nil
	}
	row := e.result[e.pos]
	e.pos++
	return row, nil
}
