package engine

import (
	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/plan"
)

// BuildExecutor compiles a plan tree into an executor tree.
func BuildExecutor(execCtx *ExecutionContext, p plan.PlanNode) (Executor, error) {
	switch node := p.(type) {
	case *plan.SeqScanPlan:
		return NewSeqScanExecutor(execCtx, node), nil

	case *plan.IndexScanPlan:
		return NewIndexScanExecutor(execCtx, node), nil

	case *plan.ValuesPlan:
		return NewValuesExecutor(execCtx, node), nil

	case *plan.InsertPlan:
		child, err := BuildExecutor(execCtx, node.Children()[0])
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewInsertExecutor(execCtx, node, child), nil

	case *plan.UpdatePlan:
		child, err := BuildExecutor(execCtx, node.Children()[0])
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewUpdateExecutor(execCtx, node, child), nil

	case *plan.DeletePlan:
		child, err := BuildExecutor(execCtx, node.Children()[0])
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewDeleteExecutor(execCtx, node, child), nil

	case *plan.NestedLoopJoinPlan:
		left, err := BuildExecutor(execCtx, node.Left())
		if err != nil {
			return nil, errors.Trace(err)
		}
		right, err := BuildExecutor(execCtx, node.Right())
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewNestedLoopJoinExecutor(execCtx, node, left, right)

	case *plan.HashJoinPlan:
		left, err := BuildExecutor(execCtx, node.Left())
		if err != nil {
			return nil, errors.Trace(err)
		}
		right, err := BuildExecutor(execCtx, node.Right())
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewHashJoinExecutor(execCtx, node, left, right)

	case *plan.AggregationPlan:
		child, err := BuildExecutor(execCtx, node.Children()[0])
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewAggregationExecutor(execCtx, node, child), nil

	case *plan.SortPlan:
		child, err := BuildExecutor(execCtx, node.Children()[0])
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewSortExecutor(execCtx, node, child), nil

	case *plan.LimitPlan:
		child, err := BuildExecutor(execCtx, node.Children()[0])
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewLimitExecutor(execCtx, node, child), nil

	case *plan.TopNPlan:
		child, err := BuildExecutor(execCtx, node.Children()[0])
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewTopNExecutor(execCtx, node, child), nil

	case *plan.WindowPlan:
		child, err := BuildExecutor(execCtx, node.Children()[0])
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewWindowFunctionExecutor(execCtx, node, child), nil

	case *plan.ProjectionPlan:
		child, err := BuildExecutor(execCtx, node.Children()[0])
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewProjectionExecutor(execCtx, node, child), nil

	case *plan.FilterPlan:
		child, err := BuildExecutor(execCtx, node.Children()[0])
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewFilterExecutor(execCtx, node, child), nil
	}
	return nil, errors.Annotatef(ErrUnsupportedPlan, "type %T", p)
}
