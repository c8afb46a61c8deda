package plan

import (
	"github.com/zhukovaskychina/xminidb/logger"
	"github.com/zhukovaskychina/xminidb/metadata"
)

// Optimizer rewrites plan trees. Every pass is a post-order traversal that
// returns a new tree; only scan and join shapes are touched.
type Optimizer struct {
	catalog *metadata.Catalog
}

func NewOptimizer(catalog *metadata.Catalog) *Optimizer {
	return &Optimizer{catalog: catalog}
}

// Optimize runs the rewrite passes in their fixed order.
func (o *Optimizer) Optimize(p PlanNode) PlanNode {
	p = o.OptimizeMergeFilterScan(p)
	p = o.OptimizeSeqScanAsIndexScan(p)
	p = o.OptimizeNLJAsHashJoin(p)
	return p
}

// cloneWithChildren copies a node with a fresh child list.
func cloneWithChildren(p PlanNode, children []PlanNode) PlanNode {
	switch v := p.(type) {
	case *SeqScanPlan:
		c := *v
		c.children = children
		return &c
	case *IndexScanPlan:
		c := *v
		c.children = children
		return &c
	case *ValuesPlan:
		c := *v
		c.children = children
		return &c
	case *InsertPlan:
		c := *v
		c.children = children
		return &c
	case *UpdatePlan:
		c := *v
		c.children = children
		return &c
	case *DeletePlan:
		c := *v
		c.children = children
		return &c
	case *NestedLoopJoinPlan:
		c := *v
		c.children = children
		return &c
	case *HashJoinPlan:
		c := *v
		c.children = children
		return &c
	case *AggregationPlan:
		c := *v
		c.children = children
		return &c
	case *SortPlan:
		c := *v
		c.children = children
		return &c
	case *LimitPlan:
		c := *v
		c.children = children
		return &c
	case *TopNPlan:
		c := *v
		c.children = children
		return &c
	case *WindowPlan:
		c := *v
		c.children = children
		return &c
	case *ProjectionPlan:
		c := *v
		c.children = children
		return &c
	case *FilterPlan:
		c := *v
		c.children = children
		return &c
	}
	logger.Warnf("cloneWithChildren: unknown plan type %T", p)
	return p
}

// matchColumnConstant decomposes an equality comparison into (column,
// constant) regardless of operand order. Only equality can be answered by a
// hash index probe.
func matchColumnConstant(pred Expression) (*ColumnValueExpression, *ConstantValueExpression, bool) {
	comp, ok := pred.(*ComparisonExpression)
	if !ok || comp.CompareType != CompareEqual {
		return nil, nil, false
	}
	if col, ok := comp.Left.(*ColumnValueExpression); ok {
		if con, ok := comp.Right.(*ConstantValueExpression); ok {
			return col, con, true
		}
	}
	if col, ok := comp.Right.(*ColumnValueExpression); ok {
		if con, ok := comp.Left.(*ConstantValueExpression); ok {
			return col, con, true
		}
	}
	return nil, nil, false
}

// matchIndex finds an index over the given column of a table.
func (o *Optimizer) matchIndex(tableName string, colIdx int) *metadata.IndexInfo {
	info, err := o.catalog.GetIndex(tableName, colIdx)
	if err != nil {
		return nil
	}
	return info
}

// OptimizeMergeFilterScan merges Filter(SeqScan) into a scanning node: an
// IndexScan when the predicate is an equality on an indexed column, else a
// SeqScan with the predicate pushed down.
func (o *Optimizer) OptimizeMergeFilterScan(p PlanNode) PlanNode {
	children := make([]PlanNode, 0, len(p.Children()))
	for _, child := range p.Children() {
		children = append(children, o.OptimizeMergeFilterScan(child))
	}
	optimized := cloneWithChildren(p, children)

	filter, ok := optimized.(*FilterPlan)
	if !ok || len(filter.children) != 1 {
		return optimized
	}
	seqScan, ok := filter.children[0].(*SeqScanPlan)
	if !ok || seqScan.Filter != nil {
		return optimized
	}

	if col, con, ok := matchColumnConstant(filter.Predicate); ok {
		if idx := o.matchIndex(seqScan.TableName, col.ColIdx); idx != nil {
			return NewIndexScanPlan(seqScan.OutputSchema(), seqScan.TableName, idx.Name,
				col.ColIdx, filter.Predicate, con)
		}
	}
	return NewSeqScanPlan(filter.OutputSchema(), seqScan.TableName, filter.Predicate)
}

// OptimizeSeqScanAsIndexScan turns a SeqScan with a pushed-down equality
// predicate over an indexed column into an IndexScan.
func (o *Optimizer) OptimizeSeqScanAsIndexScan(p PlanNode) PlanNode {
	children := make([]PlanNode, 0, len(p.Children()))
	for _, child := range p.Children() {
		children = append(children, o.OptimizeSeqScanAsIndexScan(child))
	}
	optimized := cloneWithChildren(p, children)

	seqScan, ok := optimized.(*SeqScanPlan)
	if !ok || seqScan.Filter == nil {
		return optimized
	}
	col, con, ok := matchColumnConstant(seqScan.Filter)
	if !ok {
		return optimized
	}
	idx := o.matchIndex(seqScan.TableName, col.ColIdx)
	if idx == nil {
		return optimized
	}
	return NewIndexScanPlan(seqScan.OutputSchema(), seqScan.TableName, idx.Name,
		col.ColIdx, seqScan.Filter, con)
}

// collectEquiJoinKeys decomposes a conjunction of equality comparisons
// between one column from each side into ordered key-expression lists.
func collectEquiJoinKeys(pred Expression, leftKeys, rightKeys *[]Expression) bool {
	switch e := pred.(type) {
	case *ComparisonExpression:
		if e.CompareType != CompareEqual {
			return false
		}
		lcol, lok := e.Left.(*ColumnValueExpression)
		rcol, rok := e.Right.(*ColumnValueExpression)
		if !lok || !rok || lcol.TupleIdx == rcol.TupleIdx {
			return false
		}
		if lcol.TupleIdx == 0 {
			*leftKeys = append(*leftKeys, lcol)
			*rightKeys = append(*rightKeys, rcol)
		} else {
			*leftKeys = append(*leftKeys, rcol)
			*rightKeys = append(*rightKeys, lcol)
		}
		return true
	case *LogicExpression:
		if e.LogicType != LogicAnd {
			return false
		}
		return collectEquiJoinKeys(e.Left, leftKeys, rightKeys) &&
			collectEquiJoinKeys(e.Right, leftKeys, rightKeys)
	}
	return false
}

// OptimizeNLJAsHashJoin rewrites a nested-loop join whose predicate is a
// conjunction of equality comparisons between the two sides into a hash
// join, key lists in conjunction order.
func (o *Optimizer) OptimizeNLJAsHashJoin(p PlanNode) PlanNode {
	children := make([]PlanNode, 0, len(p.Children()))
	for _, child := range p.Children() {
		children = append(children, o.OptimizeNLJAsHashJoin(child))
	}
	optimized := cloneWithChildren(p, children)

	nlj, ok := optimized.(*NestedLoopJoinPlan)
	if !ok || nlj.Predicate == nil {
		return optimized
	}
	var leftKeys, rightKeys []Expression
	if !collectEquiJoinKeys(nlj.Predicate, &leftKeys, &rightKeys) {
		return optimized
	}
	return NewHashJoinPlan(nlj.OutputSchema(), nlj.Left(), nlj.Right(), leftKeys, rightKeys, nlj.JoinType)
}
