package plan

import (
	"github.com/zhukovaskychina/xminidb/metadata"
)

// PlanType is the discriminant of the plan node variant.
type PlanType uint8

const (
	PlanSeqScan PlanType = iota
	PlanIndexScan
	PlanValues
	PlanInsert
	PlanUpdate
	PlanDelete
	PlanNestedLoopJoin
	PlanHashJoin
	PlanAggregation
	PlanSort
	PlanLimit
	PlanTopN
	PlanWindow
	PlanProjection
	PlanFilter
)

// JoinType 连接类型
type JoinType uint8

const (
	InnerJoin JoinType = iota
	LeftJoin
)

// OrderByType 排序方向
type OrderByType uint8

const (
	OrderByDefault OrderByType = iota
	OrderByAsc
	OrderByDesc
)

// OrderBy is one sort key.
type OrderBy struct {
	Type OrderByType
	Expr Expression
}

// AggregationType 聚合函数类型
type AggregationType uint8

const (
	AggCountStar AggregationType = iota
	AggCount
	AggSum
	AggMin
	AggMax
)

// WindowFunctionType 窗口函数类型
type WindowFunctionType uint8

const (
	WindowCountStar WindowFunctionType = iota
	WindowCount
	WindowSum
	WindowMin
	WindowMax
	WindowRank
)

// WindowFunction describes one window computation over a partition.
type WindowFunction struct {
	Type        WindowFunctionType
	Function    Expression
	PartitionBy []Expression
	OrderBy     []OrderBy
}

// PlanNode is the tagged-variant interface every plan node implements.
type PlanNode interface {
	Type() PlanType
	Children() []PlanNode
	OutputSchema() *metadata.Schema
}

type basePlan struct {
	children []PlanNode
	schema   *metadata.Schema
}

func (b *basePlan) Children() []PlanNode           { return b.children }
func (b *basePlan) OutputSchema() *metadata.Schema { return b.schema }

// SeqScanPlan scans a table heap, optionally with a pushed-down predicate.
type SeqScanPlan struct {
	basePlan
	TableName string
	Filter    Expression
}

func NewSeqScanPlan(schema *metadata.Schema, tableName string, filter Expression) *SeqScanPlan {
	return &SeqScanPlan{basePlan: basePlan{schema: schema}, TableName: tableName, Filter: filter}
}

func (p *SeqScanPlan) Type() PlanType { return PlanSeqScan }

// IndexScanPlan probes a hash index with a constant key and applies the
// residual filter.
type IndexScanPlan struct {
	basePlan
	TableName string
	IndexName string
	KeyColumn int
	Filter    Expression
	PredKey   *ConstantValueExpression
}

func NewIndexScanPlan(schema *metadata.Schema, tableName, indexName string, keyColumn int, filter Expression, predKey *ConstantValueExpression) *IndexScanPlan {
	return &IndexScanPlan{
		basePlan:  basePlan{schema: schema},
		TableName: tableName,
		IndexName: indexName,
		KeyColumn: keyColumn,
		Filter:    filter,
		PredKey:   predKey,
	}
}

func (p *IndexScanPlan) Type() PlanType { return PlanIndexScan }

// ValuesPlan produces literal rows, the usual child of an insert.
type ValuesPlan struct {
	basePlan
	Rows [][]Expression
}

func NewValuesPlan(schema *metadata.Schema, rows [][]Expression) *ValuesPlan {
	return &ValuesPlan{basePlan: basePlan{schema: schema}, Rows: rows}
}

func (p *ValuesPlan) Type() PlanType { return PlanValues }

// InsertPlan inserts its child's rows into a table.
type InsertPlan struct {
	basePlan
	TableName string
}

func NewInsertPlan(schema *metadata.Schema, tableName string, child PlanNode) *InsertPlan {
	return &InsertPlan{basePlan: basePlan{schema: schema, children: []PlanNode{child}}, TableName: tableName}
}

func (p *InsertPlan) Type() PlanType { return PlanInsert }

// UpdatePlan rewrites the rows its child produces.
type UpdatePlan struct {
	basePlan
	TableName         string
	TargetExpressions []Expression
}

func NewUpdatePlan(schema *metadata.Schema, tableName string, child PlanNode, targets []Expression) *UpdatePlan {
	return &UpdatePlan{
		basePlan:          basePlan{schema: schema, children: []PlanNode{child}},
		TableName:         tableName,
		TargetExpressions: targets,
	}
}

func (p *UpdatePlan) Type() PlanType { return PlanUpdate }

// DeletePlan marks the rows its child produces as deleted.
type DeletePlan struct {
	basePlan
	TableName string
}

func NewDeletePlan(schema *metadata.Schema, tableName string, child PlanNode) *DeletePlan {
	return &DeletePlan{basePlan: basePlan{schema: schema, children: []PlanNode{child}}, TableName: tableName}
}

func (p *DeletePlan) Type() PlanType { return PlanDelete }

// NestedLoopJoinPlan joins its children with an arbitrary predicate.
type NestedLoopJoinPlan struct {
	basePlan
	Predicate Expression
	JoinType  JoinType
}

func NewNestedLoopJoinPlan(schema *metadata.Schema, left, right PlanNode, predicate Expression, joinType JoinType) *NestedLoopJoinPlan {
	return &NestedLoopJoinPlan{
		basePlan:  basePlan{schema: schema, children: []PlanNode{left, right}},
		Predicate: predicate,
		JoinType:  joinType,
	}
}

func (p *NestedLoopJoinPlan) Type() PlanType { return PlanNestedLoopJoin }

func (p *NestedLoopJoinPlan) Left() PlanNode  { return p.children[0] }
func (p *NestedLoopJoinPlan) Right() PlanNode { return p.children[1] }

// HashJoinPlan joins its children on equal key-expression lists.
type HashJoinPlan struct {
	basePlan
	LeftKeys  []Expression
	RightKeys []Expression
	JoinType  JoinType
}

func NewHashJoinPlan(schema *metadata.Schema, left, right PlanNode, leftKeys, rightKeys []Expression, joinType JoinType) *HashJoinPlan {
	return &HashJoinPlan{
		basePlan:  basePlan{schema: schema, children: []PlanNode{left, right}},
		LeftKeys:  leftKeys,
		RightKeys: rightKeys,
		JoinType:  joinType,
	}
}

func (p *HashJoinPlan) Type() PlanType { return PlanHashJoin }

func (p *HashJoinPlan) Left() PlanNode  { return p.children[0] }
func (p *HashJoinPlan) Right() PlanNode { return p.children[1] }

// AggregationPlan groups its child by the group-by expressions and folds one
// aggregate per (expression, type) pair.
type AggregationPlan struct {
	basePlan
	GroupBys   []Expression
	Aggregates []Expression
	AggTypes   []AggregationType
}

func NewAggregationPlan(schema *metadata.Schema, child PlanNode, groupBys, aggregates []Expression, aggTypes []AggregationType) *AggregationPlan {
	return &AggregationPlan{
		basePlan:   basePlan{schema: schema, children: []PlanNode{child}},
		GroupBys:   groupBys,
		Aggregates: aggregates,
		AggTypes:   aggTypes,
	}
}

func (p *AggregationPlan) Type() PlanType { return PlanAggregation }

// SortPlan materializes and orders its child.
type SortPlan struct {
	basePlan
	OrderBys []OrderBy
}

func NewSortPlan(schema *metadata.Schema, child PlanNode, orderBys []OrderBy) *SortPlan {
	return &SortPlan{basePlan: basePlan{schema: schema, children: []PlanNode{child}}, OrderBys: orderBys}
}

func (p *SortPlan) Type() PlanType { return PlanSort }

// LimitPlan passes through the first N child rows.
type LimitPlan struct {
	basePlan
	Limit int
}

func NewLimitPlan(schema *metadata.Schema, child PlanNode, limit int) *LimitPlan {
	return &LimitPlan{basePlan: basePlan{schema: schema, children: []PlanNode{child}}, Limit: limit}
}

func (p *LimitPlan) Type() PlanType { return PlanLimit }

// TopNPlan keeps the N smallest child rows under its ordering.
type TopNPlan struct {
	basePlan
	N        int
	OrderBys []OrderBy
}

func NewTopNPlan(schema *metadata.Schema, child PlanNode, n int, orderBys []OrderBy) *TopNPlan {
	return &TopNPlan{basePlan: basePlan{schema: schema, children: []PlanNode{child}}, N: n, OrderBys: orderBys}
}

func (p *TopNPlan) Type() PlanType { return PlanTopN }

// WindowPlan computes window functions. Placeholder columns (ColumnValue
// with ColIdx == WindowPlaceholderColIdx) receive the functions' outputs in
// declaration order.
type WindowPlan struct {
	basePlan
	Columns   []Expression
	Functions []WindowFunction
}

func NewWindowPlan(schema *metadata.Schema, child PlanNode, columns []Expression, functions []WindowFunction) *WindowPlan {
	return &WindowPlan{
		basePlan:  basePlan{schema: schema, children: []PlanNode{child}},
		Columns:   columns,
		Functions: functions,
	}
}

func (p *WindowPlan) Type() PlanType { return PlanWindow }

// ProjectionPlan evaluates one expression per output column.
type ProjectionPlan struct {
	basePlan
	Expressions []Expression
}

func NewProjectionPlan(schema *metadata.Schema, child PlanNode, exprs []Expression) *ProjectionPlan {
	return &ProjectionPlan{basePlan: basePlan{schema: schema, children: []PlanNode{child}}, Expressions: exprs}
}

func (p *ProjectionPlan) Type() PlanType { return PlanProjection }

// FilterPlan drops child rows whose predicate is not true.
type FilterPlan struct {
	basePlan
	Predicate Expression
}

func NewFilterPlan(schema *metadata.Schema, child PlanNode, predicate Expression) *FilterPlan {
	return &FilterPlan{basePlan: basePlan{schema: schema, children: []PlanNode{child}}, Predicate: predicate}
}

func (p *FilterPlan) Type() PlanType { return PlanFilter }
