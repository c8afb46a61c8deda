// Package plan models query plans as tagged variants: a PlanType
// discriminant plus concrete node structs, traversed by the executor builder
// and rewritten by the optimizer passes.
package plan

import (
	"errors"
	"fmt"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/metadata"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

var ErrBadExpression = errors.New("malformed expression")

// CompareType 比较运算符
type CompareType uint8

const (
	CompareEqual CompareType = iota
	CompareNotEqual
	CompareLessThan
	CompareLessThanOrEqual
	CompareGreaterThan
	CompareGreaterThanOrEqual
)

func (c CompareType) String() string {
	switch c {
	case CompareEqual:
		return "="
	case CompareNotEqual:
		return "!="
	case CompareLessThan:
		return "<"
	case CompareLessThanOrEqual:
		return "<="
	case CompareGreaterThan:
		return ">"
	case CompareGreaterThanOrEqual:
		return ">="
	}
	return "?"
}

// LogicType 逻辑运算符
type LogicType uint8

const (
	LogicAnd LogicType = iota
	LogicOr
)

// ArithmeticType 算术运算符
type ArithmeticType uint8

const (
	ArithmeticPlus ArithmeticType = iota
	ArithmeticMinus
)

// Expression is evaluated against one row (or a pair of rows for join
// predicates) and yields a value.
type Expression interface {
	Evaluate(tuple *table.Tuple, schema *metadata.Schema) (basic.Value, error)
	EvaluateJoin(left *table.Tuple, leftSchema *metadata.Schema, right *table.Tuple, rightSchema *metadata.Schema) (basic.Value, error)
	Children() []Expression
	String() string
}

// WindowPlaceholderColIdx marks a projection column whose value comes from a
// window function rather than the input row.
const WindowPlaceholderColIdx = -1

// ColumnValueExpression reads one column of the input row. TupleIdx selects
// the join side: 0 = left/outer, 1 = right/inner.
type ColumnValueExpression struct {
	TupleIdx int
	ColIdx   int
	ValType  basic.TypeID
}

func NewColumnValue(tupleIdx, colIdx int, valType basic.TypeID) *ColumnValueExpression {
	return &ColumnValueExpression{TupleIdx: tupleIdx, ColIdx: colIdx, ValType: valType}
}

func (e *ColumnValueExpression) Evaluate(tuple *table.Tuple, schema *metadata.Schema) (basic.Value, error) {
	if e.ColIdx < 0 || e.ColIdx >= tuple.ColumnCount() {
		return basic.Value{}, fmt.Errorf("%w: column %d out of range", ErrBadExpression, e.ColIdx)
	}
	return tuple.Value(e.ColIdx), nil
}

func (e *ColumnValueExpression) EvaluateJoin(left *table.Tuple, leftSchema *metadata.Schema, right *table.Tuple, rightSchema *metadata.Schema) (basic.Value, error) {
	if e.TupleIdx == 0 {
		return e.Evaluate(left, leftSchema)
	}
	return e.Evaluate(right, rightSchema)
}

func (e *ColumnValueExpression) Children() []Expression { return nil }

func (e *ColumnValueExpression) String() string {
	return fmt.Sprintf("#%d.%d", e.TupleIdx, e.ColIdx)
}

// ConstantValueExpression yields a fixed value.
type ConstantValueExpression struct {
	Val basic.Value
}

func NewConstant(v basic.Value) *ConstantValueExpression {
	return &ConstantValueExpression{Val: v}
}

func (e *ConstantValueExpression) Evaluate(*table.Tuple, *metadata.Schema) (basic.Value, error) {
	return e.Val, nil
}

func (e *ConstantValueExpression) EvaluateJoin(*table.Tuple, *metadata.Schema, *table.Tuple, *metadata.Schema) (basic.Value, error) {
	return e.Val, nil
}

func (e *ConstantValueExpression) Children() []Expression { return nil }

func (e *ConstantValueExpression) String() string { return e.Val.String() }

// ComparisonExpression compares two child expressions into a boolean.
// Comparison against NULL yields NULL, which filters treat as false.
type ComparisonExpression struct {
	CompareType CompareType
	Left        Expression
	Right       Expression
}

func NewComparison(ct CompareType, left, right Expression) *ComparisonExpression {
	return &ComparisonExpression{CompareType: ct, Left: left, Right: right}
}

func (e *ComparisonExpression) compare(lv, rv basic.Value) (basic.Value, error) {
	if lv.IsNull() || rv.IsNull() {
		return basic.NewNullValue(basic.TypeBoolean), nil
	}
	cmp, err := lv.Compare(rv)
	if err != nil {
		return basic.Value{}, err
	}
	var result bool
	switch e.CompareType {
	case CompareEqual:
		result = cmp == 0
	case CompareNotEqual:
		result = cmp != 0
	case CompareLessThan:
		result = cmp < 0
	case CompareLessThanOrEqual:
		result = cmp <= 0
	case CompareGreaterThan:
		result = cmp > 0
	case CompareGreaterThanOrEqual:
		result = cmp >= 0
	}
	return basic.NewBooleanValue(result), nil
}

func (e *ComparisonExpression) Evaluate(tuple *table.Tuple, schema *metadata.Schema) (basic.Value, error) {
	lv, err := e.Left.Evaluate(tuple, schema)
	if err != nil {
		return basic.Value{}, err
	}
	rv, err := e.Right.Evaluate(tuple, schema)
	if err != nil {
		return basic.Value{}, err
	}
	return e.compare(lv, rv)
}

func (e *ComparisonExpression) EvaluateJoin(left *table.Tuple, leftSchema *metadata.Schema, right *table.Tuple, rightSchema *metadata.Schema) (basic.Value, error) {
	lv, err := e.Left.EvaluateJoin(left, leftSchema, right, rightSchema)
	if err != nil {
		return basic.Value{}, err
	}
	rv, err := e.Right.EvaluateJoin(left, leftSchema, right, rightSchema)
	if err != nil {
		return basic.Value{}, err
	}
	return e.compare(lv, rv)
}

func (e *ComparisonExpression) Children() []Expression { return []Expression{e.Left, e.Right} }

func (e *ComparisonExpression) String() string {
	return fmt.Sprintf("(%s%s%s)", e.Left, e.CompareType, e.Right)
}

// LogicExpression combines two boolean children.
type LogicExpression struct {
	LogicType LogicType
	Left      Expression
	Right     Expression
}

func NewLogic(lt LogicType, left, right Expression) *LogicExpression {
	return &LogicExpression{LogicType: lt, Left: left, Right: right}
}

func (e *LogicExpression) combine(lv, rv basic.Value) basic.Value {
	l := !lv.IsNull() && lv.AsBoolean()
	r := !rv.IsNull() && rv.AsBoolean()
	if e.LogicType == LogicAnd {
		return basic.NewBooleanValue(l && r)
	}
	return basic.NewBooleanValue(l || r)
}

func (e *LogicExpression) Evaluate(tuple *table.Tuple, schema *metadata.Schema) (basic.Value, error) {
	lv, err := e.Left.Evaluate(tuple, schema)
	if err != nil {
		return basic.Value{}, err
	}
	rv, err := e.Right.Evaluate(tuple, schema)
	if err != nil {
		return basic.Value{}, err
	}
	return e.combine(lv, rv), nil
}

func (e *LogicExpression) EvaluateJoin(left *table.Tuple, leftSchema *metadata.Schema, right *table.Tuple, rightSchema *metadata.Schema) (basic.Value, error) {
	lv, err := e.Left.EvaluateJoin(left, leftSchema, right, rightSchema)
	if err != nil {
		return basic.Value{}, err
	}
	rv, err := e.Right.EvaluateJoin(left, leftSchema, right, rightSchema)
	if err != nil {
		return basic.Value{}, err
	}
	return e.combine(lv, rv), nil
}

func (e *LogicExpression) Children() []Expression { return []Expression{e.Left, e.Right} }

func (e *LogicExpression) String() string {
	op := "AND"
	if e.LogicType == LogicOr {
		op = "OR"
	}
	return fmt.Sprintf("(%s %s %s)", e.Left, op, e.Right)
}

// ArithmeticExpression adds or subtracts two numeric children. NULL inputs
// propagate.
type ArithmeticExpression struct {
	ArithmeticType ArithmeticType
	Left           Expression
	Right          Expression
}

func NewArithmetic(at ArithmeticType, left, right Expression) *ArithmeticExpression {
	return &ArithmeticExpression{ArithmeticType: at, Left: left, Right: right}
}

func (e *ArithmeticExpression) apply(lv, rv basic.Value) (basic.Value, error) {
	if lv.IsNull() || rv.IsNull() {
		return basic.NewNullValue(lv.TypeID()), nil
	}
	if e.ArithmeticType == ArithmeticPlus {
		return lv.Add(rv)
	}
	return lv.Sub(rv)
}

func (e *ArithmeticExpression) Evaluate(tuple *table.Tuple, schema *metadata.Schema) (basic.Value, error) {
	lv, err := e.Left.Evaluate(tuple, schema)
	if err != nil {
		return basic.Value{}, err
	}
	rv, err := e.Right.Evaluate(tuple, schema)
	if err != nil {
		return basic.Value{}, err
	}
	return e.apply(lv, rv)
}

func (e *ArithmeticExpression) EvaluateJoin(left *table.Tuple, leftSchema *metadata.Schema, right *table.Tuple, rightSchema *metadata.Schema) (basic.Value, error) {
	lv, err := e.Left.EvaluateJoin(left, leftSchema, right, rightSchema)
	if err != nil {
		return basic.Value{}, err
	}
	rv, err := e.Right.EvaluateJoin(left, leftSchema, right, rightSchema)
	if err != nil {
		return basic.Value{}, err
	}
	return e.apply(lv, rv)
}

func (e *ArithmeticExpression) Children() []Expression { return []Expression{e.Left, e.Right} }

func (e *ArithmeticExpression) String() string {
	op := "+"
	if e.ArithmeticType == ArithmeticMinus {
		op = "-"
	}
	return fmt.Sprintf("(%s%s%s)", e.Left, op, e.Right)
}
