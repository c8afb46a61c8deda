// Package engine implements the pull-based executor tree. Every operator
// follows the volcano contract: Open prepares state, Next yields one row or
// nil at exhaustion, Close releases resources.
package engine

import (
	"context"
	"errors"

	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/metadata"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

var (
	// ErrWriteWriteConflict surfaces a first-writer-wins conflict; the
	// offending transaction has been tainted and may only abort.
	ErrWriteWriteConflict = errors.New("write-write conflict detected")
	// ErrUniqueKeyViolation surfaces a primary-key duplicate on insert.
	ErrUniqueKeyViolation = errors.New("primary key already exists")
	// ErrUnsupportedPlan marks a plan shape the builder cannot compile.
	ErrUnsupportedPlan = errors.New("unsupported plan node")
	// ErrUnsupportedJoinType joins other than INNER and LEFT are not built.
	ErrUnsupportedJoinType = errors.New("join type not supported")
)

// Row is one unit flowing between operators.
type Row struct {
	Tuple *table.Tuple
	RID   common.RID
}

// Executor 算子接口
type Executor interface {
	// Open 初始化算子
	Open(ctx context.Context) error
	// Next 获取下一行，返回nil表示结束
	Next(ctx context.Context) (*Row, error)
	// Close 关闭算子并释放资源
	Close() error
	// Schema 输出行的结构
	Schema() *metadata.Schema
}

// baseExecutor wires child management shared by every operator.
type baseExecutor struct {
	children []Executor
	schema   *metadata.Schema
}

func (b *baseExecutor) Open(ctx context.Context) error {
	for _, child := range b.children {
		if err := child.Open(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (b *baseExecutor) Close() error {
	for _, child := range b.children {
		if err := child.Close(); err != nil {
			return err
		}
	}
	return nil
}

func (b *baseExecutor) Schema() *metadata.Schema { return b.schema }

// child returns the only child of a unary operator.
func (b *baseExecutor) child() Executor { return b.children[0] }
