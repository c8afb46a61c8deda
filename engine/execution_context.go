package engine

import (
	"github.com/zhukovaskychina/xminidb/buffer_pool"
	"github.com/zhukovaskychina/xminidb/manager"
	"github.com/zhukovaskychina/xminidb/metadata"
)

// ExecutionContext 执行上下文：一棵算子树共享的事务与目录句柄
type ExecutionContext struct {
	Txn     *manager.Transaction
	TxnMgr  *manager.TransactionManager
	Catalog *metadata.Catalog
	BPM     *buffer_pool.BufferPoolManager
}

func NewExecutionContext(txn *manager.Transaction, txnMgr *manager.TransactionManager, catalog *metadata.Catalog, bpm *buffer_pool.BufferPoolManager) *ExecutionContext {
	return &ExecutionContext{
		Txn:     txn,
		TxnMgr:  txnMgr,
		Catalog: catalog,
		BPM:     bpm,
	}
}
