package engine

import (
	"context"

	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/buffer_pool"
	"github.com/zhukovaskychina/xminidb/conf"
	"github.com/zhukovaskychina/xminidb/logger"
	"github.com/zhukovaskychina/xminidb/manager"
	"github.com/zhukovaskychina/xminidb/metadata"
	"github.com/zhukovaskychina/xminidb/plan"
	"github.com/zhukovaskychina/xminidb/storage/disk"
)

// StorageEngine 存储引擎门面：装配缓冲池、目录、事务管理器与优化器
type StorageEngine struct {
	cfg *conf.Cfg

	diskMgr   disk.Manager
	bpm       *buffer_pool.BufferPoolManager
	catalog   *metadata.Catalog
	txnMgr    *manager.TransactionManager
	optimizer *plan.Optimizer
}

// NewStorageEngine assembles an engine over a file-backed page store.
func NewStorageEngine(cfg *conf.Cfg) (*StorageEngine, error) {
	diskMgr, err := disk.NewFileManager(cfg.DataDir, cfg.AppName+".db", cfg.PageSize)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return newStorageEngine(cfg, diskMgr), nil
}

// NewMemoryStorageEngine assembles an engine over an in-memory page store,
// the configuration tests run against.
func NewMemoryStorageEngine(cfg *conf.Cfg) *StorageEngine {
	return newStorageEngine(cfg, disk.NewMemoryManager(cfg.PageSize))
}

func newStorageEngine(cfg *conf.Cfg, diskMgr disk.Manager) *StorageEngine {
	if err := logger.InitLogger(logger.LogConfig{LogPath: cfg.LogPath, LogLevel: cfg.LogLevel}); err != nil {
		logger.Warnf("logger init failed, continuing with defaults: %v", err)
	}
	bpm := buffer_pool.NewBufferPoolManager(buffer_pool.Config{
		PoolSize:  cfg.PoolSize,
		PageSize:  cfg.PageSize,
		ReplacerK: cfg.ReplacerK,
	}, diskMgr)
	catalog := metadata.NewCatalog(bpm, cfg)
	txnMgr := manager.NewTransactionManager(catalog)

	logger.Infof("%s storage engine up: pool_size=%d page_size=%d replacer_k=%d",
		cfg.AppName, cfg.PoolSize, cfg.PageSize, cfg.ReplacerK)
	return &StorageEngine{
		cfg:       cfg,
		diskMgr:   diskMgr,
		bpm:       bpm,
		catalog:   catalog,
		txnMgr:    txnMgr,
		optimizer: plan.NewOptimizer(catalog),
	}
}

func (e *StorageEngine) Catalog() *metadata.Catalog                 { return e.catalog }
func (e *StorageEngine) TxnManager() *manager.TransactionManager    { return e.txnMgr }
func (e *StorageEngine) BufferPool() *buffer_pool.BufferPoolManager { return e.bpm }
func (e *StorageEngine) Optimizer() *plan.Optimizer                 { return e.optimizer }

// Begin 开启事务
func (e *StorageEngine) Begin(isolation manager.IsolationLevel) *manager.Transaction {
	return e.txnMgr.Begin(isolation)
}

// ExecutePlan optimizes and runs a plan tree to exhaustion inside txn.
func (e *StorageEngine) ExecutePlan(ctx context.Context, txn *manager.Transaction, p plan.PlanNode) ([]*Row, error) {
	optimized := e.optimizer.Optimize(p)
	execCtx := NewExecutionContext(txn, e.txnMgr, e.catalog, e.bpm)
	exec, err := BuildExecutor(execCtx, optimized)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := exec.Open(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	defer func() {
		if err := exec.Close(); err != nil {
			logger.Errorf("close executor: %v", err)
		}
	}()

	var rows []*Row
	for {
		row, err := exec.Next(ctx)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if row == nil {
			return rows, nil
		}
		rows = append(rows, row)
	}
}

// Close flushes the pool and shuts the disk path down.
func (e *StorageEngine) Close() {
	e.bpm.Close()
	if err := e.diskMgr.Close(); err != nil {
		logger.Errorf("close disk manager: %v", err)
	}
}
