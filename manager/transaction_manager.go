package manager

import (
	"errors"
	"sync"

	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/logger"
	"github.com/zhukovaskychina/xminidb/metadata"
)

var (
	ErrTxnNotRunning = errors.New("txn not in running state")
	ErrTxnNotActive  = errors.New("txn not in running / tainted state")
)

// TransactionManager 事务管理器
//
// Three locks: mu guards the transaction map and the watermark; commitMu
// serializes Commit so commit timestamps are totally ordered; versionMu
// guards the RID -> undo link map.
type TransactionManager struct {
	mu       sync.RWMutex
	commitMu sync.Mutex

	nextTxnID    uint64 // 事务ID分配器，带标记位
	lastCommitTS common.Timestamp

	txnMap      map[uint64]*Transaction
	runningTxns *Watermark

	versionMu   sync.RWMutex
	versionInfo map[common.RID]UndoLink // RID -> 最新undo日志

	catalog *metadata.Catalog
}

func NewTransactionManager(catalog *metadata.Catalog) *TransactionManager {
	return &TransactionManager{
		nextTxnID:   common.TxnStartID,
		txnMap:      make(map[uint64]*Transaction),
		runningTxns: NewWatermark(),
		versionInfo: make(map[common.RID]UndoLink),
		catalog:     catalog,
	}
}

// Begin starts a transaction reading at the latest committed timestamp.
func (tm *TransactionManager) Begin(isolation IsolationLevel) *Transaction {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	txnID := tm.nextTxnID
	tm.nextTxnID++
	txn := newTransaction(txnID, isolation, tm.lastCommitTS)
	tm.txnMap[txnID] = txn

	if err := tm.runningTxns.AddTxn(txn.readTS); err != nil {
		// read_ts is always >= commit_ts under mu
		logger.Errorf("watermark rejected read ts %d: %v", txn.readTS, err)
	}
	return txn
}

// VerifyTxn runs the serializable certification. The default implementation
// accepts every history.
func (tm *TransactionManager) VerifyTxn(txn *Transaction) bool { return true }

// Commit promotes every write of the transaction to a fresh commit
// timestamp.
func (tm *TransactionManager) Commit(txn *Transaction) error {
	tm.commitMu.Lock()

	if txn.State() != TxnRunning {
		tm.commitMu.Unlock()
		return ErrTxnNotRunning
	}

	if txn.IsolationLevel() == Serializable {
		if !tm.VerifyTxn(txn) {
			tm.commitMu.Unlock()
			_ = tm.Abort(txn)
			return errors.New("serializable validation failed")
		}
	}

	commitTS := tm.lastCommitTS + 1
	txn.commitTS = commitTS

	// Re-stamp every written tuple from the temporary txn id to the commit
	// timestamp, leaving the delete markers untouched.
	for tableOID, rids := range txn.WriteSet() {
		info, err := tm.catalog.GetTableByOID(tableOID)
		if err != nil {
			logger.Errorf("commit: table oid %d vanished: %v", tableOID, err)
			continue
		}
		for _, rid := range rids {
			meta, err := info.Heap.GetTupleMeta(rid)
			if err != nil {
				tm.commitMu.Unlock()
				return err
			}
			meta.TS = commitTS
			if err := info.Heap.UpdateTupleMeta(meta, rid); err != nil {
				tm.commitMu.Unlock()
				return err
			}
		}
	}

	tm.mu.Lock()
	tm.lastCommitTS = commitTS
	txn.setState(TxnCommitted)
	tm.runningTxns.UpdateCommitTs(commitTS)
	tm.runningTxns.RemoveTxn(txn.readTS)
	tm.mu.Unlock()

	tm.commitMu.Unlock()
	return nil
}

// Abort ends a running or tainted transaction. In-place writes are not
// physically undone: they stay stamped with the transaction id, which no
// reader ever treats as visible. GarbageCollection does not rewrite or
// remove these tuples; they keep the aborted transaction's id.
func (tm *TransactionManager) Abort(txn *Transaction) error {
	state := txn.State()
	if state != TxnRunning && state != TxnTainted {
		return ErrTxnNotActive
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	txn.setState(TxnAborted)
	tm.runningTxns.RemoveTxn(txn.readTS)
	return nil
}

// LastCommitTS 最近一次提交的时间戳
func (tm *TransactionManager) LastCommitTS() common.Timestamp {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.lastCommitTS
}

// GetWatermark is the lowest read timestamp any live transaction holds.
func (tm *TransactionManager) GetWatermark() common.Timestamp {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.runningTxns.Watermark()
}

// GetTransaction resolves a transaction id, e.g. while walking undo links.
func (tm *TransactionManager) GetTransaction(txnID uint64) (*Transaction, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	txn, ok := tm.txnMap[txnID]
	return txn, ok
}

// GetUndoLink reads the head of an RID's version chain.
func (tm *TransactionManager) GetUndoLink(rid common.RID) (UndoLink, bool) {
	tm.versionMu.RLock()
	defer tm.versionMu.RUnlock()
	link, ok := tm.versionInfo[rid]
	return link, ok
}

// UpdateUndoLink replaces the head of an RID's version chain.
func (tm *TransactionManager) UpdateUndoLink(rid common.RID, link UndoLink) {
	tm.versionMu.Lock()
	defer tm.versionMu.Unlock()
	if link.IsValid() {
		tm.versionInfo[rid] = link
	} else {
		delete(tm.versionInfo, rid)
	}
}

// GetUndoLog resolves a link into the owning transaction's log list.
func (tm *TransactionManager) GetUndoLog(link UndoLink) (UndoLog, bool) {
	txn, ok := tm.GetTransaction(link.PrevTxn)
	if !ok {
		return UndoLog{}, false
	}
	return txn.GetUndoLog(link.PrevLogIdx)
}

// GarbageCollection removes undo logs unreachable from any possible read at
// or above the watermark, then drops finished transactions whose whole log
// list has become unreachable.
func (tm *TransactionManager) GarbageCollection() {
	wm := tm.GetWatermark()

	// Phase 1: walk every heap and mark unreachable logs, grouped by their
	// owning transaction.
	invisible := make(map[uint64]int)
	for _, tableName := range tm.catalog.TableNames() {
		info, err := tm.catalog.GetTable(tableName)
		if err != nil {
			continue
		}
		for it := info.Heap.MakeIterator(); !it.IsEnd(); it.Next() {
			meta, _ := it.Tuple()
			rid := it.RID()

			link, _ := tm.GetUndoLink(rid)
			// Find the first log at or below the watermark; everything past
			// it is unreachable.
			reachableEnd := meta.TS <= wm
			if !reachableEnd {
				for link.IsValid() {
					log, ok := tm.GetUndoLog(link)
					if !ok {
						break
					}
					link = log.PrevVersion
					if log.TS <= wm {
						reachableEnd = true
						break
					}
				}
			}
			if reachableEnd {
				for link.IsValid() {
					log, ok := tm.GetUndoLog(link)
					if !ok {
						break
					}
					invisible[link.PrevTxn]++
					link = log.PrevVersion
				}
			}
		}
	}

	// Phase 2: drop finished transactions whose entire log list is
	// unreachable, or that never produced a log.
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for txnID, txn := range tm.txnMap {
		state := txn.State()
		if state != TxnCommitted && state != TxnAborted {
			continue
		}
		if txn.UndoLogCount() == invisible[txnID] {
			delete(tm.txnMap, txnID)
			logger.Debugf("gc: collected txn %d (%d logs)", common.TxnHumanID(txnID), invisible[txnID])
		}
	}
}
