// Package manager implements the MVCC transaction layer: transactions with
// tagged timestamps, per-transaction undo logs, the version store mapping
// RIDs to undo chains, the watermark tracker and the garbage collector.
package manager

import (
	"sync"

	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

// IsolationLevel 事务隔离级别
type IsolationLevel uint8

const (
	SnapshotIsolation IsolationLevel = iota
	Serializable
)

// TxnState 事务状态
type TxnState uint8

const (
	TxnRunning TxnState = iota
	TxnTainted
	TxnCommitted
	TxnAborted
)

func (s TxnState) String() string {
	switch s {
	case TxnRunning:
		return "RUNNING"
	case TxnTainted:
		return "TAINTED"
	case TxnCommitted:
		return "COMMITTED"
	case TxnAborted:
		return "ABORTED"
	}
	return "UNKNOWN"
}

// UndoLink points at one undo log inside its owning transaction's log list.
// The zero value is the invalid link: real transaction ids always carry the
// tag bit.
type UndoLink struct {
	PrevTxn    uint64
	PrevLogIdx int
}

func (l UndoLink) IsValid() bool { return l.PrevTxn != 0 }

// UndoLog carries the pre-image of one write: the values of the modified
// columns before the write, and the timestamp the pre-image belongs to.
type UndoLog struct {
	IsDeleted      bool
	ModifiedFields []bool
	Tuple          *table.Tuple // partial tuple, modified columns only
	TS             common.Timestamp
	PrevVersion    UndoLink
}

// Transaction 事务
type Transaction struct {
	mu sync.Mutex

	id        uint64
	isolation IsolationLevel
	state     TxnState
	readTS    common.Timestamp
	commitTS  common.Timestamp

	undoLogs []UndoLog
	writeSet map[uint32]map[common.RID]struct{}
}

func newTransaction(id uint64, isolation IsolationLevel, readTS common.Timestamp) *Transaction {
	return &Transaction{
		id:        id,
		isolation: isolation,
		state:     TxnRunning,
		readTS:    readTS,
		writeSet:  make(map[uint32]map[common.RID]struct{}),
	}
}

func (t *Transaction) ID() uint64                     { return t.id }
func (t *Transaction) IsolationLevel() IsolationLevel { return t.isolation }
func (t *Transaction) ReadTS() common.Timestamp       { return t.readTS }
func (t *Transaction) CommitTS() common.Timestamp     { return t.commitTS }

// TempTS is the tagged timestamp this transaction stamps its in-flight
// writes with; it equals the transaction id.
func (t *Transaction) TempTS() common.Timestamp { return t.id }

func (t *Transaction) State() TxnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) setState(s TxnState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// SetTainted marks the transaction after a write-write conflict or a
// uniqueness violation. A tainted transaction can only abort.
func (t *Transaction) SetTainted() { t.setState(TxnTainted) }

// AppendUndoLog adds a log to the transaction's list and returns the link
// that reaches it.
func (t *Transaction) AppendUndoLog(log UndoLog) UndoLink {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undoLogs = append(t.undoLogs, log)
	return UndoLink{PrevTxn: t.id, PrevLogIdx: len(t.undoLogs) - 1}
}

// ModifyUndoLog rewrites a previously appended log; only the repeat-write
// merge path in the update executor uses this.
func (t *Transaction) ModifyUndoLog(idx int, log UndoLog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undoLogs[idx] = log
}

// GetUndoLog fetches a log by position.
func (t *Transaction) GetUndoLog(idx int) (UndoLog, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= len(t.undoLogs) {
		return UndoLog{}, false
	}
	return t.undoLogs[idx], true
}

func (t *Transaction) UndoLogCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.undoLogs)
}

// AppendWriteSet records an RID this transaction has modified.
func (t *Transaction) AppendWriteSet(tableOID uint32, rid common.RID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rids, ok := t.writeSet[tableOID]
	if !ok {
		rids = make(map[common.RID]struct{})
		t.writeSet[tableOID] = rids
	}
	rids[rid] = struct{}{}
}

// WriteSet snapshots the write set for commit processing.
func (t *Transaction) WriteSet() map[uint32][]common.RID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[uint32][]common.RID, len(t.writeSet))
	for oid, rids := range t.writeSet {
		for rid := range rids {
			out[oid] = append(out[oid], rid)
		}
	}
	return out
}
