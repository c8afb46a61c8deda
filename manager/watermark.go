package manager

import (
	"errors"

	"github.com/google/btree"
	"github.com/zhukovaskychina/xminidb/common"
)

var ErrReadTSBehindCommit = errors.New("read ts behind commit ts")

// readTSItem is one live read timestamp with its refcount.
type readTSItem struct {
	ts    common.Timestamp
	count int
}

func (a *readTSItem) Less(b btree.Item) bool {
	return a.ts < b.(*readTSItem).ts
}

// Watermark tracks the minimum read timestamp across live transactions.
// 没有活跃事务时，水位线等于最近一次提交的时间戳。
// Not self-synchronized: the transaction manager mutates it under its own
// transaction-map lock.
type Watermark struct {
	commitTS  common.Timestamp
	reads     *btree.BTree
	watermark common.Timestamp
}

func NewWatermark() *Watermark {
	return &Watermark{reads: btree.New(8)}
}

// AddTxn registers a live read timestamp. Timestamps must not regress below
// the latest commit.
func (w *Watermark) AddTxn(readTS common.Timestamp) error {
	if readTS < w.commitTS {
		return ErrReadTSBehindCommit
	}
	key := &readTSItem{ts: readTS}
	if item := w.reads.Get(key); item != nil {
		item.(*readTSItem).count++
	} else {
		key.count = 1
		w.reads.ReplaceOrInsert(key)
	}
	w.watermark = w.reads.Min().(*readTSItem).ts
	return nil
}

// RemoveTxn drops one reference to a read timestamp.
func (w *Watermark) RemoveTxn(readTS common.Timestamp) {
	key := &readTSItem{ts: readTS}
	item := w.reads.Get(key)
	if item == nil {
		return
	}
	entry := item.(*readTSItem)
	entry.count--
	if entry.count <= 0 {
		w.reads.Delete(key)
	}
	if w.reads.Len() > 0 {
		w.watermark = w.reads.Min().(*readTSItem).ts
	} else {
		w.watermark = w.commitTS
	}
}

// UpdateCommitTs advances the latest committed timestamp.
func (w *Watermark) UpdateCommitTs(commitTS common.Timestamp) {
	if commitTS > w.commitTS {
		w.commitTS = commitTS
	}
	if w.reads.Len() == 0 {
		w.watermark = w.commitTS
	}
}

// Watermark is the minimum live read timestamp, or the latest commit
// timestamp when no transaction is live.
func (w *Watermark) Watermark() common.Timestamp {
	if w.reads.Len() == 0 {
		return w.commitTS
	}
	return w.watermark
}
