package manager

import (
	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/logger"
	"github.com/zhukovaskychina/xminidb/metadata"
	"github.com/zhukovaskychina/xminidb/storage/pages"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

// ReconstructTuple folds undo logs (newest first) over a base tuple and
// returns the historical version, or (nil, false) when that version is a
// delete.
func ReconstructTuple(schema *metadata.Schema, baseTuple *table.Tuple, baseMeta pages.TupleMeta, logs []UndoLog) (*table.Tuple, bool) {
	values := make([]basic.Value, schema.ColumnCount())
	copy(values, baseTuple.Values())
	deleted := baseMeta.IsDeleted

	for _, log := range logs {
		if log.IsDeleted {
			deleted = true
			continue
		}
		deleted = false
		partialIdx := 0
		for i := 0; i < len(log.ModifiedFields) && i < len(values); i++ {
			if log.ModifiedFields[i] {
				values[i] = log.Tuple.Value(partialIdx)
				partialIdx++
			}
		}
	}
	if deleted {
		return nil, false
	}
	return table.NewTupleWithRID(values, baseTuple.RID()), true
}

// VisibleTuple resolves the version of rid's tuple visible to txn at its
// read timestamp. Returns (nil, false) when no version is visible or the
// visible version is deleted.
func VisibleTuple(tm *TransactionManager, txn *Transaction, schema *metadata.Schema, baseMeta pages.TupleMeta, baseTuple *table.Tuple) (*table.Tuple, bool) {
	// The base tuple is visible when this transaction wrote it, or when it
	// was committed at or before the read timestamp.
	if baseMeta.TS == txn.ID() ||
		(!common.IsTxnTimestamp(baseMeta.TS) && baseMeta.TS <= txn.ReadTS()) {
		if baseMeta.IsDeleted {
			return nil, false
		}
		return baseTuple, true
	}

	// Otherwise walk the chain, collecting deltas until one at or below the
	// read timestamp closes the reconstruction.
	var logs []UndoLog
	link, _ := tm.GetUndoLink(baseTuple.RID())
	found := false
	for link.IsValid() {
		log, ok := tm.GetUndoLog(link)
		if !ok {
			break
		}
		logs = append(logs, log)
		if log.TS <= txn.ReadTS() {
			found = true
			break
		}
		link = log.PrevVersion
	}
	if !found {
		// The tuple did not exist at the read timestamp.
		return nil, false
	}
	return ReconstructTuple(schema, baseTuple, baseMeta, logs)
}

// DumpVersionChain logs every RID's base tuple and undo chain of one table,
// a debug aid for MVCC tests.
func DumpVersionChain(tm *TransactionManager, info *metadata.TableInfo) {
	for it := info.Heap.MakeIterator(); !it.IsEnd(); it.Next() {
		meta, tuple := it.Tuple()
		rid := it.RID()

		if common.IsTxnTimestamp(meta.TS) {
			logger.Debugf("RID=%s ts=txn%d deleted=%t tuple=%s",
				rid, common.TxnHumanID(meta.TS), meta.IsDeleted, tuple)
		} else {
			logger.Debugf("RID=%s ts=%d deleted=%t tuple=%s",
				rid, meta.TS, meta.IsDeleted, tuple)
		}

		link, _ := tm.GetUndoLink(rid)
		for link.IsValid() {
			log, ok := tm.GetUndoLog(link)
			if !ok {
				break
			}
			if log.IsDeleted {
				logger.Debugf("  txn%d@%d <del> ts=%d",
					common.TxnHumanID(link.PrevTxn), link.PrevLogIdx, log.TS)
			} else {
				logger.Debugf("  txn%d@%d %s ts=%d",
					common.TxnHumanID(link.PrevTxn), link.PrevLogIdx, log.Tuple, log.TS)
			}
			link = log.PrevVersion
		}
	}
}
