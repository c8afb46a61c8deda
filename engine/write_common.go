package engine

import (
	"github.com/juju/errors"

	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/manager"
	"github.com/zhukovaskychina/xminidb/storage/pages"
)

// checkWriteConflict applies the first-writer-wins rule: a tuple stamped
// with another transaction's id (whatever that transaction's state), or committed after this
// transaction's read timestamp, may not be written. The transaction is
// tainted on conflict and the error surfaces to the caller.
func checkWriteConflict(txn *manager.Transaction, meta pages.TupleMeta, rid common.RID) error {
	conflict := false
	if common.IsTxnTimestamp(meta.TS) {
		conflict = meta.TS != txn.ID()
	} else {
		conflict = meta.TS > txn.ReadTS()
	}
	if conflict {
		txn.SetTainted()
		return errors.Annotatef(ErrWriteWriteConflict, "rid %s", rid)
	}
	return nil
}
