package table

import (
	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/storage/pages"
)

// heapEntry is one materialized (meta, tuple, rid) triple.
type heapEntry struct {
	meta  pages.TupleMeta
	tuple *Tuple
	rid   common.RID
}

// TableIterator walks a heap in page order, then slot order. It latches one
// page at a time: the entries of the current page are materialized, the
// latch is dropped, and the iterator moves on.
type TableIterator struct {
	heap *TableHeap

	nextPageID common.PageID
	entries    []heapEntry
	pos        int
	err        error
}

// MakeIterator positions a new iterator at the first tuple.
func (h *TableHeap) MakeIterator() *TableIterator {
	it := &TableIterator{heap: h, nextPageID: h.firstPageID}
	it.loadNextPage()
	return it
}

func (it *TableIterator) loadNextPage() {
	it.entries = it.entries[:0]
	it.pos = 0
	for len(it.entries) == 0 && it.nextPageID != common.InvalidPageID {
		guard, err := it.heap.bpm.FetchPageRead(it.nextPageID)
		if err != nil {
			it.err = err
			it.nextPageID = common.InvalidPageID
			return
		}
		page := pages.NewTablePage(guard.Data())
		pageID := guard.PageID()
		for slot := uint16(0); slot < page.TupleCount(); slot++ {
			meta, payload, err := page.GetTuple(slot)
			if err != nil {
				continue
			}
			tuple, err := DeserializeTuple(payload)
			if err != nil {
				it.err = err
				continue
			}
			rid := common.RID{PageID: pageID, SlotNum: slot}
			tuple.SetRID(rid)
			it.entries = append(it.entries, heapEntry{meta: meta, tuple: tuple, rid: rid})
		}
		it.nextPageID = page.NextPageID()
		guard.Drop()
	}
}

// IsEnd reports whether the iterator is exhausted.
func (it *TableIterator) IsEnd() bool {
	return it.pos >= len(it.entries)
}

// Next advances to the following tuple.
func (it *TableIterator) Next() {
	it.pos++
	if it.pos >= len(it.entries) {
		it.loadNextPage()
	}
}

// Tuple returns the current (meta, tuple) pair.
func (it *TableIterator) Tuple() (pages.TupleMeta, *Tuple) {
	e := it.entries[it.pos]
	return e.meta, e.tuple
}

// RID returns the current tuple address.
func (it *TableIterator) RID() common.RID {
	return it.entries[it.pos].rid
}

// Err reports the first error the iterator encountered, if any.
func (it *TableIterator) Err() error {
	return it.err
}
