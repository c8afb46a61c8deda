package table

import (
	"errors"
	"sync"

	"github.com/zhukovaskychina/xminidb/buffer_pool"
	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/storage/pages"
)

var ErrHeapFull = errors.New("table heap cannot allocate a page")

// TableHeap is an unordered collection of tuples backed by a linked list of
// slotted pages. 插入总是优先尝试最后一页。
type TableHeap struct {
	bpm *buffer_pool.BufferPoolManager

	mu          sync.Mutex
	firstPageID common.PageID
	lastPageID  common.PageID
}

// NewTableHeap creates a heap with one empty page.
func NewTableHeap(bpm *buffer_pool.BufferPoolManager) (*TableHeap, error) {
	guard, err := bpm.NewPageGuarded()
	if err != nil {
		return nil, err
	}
	wg := guard.UpgradeWrite()
	pages.NewTablePage(wg.Data()).Init()
	pageID := wg.PageID()
	wg.Drop()

	return &TableHeap{
		bpm:         bpm,
		firstPageID: pageID,
		lastPageID:  pageID,
	}, nil
}

func (h *TableHeap) FirstPageID() common.PageID { return h.firstPageID }

// InsertTuple writes (meta, tuple) into the last page with room, allocating
// and linking a fresh page when the tail is full.
func (h *TableHeap) InsertTuple(meta pages.TupleMeta, tuple *Tuple) (common.RID, error) {
	payload := tuple.Serialize()

	h.mu.Lock()
	defer h.mu.Unlock()

	guard, err := h.bpm.FetchPageWrite(h.lastPageID)
	if err != nil {
		return common.InvalidRID, err
	}
	page := pages.NewTablePage(guard.Data())
	slot, err := page.InsertTuple(meta, payload)
	if err == nil {
		rid := common.RID{PageID: guard.PageID(), SlotNum: slot}
		guard.Drop()
		return rid, nil
	}
	if !errors.Is(err, pages.ErrPageFull) {
		guard.Drop()
		return common.InvalidRID, err
	}

	// Tail is full: chain a new page. The tail guard stays held so the link
	// update and the insert stay atomic with respect to other inserters.
	newGuard, err := h.bpm.NewPageGuarded()
	if err != nil {
		guard.Drop()
		return common.InvalidRID, ErrHeapFull
	}
	newWrite := newGuard.UpgradeWrite()
	newPage := pages.NewTablePage(newWrite.Data())
	newPage.Init()
	page.SetNextPageID(newWrite.PageID())
	guard.Drop()

	slot, err = newPage.InsertTuple(meta, payload)
	if err != nil {
		newWrite.Drop()
		return common.InvalidRID, err
	}
	rid := common.RID{PageID: newWrite.PageID(), SlotNum: slot}
	h.lastPageID = newWrite.PageID()
	newWrite.Drop()
	return rid, nil
}

// GetTuple reads the meta and tuple at rid.
func (h *TableHeap) GetTuple(rid common.RID) (pages.TupleMeta, *Tuple, error) {
	guard, err := h.bpm.FetchPageRead(rid.PageID)
	if err != nil {
		return pages.TupleMeta{}, nil, err
	}
	defer guard.Drop()

	meta, payload, err := pages.NewTablePage(guard.Data()).GetTuple(rid.SlotNum)
	if err != nil {
		return pages.TupleMeta{}, nil, err
	}
	tuple, err := DeserializeTuple(payload)
	if err != nil {
		return pages.TupleMeta{}, nil, err
	}
	tuple.SetRID(rid)
	return meta, tuple, nil
}

// GetTupleMeta reads only the per-tuple header at rid.
func (h *TableHeap) GetTupleMeta(rid common.RID) (pages.TupleMeta, error) {
	guard, err := h.bpm.FetchPageRead(rid.PageID)
	if err != nil {
		return pages.TupleMeta{}, err
	}
	defer guard.Drop()
	return pages.NewTablePage(guard.Data()).GetTupleMeta(rid.SlotNum)
}

// UpdateTupleMeta overwrites the per-tuple header at rid.
func (h *TableHeap) UpdateTupleMeta(meta pages.TupleMeta, rid common.RID) error {
	guard, err := h.bpm.FetchPageWrite(rid.PageID)
	if err != nil {
		return err
	}
	defer guard.Drop()
	return pages.NewTablePage(guard.Data()).SetTupleMeta(rid.SlotNum, meta)
}

// UpdateTupleInPlace rewrites the tuple at rid. The serialized tuple must
// fit the slot's original capacity; MVCC callers keep images same-schema so
// this holds for fixed-width rows and is checked for varchars.
func (h *TableHeap) UpdateTupleInPlace(meta pages.TupleMeta, tuple *Tuple, rid common.RID) error {
	guard, err := h.bpm.FetchPageWrite(rid.PageID)
	if err != nil {
		return err
	}
	defer guard.Drop()
	return pages.NewTablePage(guard.Data()).UpdateTupleInPlace(meta, tuple.Serialize(), rid.SlotNum)
}
