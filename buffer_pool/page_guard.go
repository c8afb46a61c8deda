package buffer_pool

import (
	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/storage/pages"
)

// BasicPageGuard scopes a pin on a buffer pool page. Go has no destructors,
// so callers release with Drop, usually deferred. Dropping twice is safe.
type BasicPageGuard struct {
	bpm     *BufferPoolManager
	page    *pages.Page
	isDirty bool
}

func (g *BasicPageGuard) PageID() common.PageID {
	if g.page == nil {
		return common.InvalidPageID
	}
	return g.page.ID()
}

// Data returns the page image for reading.
func (g *BasicPageGuard) Data() []byte {
	return g.page.Data()
}

// DataMut returns the page image for writing and marks the guard dirty.
func (g *BasicPageGuard) DataMut() []byte {
	g.isDirty = true
	return g.page.Data()
}

// Drop releases the pin.
func (g *BasicPageGuard) Drop() {
	if g.bpm != nil && g.page != nil {
		_ = g.bpm.UnpinPage(g.page.ID(), g.isDirty)
	}
	g.bpm = nil
	g.page = nil
	g.isDirty = false
}

// UpgradeRead latches the page shared and converts into a read guard. The
// basic guard is consumed.
func (g *BasicPageGuard) UpgradeRead() *ReadPageGuard {
	g.page.RLatch()
	ret := &ReadPageGuard{guard: BasicPageGuard{bpm: g.bpm, page: g.page, isDirty: g.isDirty}}
	g.bpm = nil
	g.page = nil
	return ret
}

// UpgradeWrite latches the page exclusive and converts into a write guard.
// The basic guard is consumed.
func (g *BasicPageGuard) UpgradeWrite() *WritePageGuard {
	g.page.WLatch()
	ret := &WritePageGuard{guard: BasicPageGuard{bpm: g.bpm, page: g.page, isDirty: g.isDirty}}
	g.bpm = nil
	g.page = nil
	return ret
}

// ReadPageGuard holds a pin plus the page's shared latch.
type ReadPageGuard struct {
	guard BasicPageGuard
}

func (g *ReadPageGuard) PageID() common.PageID { return g.guard.PageID() }

func (g *ReadPageGuard) Data() []byte { return g.guard.Data() }

func (g *ReadPageGuard) Drop() {
	if g.guard.page != nil {
		g.guard.page.RUnlatch()
	}
	g.guard.Drop()
}

// WritePageGuard holds a pin plus the page's exclusive latch. The underlying
// page is unconditionally marked dirty on release.
type WritePageGuard struct {
	guard BasicPageGuard
}

func (g *WritePageGuard) PageID() common.PageID { return g.guard.PageID() }

func (g *WritePageGuard) Data() []byte { return g.guard.Data() }

// DataMut is an alias of Data kept for symmetry; a write guard always
// flushes back dirty.
func (g *WritePageGuard) DataMut() []byte { return g.guard.Data() }

func (g *WritePageGuard) Drop() {
	if g.guard.page != nil {
		g.guard.page.WUnlatch()
		g.guard.isDirty = true
	}
	g.guard.Drop()
}
