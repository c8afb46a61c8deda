// Package pages implements the fixed-size page structures the engine stores
// on disk: the slotted table page and the extendible hash header, directory
// and bucket pages. All of them are thin typed views over a page buffer.
package pages

import (
	"sync"

	"github.com/zhukovaskychina/xminidb/common"
)

// Page is the in-memory image of one disk page plus its frame metadata.
// 页面驻留在缓冲池的帧中，由缓冲池负责生命周期。
type Page struct {
	id       common.PageID
	data     []byte
	pinCount int
	isDirty  bool

	latch sync.RWMutex
}

// NewPage allocates an empty frame image of the given page size.
func NewPage(pageSize int) *Page {
	return &Page{
		id:   common.InvalidPageID,
		data: make([]byte, pageSize),
	}
}

func (p *Page) ID() common.PageID { return p.id }
func (p *Page) Data() []byte      { return p.data }
func (p *Page) PinCount() int     { return p.pinCount }
func (p *Page) IsDirty() bool     { return p.isDirty }

// The mutators below are called by the buffer pool with its latch held.

func (p *Page) SetID(id common.PageID) { p.id = id }
func (p *Page) SetDirty(dirty bool)    { p.isDirty = dirty }
func (p *Page) IncPinCount()           { p.pinCount++ }
func (p *Page) DecPinCount()           { p.pinCount-- }
func (p *Page) ResetPinCount()         { p.pinCount = 0 }

// ResetMemory zeroes the page image before the frame is reused.
func (p *Page) ResetMemory() {
	for i := range p.data {
		p.data[i] = 0
	}
}

// Per-page reader/writer latch, acquired by page guards after the buffer
// pool latch has been released.

func (p *Page) RLatch()   { p.latch.RLock() }
func (p *Page) RUnlatch() { p.latch.RUnlock() }
func (p *Page) WLatch()   { p.latch.Lock() }
func (p *Page) WUnlatch() { p.latch.Unlock() }
