package buffer_pool

import (
	"errors"
	"sync"

	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/logger"
	"github.com/zhukovaskychina/xminidb/storage/disk"
	"github.com/zhukovaskychina/xminidb/storage/pages"
)

var (
	ErrNoFreeFrame     = errors.New("no evictable frame available")
	ErrPageNotResident = errors.New("page not resident in buffer pool")
	ErrPagePinned      = errors.New("page is pinned")
)

// Config 缓冲池配置
type Config struct {
	PoolSize  int
	PageSize  int
	ReplacerK int
}

// BufferPoolManager owns the frame array, the page table, the free list and
// the replacer, and talks to disk exclusively through the scheduler.
type BufferPoolManager struct {
	mu sync.Mutex

	poolSize int
	pageSize int

	pages      []*pages.Page                    // 帧数组
	pageTable  map[common.PageID]common.FrameID // 页表
	freeList   []common.FrameID                 // 空闲帧列表
	replacer   *LRUKReplacer
	scheduler  *disk.Scheduler
	diskMgr    disk.Manager
	nextPageID common.PageID
}

func NewBufferPoolManager(config Config, diskMgr disk.Manager) *BufferPoolManager {
	if config.PageSize == 0 {
		config.PageSize = common.DefaultPageSize
	}
	bpm := &BufferPoolManager{
		poolSize:  config.PoolSize,
		pageSize:  config.PageSize,
		pages:     make([]*pages.Page, config.PoolSize),
		pageTable: make(map[common.PageID]common.FrameID, config.PoolSize),
		freeList:  make([]common.FrameID, 0, config.PoolSize),
		replacer:  NewLRUKReplacer(config.PoolSize, config.ReplacerK),
		scheduler: disk.NewScheduler(diskMgr),
		diskMgr:   diskMgr,
	}
	// Initially every frame is free.
	for i := 0; i < config.PoolSize; i++ {
		bpm.pages[i] = pages.NewPage(config.PageSize)
		bpm.freeList = append(bpm.freeList, common.FrameID(i))
	}
	return bpm
}

func (bpm *BufferPoolManager) PageSize() int { return bpm.pageSize }

// schedule performs one synchronous I/O through the scheduler.
func (bpm *BufferPoolManager) schedule(isWrite bool, id common.PageID, data []byte) error {
	done := make(chan error, 1)
	bpm.scheduler.Schedule(&disk.Request{
		IsWrite: isWrite,
		Data:    data,
		PageID:  id,
		Done:    done,
	})
	return <-done
}

// acquireFrame hands out a frame from the free list or by eviction, flushing
// the old occupant if it was dirty. Caller holds bpm.mu.
func (bpm *BufferPoolManager) acquireFrame() (common.FrameID, error) {
	var frameID common.FrameID
	if len(bpm.freeList) > 0 {
		frameID = bpm.freeList[0]
		bpm.freeList = bpm.freeList[1:]
	} else {
		var ok bool
		if frameID, ok = bpm.replacer.Evict(); !ok {
			return 0, ErrNoFreeFrame
		}
	}
	page := bpm.pages[frameID]
	if page.ID() != common.InvalidPageID {
		delete(bpm.pageTable, page.ID())
	}
	if page.IsDirty() {
		if err := bpm.schedule(true, page.ID(), page.Data()); err != nil {
			return 0, err
		}
		page.SetDirty(false)
	}
	return frameID, nil
}

// NewPage allocates a fresh page id, pins it into a frame and returns it.
func (bpm *BufferPoolManager) NewPage() (*pages.Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, err := bpm.acquireFrame()
	if err != nil {
		return nil, err
	}
	pageID := bpm.allocatePage()
	page := bpm.pages[frameID]
	bpm.pageTable[pageID] = frameID

	page.ResetMemory()
	page.SetDirty(false)
	page.SetID(pageID)
	page.ResetPinCount()
	page.IncPinCount()

	// RecordAccess must precede SetEvictable.
	bpm.replacer.RecordAccess(frameID)
	bpm.replacer.SetEvictable(frameID, false)
	return page, nil
}

// FetchPage pins the page, reading it from disk if not resident.
func (bpm *BufferPoolManager) FetchPage(pageID common.PageID) (*pages.Page, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	if frameID, ok := bpm.pageTable[pageID]; ok {
		page := bpm.pages[frameID]
		bpm.replacer.RecordAccess(frameID)
		bpm.replacer.SetEvictable(frameID, false)
		page.IncPinCount()
		return page, nil
	}

	frameID, err := bpm.acquireFrame()
	if err != nil {
		return nil, err
	}
	page := bpm.pages[frameID]
	bpm.pageTable[pageID] = frameID

	page.ResetMemory()
	page.SetDirty(false)
	page.SetID(pageID)
	page.ResetPinCount()
	if err := bpm.schedule(false, pageID, page.Data()); err != nil {
		// The frame stays usable: undo the mapping and free it.
		delete(bpm.pageTable, pageID)
		page.SetID(common.InvalidPageID)
		bpm.freeList = append(bpm.freeList, frameID)
		return nil, err
	}

	bpm.replacer.RecordAccess(frameID)
	bpm.replacer.SetEvictable(frameID, false)
	page.IncPinCount()
	return page, nil
}

// UnpinPage drops one pin. is_dirty is sticky until the next flush.
func (bpm *BufferPoolManager) UnpinPage(pageID common.PageID, isDirty bool) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		return ErrPageNotResident
	}
	page := bpm.pages[frameID]
	if page.PinCount() == 0 {
		return ErrPageNotResident
	}
	page.DecPinCount()
	if page.PinCount() == 0 {
		bpm.replacer.SetEvictable(frameID, true)
	}
	if isDirty {
		page.SetDirty(true)
	}
	return nil
}

// FlushPage writes the page out and clears its dirty flag.
func (bpm *BufferPoolManager) FlushPage(pageID common.PageID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		return ErrPageNotResident
	}
	page := bpm.pages[frameID]
	if err := bpm.schedule(true, page.ID(), page.Data()); err != nil {
		return err
	}
	page.SetDirty(false)
	return nil
}

// FlushAllPages writes every resident page out.
func (bpm *BufferPoolManager) FlushAllPages() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	for _, page := range bpm.pages {
		if page.ID() == common.InvalidPageID {
			continue
		}
		if err := bpm.schedule(true, page.ID(), page.Data()); err != nil {
			return err
		}
		page.SetDirty(false)
	}
	return nil
}

// DeletePage evicts an unpinned page from the pool and returns its id to
// the disk allocator.
func (bpm *BufferPoolManager) DeletePage(pageID common.PageID) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameID, ok := bpm.pageTable[pageID]
	if !ok {
		return nil
	}
	page := bpm.pages[frameID]
	if page.PinCount() > 0 {
		return ErrPagePinned
	}
	delete(bpm.pageTable, pageID)
	bpm.replacer.Remove(frameID)
	page.ResetMemory()
	page.SetID(common.InvalidPageID)
	page.SetDirty(false)
	page.ResetPinCount()
	bpm.freeList = append(bpm.freeList, frameID)

	bpm.diskMgr.DeallocatePage(pageID)
	return nil
}

func (bpm *BufferPoolManager) allocatePage() common.PageID {
	id := bpm.nextPageID
	bpm.nextPageID++
	return id
}

// Close flushes everything and stops the scheduler worker.
func (bpm *BufferPoolManager) Close() {
	if err := bpm.FlushAllPages(); err != nil {
		logger.Errorf("flush on close failed: %v", err)
	}
	bpm.scheduler.Close()
}

// Guard constructors.

// NewPageGuarded allocates a page wrapped in a basic guard.
func (bpm *BufferPoolManager) NewPageGuarded() (*BasicPageGuard, error) {
	page, err := bpm.NewPage()
	if err != nil {
		return nil, err
	}
	return &BasicPageGuard{bpm: bpm, page: page}, nil
}

// FetchPageBasic pins the page without latching it.
func (bpm *BufferPoolManager) FetchPageBasic(pageID common.PageID) (*BasicPageGuard, error) {
	page, err := bpm.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	return &BasicPageGuard{bpm: bpm, page: page}, nil
}

// FetchPageRead pins the page and takes its shared latch.
func (bpm *BufferPoolManager) FetchPageRead(pageID common.PageID) (*ReadPageGuard, error) {
	page, err := bpm.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	page.RLatch()
	return &ReadPageGuard{guard: BasicPageGuard{bpm: bpm, page: page}}, nil
}

// FetchPageWrite pins the page and takes its exclusive latch.
func (bpm *BufferPoolManager) FetchPageWrite(pageID common.PageID) (*WritePageGuard, error) {
	page, err := bpm.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	page.WLatch()
	return &WritePageGuard{guard: BasicPageGuard{bpm: bpm, page: page}}, nil
}
