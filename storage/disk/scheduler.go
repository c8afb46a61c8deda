package disk

import (
	"sync"

	"github.com/zhukovaskychina/xminidb/common"
)

// Request is one unit of page I/O handed to the scheduler. Done receives
// exactly one value once the I/O has been performed.
type Request struct {
	IsWrite bool
	Data    []byte
	PageID  common.PageID
	Done    chan error
}

// Scheduler serializes all page I/O onto a single background worker.
// 调度器保证同一时刻只有一个磁盘请求在执行。
type Scheduler struct {
	manager Manager

	requests chan *Request
	wg       sync.WaitGroup

	closeOnce sync.Once
}

const requestQueueDepth = 64

// NewScheduler spawns the worker goroutine.
func NewScheduler(manager Manager) *Scheduler {
	s := &Scheduler{
		manager:  manager,
		requests: make(chan *Request, requestQueueDepth),
	}
	s.wg.Add(1)
	go s.workerLoop()
	return s
}

// Schedule enqueues a request. Callers wait on req.Done to observe
// synchronous semantics.
func (s *Scheduler) Schedule(req *Request) {
	s.requests <- req
}

// workerLoop drains the queue until the termination sentinel (nil) arrives.
func (s *Scheduler) workerLoop() {
	defer s.wg.Done()
	for req := range s.requests {
		if req == nil {
			return
		}
		var err error
		if req.IsWrite {
			err = s.manager.WritePage(req.PageID, req.Data)
		} else {
			err = s.manager.ReadPage(req.PageID, req.Data)
		}
		req.Done <- err
	}
}

// Close enqueues the sentinel and joins the worker. Requests scheduled
// before Close are still completed.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		s.requests <- nil
		s.wg.Wait()
	})
}
