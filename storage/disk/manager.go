package disk

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/logger"
)

var (
	ErrInvalidPageID = errors.New("invalid page id")
	ErrShortPage     = errors.New("page buffer size mismatch")
)

// Manager performs synchronous full-page I/O against a page file.
type Manager interface {
	// ReadPage reads the page identified by id into buf.
	ReadPage(id common.PageID, buf []byte) error
	// WritePage writes buf as the full content of the page identified by id.
	WritePage(id common.PageID, buf []byte) error
	// DeallocatePage releases a page id. FileManager only logs the call;
	// MemoryManager drops the stored page image.
	DeallocatePage(id common.PageID)
	Close() error
}

// FileManager 基于平坦页文件的磁盘管理器
type FileManager struct {
	mu       sync.Mutex
	file     *os.File
	pageSize int
}

// NewFileManager opens (or creates) the page file under dataDir.
func NewFileManager(dataDir, name string, pageSize int) (*FileManager, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dataDir, name), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &FileManager{file: f, pageSize: pageSize}, nil
}

func (m *FileManager) ReadPage(id common.PageID, buf []byte) error {
	if id == common.InvalidPageID {
		return ErrInvalidPageID
	}
	if len(buf) != m.pageSize {
		return ErrShortPage
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	offset := int64(id) * int64(m.pageSize)
	fi, err := m.file.Stat()
	if err != nil {
		return err
	}
	// Reading past the end of the file yields a zero page; the page has been
	// allocated but never flushed.
	if offset >= fi.Size() {
		for i := range buf {
			buf[i] = 0
		}
		return nil
	}
	n, err := m.file.ReadAt(buf, offset)
	if err != nil && n != m.pageSize {
		// partial tail page
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
	}
	return nil
}

func (m *FileManager) WritePage(id common.PageID, buf []byte) error {
	if id == common.InvalidPageID {
		return ErrInvalidPageID
	}
	if len(buf) != m.pageSize {
		return ErrShortPage
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	offset := int64(id) * int64(m.pageSize)
	if _, err := m.file.WriteAt(buf, offset); err != nil {
		return err
	}
	return m.file.Sync()
}

func (m *FileManager) DeallocatePage(id common.PageID) {
	logger.Debugf("deallocate page %d", id)
}

func (m *FileManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}

// MemoryManager 内存页存储，用于测试
type MemoryManager struct {
	mu       sync.Mutex
	pages    map[common.PageID][]byte
	pageSize int
}

func NewMemoryManager(pageSize int) *MemoryManager {
	return &MemoryManager{
		pages:    make(map[common.PageID][]byte),
		pageSize: pageSize,
	}
}

func (m *MemoryManager) ReadPage(id common.PageID, buf []byte) error {
	if id == common.InvalidPageID {
		return ErrInvalidPageID
	}
	if len(buf) != m.pageSize {
		return ErrShortPage
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.pages[id]; ok {
		copy(buf, data)
		return nil
	}
	for i := range buf {
		buf[i] = 0
	}
	return nil
}

func (m *MemoryManager) WritePage(id common.PageID, buf []byte) error {
	if id == common.InvalidPageID {
		return ErrInvalidPageID
	}
	if len(buf) != m.pageSize {
		return ErrShortPage
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data := make([]byte, m.pageSize)
	copy(data, buf)
	m.pages[id] = data
	return nil
}

func (m *MemoryManager) DeallocatePage(id common.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, id)
}

func (m *MemoryManager) Close() error { return nil }
