package disk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xminidb/common"
)

func TestScheduler(t *testing.T) {
	t.Run("写后读", func(t *testing.T) {
		mgr := NewMemoryManager(common.DefaultPageSize)
		sched := NewScheduler(mgr)
		defer sched.Close()

		data := make([]byte, common.DefaultPageSize)
		copy(data, "A test string.")
		done := make(chan error, 1)
		sched.Schedule(&Request{IsWrite: true, Data: data, PageID: 0, Done: done})
		require.NoError(t, <-done)

		buf := make([]byte, common.DefaultPageSize)
		done = make(chan error, 1)
		sched.Schedule(&Request{IsWrite: false, Data: buf, PageID: 0, Done: done})
		require.NoError(t, <-done)
		assert.Equal(t, data, buf)
	})

	t.Run("请求按序执行", func(t *testing.T) {
		mgr := NewMemoryManager(common.DefaultPageSize)
		sched := NewScheduler(mgr)
		defer sched.Close()

		// Two writes to the same page: the second must win.
		first := make([]byte, common.DefaultPageSize)
		copy(first, "first")
		second := make([]byte, common.DefaultPageSize)
		copy(second, "second")

		d1 := make(chan error, 1)
		d2 := make(chan error, 1)
		sched.Schedule(&Request{IsWrite: true, Data: first, PageID: 7, Done: d1})
		sched.Schedule(&Request{IsWrite: true, Data: second, PageID: 7, Done: d2})
		require.NoError(t, <-d1)
		require.NoError(t, <-d2)

		buf := make([]byte, common.DefaultPageSize)
		done := make(chan error, 1)
		sched.Schedule(&Request{IsWrite: false, Data: buf, PageID: 7, Done: done})
		require.NoError(t, <-done)
		assert.Equal(t, []byte("second"), buf[:6])
	})

	t.Run("Close之后工作线程退出", func(t *testing.T) {
		mgr := NewMemoryManager(common.DefaultPageSize)
		sched := NewScheduler(mgr)
		sched.Close()
		sched.Close() // idempotent
	})
}

func TestFileManager(t *testing.T) {
	t.Run("页面落盘与读回", func(t *testing.T) {
		mgr, err := NewFileManager(t.TempDir(), "test.db", common.DefaultPageSize)
		require.NoError(t, err)
		defer mgr.Close()

		data := make([]byte, common.DefaultPageSize)
		copy(data, "persisted")
		require.NoError(t, mgr.WritePage(3, data))

		buf := make([]byte, common.DefaultPageSize)
		require.NoError(t, mgr.ReadPage(3, buf))
		assert.Equal(t, data, buf)
	})

	t.Run("未写过的页读出全零", func(t *testing.T) {
		mgr, err := NewFileManager(t.TempDir(), "test.db", common.DefaultPageSize)
		require.NoError(t, err)
		defer mgr.Close()

		buf := make([]byte, common.DefaultPageSize)
		copy(buf, "garbage")
		require.NoError(t, mgr.ReadPage(42, buf))
		assert.Equal(t, make([]byte, common.DefaultPageSize), buf)
	})

	t.Run("非法页号被拒绝", func(t *testing.T) {
		mgr, err := NewFileManager(t.TempDir(), "test.db", common.DefaultPageSize)
		require.NoError(t, err)
		defer mgr.Close()

		buf := make([]byte, common.DefaultPageSize)
		assert.ErrorIs(t, mgr.ReadPage(common.InvalidPageID, buf), ErrInvalidPageID)
		assert.ErrorIs(t, mgr.WritePage(common.InvalidPageID, buf), ErrInvalidPageID)
	})
}
