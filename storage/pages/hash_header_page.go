package pages

import (
	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/util"
)

// Extendible hash header page layout:
//
//	max_depth u32 | directory_page_ids [1<<max_depth]i32
//
// The header routes the top max_depth bits of a hash (sign bit excluded) to
// one of up to 1<<max_depth directory pages.

const (
	hashHeaderOffMaxDepth = 0
	hashHeaderOffIDs      = 4
)

type HashHeaderPage struct {
	data []byte
}

func NewHashHeaderPage(data []byte) *HashHeaderPage {
	return &HashHeaderPage{data: data}
}

// Init formats the header with every directory slot invalid.
func (p *HashHeaderPage) Init(maxDepth uint32) {
	util.WriteUInt4(p.data, hashHeaderOffMaxDepth, maxDepth)
	for i := uint32(0); i < 1<<maxDepth; i++ {
		util.WriteInt4(p.data, hashHeaderOffIDs+int(i)*4, int32(common.InvalidPageID))
	}
}

func (p *HashHeaderPage) MaxDepth() uint32 {
	return util.ReadUInt4(p.data, hashHeaderOffMaxDepth)
}

// MaxSize 返回目录页槽位数量
func (p *HashHeaderPage) MaxSize() uint32 {
	return 1 << p.MaxDepth()
}

// HashToDirectoryIndex routes a 32-bit hash by its top max_depth bits,
// excluding the sign bit.
func (p *HashHeaderPage) HashToDirectoryIndex(hash uint32) uint32 {
	return (hash >> 1) >> (31 - p.MaxDepth())
}

func (p *HashHeaderPage) DirectoryPageID(idx uint32) common.PageID {
	return common.PageID(util.ReadInt4(p.data, hashHeaderOffIDs+int(idx)*4))
}

func (p *HashHeaderPage) SetDirectoryPageID(idx uint32, id common.PageID) {
	util.WriteInt4(p.data, hashHeaderOffIDs+int(idx)*4, int32(id))
}
