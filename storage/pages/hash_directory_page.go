package pages

import (
	"errors"
	"fmt"

	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/util"
)

// Extendible hash directory page layout:
//
//	max_depth u32 | global_depth u32 | local_depths [512]u8 | bucket_page_ids [512]i32

// HashDirectoryArraySize bounds how many bucket pointers one directory page
// can hold; global depth can never exceed log2 of this.
const HashDirectoryArraySize = 512

const (
	hashDirOffMaxDepth    = 0
	hashDirOffGlobalDepth = 4
	hashDirOffLocalDepths = 8
	hashDirOffBucketIDs   = hashDirOffLocalDepths + HashDirectoryArraySize
)

var ErrDirectoryCorrupted = errors.New("hash directory invariant violated")

type HashDirectoryPage struct {
	data []byte
}

func NewHashDirectoryPage(data []byte) *HashDirectoryPage {
	return &HashDirectoryPage{data: data}
}

// Init formats an empty directory at global depth 0.
func (p *HashDirectoryPage) Init(maxDepth uint32) {
	util.WriteUInt4(p.data, hashDirOffMaxDepth, maxDepth)
	util.WriteUInt4(p.data, hashDirOffGlobalDepth, 0)
	for i := 0; i < HashDirectoryArraySize; i++ {
		p.data[hashDirOffLocalDepths+i] = 0
		util.WriteInt4(p.data, hashDirOffBucketIDs+i*4, int32(common.InvalidPageID))
	}
}

func (p *HashDirectoryPage) MaxDepth() uint32 {
	return util.ReadUInt4(p.data, hashDirOffMaxDepth)
}

func (p *HashDirectoryPage) GlobalDepth() uint32 {
	return util.ReadUInt4(p.data, hashDirOffGlobalDepth)
}

// GlobalDepthMask masks a hash down to the bits the directory indexes on.
func (p *HashDirectoryPage) GlobalDepthMask() uint32 {
	return (1 << p.GlobalDepth()) - 1
}

// HashToBucketIndex uses the low global_depth bits of the hash.
func (p *HashDirectoryPage) HashToBucketIndex(hash uint32) uint32 {
	return hash & p.GlobalDepthMask()
}

// Size 返回当前目录槽位数量
func (p *HashDirectoryPage) Size() uint32 {
	return 1 << p.GlobalDepth()
}

func (p *HashDirectoryPage) BucketPageID(idx uint32) common.PageID {
	return common.PageID(util.ReadInt4(p.data, hashDirOffBucketIDs+int(idx)*4))
}

func (p *HashDirectoryPage) SetBucketPageID(idx uint32, id common.PageID) {
	util.WriteInt4(p.data, hashDirOffBucketIDs+int(idx)*4, int32(id))
}

func (p *HashDirectoryPage) LocalDepth(idx uint32) uint32 {
	return uint32(p.data[hashDirOffLocalDepths+int(idx)])
}

func (p *HashDirectoryPage) SetLocalDepth(idx uint32, depth uint8) {
	p.data[hashDirOffLocalDepths+int(idx)] = depth
}

func (p *HashDirectoryPage) IncrLocalDepth(idx uint32) {
	p.data[hashDirOffLocalDepths+int(idx)]++
}

func (p *HashDirectoryPage) DecrLocalDepth(idx uint32) {
	p.data[hashDirOffLocalDepths+int(idx)]--
}

// LocalDepthMask masks a bucket index down to the bits that identify its
// bucket under the slot's local depth.
func (p *HashDirectoryPage) LocalDepthMask(idx uint32) uint32 {
	return (1 << p.LocalDepth(idx)) - 1
}

// SplitImageIndex is the slot the bucket at idx splits into.
func (p *HashDirectoryPage) SplitImageIndex(idx uint32) uint32 {
	return idx ^ (1 << p.LocalDepth(idx))
}

func (p *HashDirectoryPage) IncrGlobalDepth() {
	gd := p.GlobalDepth()
	// Every new slot j = i | 1<<gd mirrors slot i.
	for i := uint32(0); i < 1<<gd; i++ {
		j := i | (1 << gd)
		p.SetBucketPageID(j, p.BucketPageID(i))
		p.SetLocalDepth(j, uint8(p.LocalDepth(i)))
	}
	util.WriteUInt4(p.data, hashDirOffGlobalDepth, gd+1)
}

func (p *HashDirectoryPage) DecrGlobalDepth() {
	util.WriteUInt4(p.data, hashDirOffGlobalDepth, p.GlobalDepth()-1)
}

// CanShrink reports whether every local depth is strictly below the global
// depth, i.e. both halves of the directory are identical.
func (p *HashDirectoryPage) CanShrink() bool {
	gd := p.GlobalDepth()
	if gd == 0 {
		return false
	}
	for i := uint32(0); i < p.Size(); i++ {
		if p.LocalDepth(i) >= gd {
			return false
		}
	}
	return true
}

// VerifyIntegrity checks the directory invariants: local depth never exceeds
// global depth, and two slots share a bucket page iff they agree on the low
// local-depth bits.
func (p *HashDirectoryPage) VerifyIntegrity() error {
	gd := p.GlobalDepth()
	if gd > p.MaxDepth() {
		return fmt.Errorf("%w: global depth %d > max depth %d", ErrDirectoryCorrupted, gd, p.MaxDepth())
	}
	for i := uint32(0); i < p.Size(); i++ {
		ld := p.LocalDepth(i)
		if ld > gd {
			return fmt.Errorf("%w: slot %d local depth %d > global depth %d", ErrDirectoryCorrupted, i, ld, gd)
		}
		for j := uint32(0); j < p.Size(); j++ {
			mask := p.LocalDepthMask(i)
			sameBucket := p.BucketPageID(i) == p.BucketPageID(j)
			sameBits := i&mask == j&mask
			if sameBits && !sameBucket {
				return fmt.Errorf("%w: slots %d and %d agree on %d low bits but point to different buckets",
					ErrDirectoryCorrupted, i, j, p.LocalDepth(i))
			}
			if sameBucket && p.LocalDepth(i) != p.LocalDepth(j) {
				return fmt.Errorf("%w: slots %d and %d share a bucket with unequal local depths",
					ErrDirectoryCorrupted, i, j)
			}
		}
	}
	return nil
}
