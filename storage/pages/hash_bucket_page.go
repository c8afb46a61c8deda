package pages

import (
	"bytes"

	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/util"
)

// Extendible hash bucket page layout:
//
//	size u32 | max_size u32 | key_size u16 | pad u16 | array [max_size](key, rid)
//
// Keys are fixed-width byte strings; values are tuple RIDs packed into 8
// bytes. key_size is stamped at format time so the page is self-describing.

const (
	hashBucketOffSize    = 0
	hashBucketOffMaxSize = 4
	hashBucketOffKeySize = 8
	hashBucketOffArray   = 12

	hashBucketValueSize = 8
)

// KeyComparator orders two fixed-width keys; only equality is significant to
// the bucket page.
type KeyComparator func(a, b []byte) int

// BytesKeyComparator 默认的字节比较器
func BytesKeyComparator(a, b []byte) int {
	return bytes.Compare(a, b)
}

type HashBucketPage struct {
	data []byte
}

func NewHashBucketPage(data []byte) *HashBucketPage {
	return &HashBucketPage{data: data}
}

// BucketCapacity is the largest max_size a page can hold for a key width.
func BucketCapacity(pageSize, keySize int) uint32 {
	return uint32((pageSize - hashBucketOffArray) / (keySize + hashBucketValueSize))
}

// Init formats an empty bucket. maxSize is clamped to what the page can hold.
func (p *HashBucketPage) Init(maxSize uint32, keySize uint16) {
	capacity := BucketCapacity(len(p.data), int(keySize))
	if maxSize == 0 || maxSize > capacity {
		maxSize = capacity
	}
	util.WriteUInt4(p.data, hashBucketOffSize, 0)
	util.WriteUInt4(p.data, hashBucketOffMaxSize, maxSize)
	util.WriteUInt2(p.data, hashBucketOffKeySize, keySize)
}

func (p *HashBucketPage) Size() uint32 {
	return util.ReadUInt4(p.data, hashBucketOffSize)
}

func (p *HashBucketPage) MaxSize() uint32 {
	return util.ReadUInt4(p.data, hashBucketOffMaxSize)
}

func (p *HashBucketPage) KeySize() int {
	return int(util.ReadUInt2(p.data, hashBucketOffKeySize))
}

func (p *HashBucketPage) IsFull() bool  { return p.Size() >= p.MaxSize() }
func (p *HashBucketPage) IsEmpty() bool { return p.Size() == 0 }

func (p *HashBucketPage) entryBase(i uint32) int {
	return hashBucketOffArray + int(i)*(p.KeySize()+hashBucketValueSize)
}

// KeyAt returns the key stored at entry i. The slice aliases the page buffer.
func (p *HashBucketPage) KeyAt(i uint32) []byte {
	base := p.entryBase(i)
	return p.data[base : base+p.KeySize()]
}

// ValueAt returns the RID stored at entry i.
func (p *HashBucketPage) ValueAt(i uint32) common.RID {
	base := p.entryBase(i) + p.KeySize()
	return common.RID{
		PageID:  common.PageID(util.ReadInt4(p.data, base)),
		SlotNum: util.ReadUInt2(p.data, base+4),
	}
}

func (p *HashBucketPage) setEntry(i uint32, key []byte, rid common.RID) {
	base := p.entryBase(i)
	copy(p.data[base:base+p.KeySize()], key)
	util.WriteInt4(p.data, base+p.KeySize(), int32(rid.PageID))
	util.WriteUInt2(p.data, base+p.KeySize()+4, rid.SlotNum)
	util.WriteUInt2(p.data, base+p.KeySize()+6, 0)
}

// Lookup finds the value bound to key.
func (p *HashBucketPage) Lookup(key []byte, cmp KeyComparator) (common.RID, bool) {
	for i := uint32(0); i < p.Size(); i++ {
		if cmp(p.KeyAt(i), key) == 0 {
			return p.ValueAt(i), true
		}
	}
	return common.InvalidRID, false
}

// Insert appends (key, rid). Duplicate keys and full buckets are rejected.
func (p *HashBucketPage) Insert(key []byte, rid common.RID, cmp KeyComparator) bool {
	if p.IsFull() {
		return false
	}
	if _, ok := p.Lookup(key, cmp); ok {
		return false
	}
	size := p.Size()
	p.setEntry(size, key, rid)
	util.WriteUInt4(p.data, hashBucketOffSize, size+1)
	return true
}

// Remove deletes the entry bound to key.
func (p *HashBucketPage) Remove(key []byte, cmp KeyComparator) bool {
	for i := uint32(0); i < p.Size(); i++ {
		if cmp(p.KeyAt(i), key) == 0 {
			p.RemoveAt(i)
			return true
		}
	}
	return false
}

// RemoveAt deletes entry i, compacting the tail over it.
func (p *HashBucketPage) RemoveAt(i uint32) {
	size := p.Size()
	if i >= size {
		return
	}
	entrySize := p.KeySize() + hashBucketValueSize
	base := p.entryBase(i)
	tail := p.entryBase(size)
	copy(p.data[base:], p.data[base+entrySize:tail])
	util.WriteUInt4(p.data, hashBucketOffSize, size-1)
}
