package pages

import (
	"errors"

	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/util"
)

// Slotted table page layout:
//
//	0    4            8
//	+----+------------+----------------+ ... +-----------------+
//	|next|tuple_cnt|..| slot directory | free| tuple payloads  |
//	+----+------------+----------------+ ... +-----------------+
//
// The slot directory grows from the front, payloads from the back.
// Each slot entry is 16 bytes:
//
//	offset u16 | size u16 | capacity u16 | flags u8 | pad u8 | ts u64

const (
	tablePageHeaderSize = 8
	tablePageSlotSize   = 16

	offNextPageID = 0
	offTupleCount = 4

	slotOffOffset   = 0
	slotOffSize     = 2
	slotOffCapacity = 4
	slotOffFlags    = 6
	slotOffTS       = 8

	slotFlagDeleted = 0x01
)

var (
	ErrSlotOutOfRange = errors.New("slot number out of range")
	ErrTupleTooLarge  = errors.New("tuple does not fit into page slot")
	ErrPageFull       = errors.New("table page full")
)

// TupleMeta is the per-tuple header. TS is either a commit timestamp or a
// tagged transaction id (see common.IsTxnTimestamp).
type TupleMeta struct {
	TS        common.Timestamp
	IsDeleted bool
}

// TablePage interprets a page buffer as a slotted tuple page.
type TablePage struct {
	data []byte
}

func NewTablePage(data []byte) *TablePage {
	return &TablePage{data: data}
}

// Init formats an empty table page.
func (p *TablePage) Init() {
	util.WriteInt4(p.data, offNextPageID, int32(common.InvalidPageID))
	util.WriteUInt2(p.data, offTupleCount, 0)
}

func (p *TablePage) NextPageID() common.PageID {
	return common.PageID(util.ReadInt4(p.data, offNextPageID))
}

func (p *TablePage) SetNextPageID(id common.PageID) {
	util.WriteInt4(p.data, offNextPageID, int32(id))
}

func (p *TablePage) TupleCount() uint16 {
	return util.ReadUInt2(p.data, offTupleCount)
}

func (p *TablePage) setTupleCount(n uint16) {
	util.WriteUInt2(p.data, offTupleCount, n)
}

func (p *TablePage) slotBase(slot uint16) int {
	return tablePageHeaderSize + int(slot)*tablePageSlotSize
}

// payloadStart 返回当前负载区的起始偏移
func (p *TablePage) payloadStart() int {
	n := p.TupleCount()
	start := len(p.data)
	for i := uint16(0); i < n; i++ {
		off := int(util.ReadUInt2(p.data, p.slotBase(i)+slotOffOffset))
		if off < start {
			start = off
		}
	}
	return start
}

// FreeSpace reports the bytes available between the slot directory and the
// payload area.
func (p *TablePage) FreeSpace() int {
	dirEnd := tablePageHeaderSize + int(p.TupleCount())*tablePageSlotSize
	return p.payloadStart() - dirEnd
}

// InsertTuple appends a tuple and its meta, returning the new slot number.
func (p *TablePage) InsertTuple(meta TupleMeta, tuple []byte) (uint16, error) {
	if len(tuple)+tablePageSlotSize > p.FreeSpace() {
		return 0, ErrPageFull
	}
	slot := p.TupleCount()
	offset := p.payloadStart() - len(tuple)
	copy(p.data[offset:], tuple)

	base := p.slotBase(slot)
	util.WriteUInt2(p.data, base+slotOffOffset, uint16(offset))
	util.WriteUInt2(p.data, base+slotOffSize, uint16(len(tuple)))
	util.WriteUInt2(p.data, base+slotOffCapacity, uint16(len(tuple)))
	p.writeMeta(base, meta)
	p.setTupleCount(slot + 1)
	return slot, nil
}

func (p *TablePage) writeMeta(base int, meta TupleMeta) {
	var flags byte
	if meta.IsDeleted {
		flags |= slotFlagDeleted
	}
	p.data[base+slotOffFlags] = flags
	util.WriteULong8(p.data, base+slotOffTS, meta.TS)
}

// GetTuple returns the meta and payload stored at slot.
func (p *TablePage) GetTuple(slot uint16) (TupleMeta, []byte, error) {
	if slot >= p.TupleCount() {
		return TupleMeta{}, nil, ErrSlotOutOfRange
	}
	base := p.slotBase(slot)
	offset := int(util.ReadUInt2(p.data, base+slotOffOffset))
	size := int(util.ReadUInt2(p.data, base+slotOffSize))
	meta := p.readMeta(base)
	tuple := make([]byte, size)
	copy(tuple, p.data[offset:offset+size])
	return meta, tuple, nil
}

func (p *TablePage) readMeta(base int) TupleMeta {
	return TupleMeta{
		TS:        util.ReadULong8(p.data, base+slotOffTS),
		IsDeleted: p.data[base+slotOffFlags]&slotFlagDeleted != 0,
	}
}

// GetTupleMeta returns only the per-tuple header.
func (p *TablePage) GetTupleMeta(slot uint16) (TupleMeta, error) {
	if slot >= p.TupleCount() {
		return TupleMeta{}, ErrSlotOutOfRange
	}
	return p.readMeta(p.slotBase(slot)), nil
}

// SetTupleMeta overwrites the per-tuple header, leaving the payload alone.
func (p *TablePage) SetTupleMeta(slot uint16, meta TupleMeta) error {
	if slot >= p.TupleCount() {
		return ErrSlotOutOfRange
	}
	p.writeMeta(p.slotBase(slot), meta)
	return nil
}

// UpdateTupleInPlace rewrites the payload at slot. The new payload must fit
// the capacity the slot was created with.
func (p *TablePage) UpdateTupleInPlace(meta TupleMeta, tuple []byte, slot uint16) error {
	if slot >= p.TupleCount() {
		return ErrSlotOutOfRange
	}
	base := p.slotBase(slot)
	capacity := int(util.ReadUInt2(p.data, base+slotOffCapacity))
	if len(tuple) > capacity {
		return ErrTupleTooLarge
	}
	offset := int(util.ReadUInt2(p.data, base+slotOffOffset))
	copy(p.data[offset:offset+len(tuple)], tuple)
	util.WriteUInt2(p.data, base+slotOffSize, uint16(len(tuple)))
	p.writeMeta(base, meta)
	return nil
}
