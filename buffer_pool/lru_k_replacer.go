// Package buffer_pool implements the pinned-page cache fronting the disk
// scheduler: an LRU-K replacer, the buffer pool manager and its page guards.
package buffer_pool

import (
	"math"
	"sync"

	"github.com/zhukovaskychina/xminidb/common"
)

// lruKNode 记录单个帧的访问历史
type lruKNode struct {
	history   []uint64 // 最近K次访问时间戳，旧的在前
	evictable bool
}

// LRUKReplacer picks eviction victims by largest backward K-distance: the
// gap between now and the K-th most recent access. Frames with fewer than K
// recorded accesses have infinite distance and win; ties among those are
// broken by the oldest recorded access (plain LRU).
type LRUKReplacer struct {
	mu sync.Mutex

	k         int
	currentTS uint64
	nodes     map[common.FrameID]*lruKNode
	evictable int
}

func NewLRUKReplacer(numFrames, k int) *LRUKReplacer {
	return &LRUKReplacer{
		k:     k,
		nodes: make(map[common.FrameID]*lruKNode, numFrames),
	}
}

// RecordAccess pushes a new access timestamp for the frame. A frame seen for
// the first time starts out non-evictable.
func (r *LRUKReplacer) RecordAccess(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[frameID]
	if !ok {
		node = &lruKNode{history: make([]uint64, 0, r.k)}
		r.nodes[frameID] = node
	}
	node.history = append(node.history, r.currentTS)
	if len(node.history) > r.k {
		node.history = node.history[1:]
	}
	r.currentTS++
}

// SetEvictable moves the frame between the evictable and pinned sets.
func (r *LRUKReplacer) SetEvictable(frameID common.FrameID, evictable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[frameID]
	if !ok || node.evictable == evictable {
		return
	}
	node.evictable = evictable
	if evictable {
		r.evictable++
	} else {
		r.evictable--
	}
}

// Evict removes and returns the evictable frame with the largest backward
// K-distance. Returns false when no frame is evictable.
func (r *LRUKReplacer) Evict() (common.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.evictable == 0 {
		return 0, false
	}

	var (
		victim    common.FrameID
		found     bool
		bestDist  uint64
		bestFront uint64 = math.MaxUint64
	)
	for fid, node := range r.nodes {
		if !node.evictable {
			continue
		}
		var dist uint64
		if len(node.history) >= r.k {
			dist = r.currentTS - node.history[len(node.history)-r.k]
		} else {
			dist = math.MaxUint64
		}
		front := node.history[0]
		switch {
		case !found, dist > bestDist:
			victim, found, bestDist, bestFront = fid, true, dist, front
		case dist == bestDist && front < bestFront:
			victim, bestFront = fid, front
		}
	}

	delete(r.nodes, victim)
	r.evictable--
	return victim, true
}

// Remove drops all bookkeeping for a frame regardless of access history.
// The caller must only remove unpinned frames.
func (r *LRUKReplacer) Remove(frameID common.FrameID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	node, ok := r.nodes[frameID]
	if !ok {
		return
	}
	if node.evictable {
		r.evictable--
	}
	delete(r.nodes, frameID)
}

// Size is the number of evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictable
}
