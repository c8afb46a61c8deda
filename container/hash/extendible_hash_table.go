// Package hash implements a disk-resident extendible hash table with a
// three-level header/directory/bucket page layout and latch crabbing.
package hash

import (
	"errors"

	"github.com/zhukovaskychina/xminidb/buffer_pool"
	"github.com/zhukovaskychina/xminidb/common"
	"github.com/zhukovaskychina/xminidb/logger"
	"github.com/zhukovaskychina/xminidb/storage/pages"
	"github.com/zhukovaskychina/xminidb/util"
)

var ErrIndexCorrupted = errors.New("extendible hash index corrupted")

// HashFunc maps a key to the 32-bit hash the directory levels index on.
type HashFunc func(key []byte) uint32

// DefaultHashFunc 默认使用xxhash折叠到32位
func DefaultHashFunc(key []byte) uint32 {
	return util.HashCode32(key)
}

// Config fixes the shape of one index.
type Config struct {
	Name              string
	KeySize           uint16
	HeaderMaxDepth    uint32
	DirectoryMaxDepth uint32
	BucketMaxSize     uint32
	Comparator        pages.KeyComparator
	Hash              HashFunc
}

// DiskExtendibleHashTable maps fixed-width keys to RIDs. One value per key.
type DiskExtendibleHashTable struct {
	name string
	bpm  *buffer_pool.BufferPoolManager

	cmp    pages.KeyComparator
	hashFn HashFunc

	headerPageID      common.PageID
	headerMaxDepth    uint32
	directoryMaxDepth uint32
	bucketMaxSize     uint32
	keySize           uint16
}

// NewDiskExtendibleHashTable formats a fresh index: a header page with every
// directory slot invalid.
func NewDiskExtendibleHashTable(bpm *buffer_pool.BufferPoolManager, config Config) (*DiskExtendibleHashTable, error) {
	if config.Comparator == nil {
		config.Comparator = pages.BytesKeyComparator
	}
	if config.Hash == nil {
		config.Hash = DefaultHashFunc
	}
	guard, err := bpm.NewPageGuarded()
	if err != nil {
		return nil, err
	}
	wg := guard.UpgradeWrite()
	pages.NewHashHeaderPage(wg.Data()).Init(config.HeaderMaxDepth)
	headerPageID := wg.PageID()
	wg.Drop()

	return &DiskExtendibleHashTable{
		name:              config.Name,
		bpm:               bpm,
		cmp:               config.Comparator,
		hashFn:            config.Hash,
		headerPageID:      headerPageID,
		headerMaxDepth:    config.HeaderMaxDepth,
		directoryMaxDepth: config.DirectoryMaxDepth,
		bucketMaxSize:     config.BucketMaxSize,
		keySize:           config.KeySize,
	}, nil
}

func (ht *DiskExtendibleHashTable) Name() string    { return ht.name }
func (ht *DiskExtendibleHashTable) KeySize() uint16 { return ht.keySize }

func (ht *DiskExtendibleHashTable) hash(key []byte) uint32 {
	return ht.hashFn(key)
}

// GetValue probes the index for key, crabbing read latches from header to
// directory to bucket.
func (ht *DiskExtendibleHashTable) GetValue(key []byte) (common.RID, bool, error) {
	headerGuard, err := ht.bpm.FetchPageRead(ht.headerPageID)
	if err != nil {
		return common.InvalidRID, false, err
	}
	header := pages.NewHashHeaderPage(headerGuard.Data())

	hashValue := ht.hash(key)
	directoryPageID := header.DirectoryPageID(header.HashToDirectoryIndex(hashValue))
	if directoryPageID == common.InvalidPageID {
		headerGuard.Drop()
		return common.InvalidRID, false, nil
	}
	directoryGuard, err := ht.bpm.FetchPageRead(directoryPageID)
	headerGuard.Drop()
	if err != nil {
		return common.InvalidRID, false, err
	}
	directory := pages.NewHashDirectoryPage(directoryGuard.Data())

	bucketPageID := directory.BucketPageID(directory.HashToBucketIndex(hashValue))
	if bucketPageID == common.InvalidPageID {
		directoryGuard.Drop()
		return common.InvalidRID, false, nil
	}
	bucketGuard, err := ht.bpm.FetchPageRead(bucketPageID)
	directoryGuard.Drop()
	if err != nil {
		return common.InvalidRID, false, err
	}
	defer bucketGuard.Drop()

	rid, ok := pages.NewHashBucketPage(bucketGuard.Data()).Lookup(key, ht.cmp)
	return rid, ok, nil
}

// Insert binds key to rid. Duplicate keys are rejected; false is also
// returned when the target bucket is full and both its local depth and the
// directory's global depth have reached the directory's maximum depth.
func (ht *DiskExtendibleHashTable) Insert(key []byte, rid common.RID) (bool, error) {
	if _, ok, err := ht.GetValue(key); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}

	headerGuard, err := ht.bpm.FetchPageWrite(ht.headerPageID)
	if err != nil {
		return false, err
	}
	header := pages.NewHashHeaderPage(headerGuard.Data())

	hashValue := ht.hash(key)
	directoryIdx := header.HashToDirectoryIndex(hashValue)
	directoryPageID := header.DirectoryPageID(directoryIdx)
	if directoryPageID == common.InvalidPageID {
		defer headerGuard.Drop()
		return ht.insertToNewDirectory(header, directoryIdx, hashValue, key, rid)
	}
	directoryGuard, err := ht.bpm.FetchPageWrite(directoryPageID)
	headerGuard.Drop()
	if err != nil {
		return false, err
	}
	defer directoryGuard.Drop()
	directory := pages.NewHashDirectoryPage(directoryGuard.Data())

	bucketIdx := directory.HashToBucketIndex(hashValue)
	bucketPageID := directory.BucketPageID(bucketIdx)
	if bucketPageID == common.InvalidPageID {
		return ht.insertToNewBucket(directory, bucketIdx, key, rid)
	}
	bucketGuard, err := ht.bpm.FetchPageWrite(bucketPageID)
	if err != nil {
		return false, err
	}
	bucket := pages.NewHashBucketPage(bucketGuard.Data())
	defer func() { bucketGuard.Drop() }()

	for !bucket.Insert(key, rid, ht.cmp) {
		switch {
		case directory.LocalDepth(bucketIdx) < directory.GlobalDepth():
			// Split the overflowing bucket into itself and its image.
			newBucketIdx, newBucket, newGuard, err := ht.splitBucket(directory, bucketIdx, bucket)
			if err != nil {
				return false, err
			}
			// Continue in whichever image the new key belongs to. The images
			// are distinguished by the new local depth's bits, not the
			// directory's global mask: with localDepth below globalDepth-1
			// several directory slots map to each image.
			localMask := directory.LocalDepthMask(newBucketIdx)
			if hashValue&localMask == newBucketIdx&localMask {
				bucketGuard.Drop()
				bucketGuard = newGuard
				bucket = newBucket
				bucketIdx = newBucketIdx
			} else {
				newGuard.Drop()
			}

		case directory.GlobalDepth() < directory.MaxDepth():
			directory.IncrGlobalDepth()

		default:
			// local == global == max depth: the index is full.
			return false, nil
		}
	}
	return true, nil
}

// insertToNewDirectory allocates a directory (and its first bucket) for an
// unused header slot. The header write latch is held by the caller.
func (ht *DiskExtendibleHashTable) insertToNewDirectory(header *pages.HashHeaderPage, directoryIdx, hashValue uint32, key []byte, rid common.RID) (bool, error) {
	guard, err := ht.bpm.NewPageGuarded()
	if err != nil {
		return false, err
	}
	wg := guard.UpgradeWrite()
	defer wg.Drop()
	directory := pages.NewHashDirectoryPage(wg.Data())
	directory.Init(ht.directoryMaxDepth)
	header.SetDirectoryPageID(directoryIdx, wg.PageID())

	return ht.insertToNewBucket(directory, directory.HashToBucketIndex(hashValue), key, rid)
}

// insertToNewBucket allocates a bucket for an unused directory slot. The
// directory write latch is held by the caller.
func (ht *DiskExtendibleHashTable) insertToNewBucket(directory *pages.HashDirectoryPage, bucketIdx uint32, key []byte, rid common.RID) (bool, error) {
	guard, err := ht.bpm.NewPageGuarded()
	if err != nil {
		return false, err
	}
	wg := guard.UpgradeWrite()
	defer wg.Drop()
	bucket := pages.NewHashBucketPage(wg.Data())
	bucket.Init(ht.bucketMaxSize, ht.keySize)
	directory.SetBucketPageID(bucketIdx, wg.PageID())

	return bucket.Insert(key, rid, ht.cmp), nil
}

// splitBucket allocates the split image of the bucket at bucketIdx, remaps
// the directory and rehashes the overflowing bucket's entries. It returns
// the image's index, page view and held write guard.
func (ht *DiskExtendibleHashTable) splitBucket(directory *pages.HashDirectoryPage, bucketIdx uint32, bucket *pages.HashBucketPage) (uint32, *pages.HashBucketPage, *buffer_pool.WritePageGuard, error) {
	localDepth := directory.LocalDepth(bucketIdx)
	newBucketIdx := bucketIdx ^ (1 << localDepth)

	guard, err := ht.bpm.NewPageGuarded()
	if err != nil {
		return 0, nil, nil, err
	}
	wg := guard.UpgradeWrite()
	newBucket := pages.NewHashBucketPage(wg.Data())
	newBucket.Init(ht.bucketMaxSize, ht.keySize)

	// Both images live at localDepth+1; stamp every directory slot that maps
	// to either image.
	newLocalDepth := localDepth + 1
	localMask := uint32(1<<newLocalDepth) - 1
	ht.updateDirectoryMapping(directory, newBucketIdx, wg.PageID(), newLocalDepth, localMask)
	ht.updateDirectoryMapping(directory, bucketIdx, directory.BucketPageID(bucketIdx), newLocalDepth, localMask)

	// Rehash: entries move to the image iff they match it under the new
	// local-depth mask — the same rule updateDirectoryMapping stamped the
	// slots with. Comparing under the global mask instead would strand
	// entries in the old bucket whenever newLocalDepth < globalDepth.
	for i := uint32(0); i < bucket.Size(); {
		if ht.hash(bucket.KeyAt(i))&localMask == newBucketIdx&localMask {
			if !newBucket.Insert(bucket.KeyAt(i), bucket.ValueAt(i), ht.cmp) {
				wg.Drop()
				return 0, nil, nil, ErrIndexCorrupted
			}
			bucket.RemoveAt(i)
			continue
		}
		i++
	}
	return newBucketIdx, newBucket, wg, nil
}

// updateDirectoryMapping stamps every directory slot matching
// (i & localMask) == (newBucketIdx & localMask) with the new bucket pointer
// and local depth.
func (ht *DiskExtendibleHashTable) updateDirectoryMapping(directory *pages.HashDirectoryPage, newBucketIdx uint32, newPageID common.PageID, newLocalDepth, localMask uint32) {
	for i := uint32(0); i < directory.Size(); i++ {
		if i&localMask == newBucketIdx&localMask {
			directory.SetBucketPageID(i, newPageID)
			directory.SetLocalDepth(i, uint8(newLocalDepth))
		}
	}
}

// Remove unbinds key, merging emptied buckets with their split images and
// shrinking the directory while every local depth is below the global depth.
func (ht *DiskExtendibleHashTable) Remove(key []byte) (bool, error) {
	if _, ok, err := ht.GetValue(key); err != nil {
		return false, err
	} else if !ok {
		return false, nil
	}

	headerGuard, err := ht.bpm.FetchPageWrite(ht.headerPageID)
	if err != nil {
		return false, err
	}
	header := pages.NewHashHeaderPage(headerGuard.Data())

	hashValue := ht.hash(key)
	directoryPageID := header.DirectoryPageID(header.HashToDirectoryIndex(hashValue))
	if directoryPageID == common.InvalidPageID {
		headerGuard.Drop()
		return false, nil
	}
	directoryGuard, err := ht.bpm.FetchPageWrite(directoryPageID)
	headerGuard.Drop()
	if err != nil {
		return false, err
	}
	defer directoryGuard.Drop()
	directory := pages.NewHashDirectoryPage(directoryGuard.Data())

	bucketIdx := directory.HashToBucketIndex(hashValue)
	bucketPageID := directory.BucketPageID(bucketIdx)
	if bucketPageID == common.InvalidPageID {
		return false, nil
	}
	bucketGuard, err := ht.bpm.FetchPageWrite(bucketPageID)
	if err != nil {
		return false, err
	}
	bucket := pages.NewHashBucketPage(bucketGuard.Data())

	if !bucket.Remove(key, ht.cmp) {
		bucketGuard.Drop()
		return false, nil
	}

	// Merge emptied buckets with their split images, bottom up.
	for directory.LocalDepth(bucketIdx) > 0 {
		localDepth := directory.LocalDepth(bucketIdx)
		maskIdx := bucketIdx & directory.LocalDepthMask(bucketIdx)
		imageIdx := maskIdx ^ (1 << (localDepth - 1))
		imagePageID := directory.BucketPageID(imageIdx)
		if imagePageID == common.InvalidPageID {
			logger.Errorf("hash index %s: split image of bucket %d missing", ht.name, bucketIdx)
			break
		}
		imageGuard, err := ht.bpm.FetchPageWrite(imagePageID)
		if err != nil {
			bucketGuard.Drop()
			return false, err
		}
		image := pages.NewHashBucketPage(imageGuard.Data())

		// Images only merge at equal local depth, and only when one is empty.
		if directory.LocalDepth(imageIdx) != localDepth {
			imageGuard.Drop()
			break
		}
		if !bucket.IsEmpty() && !image.IsEmpty() {
			imageGuard.Drop()
			break
		}

		survivorIdx := bucketIdx
		survivorPageID := bucketPageID
		var deadPageID common.PageID
		if bucket.IsEmpty() {
			deadPageID = bucketPageID
			bucketGuard.Drop()
			bucketGuard = imageGuard
			bucket = image
			bucketIdx = imageIdx
			bucketPageID = imagePageID
			survivorIdx = imageIdx
			survivorPageID = imagePageID
		} else {
			deadPageID = imagePageID
			imageGuard.Drop()
		}

		newLocalDepth := localDepth - 1
		localMask := uint32(1<<newLocalDepth) - 1
		ht.updateDirectoryMapping(directory, survivorIdx, survivorPageID, newLocalDepth, localMask)

		if err := ht.bpm.DeletePage(deadPageID); err != nil {
			logger.Warnf("hash index %s: delete merged bucket page %d: %v", ht.name, deadPageID, err)
		}
	}
	bucketGuard.Drop()

	// Shrink the directory while both halves mirror each other.
	for directory.CanShrink() {
		directory.DecrGlobalDepth()
	}
	return true, nil
}

// VerifyIntegrity walks every directory page and validates the depth and
// pointer-sharing invariants.
func (ht *DiskExtendibleHashTable) VerifyIntegrity() error {
	headerGuard, err := ht.bpm.FetchPageRead(ht.headerPageID)
	if err != nil {
		return err
	}
	defer headerGuard.Drop()
	header := pages.NewHashHeaderPage(headerGuard.Data())

	for i := uint32(0); i < header.MaxSize(); i++ {
		directoryPageID := header.DirectoryPageID(i)
		if directoryPageID == common.InvalidPageID {
			continue
		}
		directoryGuard, err := ht.bpm.FetchPageRead(directoryPageID)
		if err != nil {
			return err
		}
		err = pages.NewHashDirectoryPage(directoryGuard.Data()).VerifyIntegrity()
		directoryGuard.Drop()
		if err != nil {
			return err
		}
	}
	return nil
}
