package metadata

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zhukovaskychina/xminidb/basic"
	"github.com/zhukovaskychina/xminidb/buffer_pool"
	"github.com/zhukovaskychina/xminidb/conf"
	"github.com/zhukovaskychina/xminidb/container/hash"
	"github.com/zhukovaskychina/xminidb/storage/table"
)

var (
	ErrTableNotFound      = errors.New("table not found")
	ErrTableAlreadyExists = errors.New("table already exists")
	ErrIndexNotFound      = errors.New("index not found")
	ErrBadIndexColumn     = errors.New("column cannot be indexed")
)

// Fixed index key widths per key column type. Varchar and decimal keys are
// length-prefixed inside the width (see basic.Value.IndexKey); longer values
// are rejected at insert time.
const (
	integerKeySize = 8
	decimalKeySize = 32
	varcharKeySize = 64
)

// indexKeySize picks the key width for a column type.
func indexKeySize(t basic.TypeID) (uint16, error) {
	switch t {
	case basic.TypeInteger, basic.TypeBoolean:
		return integerKeySize, nil
	case basic.TypeDecimal:
		return decimalKeySize, nil
	case basic.TypeVarchar:
		return varcharKeySize, nil
	}
	return 0, fmt.Errorf("%w: type %s", ErrBadIndexColumn, t)
}

// TableInfo 表元信息
type TableInfo struct {
	OID    uint32
	Name   string
	Schema *Schema
	Heap   *table.TableHeap
}

// IndexInfo 索引元信息
type IndexInfo struct {
	OID       uint32
	Name      string
	TableName string
	KeyColumn int
	IsPrimary bool
	Index     *hash.DiskExtendibleHashTable
}

// Catalog is the in-memory table/index registry the execution layer resolves
// names through.
type Catalog struct {
	mu sync.RWMutex

	bpm *buffer_pool.BufferPoolManager
	cfg *conf.Cfg

	tables      map[string]*TableInfo
	tablesByOID map[uint32]*TableInfo
	indexes     map[string][]*IndexInfo
	nextOID     uint32
}

func NewCatalog(bpm *buffer_pool.BufferPoolManager, cfg *conf.Cfg) *Catalog {
	if cfg == nil {
		cfg = conf.NewCfg()
	}
	return &Catalog{
		bpm:         bpm,
		cfg:         cfg,
		tables:      make(map[string]*TableInfo),
		tablesByOID: make(map[uint32]*TableInfo),
		indexes:     make(map[string][]*IndexInfo),
	}
}

// CreateTable allocates a heap for the named table.
func (c *Catalog) CreateTable(name string, schema *Schema) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tables[name]; ok {
		return nil, ErrTableAlreadyExists
	}
	heap, err := table.NewTableHeap(c.bpm)
	if err != nil {
		return nil, err
	}
	c.nextOID++
	info := &TableInfo{
		OID:    c.nextOID,
		Name:   name,
		Schema: schema,
		Heap:   heap,
	}
	c.tables[name] = info
	c.tablesByOID[info.OID] = info
	return info, nil
}

// CreateIndex builds an extendible hash index over one column of an existing
// table. Existing rows are not back-filled; callers create indexes before
// loading data, as the execution tests do.
func (c *Catalog) CreateIndex(name, tableName string, keyColumn int, isPrimary bool) (*IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tableInfo, ok := c.tables[tableName]
	if !ok {
		return nil, ErrTableNotFound
	}
	if keyColumn < 0 || keyColumn >= tableInfo.Schema.ColumnCount() {
		return nil, fmt.Errorf("%w: column %d out of range", ErrBadIndexColumn, keyColumn)
	}
	keySize, err := indexKeySize(tableInfo.Schema.Column(keyColumn).Type)
	if err != nil {
		return nil, err
	}
	idx, err := hash.NewDiskExtendibleHashTable(c.bpm, hash.Config{
		Name:              name,
		KeySize:           keySize,
		HeaderMaxDepth:    uint32(c.cfg.HeaderMaxDepth),
		DirectoryMaxDepth: uint32(c.cfg.DirectoryMaxDepth),
		BucketMaxSize:     uint32(c.cfg.BucketMaxSize),
	})
	if err != nil {
		return nil, err
	}
	c.nextOID++
	info := &IndexInfo{
		OID:       c.nextOID,
		Name:      name,
		TableName: tableName,
		KeyColumn: keyColumn,
		IsPrimary: isPrimary,
		Index:     idx,
	}
	c.indexes[tableName] = append(c.indexes[tableName], info)
	return info, nil
}

func (c *Catalog) GetTable(name string) (*TableInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.tables[name]
	if !ok {
		return nil, ErrTableNotFound
	}
	return info, nil
}

func (c *Catalog) GetTableByOID(oid uint32) (*TableInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.tablesByOID[oid]
	if !ok {
		return nil, ErrTableNotFound
	}
	return info, nil
}

// TableNames returns every registered table, for GC heap walks.
func (c *Catalog) TableNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}

// GetTableIndexes lists the indexes defined over a table.
func (c *Catalog) GetTableIndexes(tableName string) []*IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexes[tableName]
}

// GetIndex resolves one index on a table by column position.
func (c *Catalog) GetIndex(tableName string, keyColumn int) (*IndexInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, info := range c.indexes[tableName] {
		if info.KeyColumn == keyColumn {
			return info, nil
		}
	}
	return nil, ErrIndexNotFound
}

// GetIndexByName resolves one index on a table by name.
func (c *Catalog) GetIndexByName(tableName, indexName string) (*IndexInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, info := range c.indexes[tableName] {
		if info.Name == indexName {
			return info, nil
		}
	}
	return nil, ErrIndexNotFound
}

// PrimaryIndex returns the primary-key index of a table, if any.
func (c *Catalog) PrimaryIndex(tableName string) *IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, info := range c.indexes[tableName] {
		if info.IsPrimary {
			return info
		}
	}
	return nil
}
