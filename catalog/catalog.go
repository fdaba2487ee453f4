// Package catalog implements the narrow, read-only Catalog contract the
// B+Tree index and lock manager consume (spec §6: "GetTable(oid) →
// TableMetadata, GetIndex(oid), GetTableIndexes(name)"). It is trimmed to
// exactly that contract; on-disk persistence and DDL, which the teacher's
// CatalogManager owns, are out of scope here (spec.md treats "the system
// catalog" as an external collaborator).
package catalog

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// TableMetadata is what the kernel needs to know about a table: its
// identity and the indexes built on it.
type TableMetadata struct {
	OID       uint32
	Name      string
	IndexOIDs []uint32
}

// IndexMetadata describes one index registered against a table.
type IndexMetadata struct {
	OID      uint32
	Name     string
	TableOID uint32
}

// Catalog is the read-only lookup surface spec §6 requires. The B+Tree
// package never imports it directly (indexes are opened by name against
// a Disk Manager, per spec §4.3), but the executor-facing layer this
// kernel is a foundation for consults it on every table/index resolution.
type Catalog interface {
	GetTable(oid uint32) (TableMetadata, bool)
	GetIndex(oid uint32) (IndexMetadata, bool)
	GetTableIndexes(name string) ([]IndexMetadata, bool)
}

var _ Catalog = (*InMemoryCatalog)(nil)

// InMemoryCatalog is a Catalog backed by in-memory maps plus a
// ristretto admission-counted cache in front of the lookups, grounded on
// storage_engine/catalog/{main.go,structs.go}'s TableToFileId/
// tableSchemas map pair — generalized from a persistence layer (JSON
// files under dbRoot, schema DDL, file-ID allocation) to the read-only
// contract spec §6 actually names. The teacher declared
// github.com/dgraph-io/ristretto/v2 in its go.mod but never imported it
// anywhere; vaultdb gives it the job the teacher's flat, uncached map
// never had: an admission-counted read cache in front of GetTable/
// GetIndex, with the maps below it staying authoritative. Nothing else in
// the kernel (index opening, lock acquisition) consults the catalog.
type InMemoryCatalog struct {
	mu sync.RWMutex

	tablesByOID  map[uint32]TableMetadata
	tablesByName map[string]uint32
	indexes      map[uint32]IndexMetadata

	cache *ristretto.Cache[uint32, any]
}

type cacheKind byte

const (
	kindTable cacheKind = iota
	kindIndex
)

// cacheKey packs a lookup kind and oid into ristretto's single uint32
// key space without colliding tables and indexes that happen to share
// an oid.
func cacheKey(kind cacheKind, oid uint32) uint32 {
	return oid<<1 | uint32(kind)
}

// NewInMemoryCatalog builds an empty catalog. Register tables and
// indexes with RegisterTable/RegisterIndex before serving lookups.
func NewInMemoryCatalog() (*InMemoryCatalog, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[uint32, any]{
		NumCounters: 1e4, // ~10x the expected working set of table/index oids
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog: new cache: %w", err)
	}
	return &InMemoryCatalog{
		tablesByOID:  make(map[uint32]TableMetadata),
		tablesByName: make(map[string]uint32),
		indexes:      make(map[uint32]IndexMetadata),
		cache:        cache,
	}, nil
}

// RegisterTable adds or replaces a table's metadata, invalidating any
// cached entry under its oid.
func (c *InMemoryCatalog) RegisterTable(t TableMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tablesByOID[t.OID] = t
	c.tablesByName[t.Name] = t.OID
	c.cache.Del(cacheKey(kindTable, t.OID))
}

// RegisterIndex adds or replaces an index's metadata and links it onto
// its owning table's IndexOIDs, invalidating cached entries for both.
func (c *InMemoryCatalog) RegisterIndex(idx IndexMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexes[idx.OID] = idx
	c.cache.Del(cacheKey(kindIndex, idx.OID))

	table, ok := c.tablesByOID[idx.TableOID]
	if !ok {
		return
	}
	for _, existing := range table.IndexOIDs {
		if existing == idx.OID {
			return
		}
	}
	table.IndexOIDs = append(table.IndexOIDs, idx.OID)
	c.tablesByOID[idx.TableOID] = table
	c.cache.Del(cacheKey(kindTable, idx.TableOID))
}

// GetTable resolves a table oid, consulting the cache before the map.
func (c *InMemoryCatalog) GetTable(oid uint32) (TableMetadata, bool) {
	key := cacheKey(kindTable, oid)
	if v, ok := c.cache.Get(key); ok {
		t, ok := v.(TableMetadata)
		return t, ok
	}

	c.mu.RLock()
	t, ok := c.tablesByOID[oid]
	c.mu.RUnlock()
	if ok {
		c.cache.Set(key, t, 1)
	}
	return t, ok
}

// GetIndex resolves an index oid, consulting the cache before the map.
func (c *InMemoryCatalog) GetIndex(oid uint32) (IndexMetadata, bool) {
	key := cacheKey(kindIndex, oid)
	if v, ok := c.cache.Get(key); ok {
		idx, ok := v.(IndexMetadata)
		return idx, ok
	}

	c.mu.RLock()
	idx, ok := c.indexes[oid]
	c.mu.RUnlock()
	if ok {
		c.cache.Set(key, idx, 1)
	}
	return idx, ok
}

// GetTableIndexes resolves every index registered against the named
// table. Bypasses the cache: this fans out into multiple GetIndex calls,
// each of which is already cached individually.
func (c *InMemoryCatalog) GetTableIndexes(name string) ([]IndexMetadata, bool) {
	c.mu.RLock()
	oid, ok := c.tablesByName[name]
	if !ok {
		c.mu.RUnlock()
		return nil, false
	}
	table := c.tablesByOID[oid]
	c.mu.RUnlock()

	result := make([]IndexMetadata, 0, len(table.IndexOIDs))
	for _, indexOID := range table.IndexOIDs {
		if idx, ok := c.GetIndex(indexOID); ok {
			result = append(result, idx)
		}
	}
	return result, true
}
