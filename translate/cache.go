// Package translate turns guest ARM64 instruction streams into IR blocks.
package translate

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/a64dbt/ir"
)

// CachedBlock is a translated block and the summary TranslateBlock
// returned for it.
type CachedBlock struct {
	Block  *ir.Block
	Result Result
}

// end is the address after the last guest instruction of the block.
func (c *CachedBlock) end() uint64 {
	return c.Result.Next
}

// CacheStats holds block cache statistics.
type CacheStats struct {
	Lookups       uint64
	Hits          uint64
	Misses        uint64
	Evictions     uint64
	Invalidations uint64
}

// BlockCache holds translated blocks keyed by guest PC. Tags and LRU
// replacement come from an Akita cache directory with 4-byte "lines", one
// per instruction address.
type BlockCache struct {
	ways      int
	directory *akitacache.DirectoryImpl

	// Indexed by setID*ways + wayID.
	entries []*CachedBlock

	stats CacheStats
}

// NewBlockCache creates a cache of sets*ways blocks.
func NewBlockCache(sets, ways int) *BlockCache {
	return &BlockCache{
		ways: ways,
		directory: akitacache.NewDirectory(
			sets,
			ways,
			4,
			akitacache.NewLRUVictimFinder(),
		),
		entries: make([]*CachedBlock, sets*ways),
	}
}

// NewBlockCacheFromConfig sizes a cache from the translator configuration.
func NewBlockCacheFromConfig(cfg Config) *BlockCache {
	return NewBlockCache(cfg.BlockCacheSets, cfg.BlockCacheWays)
}

func (c *BlockCache) index(block *akitacache.Block) int {
	return block.SetID*c.ways + block.WayID
}

// Get returns the block translated at pc.
func (c *BlockCache) Get(pc uint64) (*CachedBlock, bool) {
	c.stats.Lookups++

	block := c.directory.Lookup(0, pc)
	if block == nil || !block.IsValid {
		c.stats.Misses++
		return nil, false
	}

	c.stats.Hits++
	c.directory.Visit(block)
	return c.entries[c.index(block)], true
}

// Put stores a block translated at pc, evicting the least recently used
// block of its set.
func (c *BlockCache) Put(pc uint64, cb *CachedBlock) {
	block := c.directory.Lookup(0, pc)
	if block == nil || !block.IsValid {
		block = c.directory.FindVictim(pc)
		if block == nil {
			return
		}
		if block.IsValid {
			c.stats.Evictions++
		}
	}

	block.Tag = pc
	block.IsValid = true
	c.entries[c.index(block)] = cb
	c.directory.Visit(block)
}

// Invalidate drops every block whose guest instructions overlap
// [addr, addr+length). It is the emu.Context InvalidateCode hook.
func (c *BlockCache) Invalidate(addr, length uint64) {
	end := addr + length
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if !block.IsValid {
				continue
			}
			cb := c.entries[c.index(block)]
			if cb == nil || cb.Result.PC >= end || cb.end() <= addr {
				continue
			}
			block.IsValid = false
			c.entries[c.index(block)] = nil
			c.stats.Invalidations++
		}
	}
}

// Reset drops every block and clears the statistics.
func (c *BlockCache) Reset() {
	c.directory.Reset()
	clear(c.entries)
	c.stats = CacheStats{}
}

// Stats returns cache statistics.
func (c *BlockCache) Stats() CacheStats {
	return c.stats
}
