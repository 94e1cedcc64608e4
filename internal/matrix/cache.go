package matrix

import "container/list"

// DefaultCacheSlots and DefaultCacheBytes mirror the reference engine's
// chunk-cache dataset access property list: H5Pset_chunk_cache(dapl,
// 10007, 32*1024*1024, 0.75). This implementation tracks both an entry
// count ceiling and a byte-size ceiling and evicts on whichever is hit
// first; the 0.75 "preemption policy" knob has no analogue here since
// eviction is a strict LRU, not a partial-preemption heuristic.
const (
	DefaultCacheSlots = 10007
	DefaultCacheBytes = 32 * 1024 * 1024
)

type chunkKey uint64

func makeChunkKey(row, col uint32) chunkKey {
	return chunkKey(uint64(row)<<32 | uint64(col))
}

type cacheEntry struct {
	key   chunkKey
	data  []int32
	dirty bool
}

// chunkCache is an LRU cache of decoded chunk pages, one per matrix
// handle, following the map+container/list idiom used for the storage
// layer's tag-value cache: a map for O(1) lookup and a doubly linked list
// to track recency without walking the whole cache on every touch.
type chunkCache struct {
	entries map[chunkKey]*list.Element
	lru     *list.List

	maxSlots int
	maxBytes int
	curBytes int
}

func newChunkCache(maxSlots, maxBytes int) *chunkCache {
	if maxSlots <= 0 {
		maxSlots = DefaultCacheSlots
	}
	if maxBytes <= 0 {
		maxBytes = DefaultCacheBytes
	}
	return &chunkCache{
		entries:  make(map[chunkKey]*list.Element),
		lru:      list.New(),
		maxSlots: maxSlots,
		maxBytes: maxBytes,
	}
}

// get returns the cached chunk for key, moving it to the front of the LRU.
func (c *chunkCache) get(key chunkKey) (*cacheEntry, bool) {
	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*cacheEntry), true
}

// put inserts or replaces the cached chunk for key and evicts from the
// back of the LRU until both ceilings are satisfied. It never evicts
// dirty entries that have not been flushed: doing so would silently lose
// a write, so a cache that is entirely full of dirty chunks is allowed to
// exceed its nominal ceilings until the caller calls flush.
func (c *chunkCache) put(entry *cacheEntry) {
	if elem, ok := c.entries[entry.key]; ok {
		old := elem.Value.(*cacheEntry)
		c.curBytes -= len(old.data) * 4
		elem.Value = entry
		c.lru.MoveToFront(elem)
	} else {
		elem := c.lru.PushFront(entry)
		c.entries[entry.key] = elem
	}
	c.curBytes += len(entry.data) * 4
	c.evict()
}

func (c *chunkCache) evict() {
	for (len(c.entries) > c.maxSlots || c.curBytes > c.maxBytes) && c.lru.Len() > 0 {
		back := c.lru.Back()
		victim := back.Value.(*cacheEntry)
		if victim.dirty {
			// Walk forward to find a clean victim instead; if every
			// entry is dirty there is nothing safe to evict.
			evicted := false
			for e := back.Prev(); e != nil; e = e.Prev() {
				if !e.Value.(*cacheEntry).dirty {
					c.removeElem(e)
					evicted = true
					break
				}
			}
			if !evicted {
				return
			}
			continue
		}
		c.removeElem(back)
	}
}

func (c *chunkCache) removeElem(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.curBytes -= len(entry.data) * 4
	delete(c.entries, entry.key)
	c.lru.Remove(elem)
}

// dirtyEntries returns every entry currently marked dirty, for flush.
func (c *chunkCache) dirtyEntries() []*cacheEntry {
	var out []*cacheEntry
	for e := c.lru.Front(); e != nil; e = e.Next() {
		if entry := e.Value.(*cacheEntry); entry.dirty {
			out = append(out, entry)
		}
	}
	return out
}

// evictKeys removes the given keys from the cache unconditionally,
// regardless of dirty state. flush calls this after a successful
// write-back to invalidate read copies of touched chunks, per the engine
// contract.
func (c *chunkCache) evictKeys(keys []chunkKey) {
	for _, k := range keys {
		if elem, ok := c.entries[k]; ok {
			c.removeElem(elem)
		}
	}
}
