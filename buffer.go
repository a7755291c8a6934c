package vfat

import (
	"sync"

	"github.com/dustin/go-humanize"
)

// page is one resident cache entry. last_access is a logical clock, not a
// wall-clock timestamp: every read_page/write_page call advances it, which
// keeps the LRU order deterministic and testable.
type page struct {
	blockID    uint32
	valid      bool
	data       []byte
	dirty      bool
	lastAccess uint64
	owner      string
	refCount   int
}

// PageSummary is a read-only snapshot of one resident page, as reported
// by BufferManager.Status.
type PageSummary struct {
	BlockID uint32
	Dirty   bool
	Owner   string
	Pinned  bool
}

// Stats holds the buffer manager's hit/miss/evict/writeback counters.
type Stats struct {
	Hit       uint64
	Miss      uint64
	Evict     uint64
	Writeback uint64
}

// HitRatio is Hit/(Hit+Miss), or 0 if no accesses have been recorded.
func (s Stats) HitRatio() float64 {
	total := s.Hit + s.Miss
	if total == 0 {
		return 0
	}
	return float64(s.Hit) / float64(total)
}

// Status is the snapshot returned by BufferManager.Status.
type Status struct {
	Capacity   int
	Occupied   int
	Pages      []PageSummary
	Stats      Stats
	CacheBytes string // humanized size of all resident page payloads
}

// BufferManager is the fixed-capacity page cache mediating all block I/O
// above the device layer. Apart from the superblock, every block is read
// and written through it.
type BufferManager struct {
	mu       sync.Mutex
	device   BlockDevice
	pages    []page
	clock    uint64
	stats    Stats
	blockLen int
}

// NewBufferManager creates a cache of the given capacity backed by
// device, whose blocks are blockLen bytes each.
func NewBufferManager(device BlockDevice, capacity, blockLen int) *BufferManager {
	return &BufferManager{
		device:   device,
		pages:    make([]page, capacity),
		blockLen: blockLen,
	}
}

// findLocked returns the index of the resident page for blockID, or -1.
func (b *BufferManager) findLocked(blockID uint32) int {
	for i := range b.pages {
		if b.pages[i].valid && b.pages[i].blockID == blockID {
			return i
		}
	}
	return -1
}

// ReadPage returns a copy of block blockID's current cached contents,
// installing it from the device on a miss and evicting an unpinned LRU
// page if the pool is full.
func (b *BufferManager) ReadPage(blockID uint32, owner string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock++
	if i := b.findLocked(blockID); i >= 0 {
		b.stats.Hit++
		b.pages[i].lastAccess = b.clock
		if owner != "" {
			b.pages[i].owner = owner
		}
		out := make([]byte, len(b.pages[i].data))
		copy(out, b.pages[i].data)
		return out, nil
	}

	b.stats.Miss++
	raw, err := b.device.ReadBlock(blockID)
	if err != nil {
		return nil, err
	}

	slot, err := b.acquireSlotLocked()
	if err != nil {
		return nil, err
	}
	b.pages[slot] = page{
		blockID:    blockID,
		valid:      true,
		data:       append([]byte(nil), raw...),
		dirty:      false,
		lastAccess: b.clock,
		owner:      owner,
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// WritePage overwrites block blockID's cached contents (right-padding or
// truncating data to the device's block size), marking the page dirty.
// If the page is not resident, it is first faulted in exactly as
// ReadPage would.
func (b *BufferManager) WritePage(blockID uint32, data []byte, owner string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock++
	i := b.findLocked(blockID)
	if i < 0 {
		raw, err := b.device.ReadBlock(blockID)
		if err != nil {
			return err
		}
		slot, err := b.acquireSlotLocked()
		if err != nil {
			return err
		}
		b.pages[slot] = page{
			blockID:    blockID,
			valid:      true,
			data:       append([]byte(nil), raw...),
			lastAccess: b.clock,
			owner:      owner,
		}
		i = slot
	}

	buf := make([]byte, b.blockLen)
	copy(buf, data)
	b.pages[i].data = buf
	b.pages[i].dirty = true
	b.pages[i].lastAccess = b.clock
	if owner != "" {
		b.pages[i].owner = owner
	}
	return nil
}

// acquireSlotLocked returns the index of a free slot, evicting the LRU
// unpinned page if the pool is at capacity. Caller must hold b.mu.
func (b *BufferManager) acquireSlotLocked() (int, error) {
	for i := range b.pages {
		if !b.pages[i].valid {
			return i, nil
		}
	}
	victim := -1
	for i := range b.pages {
		if b.pages[i].refCount > 0 {
			continue
		}
		if victim < 0 || b.pages[i].lastAccess < b.pages[victim].lastAccess ||
			(b.pages[i].lastAccess == b.pages[victim].lastAccess && b.pages[i].blockID < b.pages[victim].blockID) {
			victim = i
		}
	}
	if victim < 0 {
		return 0, resultPoolExhausted
	}
	if b.pages[victim].dirty {
		if err := b.device.WriteBlock(b.pages[victim].blockID, b.pages[victim].data); err != nil {
			return 0, err
		}
		b.stats.Writeback++
	}
	b.stats.Evict++
	b.pages[victim] = page{}
	return victim, nil
}

// FlushAll writes every dirty page through to the device and clears
// every dirty flag, then flushes the device itself.
func (b *BufferManager) FlushAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.pages {
		if b.pages[i].valid && b.pages[i].dirty {
			if err := b.device.WriteBlock(b.pages[i].blockID, b.pages[i].data); err != nil {
				return err
			}
			b.pages[i].dirty = false
		}
	}
	return b.device.Flush()
}

// Invalidate writes the page through if dirty, then removes it from the
// cache unconditionally. A no-op if the block is not resident.
func (b *BufferManager) Invalidate(blockID uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.findLocked(blockID)
	if i < 0 {
		return nil
	}
	if b.pages[i].dirty {
		if err := b.device.WriteBlock(b.pages[i].blockID, b.pages[i].data); err != nil {
			return err
		}
	}
	b.pages[i] = page{}
	return nil
}

// Clear flushes every dirty page then removes all pages from the cache.
func (b *BufferManager) Clear() error {
	if err := b.FlushAll(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.pages {
		b.pages[i] = page{}
	}
	return nil
}

// Pin increments a page's reference count, preventing it from being
// chosen as an eviction victim until Unpin brings the count back to
// zero. Faults the page in if it is not already resident.
func (b *BufferManager) Pin(blockID uint32, owner string) error {
	if _, err := b.ReadPage(blockID, owner); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.findLocked(blockID); i >= 0 {
		b.pages[i].refCount++
	}
	return nil
}

// Unpin decrements a page's reference count.
func (b *BufferManager) Unpin(blockID uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.findLocked(blockID); i >= 0 && b.pages[i].refCount > 0 {
		b.pages[i].refCount--
	}
}

// ResetStats zeros the hit/miss/evict/writeback counters.
func (b *BufferManager) ResetStats() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats = Stats{}
}

// Status returns a snapshot of capacity, occupancy, per-page state and
// statistics.
func (b *BufferManager) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	var summaries []PageSummary
	var residentBytes uint64
	occupied := 0
	for _, p := range b.pages {
		if !p.valid {
			continue
		}
		occupied++
		residentBytes += uint64(len(p.data))
		summaries = append(summaries, PageSummary{
			BlockID: p.blockID,
			Dirty:   p.dirty,
			Owner:   p.owner,
			Pinned:  p.refCount > 0,
		})
	}
	return Status{
		Capacity:   len(b.pages),
		Occupied:   occupied,
		Pages:      summaries,
		Stats:      b.stats,
		CacheBytes: humanize.Bytes(residentBytes),
	}
}
