package vfat

import "encoding/binary"

// FAT entry sentinels (spec §3), stored as 32-bit little-endian values.
const (
	fatFree         uint32 = 0xFFFFFFFF
	fatEOF          uint32 = 0xFFFFFFFE
	fatBad          uint32 = 0xFFFFFFFD
	fatReservedBase uint32 = 0xFFFFFF00
)

// fatManager allocates and frees data blocks and walks FAT chains. Every
// FAT read and write goes through the buffer manager; correctness never
// depends on the free-block cache, which is a performance aid only
// (invalidated on every write).
type fatManager struct {
	buf       *BufferManager
	layout    Layout
	fatStart  uint32
	dataStart uint32
	total     uint32 // total addressable FAT entries

	freeCache []uint32 // nil means "not built"
}

func newFATManager(buf *BufferManager, l Layout) *fatManager {
	return &fatManager{
		buf:       buf,
		layout:    l,
		fatStart:  l.FATStart(),
		dataStart: l.DataStart(),
		total:     l.TotalFATEntries(),
	}
}

func (f *fatManager) entryLocation(id uint32) (block uint32, offset uint32) {
	perBlock := f.layout.EntriesPerFATBlock()
	block = f.fatStart + id/perBlock
	offset = (id % perBlock) * 4
	return block, offset
}

func (f *fatManager) readEntry(id uint32) (uint32, error) {
	if id >= f.total {
		return 0, resultInvalidBlock
	}
	block, offset := f.entryLocation(id)
	data, err := f.buf.ReadPage(block, "FAT")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data[offset : offset+4]), nil
}

func (f *fatManager) writeEntry(id uint32, value uint32) error {
	if id >= f.total {
		return resultInvalidBlock
	}
	block, offset := f.entryLocation(id)
	data, err := f.buf.ReadPage(block, "FAT")
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(data[offset:offset+4], value)
	if err := f.buf.WritePage(block, data, "FAT"); err != nil {
		return err
	}
	f.freeCache = nil
	return nil
}

// AllocateBlock returns the smallest free block in the data region,
// marking it EOF, or -1 if none is free.
func (f *fatManager) AllocateBlock() (int64, error) {
	if f.freeCache == nil {
		if err := f.rebuildFreeCache(); err != nil {
			return -1, err
		}
	}
	if len(f.freeCache) == 0 {
		return -1, nil
	}
	id := f.freeCache[0]
	f.freeCache = f.freeCache[1:]
	if err := f.writeEntry(id, fatEOF); err != nil {
		return -1, err
	}
	return int64(id), nil
}

// FreeBlock marks a block free. Invalid or reserved indices (including
// the emptyStartBlock sentinel) are silently ignored.
func (f *fatManager) FreeBlock(id int64) error {
	if id < int64(f.dataStart) || id >= int64(f.total) {
		return nil
	}
	return f.writeEntry(uint32(id), fatFree)
}

// SetNext rewrites the chain-link entry for id, used when extending or
// truncating a chain.
func (f *fatManager) SetNext(id uint32, next uint32) error {
	return f.writeEntry(id, next)
}

// GetFileBlocks walks the chain starting at start, stopping at EOF, a
// free marker, a detected cycle, or once the chain exceeds the total
// entry count (a defensive bound, since that can only happen on a
// corrupt FAT).
func (f *fatManager) GetFileBlocks(start int64) ([]uint32, error) {
	if start == int64(emptyStartBlock) {
		return nil, nil
	}
	if start < 0 || start >= int64(f.total) {
		return nil, resultInvalidBlock
	}
	var blocks []uint32
	seen := make(map[uint32]bool)
	current := uint32(start)
	for {
		if current >= f.total || current == fatFree || current >= fatReservedBase {
			break
		}
		if seen[current] {
			break // cycle: treat as corrupt, return the prefix found so far.
		}
		seen[current] = true
		blocks = append(blocks, current)
		if uint32(len(blocks)) >= f.total {
			break // defensive termination against a malformed FAT.
		}
		next, err := f.readEntry(current)
		if err != nil {
			return blocks, err
		}
		if next == fatEOF {
			break
		}
		current = next
	}
	return blocks, nil
}

// GetFreeBlocks scans the data region and returns every block currently
// marked free.
func (f *fatManager) GetFreeBlocks() ([]uint32, error) {
	if f.freeCache == nil {
		if err := f.rebuildFreeCache(); err != nil {
			return nil, err
		}
	}
	out := make([]uint32, len(f.freeCache))
	copy(out, f.freeCache)
	return out, nil
}

func (f *fatManager) rebuildFreeCache() error {
	var free []uint32
	for i := f.dataStart; i < f.total; i++ {
		v, err := f.readEntry(i)
		if err != nil {
			return err
		}
		if v == fatFree {
			free = append(free, i)
		}
	}
	f.freeCache = free
	return nil
}

// MarkSystemBlocks writes reserved sentinels over the superblock, the
// FAT region and the root directory region, so they are never mistaken
// for free data blocks.
func (f *fatManager) MarkSystemBlocks() error {
	for i := f.fatStart; i < f.fatStart+uint32(f.layout.FATBlocks); i++ {
		if i < f.total {
			if err := f.writeEntry(i, fatReservedBase+1); err != nil {
				return err
			}
		}
	}
	for i := f.layout.DirStart(); i < f.dataStart; i++ {
		if i < f.total {
			if err := f.writeEntry(i, fatReservedBase+2); err != nil {
				return err
			}
		}
	}
	if f.total > 0 {
		if err := f.writeEntry(0, fatReservedBase+3); err != nil {
			return err
		}
	}
	return f.buf.FlushAll()
}
