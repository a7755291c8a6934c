package vfat

// directoryManager implements multi-level directories: the root occupies
// a fixed block range outside the FAT allocation pool, and subdirectories
// are chained through the FAT exactly like files, holding the same
// fixed-size FCB slot layout internally.
type directoryManager struct {
	buf    *BufferManager
	fat    *fatManager
	layout Layout

	rootStart  uint32
	rootBlocks uint32
	perBlock   int
}

func newDirectoryManager(buf *BufferManager, fat *fatManager, l Layout) *directoryManager {
	return &directoryManager{
		buf:        buf,
		fat:        fat,
		layout:     l,
		rootStart:  l.DirStart(),
		rootBlocks: uint32(l.DirBlocks),
		perBlock:   l.EntriesPerDirBlock(),
	}
}

// blocksOf returns the physical blocks backing a directory. dir == nil
// means the root.
func (d *directoryManager) blocksOf(dir *FCB) ([]uint32, error) {
	if dir == nil {
		blocks := make([]uint32, d.rootBlocks)
		for i := range blocks {
			blocks[i] = d.rootStart + uint32(i)
		}
		return blocks, nil
	}
	if dir.StartBlock == emptyStartBlock {
		return nil, nil
	}
	return d.fat.GetFileBlocks(int64(dir.StartBlock))
}

// ListEntries returns every non-empty FCB slot in dir (nil == root).
func (d *directoryManager) ListEntries(dir *FCB) ([]FCB, error) {
	blocks, err := d.blocksOf(dir)
	if err != nil {
		return nil, err
	}
	var out []FCB
	for _, blk := range blocks {
		data, err := d.buf.ReadPage(blk, "DIR")
		if err != nil {
			return nil, err
		}
		for i := 0; i < d.perBlock; i++ {
			off := i * fcbSize
			if fcb, ok := decodeFCB(data[off : off+fcbSize]); ok {
				out = append(out, fcb)
			}
		}
	}
	return out, nil
}

// findInDir searches dir (nil == root) for an entry named name.
func (d *directoryManager) findInDir(dir *FCB, name string) (*FCB, error) {
	entries, err := d.ListEntries(dir)
	if err != nil {
		return nil, err
	}
	name = normalizeName(name)
	for i := range entries {
		if normalizeName(entries[i].Name) == name {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// ResolvePath walks path component by component from the root. It
// returns (nil, nil, nil) for "/" or "" (the root itself). Otherwise
// parent is the FCB of the last-but-one component's directory (nil if
// that is the root), and target is the final component's FCB, or nil if
// it does not exist (legal for create operations).
func (d *directoryManager) ResolvePath(path string) (parent *FCB, target *FCB, err error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, nil, err
	}
	if len(parts) == 0 {
		return nil, nil, nil
	}
	var current *FCB
	for _, part := range parts[:len(parts)-1] {
		found, err := d.findInDir(current, part)
		if err != nil {
			return nil, nil, err
		}
		if found == nil {
			return nil, nil, resultNotFound
		}
		if !found.IsDirectory {
			return nil, nil, resultNotADirectory
		}
		current = found
	}
	target, err = d.findInDir(current, parts[len(parts)-1])
	if err != nil {
		return nil, nil, err
	}
	return current, target, nil
}

// AddEntry inserts fcb into dir (nil == root): first empty slot in an
// existing block, else (for a subdirectory only) a newly-allocated and
// FAT-linked block. Root directories cannot grow and fail with
// resultDirectoryFull once full.
func (d *directoryManager) AddEntry(dir *FCB, fcb FCB) error {
	blocks, err := d.blocksOf(dir)
	if err != nil {
		return err
	}
	enc := fcb.encode()

	for _, blk := range blocks {
		data, err := d.buf.ReadPage(blk, "DIR")
		if err != nil {
			return err
		}
		for i := 0; i < d.perBlock; i++ {
			off := i * fcbSize
			if _, ok := decodeFCB(data[off : off+fcbSize]); !ok {
				copy(data[off:off+fcbSize], enc[:])
				return d.buf.WritePage(blk, data, "DIR")
			}
		}
	}

	if dir == nil {
		return resultDirectoryFull
	}

	newBlock, err := d.fat.AllocateBlock()
	if err != nil {
		return err
	}
	if newBlock == -1 {
		return resultNoSpace
	}
	if len(blocks) > 0 {
		if err := d.fat.SetNext(blocks[len(blocks)-1], uint32(newBlock)); err != nil {
			return err
		}
	} else {
		dir.StartBlock = int32(newBlock)
	}
	data := make([]byte, d.layout.BlockSize)
	copy(data[:fcbSize], enc[:])
	return d.buf.WritePage(uint32(newBlock), data, "DIR")
}

// RemoveEntry zeroes the slot named name within dir (nil == root).
func (d *directoryManager) RemoveEntry(dir *FCB, name string) error {
	blocks, err := d.blocksOf(dir)
	if err != nil {
		return err
	}
	name = normalizeName(name)
	var zero [fcbSize]byte
	for _, blk := range blocks {
		data, err := d.buf.ReadPage(blk, "DIR")
		if err != nil {
			return err
		}
		modified := false
		for i := 0; i < d.perBlock; i++ {
			off := i * fcbSize
			fcb, ok := decodeFCB(data[off : off+fcbSize])
			if !ok || normalizeName(fcb.Name) != name {
				continue
			}
			copy(data[off:off+fcbSize], zero[:])
			modified = true
			break
		}
		if modified {
			return d.buf.WritePage(blk, data, "DIR")
		}
	}
	return resultNotFound
}

// UpdateEntry overwrites the slot matching fcb.Name within dir (nil ==
// root) with fcb's encoded bytes. Used to persist size/start_block/
// modify_time changes after a write.
func (d *directoryManager) UpdateEntry(dir *FCB, fcb FCB) error {
	blocks, err := d.blocksOf(dir)
	if err != nil {
		return err
	}
	name := normalizeName(fcb.Name)
	enc := fcb.encode()
	for _, blk := range blocks {
		data, err := d.buf.ReadPage(blk, "DIR")
		if err != nil {
			return err
		}
		modified := false
		for i := 0; i < d.perBlock; i++ {
			off := i * fcbSize
			curr, ok := decodeFCB(data[off : off+fcbSize])
			if !ok || normalizeName(curr.Name) != name {
				continue
			}
			copy(data[off:off+fcbSize], enc[:])
			modified = true
			break
		}
		if modified {
			return d.buf.WritePage(blk, data, "DIR")
		}
	}
	return resultNotFound
}
