package vfat

import (
	"log/slog"
	"sync"
	"time"
)

// FS is the filesystem facade: it resolves paths through the directory
// manager, locates or edits block chains through the FAT manager, and
// performs all I/O through the buffer manager. A single coarse mutex
// serializes every mutating and read operation, matching the spec's
// concurrency model; none of the operations below call back into
// another FS method while already holding fsys.mu, so the lock never
// needs to be re-entered.
type FS struct {
	mu sync.Mutex

	device BlockDevice
	buf    *BufferManager
	fat    *fatManager
	dir    *directoryManager
	layout Layout

	locked map[string]bool
	log    *slog.Logger
}

// FileInfo is a read-only projection of an FCB used by clients of the
// facade (get_file_info / list_files).
type FileInfo struct {
	Name        string
	Size        uint32
	Blocks      []uint32
	CreateTime  time.Time
	ModifyTime  time.Time
	IsDirectory bool
}

// SystemInfo is the projection returned by GetSystemInfo.
type SystemInfo struct {
	TotalBlocks   uint32
	ManagedBlocks uint32
	UsedBlocks    uint32
	FreeBlocks    uint32
	FilesCount    int
	Buffer        Status
}

// SetLogger attaches a structured logger; Mount and the main facade
// operations trace through it at slogLevelTrace. The buffer, FAT and
// directory managers do not log. An FS with no logger never logs.
func (fsys *FS) SetLogger(log *slog.Logger) { fsys.log = log }

// Mount attaches fsys to an already-formatted block device. The device
// must have been produced by CreateImage (or a prior Mount of an image
// formatted that way); layout is read back from the on-disk superblock,
// except for BufferCapacity, which the caller supplies since it is a
// cache-sizing choice, not an on-disk property.
func (fsys *FS) Mount(device BlockDevice, bufferCapacity int) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	sbBytes, err := device.ReadBlock(0)
	if err != nil {
		return err
	}
	layout, err := decodeSuperblock(sbBytes)
	if err != nil {
		return err
	}
	if bufferCapacity <= 0 {
		bufferCapacity = DefaultBufferCapacity
	}
	layout.BufferCapacity = bufferCapacity
	if err := layout.Validate(); err != nil {
		return err
	}

	fsys.device = device
	fsys.layout = layout
	fsys.buf = NewBufferManager(device, bufferCapacity, int(layout.BlockSize))
	fsys.fat = newFATManager(fsys.buf, layout)
	fsys.dir = newDirectoryManager(fsys.buf, fsys.fat, layout)
	fsys.locked = make(map[string]bool)
	fsys.trace("mount", slog.Int("block_size", int(layout.BlockSize)), slog.Int("total_blocks", int(layout.TotalBlocks)))
	return nil
}

// CreateImage formats a brand-new block device: writes the superblock,
// zero/free-initializes the FAT region, zero-initializes the root
// directory region, and marks every system block reserved. The device
// must already be sized layout.TotalBlocks blocks of layout.BlockSize
// bytes (e.g. via CreateMmapDevice or a fresh in-memory device).
func CreateImage(device BlockDevice, layout Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	if err := device.WriteBlock(0, encodeSuperblock(layout)); err != nil {
		return err
	}

	buf := NewBufferManager(device, layout.BufferCapacity, int(layout.BlockSize))
	fat := newFATManager(buf, layout)

	freeEntry := make([]byte, 4)
	littleEndianPutFree(freeEntry)
	perBlock := int(layout.EntriesPerFATBlock())
	fatBlockTemplate := make([]byte, layout.BlockSize)
	for i := 0; i < perBlock; i++ {
		copy(fatBlockTemplate[i*4:i*4+4], freeEntry)
	}
	for b := uint32(0); b < uint32(layout.FATBlocks); b++ {
		if err := buf.WritePage(layout.FATStart()+b, fatBlockTemplate, "FAT"); err != nil {
			return err
		}
	}

	zeroDir := make([]byte, layout.BlockSize)
	for b := uint32(0); b < uint32(layout.DirBlocks); b++ {
		if err := buf.WritePage(layout.DirStart()+b, zeroDir, "DIR"); err != nil {
			return err
		}
	}

	if err := fat.MarkSystemBlocks(); err != nil {
		return err
	}
	return buf.FlushAll()
}

func littleEndianPutFree(b []byte) {
	b[0], b[1], b[2], b[3] = 0xFF, 0xFF, 0xFF, 0xFF
}

// CreateDirectory creates a new, empty subdirectory at path. path must
// not already exist.
func (fsys *FS) CreateDirectory(path string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.trace("create_directory", slog.String("path", path))

	parent, target, err := fsys.dir.ResolvePath(path)
	if err != nil {
		return err
	}
	if target != nil {
		return resultAlreadyExists
	}
	_, name := splitParent(path)
	if name == "" {
		return resultAlreadyExists // path is the root itself
	}

	start, err := fsys.fat.AllocateBlock()
	if err != nil {
		return err
	}
	if start == -1 {
		return resultNoSpace
	}
	zero := make([]byte, fsys.layout.BlockSize)
	if err := fsys.buf.WritePage(uint32(start), zero, name); err != nil {
		return err
	}

	now := time.Now()
	fcb := FCB{Name: name, StartBlock: int32(start), IsDirectory: true, CreateTime: now, ModifyTime: now}
	if err := fsys.dir.AddEntry(parent, fcb); err != nil {
		fsys.fat.FreeBlock(start)
		return err
	}
	return fsys.buf.FlushAll()
}

// CreateFile creates a new file at path with the given content. path
// must not already exist.
func (fsys *FS) CreateFile(path string, content []byte) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.trace("create_file", slog.String("path", path), slog.Int("len", len(content)))

	parent, target, err := fsys.dir.ResolvePath(path)
	if err != nil {
		return err
	}
	if target != nil {
		return resultAlreadyExists
	}
	_, name := splitParent(path)
	if name == "" {
		return resultAlreadyExists // path is the root itself
	}

	start := emptyStartBlock
	if len(content) > 0 {
		blockStart, err := fsys.writeChain(emptyStartBlock, content, name)
		if err != nil {
			return err
		}
		start = blockStart
	}

	now := time.Now()
	fcb := FCB{Name: name, Size: uint32(len(content)), StartBlock: start, CreateTime: now, ModifyTime: now}
	if err := fsys.dir.AddEntry(parent, fcb); err != nil {
		return err
	}
	return fsys.buf.FlushAll()
}

// ReadFile returns the exact byte sequence stored at path.
func (fsys *FS) ReadFile(path string) ([]byte, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.trace("read_file", slog.String("path", path))

	_, target, err := fsys.dir.ResolvePath(path)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, resultNotFound
	}
	if target.IsDirectory {
		return nil, resultIsADirectory
	}
	if target.StartBlock == emptyStartBlock {
		return nil, nil
	}

	blocks, err := fsys.fat.GetFileBlocks(int64(target.StartBlock))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(blocks)*int(fsys.layout.BlockSize))
	for _, b := range blocks {
		data, err := fsys.buf.ReadPage(b, target.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	if uint32(len(out)) > target.Size {
		out = out[:target.Size]
	}
	return out, nil
}

// writeChain writes content into a chain reused/extended/truncated from
// startBlock (emptyStartBlock if there is none yet), returning the
// (possibly new) start block. It implements the spec's
// truncate-and-rewrite-with-chain-reuse algorithm (§4.5 steps 1-7).
func (fsys *FS) writeChain(startBlock int32, content []byte, owner string) (int32, error) {
	blockSize := int(fsys.layout.BlockSize)
	needed := (len(content) + blockSize - 1) / blockSize

	current, err := fsys.fat.GetFileBlocks(int64(startBlock))
	if err != nil {
		return startBlock, err
	}
	have := len(current)

	var final []uint32
	switch {
	case needed == 0:
		for _, b := range current {
			fsys.buf.Invalidate(b)
			fsys.fat.FreeBlock(int64(b))
		}
		return emptyStartBlock, nil

	case needed > have:
		final = append(final, current...)
		newStart := startBlock
		if have == 0 {
			first, err := fsys.fat.AllocateBlock()
			if err != nil {
				return startBlock, err
			}
			if first == -1 {
				return startBlock, resultNoSpace
			}
			newStart = int32(first)
			final = append(final, uint32(first))
		}
		last := final[len(final)-1]
		for len(final) < needed {
			next, err := fsys.fat.AllocateBlock()
			if err != nil {
				return startBlock, err
			}
			if next == -1 {
				return startBlock, resultNoSpace
			}
			if err := fsys.fat.SetNext(last, uint32(next)); err != nil {
				return startBlock, err
			}
			last = uint32(next)
			final = append(final, last)
		}
		if err := fsys.fat.SetNext(last, fatEOF); err != nil {
			return startBlock, err
		}
		startBlock = newStart

	case needed < have:
		final = current[:needed]
		for _, b := range current[needed:] {
			fsys.buf.Invalidate(b)
			fsys.fat.FreeBlock(int64(b))
		}
		if len(final) > 0 {
			if err := fsys.fat.SetNext(final[len(final)-1], fatEOF); err != nil {
				return startBlock, err
			}
		}

	default:
		final = current
	}

	rem := content
	for _, b := range final {
		chunk := rem
		if len(chunk) > blockSize {
			chunk = chunk[:blockSize]
		}
		if err := fsys.buf.WritePage(b, chunk, owner); err != nil {
			return startBlock, err
		}
		if len(rem) > blockSize {
			rem = rem[blockSize:]
		} else {
			rem = nil
		}
	}
	return startBlock, nil
}

// WriteFile replaces path's entire content (truncate-and-rewrite with
// chain reuse). path must already exist and not be a directory.
func (fsys *FS) WriteFile(path string, content []byte) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.trace("write_file", slog.String("path", path), slog.Int("len", len(content)))

	parent, target, err := fsys.dir.ResolvePath(path)
	if err != nil {
		return err
	}
	if target == nil {
		return resultNotFound
	}
	if target.IsDirectory {
		return resultIsADirectory
	}

	newStart, err := fsys.writeChain(target.StartBlock, content, target.Name)
	if err != nil {
		return err
	}
	target.StartBlock = newStart
	target.Size = uint32(len(content))
	target.ModifyTime = time.Now()

	if err := fsys.dir.UpdateEntry(parent, *target); err != nil {
		return err
	}
	return fsys.buf.FlushAll()
}

// ReadFileBlock returns the nth block (0-indexed) of path's chain, for
// diagnostics/random access.
func (fsys *FS) ReadFileBlock(path string, n int) ([]byte, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	_, target, err := fsys.dir.ResolvePath(path)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, resultNotFound
	}
	blocks, err := fsys.fat.GetFileBlocks(int64(target.StartBlock))
	if err != nil {
		return nil, err
	}
	if n < 0 || n >= len(blocks) {
		return nil, resultInvalidBlock
	}
	return fsys.buf.ReadPage(blocks[n], target.Name)
}

// WriteFileBlock overwrites the nth block (0-indexed) of path's chain.
func (fsys *FS) WriteFileBlock(path string, n int, data []byte) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	_, target, err := fsys.dir.ResolvePath(path)
	if err != nil {
		return err
	}
	if target == nil {
		return resultNotFound
	}
	blocks, err := fsys.fat.GetFileBlocks(int64(target.StartBlock))
	if err != nil {
		return err
	}
	if n < 0 || n >= len(blocks) {
		return resultInvalidBlock
	}
	return fsys.buf.WritePage(blocks[n], data, target.Name)
}

// DeleteFile removes path. Non-empty directories are rejected with
// resultDirectoryNotEmpty. A locked path cannot be deleted.
func (fsys *FS) DeleteFile(path string) error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.trace("delete_file", slog.String("path", path))

	if fsys.locked[path] {
		return resultLocked
	}

	parent, target, err := fsys.dir.ResolvePath(path)
	if err != nil {
		return err
	}
	if target == nil {
		return resultNotFound
	}
	if target.IsDirectory {
		children, err := fsys.dir.ListEntries(target)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return resultDirectoryNotEmpty
		}
	}

	blocks, err := fsys.fat.GetFileBlocks(int64(target.StartBlock))
	if err != nil {
		return err
	}
	if err := fsys.dir.RemoveEntry(parent, target.Name); err != nil {
		return err
	}
	for _, b := range blocks {
		fsys.buf.Invalidate(b)
		fsys.fat.FreeBlock(int64(b))
	}
	return fsys.buf.FlushAll()
}

// ListFiles returns every entry directly under path.
func (fsys *FS) ListFiles(path string) ([]FileInfo, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	var dirFCB *FCB
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(parts) > 0 {
		parent, target, err := fsys.dir.ResolvePath(path)
		_ = parent
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, resultNotFound
		}
		if !target.IsDirectory {
			return nil, resultNotADirectory
		}
		dirFCB = target
	}

	entries, err := fsys.dir.ListEntries(dirFCB)
	if err != nil {
		return nil, err
	}
	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		blocks, err := fsys.fat.GetFileBlocks(int64(e.StartBlock))
		if err != nil {
			return nil, err
		}
		out = append(out, FileInfo{
			Name:        e.Name,
			Size:        e.Size,
			Blocks:      blocks,
			CreateTime:  e.CreateTime,
			ModifyTime:  e.ModifyTime,
			IsDirectory: e.IsDirectory,
		})
	}
	return out, nil
}

// GetFileInfo returns the projection of a single path's FCB.
func (fsys *FS) GetFileInfo(path string) (FileInfo, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	_, target, err := fsys.dir.ResolvePath(path)
	if err != nil {
		return FileInfo{}, err
	}
	if target == nil {
		return FileInfo{}, resultNotFound
	}
	blocks, err := fsys.fat.GetFileBlocks(int64(target.StartBlock))
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Name:        target.Name,
		Size:        target.Size,
		Blocks:      blocks,
		CreateTime:  target.CreateTime,
		ModifyTime:  target.ModifyTime,
		IsDirectory: target.IsDirectory,
	}, nil
}

// GetSystemInfo returns a point-in-time projection of block usage and
// buffer-cache statistics.
func (fsys *FS) GetSystemInfo() (SystemInfo, error) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()

	free, err := fsys.fat.GetFreeBlocks()
	if err != nil {
		return SystemInfo{}, err
	}
	root, err := fsys.dir.ListEntries(nil)
	if err != nil {
		return SystemInfo{}, err
	}
	managed := fsys.layout.TotalFATEntries()
	dataStart := fsys.layout.DataStart()
	used := uint32(0)
	if managed > uint32(len(free))+dataStart {
		used = managed - uint32(len(free)) - dataStart
	}
	return SystemInfo{
		TotalBlocks:   fsys.layout.TotalBlocks,
		ManagedBlocks: managed,
		UsedBlocks:    used,
		FreeBlocks:    uint32(len(free)),
		FilesCount:    len(root),
		Buffer:        fsys.buf.Status(),
	}, nil
}

// LockFile marks path as in-use; DeleteFile rejects locked paths.
func (fsys *FS) LockFile(path string) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.locked[path] = true
}

// UnlockFile clears path's in-use mark.
func (fsys *FS) UnlockFile(path string) {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	delete(fsys.locked, path)
}

// Shutdown flushes the cache then closes the underlying device.
func (fsys *FS) Shutdown() error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	fsys.trace("shutdown")
	if err := fsys.buf.FlushAll(); err != nil {
		return err
	}
	return fsys.device.Close()
}
