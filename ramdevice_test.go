package vfat

// ramDevice is an in-memory BlockDevice double used across this
// package's tests, mirroring a plain byte-slice-backed test device: no
// mmap, no file descriptor, just one byte slice per block.
type ramDevice struct {
	blockSize int
	blocks    [][]byte
	flushes   int
	closed    bool
}

func newRAMDevice(blockSize int, totalBlocks uint32) *ramDevice {
	blocks := make([][]byte, totalBlocks)
	for i := range blocks {
		blocks[i] = make([]byte, blockSize)
	}
	return &ramDevice{blockSize: blockSize, blocks: blocks}
}

func (d *ramDevice) ReadBlock(i uint32) ([]byte, error) {
	if i >= uint32(len(d.blocks)) {
		return nil, resultInvalidBlock
	}
	out := make([]byte, d.blockSize)
	copy(out, d.blocks[i])
	return out, nil
}

func (d *ramDevice) WriteBlock(i uint32, data []byte) error {
	if i >= uint32(len(d.blocks)) {
		return resultInvalidBlock
	}
	buf := make([]byte, d.blockSize)
	copy(buf, data)
	d.blocks[i] = buf
	return nil
}

func (d *ramDevice) Flush() error {
	d.flushes++
	return nil
}

func (d *ramDevice) Close() error {
	d.closed = true
	return nil
}

// testLayout returns a small layout sized for fast, deterministic unit
// tests: 16 data blocks is enough to exercise allocation, chaining and
// exhaustion without the default 1024-block image.
func testLayout() Layout {
	return Layout{
		BlockSize:      64,
		TotalBlocks:    1 + 2 + 2 + 16, // superblock + FAT + dir + data
		BufferCapacity: 4,
		FATBlocks:      2,
		DirBlocks:      2,
	}
}

func mustCreateTestFS() (*FS, *ramDevice) {
	layout := testLayout()
	dev := newRAMDevice(int(layout.BlockSize), layout.TotalBlocks)
	if err := CreateImage(dev, layout); err != nil {
		panic(err)
	}
	fsys := &FS{}
	if err := fsys.Mount(dev, layout.BufferCapacity); err != nil {
		panic(err)
	}
	return fsys, dev
}
