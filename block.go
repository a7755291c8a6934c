package vfat

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// BlockDevice is the contract every block-addressed backing store must
// satisfy. The FAT and directory managers, and the facade's file
// operations, always go through the buffer manager's cache; only the
// superblock access in CreateImage and Mount and the Close in Shutdown
// call the device directly.
type BlockDevice interface {
	ReadBlock(i uint32) ([]byte, error)
	WriteBlock(i uint32, data []byte) error
	Flush() error
	Close() error
}

// MmapDevice backs the BlockDevice contract with a memory-mapped regular
// file: the whole image is mapped once with PROT_READ|PROT_WRITE and
// MAP_SHARED, so writes through the mapping are writes to the file, and
// Flush is a plain msync.
type MmapDevice struct {
	f         *os.File
	data      []byte
	blockSize int
	blocks    uint32
}

// OpenMmapDevice maps an existing image file of exactly
// blockSize*totalBlocks bytes.
func OpenMmapDevice(path string, blockSize int, totalBlocks uint32) (*MmapDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return mapExisting(f, blockSize, totalBlocks)
}

// CreateMmapDevice creates a new zero-filled image file of exactly
// blockSize*totalBlocks bytes and maps it. It is an error for path to
// already exist.
func CreateMmapDevice(path string, blockSize int, totalBlocks uint32) (*MmapDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	size := int64(blockSize) * int64(totalBlocks)
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return mapExisting(f, blockSize, totalBlocks)
}

func mapExisting(f *os.File, blockSize int, totalBlocks uint32) (*MmapDevice, error) {
	size := int64(blockSize) * int64(totalBlocks)
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != size {
		f.Close()
		return nil, errors.New("vfat: image size does not match blockSize*totalBlocks")
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &MmapDevice{f: f, data: data, blockSize: blockSize, blocks: totalBlocks}, nil
}

func (d *MmapDevice) bounds(i uint32) error {
	if i >= d.blocks {
		return resultInvalidBlock
	}
	return nil
}

// ReadBlock returns a copy of block i's bytes.
func (d *MmapDevice) ReadBlock(i uint32) ([]byte, error) {
	if err := d.bounds(i); err != nil {
		return nil, err
	}
	off := int(i) * d.blockSize
	out := make([]byte, d.blockSize)
	copy(out, d.data[off:off+d.blockSize])
	return out, nil
}

// WriteBlock writes data into block i, right-padding with zeros or
// truncating to the block size.
func (d *MmapDevice) WriteBlock(i uint32, data []byte) error {
	if err := d.bounds(i); err != nil {
		return err
	}
	off := int(i) * d.blockSize
	n := copy(d.data[off:off+d.blockSize], data)
	if n < d.blockSize {
		clear(d.data[off+n : off+d.blockSize])
	}
	return nil
}

// Flush forces the mapping's dirty pages out to the backing file.
func (d *MmapDevice) Flush() error {
	return unix.Msync(d.data, unix.MS_SYNC)
}

// Close flushes then unmaps and closes the backing file.
func (d *MmapDevice) Close() error {
	ferr := d.Flush()
	merr := unix.Munmap(d.data)
	cerr := d.f.Close()
	if ferr != nil {
		return ferr
	}
	if merr != nil {
		return merr
	}
	return cerr
}
