package vfat

import "encoding/binary"

// Superblock layout, 64 bytes, little-endian (spec §6):
//
//	0   5   magic "FATFS"
//	5   1   version
//	6   2   block size
//	8   4   total blocks
//	12  4   FAT start block
//	16  1   FAT block count
//	17  4   directory start block
//	21  1   directory block count
//	22  4   data start block
//	26  .. zero padding
const (
	superblockSize = 64

	sbOffMagic       = 0
	sbOffVersion     = 5
	sbOffBlockSize   = 6
	sbOffTotalBlocks = 8
	sbOffFATStart    = 12
	sbOffFATBlocks   = 16
	sbOffDirStart    = 17
	sbOffDirBlocks   = 21
	sbOffDataStart   = 22
)

var diskMagic = [5]byte{'F', 'A', 'T', 'F', 'S'}

const diskVersion = 1

// encodeSuperblock serializes the layout into a 64-byte block.
func encodeSuperblock(l Layout) []byte {
	b := make([]byte, superblockSize)
	copy(b[sbOffMagic:], diskMagic[:])
	b[sbOffVersion] = diskVersion
	binary.LittleEndian.PutUint16(b[sbOffBlockSize:], l.BlockSize)
	binary.LittleEndian.PutUint32(b[sbOffTotalBlocks:], l.TotalBlocks)
	binary.LittleEndian.PutUint32(b[sbOffFATStart:], l.FATStart())
	b[sbOffFATBlocks] = l.FATBlocks
	binary.LittleEndian.PutUint32(b[sbOffDirStart:], l.DirStart())
	b[sbOffDirBlocks] = l.DirBlocks
	binary.LittleEndian.PutUint32(b[sbOffDataStart:], l.DataStart())
	return b
}

// decodeSuperblock parses a 64-byte superblock block back into a Layout.
// BufferCapacity is not stored on disk (it is a cache-sizing parameter,
// not part of the on-disk format) and must be supplied by the caller.
func decodeSuperblock(b []byte) (Layout, error) {
	if len(b) < superblockSize {
		return Layout{}, errInvalidLayout("superblock block too short")
	}
	if string(b[sbOffMagic:sbOffMagic+5]) != string(diskMagic[:]) {
		return Layout{}, errInvalidLayout("bad magic")
	}
	l := Layout{
		BlockSize:   binary.LittleEndian.Uint16(b[sbOffBlockSize:]),
		TotalBlocks: binary.LittleEndian.Uint32(b[sbOffTotalBlocks:]),
		FATBlocks:   b[sbOffFATBlocks],
		DirBlocks:   b[sbOffDirBlocks],
	}
	gotFATStart := binary.LittleEndian.Uint32(b[sbOffFATStart:])
	gotDirStart := binary.LittleEndian.Uint32(b[sbOffDirStart:])
	gotDataStart := binary.LittleEndian.Uint32(b[sbOffDataStart:])
	if gotFATStart != l.FATStart() || gotDirStart != l.DirStart() || gotDataStart != l.DataStart() {
		return Layout{}, errInvalidLayout("stored region offsets do not match derived layout")
	}
	return l, nil
}
