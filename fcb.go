package vfat

import (
	"encoding/binary"
	"math"
	"time"

	"golang.org/x/text/unicode/norm"
)

// FCB layout, 64 bytes, little-endian (spec §3):
//
//	0   32  name, UTF-8, null-padded
//	32  4   size (files only)
//	36  4   start_block (signed, -1 = empty)
//	40  8   create_time (float64 seconds since epoch)
//	48  8   modify_time (float64 seconds since epoch)
//	56  1   is_directory
//	57  7   reserved
const (
	fcbSize = 64

	fcbOffName       = 0
	fcbNameLen       = 32
	fcbOffSize       = 32
	fcbOffStartBlock = 36
	fcbOffCreateTime = 40
	fcbOffModifyTime = 48
	fcbOffIsDir      = 56
)

// emptyStartBlock marks a file or directory with no allocated chain.
const emptyStartBlock int32 = -1

// FCB is an in-memory, decoded directory entry.
type FCB struct {
	Name        string
	Size        uint32
	StartBlock  int32
	CreateTime  time.Time
	ModifyTime  time.Time
	IsDirectory bool
}

// normalizeName applies Unicode NFC normalization so that
// visually-identical names built from different code-point sequences
// compare equal, mirroring the code-page-aware name handling of a real
// FAT driver.
func normalizeName(name string) string {
	return norm.NFC.String(name)
}

func (fcb FCB) encode() [fcbSize]byte {
	var b [fcbSize]byte
	name := normalizeName(fcb.Name)
	copy(b[fcbOffName:fcbOffName+fcbNameLen], name)
	binary.LittleEndian.PutUint32(b[fcbOffSize:], fcb.Size)
	binary.LittleEndian.PutUint32(b[fcbOffStartBlock:], uint32(fcb.StartBlock))
	binary.LittleEndian.PutUint64(b[fcbOffCreateTime:], math.Float64bits(secondsSinceEpoch(fcb.CreateTime)))
	binary.LittleEndian.PutUint64(b[fcbOffModifyTime:], math.Float64bits(secondsSinceEpoch(fcb.ModifyTime)))
	if fcb.IsDirectory {
		b[fcbOffIsDir] = 1
	}
	return b
}

// decodeFCB parses a 64-byte directory slot. An all-zero slot is empty
// and decodeFCB returns ok=false.
func decodeFCB(b []byte) (fcb FCB, ok bool) {
	if len(b) < fcbSize {
		return FCB{}, false
	}
	allZero := true
	for _, v := range b[:fcbSize] {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return FCB{}, false
	}
	nameEnd := fcbOffName
	for nameEnd < fcbOffName+fcbNameLen && b[nameEnd] != 0 {
		nameEnd++
	}
	name := string(b[fcbOffName:nameEnd])
	if name == "" {
		return FCB{}, false
	}
	fcb = FCB{
		Name:        name,
		Size:        binary.LittleEndian.Uint32(b[fcbOffSize:]),
		StartBlock:  int32(binary.LittleEndian.Uint32(b[fcbOffStartBlock:])),
		CreateTime:  timeFromSeconds(math.Float64frombits(binary.LittleEndian.Uint64(b[fcbOffCreateTime:]))),
		ModifyTime:  timeFromSeconds(math.Float64frombits(binary.LittleEndian.Uint64(b[fcbOffModifyTime:]))),
		IsDirectory: b[fcbOffIsDir] != 0,
	}
	return fcb, true
}

func secondsSinceEpoch(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func timeFromSeconds(s float64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(s*1e9)).UTC()
}
