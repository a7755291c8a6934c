package vfat

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestCreateAndReadFile(t *testing.T) {
	fsys, _ := mustCreateTestFS()
	content := []byte("hello, vfat")
	if err := fsys.CreateFile("/hello.txt", content); err != nil {
		t.Fatal(err)
	}
	got, err := fsys.ReadFile("/hello.txt")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("ReadFile = %q, want %q", got, content)
	}
}

func TestCreateFileAlreadyExists(t *testing.T) {
	fsys, _ := mustCreateTestFS()
	if err := fsys.CreateFile("/a.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := fsys.CreateFile("/a.txt", []byte("y")); err != ErrAlreadyExists {
		t.Fatalf("second CreateFile = %v, want ErrAlreadyExists", err)
	}
}

func TestWriteFileExtendsChain(t *testing.T) {
	fsys, _ := mustCreateTestFS()
	if err := fsys.CreateFile("/big.bin", bytes.Repeat([]byte{1}, 10)); err != nil {
		t.Fatal(err)
	}
	info, err := fsys.GetFileInfo("/big.bin")
	if err != nil {
		t.Fatal(err)
	}
	initialBlocks := len(info.Blocks)

	bigger := bytes.Repeat([]byte{2}, 10*int(testLayout().BlockSize))
	if err := fsys.WriteFile("/big.bin", bigger); err != nil {
		t.Fatal(err)
	}
	info, err = fsys.GetFileInfo("/big.bin")
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Blocks) <= initialBlocks {
		t.Fatalf("block count did not grow: before=%d after=%d", initialBlocks, len(info.Blocks))
	}
	got, err := fsys.ReadFile("/big.bin")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, bigger) {
		t.Fatal("read-back content does not match the extended write")
	}
}

func TestWriteFileTruncatesChainAndFreesBlocks(t *testing.T) {
	fsys, _ := mustCreateTestFS()
	big := bytes.Repeat([]byte{1}, 5*int(testLayout().BlockSize))
	if err := fsys.CreateFile("/shrink.bin", big); err != nil {
		t.Fatal(err)
	}
	before, err := fsys.GetSystemInfo()
	if err != nil {
		t.Fatal(err)
	}

	if err := fsys.WriteFile("/shrink.bin", []byte("tiny")); err != nil {
		t.Fatal(err)
	}
	after, err := fsys.GetSystemInfo()
	if err != nil {
		t.Fatal(err)
	}
	if after.FreeBlocks <= before.FreeBlocks {
		t.Fatalf("FreeBlocks did not increase after truncation: before=%d after=%d", before.FreeBlocks, after.FreeBlocks)
	}
	got, err := fsys.ReadFile("/shrink.bin")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "tiny" {
		t.Fatalf("ReadFile after truncation = %q, want %q", got, "tiny")
	}
}

func TestCreateDirectoryAndNestedFile(t *testing.T) {
	fsys, _ := mustCreateTestFS()
	if err := fsys.CreateDirectory("/docs"); err != nil {
		t.Fatal(err)
	}
	if err := fsys.CreateFile("/docs/readme.txt", []byte("hi")); err != nil {
		t.Fatal(err)
	}
	entries, err := fsys.ListFiles("/docs")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "readme.txt" {
		t.Fatalf("ListFiles(/docs) = %+v", entries)
	}
}

func TestListFilesMatchesExpectedStructure(t *testing.T) {
	fsys, _ := mustCreateTestFS()
	if err := fsys.CreateDirectory("/docs"); err != nil {
		t.Fatal(err)
	}
	if err := fsys.CreateFile("/docs/a.txt", []byte("aaa")); err != nil {
		t.Fatal(err)
	}
	if err := fsys.CreateFile("/docs/b.txt", []byte("bb")); err != nil {
		t.Fatal(err)
	}

	got, err := fsys.ListFiles("/docs")
	if err != nil {
		t.Fatal(err)
	}
	want := []FileInfo{
		{Name: "a.txt", Size: 3, Blocks: []uint32{got[0].Blocks[0]}},
		{Name: "b.txt", Size: 2, Blocks: []uint32{got[1].Blocks[0]}},
	}
	// CreateTime/ModifyTime are wall-clock and not worth asserting exactly;
	// everything else about the two entries must match structurally.
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(FileInfo{}, "CreateTime", "ModifyTime")); diff != "" {
		t.Fatalf("ListFiles(/docs) mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteNonEmptyDirectoryFails(t *testing.T) {
	fsys, _ := mustCreateTestFS()
	if err := fsys.CreateDirectory("/docs"); err != nil {
		t.Fatal(err)
	}
	if err := fsys.CreateFile("/docs/a.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := fsys.DeleteFile("/docs"); err != ErrDirectoryNotEmpty {
		t.Fatalf("DeleteFile(/docs) = %v, want ErrDirectoryNotEmpty", err)
	}
	if err := fsys.DeleteFile("/docs/a.txt"); err != nil {
		t.Fatal(err)
	}
	if err := fsys.DeleteFile("/docs"); err != nil {
		t.Fatalf("DeleteFile(/docs) after emptying = %v", err)
	}
}

func TestDeleteFileFreesBlocksAndRemovesEntry(t *testing.T) {
	fsys, _ := mustCreateTestFS()
	content := bytes.Repeat([]byte{7}, 3*int(testLayout().BlockSize))
	if err := fsys.CreateFile("/f.bin", content); err != nil {
		t.Fatal(err)
	}
	before, err := fsys.GetSystemInfo()
	if err != nil {
		t.Fatal(err)
	}
	if err := fsys.DeleteFile("/f.bin"); err != nil {
		t.Fatal(err)
	}
	after, err := fsys.GetSystemInfo()
	if err != nil {
		t.Fatal(err)
	}
	if after.FreeBlocks <= before.FreeBlocks {
		t.Fatalf("FreeBlocks did not increase after delete: before=%d after=%d", before.FreeBlocks, after.FreeBlocks)
	}
	if _, err := fsys.ReadFile("/f.bin"); err != ErrNotFound {
		t.Fatalf("ReadFile after delete = %v, want ErrNotFound", err)
	}
}

func TestLockedFileCannotBeDeleted(t *testing.T) {
	fsys, _ := mustCreateTestFS()
	if err := fsys.CreateFile("/locked.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	fsys.LockFile("/locked.txt")
	if err := fsys.DeleteFile("/locked.txt"); err != ErrLocked {
		t.Fatalf("DeleteFile on locked path = %v, want ErrLocked", err)
	}
	fsys.UnlockFile("/locked.txt")
	if err := fsys.DeleteFile("/locked.txt"); err != nil {
		t.Fatalf("DeleteFile after unlock: %v", err)
	}
}

func TestReadWriteFileBlock(t *testing.T) {
	fsys, _ := mustCreateTestFS()
	content := bytes.Repeat([]byte{0}, 2*int(testLayout().BlockSize))
	if err := fsys.CreateFile("/blocks.bin", content); err != nil {
		t.Fatal(err)
	}
	patch := bytes.Repeat([]byte{9}, int(testLayout().BlockSize))
	if err := fsys.WriteFileBlock("/blocks.bin", 1, patch); err != nil {
		t.Fatal(err)
	}
	got, err := fsys.ReadFileBlock("/blocks.bin", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, patch) {
		t.Fatalf("ReadFileBlock(1) = %v, want %v", got, patch)
	}
	if _, err := fsys.ReadFileBlock("/blocks.bin", 99); err != ErrInvalidBlock {
		t.Fatalf("ReadFileBlock(99) = %v, want ErrInvalidBlock", err)
	}
}

func TestShutdownFlushesAndClosesDevice(t *testing.T) {
	fsys, dev := mustCreateTestFS()
	if err := fsys.CreateFile("/a.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := fsys.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if !dev.closed {
		t.Fatal("Shutdown did not close the underlying device")
	}
}
