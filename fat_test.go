package vfat

import "testing"

func newTestFAT() (*fatManager, *BufferManager) {
	l := testLayout()
	dev := newRAMDevice(int(l.BlockSize), l.TotalBlocks)
	// CreateImage marks every FAT entry free, then reserves the system blocks.
	if err := CreateImage(dev, l); err != nil {
		panic(err)
	}
	buf := NewBufferManager(dev, l.BufferCapacity, int(l.BlockSize))
	fat := newFATManager(buf, l)
	return fat, buf
}

func TestFATAllocateAndFree(t *testing.T) {
	fat, _ := newTestFAT()
	free, err := fat.GetFreeBlocks()
	if err != nil {
		t.Fatal(err)
	}
	wantFree := len(free)

	id, err := fat.AllocateBlock()
	if err != nil {
		t.Fatal(err)
	}
	if id < 0 {
		t.Fatal("AllocateBlock returned -1 on a fresh FAT")
	}
	free, _ = fat.GetFreeBlocks()
	if len(free) != wantFree-1 {
		t.Fatalf("free count = %d, want %d", len(free), wantFree-1)
	}

	if err := fat.FreeBlock(id); err != nil {
		t.Fatal(err)
	}
	free, _ = fat.GetFreeBlocks()
	if len(free) != wantFree {
		t.Fatalf("free count after FreeBlock = %d, want %d", len(free), wantFree)
	}
}

func TestFATChainWalk(t *testing.T) {
	fat, _ := newTestFAT()
	a, _ := fat.AllocateBlock()
	b, _ := fat.AllocateBlock()
	c, _ := fat.AllocateBlock()
	if err := fat.SetNext(uint32(a), uint32(b)); err != nil {
		t.Fatal(err)
	}
	if err := fat.SetNext(uint32(b), uint32(c)); err != nil {
		t.Fatal(err)
	}
	if err := fat.SetNext(uint32(c), fatEOF); err != nil {
		t.Fatal(err)
	}

	blocks, err := fat.GetFileBlocks(a)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint32{uint32(a), uint32(b), uint32(c)}
	if len(blocks) != len(want) {
		t.Fatalf("GetFileBlocks = %v, want %v", blocks, want)
	}
	for i := range want {
		if blocks[i] != want[i] {
			t.Fatalf("GetFileBlocks = %v, want %v", blocks, want)
		}
	}
}

func TestFATChainCycleIsContained(t *testing.T) {
	fat, _ := newTestFAT()
	a, _ := fat.AllocateBlock()
	b, _ := fat.AllocateBlock()
	// force a cycle: a -> b -> a
	if err := fat.SetNext(uint32(a), uint32(b)); err != nil {
		t.Fatal(err)
	}
	if err := fat.SetNext(uint32(b), uint32(a)); err != nil {
		t.Fatal(err)
	}

	blocks, err := fat.GetFileBlocks(a)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 {
		t.Fatalf("GetFileBlocks on a cycle = %v, want exactly [a,b]", blocks)
	}
}

func TestFATAllocateExhaustsPool(t *testing.T) {
	fat, _ := newTestFAT()
	var got []int64
	for {
		id, err := fat.AllocateBlock()
		if err != nil {
			t.Fatal(err)
		}
		if id == -1 {
			break
		}
		got = append(got, id)
		if len(got) > 1000 {
			t.Fatal("AllocateBlock never exhausted")
		}
	}
	if len(got) != 16 {
		t.Fatalf("allocated %d blocks, want 16 (the data region size)", len(got))
	}
}

func TestFATEmptyStartBlockYieldsNoBlocks(t *testing.T) {
	fat, _ := newTestFAT()
	blocks, err := fat.GetFileBlocks(int64(emptyStartBlock))
	if err != nil {
		t.Fatal(err)
	}
	if blocks != nil {
		t.Fatalf("GetFileBlocks(empty) = %v, want nil", blocks)
	}
}
