package corral

import (
	"bytes"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lunixbochs/corral/go/models/cpu"
)

func expectRegions(t *testing.T, e *Engine, expected []MemRegion) {
	t.Helper()
	regions, err := e.MemRegions()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(expected, regions); diff != "" {
		t.Fatalf("regions mismatch (-want +got):\n%s", diff)
	}
}

func TestMemMap(t *testing.T) {
	mappings := []MemRegion{
		{Addr: 0x1000, Size: 0x1000, Prot: cpu.PROT_ALL},
		{Addr: 0x3000, Size: 0x3000, Prot: cpu.PROT_READ},
		{Addr: 0xf000, Size: 0x1000, Prot: cpu.PROT_READ | cpu.PROT_WRITE},
	}
	e := openNdh(t)
	for _, m := range mappings {
		if err := e.MemMap(m.Addr, m.Size, m.Prot); err != nil {
			t.Fatal(err)
		}
	}
	expectRegions(t, e, mappings)

	// overlaps at either edge and full containment
	for _, m := range []MemRegion{
		{Addr: 0x0000, Size: 0x2000},
		{Addr: 0x5000, Size: 0x2000},
		{Addr: 0x4000, Size: 0x1000},
		{Addr: 0x2000, Size: 0x5000},
	} {
		expectErr(t, e.MemMap(m.Addr, m.Size, cpu.PROT_ALL), ErrMap)
	}
	expectRegions(t, e, mappings)
}

func TestMemBadArgs(t *testing.T) {
	e := openNdh(t)
	e.MemMap(0x1000, 0x2000, cpu.PROT_ALL)
	before, _ := e.MemRegions()
	for _, r := range []struct{ addr, size uint64 }{
		{0x1001, 0x1000},
		{0x1000, 0xfff},
		{0x1000, 0},
		{0xf000, 0x2000},
	} {
		expectErr(t, e.MemMap(r.addr, r.size, cpu.PROT_ALL), ErrArg)
		expectErr(t, e.MemUnmap(r.addr, r.size), ErrArg)
		expectErr(t, e.MemProtect(r.addr, r.size, cpu.PROT_READ), ErrArg)
	}
	expectErr(t, e.MemMap(0x8000, 0x1000, 8), ErrArg)
	expectErr(t, e.MemProtect(0x1000, 0x1000, 0x10), ErrArg)
	expectRegions(t, e, before)
}

func TestMemUnmapSplit(t *testing.T) {
	e := openNdh(t)
	e.MemMap(0x1000, 0x4000, cpu.PROT_ALL)
	e.MemWrite(0x3ffe, []byte{1, 2, 3, 4})
	if err := e.MemUnmap(0x2000, 0x1000); err != nil {
		t.Fatal(err)
	}
	expectRegions(t, e, []MemRegion{
		{Addr: 0x1000, Size: 0x1000, Prot: cpu.PROT_ALL},
		{Addr: 0x3000, Size: 0x2000, Prot: cpu.PROT_ALL},
	})
	// bytes outside the unmapped range survive the split
	if p, err := e.MemRead(0x3ffe, 4); err != nil || !bytes.Equal(p, []byte{1, 2, 3, 4}) {
		t.Fatalf("MemRead = %v, %v", p, err)
	}
	_, err := e.MemRead(0x2000, 1)
	expectErr(t, err, ErrReadUnmapped)

	// holes are fine
	if err := e.MemUnmap(0, 0x8000); err != nil {
		t.Fatal(err)
	}
	expectRegions(t, e, []MemRegion{})
	if err := e.MemMap(0x2000, 0x1000, cpu.PROT_ALL); err != nil {
		t.Fatalf("remap after unmap: %v", err)
	}
}

func TestMemProtectSplit(t *testing.T) {
	e := openNdh(t)
	e.MemMap(0x1000, 0x3000, cpu.PROT_ALL)
	if err := e.MemProtect(0x2000, 0x1000, cpu.PROT_READ); err != nil {
		t.Fatal(err)
	}
	expected := []MemRegion{
		{Addr: 0x1000, Size: 0x1000, Prot: cpu.PROT_ALL},
		{Addr: 0x2000, Size: 0x1000, Prot: cpu.PROT_READ},
		{Addr: 0x3000, Size: 0x1000, Prot: cpu.PROT_ALL},
	}
	expectRegions(t, e, expected)
	expectErr(t, e.MemWrite(0x2000, []byte{1}), ErrWriteProt)
	if err := e.MemWrite(0x1fff, []byte{1}); err != nil {
		t.Fatal(err)
	}

	// protecting across a hole changes nothing
	expectErr(t, e.MemProtect(0x3000, 0x2000, cpu.PROT_NONE), ErrMap)
	expectRegions(t, e, expected)

	// regions are never merged back together
	e.MemProtect(0x1000, 0x3000, cpu.PROT_READ)
	regions, _ := e.MemRegions()
	if len(regions) != 3 {
		t.Fatalf("expected 3 regions, got %d", len(regions))
	}
}

func TestMemRoundTrip(t *testing.T) {
	e := openNdh(t)
	e.MemMap(0x1000, 0x2000, cpu.PROT_READ|cpu.PROT_WRITE)
	data := []byte("spans a region edge")
	addr := uint64(0x2000 - 5)
	if err := e.MemWrite(addr, data); err != nil {
		t.Fatal(err)
	}
	got, err := e.MemRead(addr, uint64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("read %q, wrote %q", got, data)
	}
}

func TestMemNoPartialWrite(t *testing.T) {
	e := openNdh(t)
	e.MemMap(0x1000, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE)
	e.MemWrite(0x1ffc, []byte{9, 9, 9, 9})
	expectErr(t, e.MemWrite(0x1ffe, []byte{1, 2, 3, 4}), ErrWriteUnmapped)
	if p, _ := e.MemRead(0x1ffc, 4); !bytes.Equal(p, []byte{9, 9, 9, 9}) {
		t.Fatalf("partial write: %v", p)
	}
	_, err := e.MemRead(0x1ffe, 4)
	expectErr(t, err, ErrReadUnmapped)

	e.MemMap(0x2000, 0x1000, cpu.PROT_READ)
	expectErr(t, e.MemWrite(0x1ffe, []byte{1, 2, 3, 4}), ErrWriteProt)
	if p, _ := e.MemRead(0x1ffc, 4); !bytes.Equal(p, []byte{9, 9, 9, 9}) {
		t.Fatalf("partial write: %v", p)
	}
	e.MemMap(0x4000, 0x1000, cpu.PROT_WRITE)
	_, err = e.MemRead(0x4000, 1)
	expectErr(t, err, ErrReadProt)
}

func TestMemMapPtr(t *testing.T) {
	e := openNdh(t)
	buf := make([]byte, 0x2000)
	expectErr(t, e.MemMapPtr(0x4000, 0x3000, cpu.PROT_ALL, buf), ErrArg)
	expectErr(t, e.MemMapPtr(0x4000, 0x1000, cpu.PROT_ALL, nil), ErrArg)
	if err := e.MemMapPtr(0x4000, 0x2000, cpu.PROT_ALL, buf); err != nil {
		t.Fatal(err)
	}
	e.MemWrite(0x5000, []byte{0xaa})
	if buf[0x1000] != 0xaa {
		t.Fatal("write did not reach the external buffer")
	}
	buf[0x10] = 0x55
	if p, _ := e.MemRead(0x4010, 1); p[0] != 0x55 {
		t.Fatal("read does not see the external buffer")
	}
	if err := e.MemProtect(0x5000, 0x1000, cpu.PROT_READ); err != nil {
		t.Fatal(err)
	}
	expectRegions(t, e, []MemRegion{
		{Addr: 0x4000, Size: 0x1000, Prot: cpu.PROT_ALL},
		{Addr: 0x5000, Size: 0x1000, Prot: cpu.PROT_READ},
	})
}

func TestMemHelpers(t *testing.T) {
	e := openNdh(t)
	e.MemMap(0x1000, 0x2000, cpu.PROT_READ|cpu.PROT_WRITE)
	if err := e.MemWriteUint(0x1000, 2, 0x1234); err != nil {
		t.Fatal(err)
	}
	if p, _ := e.MemRead(0x1000, 2); !bytes.Equal(p, []byte{0x34, 0x12}) {
		t.Fatalf("MemWriteUint wrote %x", p)
	}
	if v, err := e.MemReadUint(0x1000, 2); err != nil || v != 0x1234 {
		t.Fatalf("MemReadUint = %#x, %v", v, err)
	}
	_, err := e.MemReadUint(0x1000, 9)
	expectErr(t, err, ErrArg)

	// a string crossing a page boundary
	e.MemWrite(0x1ffd, []byte("hello\x00"))
	if s, err := e.MemReadString(0x1ffd); err != nil || s != "hello" {
		t.Fatalf("MemReadString = %q, %v", s, err)
	}
	e.MemWrite(0x2ffe, []byte("xx"))
	_, err = e.MemReadString(0x2ffe)
	expectErr(t, err, ErrReadUnmapped)

	w := &MemWriter{E: e, Addr: 0x1800}
	io.WriteString(w, "abc")
	io.WriteString(w, "def")
	p := make([]byte, 6)
	if _, err := io.ReadFull(&MemReader{E: e, Addr: 0x1800}, p); err != nil || string(p) != "abcdef" {
		t.Fatalf("MemReader = %q, %v", p, err)
	}
}

func TestMmap(t *testing.T) {
	e := openNdh(t)
	e.MemMap(0x1000, 0x1000, cpu.PROT_ALL)
	e.MemMap(0x4000, 0x1000, cpu.PROT_ALL)
	addr, err := e.Mmap(0x1000, 0x1800, cpu.PROT_READ)
	if err != nil {
		t.Fatal(err)
	}
	if addr != 0x2000 {
		t.Fatalf("Mmap = %#x, expected 0x2000", addr)
	}
	addr, err = e.Mmap(0x1000, 0x1000, cpu.PROT_READ)
	if err != nil || addr != 0x5000 {
		t.Fatalf("Mmap = %#x, %v; expected 0x5000", addr, err)
	}
	_, err = e.Mmap(0xf000, 0x2000, cpu.PROT_READ)
	expectErr(t, err, ErrNoMem)
}
