package corral

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lunixbochs/corral/go/models/cpu"
)

func TestRegionIndex(t *testing.T) {
	ri := newRegionIndex()
	ri.insert(&region{addr: 0x1000, size: 0x3000, prot: cpu.PROT_READ})
	ri.insert(&region{addr: 0x8000, size: 0x1000, prot: cpu.PROT_ALL})

	if r := ri.at(0x3fff); r == nil || r.addr != 0x1000 {
		t.Fatalf("at(0x3fff) = %v", r)
	}
	if r := ri.at(0x4000); r != nil {
		t.Fatalf("at(0x4000) = %v, expected a hole", r)
	}
	if got := ri.overlapping(0x3000, 0x6000); len(got) != 2 {
		t.Fatalf("overlapping found %d regions", len(got))
	}
	if ri.covered(0x1000, 0x4000) {
		t.Fatal("range with a hole reported as covered")
	}
	if !ri.covered(0x2000, 0x2000) {
		t.Fatal("mapped range reported as uncovered")
	}

	inner := ri.isolate(0x2000, 0x1000)
	if len(inner) != 1 || inner[0].addr != 0x2000 || inner[0].size != 0x1000 {
		t.Fatalf("isolate returned %v", inner)
	}
	inner[0].prot = cpu.PROT_ALL
	expected := []MemRegion{
		{Addr: 0x1000, Size: 0x1000, Prot: cpu.PROT_READ},
		{Addr: 0x2000, Size: 0x1000, Prot: cpu.PROT_ALL},
		{Addr: 0x3000, Size: 0x1000, Prot: cpu.PROT_READ},
		{Addr: 0x8000, Size: 0x1000, Prot: cpu.PROT_ALL},
	}
	if diff := cmp.Diff(expected, ri.list()); diff != "" {
		t.Fatalf("regions mismatch (-want +got):\n%s", diff)
	}
}

func TestRegionSplitExternal(t *testing.T) {
	buf := make([]byte, 0x2000)
	ri := newRegionIndex()
	ri.insert(&region{addr: 0x4000, size: 0x2000, ext: buf})
	ri.split(0x5000)
	tail := ri.at(0x5000)
	head := ri.at(0x4000)
	if len(head.ext) != 0x1000 || len(tail.ext) != 0x1000 {
		t.Fatalf("split buffers are %#x and %#x bytes", len(head.ext), len(tail.ext))
	}
	tail.ext[0] = 1
	if buf[0x1000] != 1 {
		t.Fatal("split region does not alias the caller's buffer")
	}
}

func TestRegionTopOfSpace(t *testing.T) {
	ri := newRegionIndex()
	ri.insert(&region{addr: 0xffff_ffff_ffff_f000, size: 0x1000})
	got := ri.overlapping(0xffff_ffff_ffff_e000, 0x2000)
	if len(got) != 1 {
		t.Fatalf("overlapping found %d regions", len(got))
	}
	if !ri.covered(0xffff_ffff_ffff_f000, 0x1000) {
		t.Fatal("last page not covered")
	}
}
