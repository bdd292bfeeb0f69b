package corral

import (
	"math"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"

	"github.com/lunixbochs/corral/go/models/cpu"
)

// MemRegion is a snapshot of one mapped range.
type MemRegion = cpu.MemRegion

type region struct {
	addr, size uint64
	prot       int
	// caller-owned backing from MemMapPtr, sliced along with the region
	ext []byte
}

// last avoids overflow for a region ending at the top of a 64-bit space
func (r *region) last() uint64 {
	return r.addr + r.size - 1
}

// regionIndex holds disjoint regions keyed by base address.
// Regions are split but never merged.
type regionIndex struct {
	tree *redblacktree.Tree
}

func newRegionIndex() *regionIndex {
	return &regionIndex{tree: redblacktree.NewWith(utils.UInt64Comparator)}
}

func (ri *regionIndex) Len() int {
	return ri.tree.Size()
}

// at returns the region containing addr.
func (ri *regionIndex) at(addr uint64) *region {
	node, ok := ri.tree.Floor(addr)
	if !ok {
		return nil
	}
	r := node.Value.(*region)
	if addr <= r.last() {
		return r
	}
	return nil
}

// next returns the lowest region starting at or above addr.
func (ri *regionIndex) next(addr uint64) *region {
	node, ok := ri.tree.Ceiling(addr)
	if !ok {
		return nil
	}
	return node.Value.(*region)
}

// overlapping lists the regions intersecting [addr, addr+size) in address order.
func (ri *regionIndex) overlapping(addr, size uint64) []*region {
	last := addr + size - 1
	r := ri.at(addr)
	if r == nil {
		r = ri.next(addr)
	}
	var ret []*region
	for r != nil && r.addr <= last {
		ret = append(ret, r)
		if r.last() == math.MaxUint64 {
			break
		}
		r = ri.next(r.last() + 1)
	}
	return ret
}

// access walks [addr, addr+size) and reports whether every byte is mapped,
// and whether every region it touches grants prot.
func (ri *regionIndex) access(addr, size uint64, prot int) (mapped, allowed bool) {
	pos, last := addr, addr+size-1
	allowed = true
	for {
		r := ri.at(pos)
		if r == nil {
			return false, false
		}
		if r.prot&prot != prot {
			allowed = false
		}
		if r.last() >= last {
			return true, allowed
		}
		pos = r.last() + 1
	}
}

func (ri *regionIndex) covered(addr, size uint64) bool {
	mapped, _ := ri.access(addr, size, 0)
	return mapped
}

// split cuts the region containing at so that a region starts exactly there.
func (ri *regionIndex) split(at uint64) {
	r := ri.at(at)
	if r == nil || r.addr == at {
		return
	}
	off := at - r.addr
	tail := &region{addr: at, size: r.size - off, prot: r.prot}
	if r.ext != nil {
		tail.ext = r.ext[off:]
		r.ext = r.ext[:off]
	}
	r.size = off
	ri.tree.Put(at, tail)
}

// isolate splits at both edges of the range and returns the regions inside it.
func (ri *regionIndex) isolate(addr, size uint64) []*region {
	ri.split(addr)
	if last := addr + size - 1; last != math.MaxUint64 {
		ri.split(last + 1)
	}
	return ri.overlapping(addr, size)
}

func (ri *regionIndex) insert(r *region) {
	ri.tree.Put(r.addr, r)
}

func (ri *regionIndex) remove(r *region) {
	ri.tree.Remove(r.addr)
}

// list snapshots the index in address order.
func (ri *regionIndex) list() []MemRegion {
	ret := make([]MemRegion, 0, ri.tree.Size())
	for _, v := range ri.tree.Values() {
		r := v.(*region)
		ret = append(ret, MemRegion{Addr: r.addr, Size: r.size, Prot: r.prot})
	}
	return ret
}
