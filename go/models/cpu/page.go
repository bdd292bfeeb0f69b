package cpu

import (
	"fmt"
	"sort"
	"strings"
)

// Page is one contiguous mapping with uniform protection.
// Data may alias a caller-provided buffer; Ext marks those pages.
type Page struct {
	Addr uint64
	Size uint64
	Prot int
	Data []byte

	Desc string
	Ext  bool
}

// ProtString renders prot as "rwx" with dashes for missing bits.
func ProtString(prot int) string {
	s := []byte("---")
	for i, bit := range []int{PROT_READ, PROT_WRITE, PROT_EXEC} {
		if prot&bit != 0 {
			s[i] = "rwx"[i]
		}
	}
	return string(s)
}

func (p *Page) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%#x-%#x %s", p.Addr, p.End(), ProtString(p.Prot))
	if p.Desc != "" {
		fmt.Fprintf(&b, " [%s]", p.Desc)
	}
	if p.Ext {
		b.WriteString(" (ext)")
	}
	return b.String()
}

// End is the first address past the page.
func (p *Page) End() uint64 { return p.Addr + p.Size }

func (p *Page) Contains(addr uint64) bool {
	return addr >= p.Addr && addr < p.End()
}

// Intersect clips addr:addr+size to the page.
func (p *Page) Intersect(addr, size uint64) (uint64, uint64, bool) {
	start := max(p.Addr, addr)
	end := min(p.End(), addr+size)
	if end <= start {
		return 0, 0, false
	}
	return start, end - start, true
}

func (p *Page) Overlaps(addr, size uint64) bool {
	_, _, ok := p.Intersect(addr, size)
	return ok
}

// sub returns the part of p at addr:addr+size, sharing p's backing array.
func (p *Page) sub(addr, size uint64) *Page {
	o := addr - p.Addr
	return &Page{Addr: addr, Size: size, Prot: p.Prot, Data: p.Data[o : o+size : o+size], Desc: p.Desc, Ext: p.Ext}
}

// Split shrinks p to its intersection with addr:addr+size and returns
// the pieces cut off either side, or nil where nothing was cut.
// All pieces keep aliasing the original data.
func (p *Page) Split(addr, size uint64) (left, right *Page) {
	start, n, ok := p.Intersect(addr, size)
	if !ok {
		return nil, nil
	}
	if start > p.Addr {
		left = p.sub(p.Addr, start-p.Addr)
	}
	if end := start + n; end < p.End() {
		right = p.sub(end, p.End()-end)
	}
	mid := p.sub(start, n)
	p.Addr, p.Size, p.Data = mid.Addr, mid.Size, mid.Data
	return left, right
}

// Pages is kept sorted by address with no overlaps.
type Pages []*Page

func (p Pages) Len() int           { return len(p) }
func (p Pages) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p Pages) Less(i, j int) bool { return p[i].Addr < p[j].Addr }

func (p Pages) String() string {
	s := make([]string, len(p))
	for i, v := range p {
		s[i] = v.String()
	}
	return strings.Join(s, "\n")
}

// after returns the index of the first page ending above addr.
func (p Pages) after(addr uint64) int {
	return sort.Search(len(p), func(i int) bool { return p[i].End() > addr })
}

func (p Pages) Find(addr uint64) *Page {
	if i := p.after(addr); i < len(p) && p[i].Contains(addr) {
		return p[i]
	}
	return nil
}

// FindRange returns the pages overlapping addr:addr+size.
func (p Pages) FindRange(addr, size uint64) Pages {
	start := p.after(addr)
	end := start
	for end < len(p) && p[end].Overlaps(addr, size) {
		end++
	}
	if end == start {
		return nil
	}
	return p[start:end]
}
