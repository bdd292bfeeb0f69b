package cpu

// MemSim is a flat simulated address space made of Pages.
type MemSim struct {
	Mem Pages
}

// RangeValid reports whether addr:addr+size is fully mapped, and whether every
// page in it grants all of prot. A prot of 0 skips the permission check.
func (m *MemSim) RangeValid(addr, size uint64, prot int) (mapGood bool, protGood bool) {
	protGood = true
	end := addr + size
	for i := m.Mem.after(addr); i < len(m.Mem) && addr < end; i++ {
		pg := m.Mem[i]
		if !pg.Contains(addr) {
			break
		}
		if prot > 0 && pg.Prot&prot != prot {
			protGood = false
		}
		addr = pg.End()
	}
	if addr < end {
		return false, false
	}
	return true, protGood
}

// Map replaces anything at addr:addr+size with a fresh page.
// With zero false, bytes that were already mapped there are carried over.
func (m *MemSim) Map(addr, size uint64, prot int, zero bool) *Page {
	data := make([]byte, size)
	if !zero {
		m.read(addr, data)
	}
	return m.insert(&Page{Addr: addr, Size: size, Prot: prot, Data: data})
}

// MapPtr maps addr:addr+size directly onto data, so guest and host see the same bytes.
func (m *MemSim) MapPtr(addr, size uint64, prot int, data []byte) *Page {
	return m.insert(&Page{Addr: addr, Size: size, Prot: prot, Data: data[:size:size], Ext: true})
}

func (m *MemSim) insert(page *Page) *Page {
	m.Unmap(page.Addr, page.Size)
	i := m.Mem.after(page.Addr)
	m.Mem = append(m.Mem, nil)
	copy(m.Mem[i+1:], m.Mem[i:])
	m.Mem[i] = page
	return page
}

// carve splits every page overlapping addr:addr+size at the range edges
// and passes each inner piece to fn, which keeps it by returning true.
func (m *MemSim) carve(addr, size uint64, fn func(*Page) bool) {
	out := make(Pages, 0, len(m.Mem)+2)
	for _, pg := range m.Mem {
		if !pg.Overlaps(addr, size) {
			out = append(out, pg)
			continue
		}
		left, right := pg.Split(addr, size)
		if left != nil {
			out = append(out, left)
		}
		if fn(pg) {
			out = append(out, pg)
		}
		if right != nil {
			out = append(out, right)
		}
	}
	m.Mem = out
}

// Prot changes protection on whatever is mapped in addr:addr+size.
func (m *MemSim) Prot(addr, size uint64, prot int) {
	m.carve(addr, size, func(pg *Page) bool {
		pg.Prot = prot
		return true
	})
}

// Unmap drops whatever is mapped in addr:addr+size. Holes are ignored.
func (m *MemSim) Unmap(addr, size uint64) {
	m.carve(addr, size, func(*Page) bool { return false })
}

// read copies whatever is mapped in addr:addr+len(p), skipping holes.
func (m *MemSim) read(addr uint64, p []byte) {
	for _, pg := range m.Mem.FindRange(addr, uint64(len(p))) {
		start, n, _ := pg.Intersect(addr, uint64(len(p)))
		copy(p[start-addr:start-addr+n], pg.Data[start-pg.Addr:])
	}
}

// faultKind picks the MEM_* access kind for a failed access.
func faultKind(mapped bool, prot int, write bool) int {
	fetch := !write && prot&PROT_EXEC != 0
	switch {
	case write && mapped:
		return MEM_WRITE_PROT
	case write:
		return MEM_WRITE_UNMAPPED
	case fetch && mapped:
		return MEM_FETCH_PROT
	case fetch:
		return MEM_FETCH_UNMAPPED
	case mapped:
		return MEM_READ_PROT
	}
	return MEM_READ_UNMAPPED
}

func (m *MemSim) fault(addr uint64, size int, prot int, write bool) error {
	mapped, allowed := m.RangeValid(addr, uint64(size), prot)
	if mapped && allowed {
		return nil
	}
	return &MemError{Addr: addr, Size: size, Enum: faultKind(mapped, prot, write)}
}

// Read fails without copying anything if any byte is unmapped or lacks prot.
func (m *MemSim) Read(addr uint64, p []byte, prot int) error {
	if err := m.fault(addr, len(p), prot, false); err != nil {
		return err
	}
	m.read(addr, p)
	return nil
}

// Write fails without modifying anything if any byte is unmapped or lacks prot.
func (m *MemSim) Write(addr uint64, p []byte, prot int) error {
	if err := m.fault(addr, len(p), prot, true); err != nil {
		return err
	}
	for _, pg := range m.Mem.FindRange(addr, uint64(len(p))) {
		start, n, _ := pg.Intersect(addr, uint64(len(p)))
		copy(pg.Data[start-pg.Addr:], p[start-addr:start-addr+n])
	}
	return nil
}
