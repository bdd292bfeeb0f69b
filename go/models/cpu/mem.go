package cpu

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// wraps MemSim to make a Cpu interface-compatible memory model
type Mem struct {
	bits uint
	// methods return an error for addresses that do not fit inside mask
	// calculated by NewMem using ^uint64(0) >> (64 - bits)
	mask     uint64
	pageSize uint64
	// Mem.hooks is set when passing *Mem to NewHooks()
	hooks *Hooks
	// MemSim is private, so any cpu-facing functionality needs to be wrapped by Mem
	sim *MemSim

	order binary.ByteOrder
}

// NewMem uses 4KiB pages, or a single page covering the whole space below 12 address bits.
func NewMem(bits uint, order binary.ByteOrder) *Mem {
	pageSize := uint64(0x1000)
	if bits < 12 {
		pageSize = 1 << bits
	}
	return &Mem{
		bits:     bits,
		mask:     ^uint64(0) >> (64 - bits),
		pageSize: pageSize,
		sim:      &MemSim{},
		order:    order,
	}
}

func (m *Mem) PageSize() uint64 { return m.pageSize }

func (m *Mem) Order() binary.ByteOrder { return m.order }

// checkRange validates alignment and that the range fits inside the address space
func (m *Mem) checkRange(addr, size uint64) error {
	if size == 0 || addr&(m.pageSize-1) != 0 || size&(m.pageSize-1) != 0 {
		return ERR_ARG
	}
	if addr+size < addr || addr+size-1 > m.mask {
		return ERR_ARG
	}
	return nil
}

func (m *Mem) checkMap(addr, size uint64, prot int) error {
	if err := m.checkRange(addr, size); err != nil {
		return err
	}
	if prot&^PROT_ALL != 0 {
		return ERR_ARG
	}
	if len(m.sim.Mem.FindRange(addr, size)) > 0 {
		return ERR_MAP
	}
	return nil
}

func (m *Mem) MemMapProt(addr, size uint64, prot int) error {
	if err := m.checkMap(addr, size, prot); err != nil {
		return err
	}
	m.sim.Map(addr, size, prot, true)
	return nil
}

func (m *Mem) MemMapPtr(addr, size uint64, prot int, data []byte) error {
	if err := m.checkMap(addr, size, prot); err != nil {
		return err
	}
	if uint64(len(data)) < size {
		return ERR_ARG
	}
	m.sim.MapPtr(addr, size, prot, data)
	return nil
}

func (m *Mem) MemProt(addr, size uint64, prot int) error {
	if err := m.checkRange(addr, size); err != nil {
		return err
	}
	if prot&^PROT_ALL != 0 {
		return ERR_ARG
	}
	if mapped, _ := m.sim.RangeValid(addr, size, 0); !mapped {
		return ERR_NOMEM
	}
	m.sim.Prot(addr, size, prot)
	return nil
}

func (m *Mem) MemUnmap(addr, size uint64) error {
	if err := m.checkRange(addr, size); err != nil {
		return err
	}
	if mapped, _ := m.sim.RangeValid(addr, size, 0); !mapped {
		return ERR_NOMEM
	}
	m.sim.Unmap(addr, size)
	return nil
}

func (m *Mem) MemRegions() ([]MemRegion, error) {
	regions := make([]MemRegion, len(m.sim.Mem))
	for i, pg := range m.sim.Mem {
		regions[i] = MemRegion{Addr: pg.Addr, Size: pg.Size, Prot: pg.Prot}
	}
	return regions, nil
}

func (m *Mem) MemReadInto(p []byte, addr uint64) error {
	return m.sim.Read(addr, p, 0)
}

func (m *Mem) MemRead(addr, size uint64) ([]byte, error) {
	p := make([]byte, size)
	if err := m.MemReadInto(p, addr); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Mem) MemWrite(addr uint64, p []byte) error {
	return m.sim.Write(addr, p, 0)
}

func (m *Mem) validate(addr, size uint64, prot int, write bool) error {
	return m.sim.fault(addr, int(size), prot, write)
}

// guard validates an access, giving fault hooks one chance to repair it
func (m *Mem) guard(addr, size uint64, prot int, write bool, val int64) error {
	err := m.validate(addr, size, prot, write)
	if err == nil || m.hooks == nil {
		return err
	}
	if m.hooks.OnFault(err.(*MemError).Enum, addr, int(size), val) {
		return m.validate(addr, size, prot, write)
	}
	return err
}

func (m *Mem) value(p []byte) int64 {
	if n, err := UnpackUint(m.order, len(p), p); err == nil {
		return int64(n)
	}
	return 0
}

// Read while checking protections. This exists to support a CPU interpreter.
func (m *Mem) ReadProt(addr, size uint64, prot int) ([]byte, error) {
	access := MEM_READ
	if prot&PROT_EXEC == PROT_EXEC {
		access = MEM_FETCH
	}
	if err := m.guard(addr, size, prot, false, 0); err != nil {
		return nil, err
	}
	if m.hooks != nil {
		m.hooks.OnMem(access, addr, int(size), 0)
	}
	p := make([]byte, size)
	// a hook may have remapped the range
	if err := m.sim.Read(addr, p, prot); err != nil {
		return nil, err
	}
	if m.hooks != nil && access == MEM_READ {
		m.hooks.OnMem(MEM_READ_AFTER, addr, int(size), m.value(p))
	}
	return p, nil
}

// Write while checking protections. This exists to support a CPU interpreter.
func (m *Mem) WriteProt(addr uint64, p []byte, prot int) error {
	val := m.value(p)
	if err := m.guard(addr, uint64(len(p)), prot, true, val); err != nil {
		return err
	}
	if m.hooks != nil {
		m.hooks.OnMem(MEM_WRITE, addr, len(p), val)
	}
	return m.sim.Write(addr, p, prot)
}

func (m *Mem) ReadUint(addr uint64, size, prot int) (uint64, error) {
	if size > 8 {
		return 0, errors.Errorf("MemReadUint size too large: %d > 8", size)
	}
	p, err := m.ReadProt(addr, uint64(size), prot)
	if err != nil {
		return 0, err
	}
	return UnpackUint(m.order, size, p)
}

func (m *Mem) WriteUint(addr uint64, size, prot int, val uint64) error {
	var buf [8]byte
	if size > 8 {
		return errors.Errorf("MemWriteUint size too large: %d > 8", size)
	}
	if _, err := PackUint(m.order, size, buf[:], val); err != nil {
		return err
	}
	return m.WriteProt(addr, buf[:size], prot)
}
