package models

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/lunixbochs/fvbommel-util/sortorder"

	"github.com/lunixbochs/corral/go/models/cpu"
)

type Reg struct {
	Enum    int
	Name    string
	Default bool
}

type RegVal struct {
	Reg
	Val uint64
}

type regList []Reg

func (r regList) Len() int           { return len(r) }
func (r regList) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }
func (r regList) Less(i, j int) bool { return sortorder.NaturalLess(r[i].Name, r[j].Name) }

// Mode describes one valid mode of an architecture.
type Mode struct {
	Flags int
	Bits  int
	Order binary.ByteOrder

	PC, SP int
	Regs   map[string]int
	// width in bytes for registers wider or narrower than Bits
	RegSizes    map[int]int
	DefaultRegs []string

	// sorted for RegDump
	regList regList
}

// Arch describes an architecture and the engine that runs it.
type Arch struct {
	Name     string
	Enum     int
	PageSize uint64
	Cpu      cpu.Builder

	// instruction ids accepted by HOOK_INSN, keyed to a short name
	Insns map[int]string
	Modes []*Mode
}

func (a *Arch) String() string {
	return fmt.Sprintf("<Arch %s>", a.Name)
}

// Mode looks up the mode with exactly these flags.
func (a *Arch) Mode(flags int) (*Mode, error) {
	for _, m := range a.Modes {
		if m.Flags == flags {
			return m, nil
		}
	}
	return nil, cpu.ERR_MODE
}

// Insn returns the instruction id registered under name, if any.
func (a *Arch) Insn(name string) (int, bool) {
	for id, n := range a.Insns {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

func (m *Mode) RegSize(enum int) (int, bool) {
	if size, ok := m.RegSizes[enum]; ok {
		return size, true
	}
	for _, e := range m.Regs {
		if e == enum {
			return m.Bits / 8, true
		}
	}
	return 0, false
}

// RegName returns the name of a register, or "" if the mode does not declare it.
func (m *Mode) RegName(enum int) string {
	for _, r := range m.RegList() {
		if r.Enum == enum {
			return r.Name
		}
	}
	return ""
}

// RegList returns every declared register in natural name order.
func (m *Mode) RegList() []Reg {
	if m.regList == nil {
		defaults := make(map[string]bool, len(m.DefaultRegs))
		for _, name := range m.DefaultRegs {
			defaults[name] = true
		}
		rl := make(regList, 0, len(m.Regs))
		for name, e := range m.Regs {
			rl = append(rl, Reg{Enum: e, Name: name, Default: defaults[name]})
		}
		sort.Sort(rl)
		m.regList = rl
	}
	return m.regList
}

type regReader interface {
	RegReadBatch(regs []int) ([]uint64, error)
}

// RegDump reads every declared register of width eight bytes or less.
func (m *Mode) RegDump(u regReader) ([]RegVal, error) {
	var regs []Reg
	var enums []int
	for _, r := range m.RegList() {
		if size, _ := m.RegSize(r.Enum); size <= 8 {
			regs = append(regs, r)
			enums = append(enums, r.Enum)
		}
	}
	vals, err := u.RegReadBatch(enums)
	if err != nil {
		return nil, err
	}
	ret := make([]RegVal, len(regs))
	for i, r := range regs {
		ret[i] = RegVal{r, vals[i]}
	}
	return ret, nil
}
