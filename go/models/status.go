package models

import (
	"fmt"
	"strings"

	"github.com/mgutz/ansi"
)

// RegDumper is anything that can dump a register file, such as *corral.Engine.
type RegDumper interface {
	RegDump() ([]RegVal, error)
}

// StatusDiff remembers register values between calls to Changes.
type StatusDiff struct {
	U    RegDumper
	Bits int
	last map[int]uint64
}

func NewStatusDiff(u RegDumper, bits int) *StatusDiff {
	return &StatusDiff{U: u, Bits: bits}
}

var (
	colorSame    = ansi.ColorCode("default:default")
	colorChanged = ansi.ColorCode("default+bu:default")
)

// Change is one register's value now and at the previous diff.
type Change struct {
	Reg
	Old, New uint64
}

func (c *Change) Changed() bool { return c.Old != c.New }

// hex renders the new value with digits that differ from the old value highlighted.
func (c *Change) hex(digits int, color bool) string {
	cur := fmt.Sprintf("%0*x", digits, c.New)
	if !color || !c.Changed() {
		return cur
	}
	old := fmt.Sprintf("%0*x", digits, c.Old)
	var b strings.Builder
	lit := false
	for i := range cur {
		diff := i >= len(old) || cur[i] != old[i]
		if i == 0 || diff != lit {
			if diff {
				b.WriteString(colorChanged)
			} else {
				b.WriteString(colorSame)
			}
			lit = diff
		}
		b.WriteByte(cur[i])
	}
	b.WriteString(ansi.Reset)
	return b.String()
}

func (c *Change) format(digits, nameWidth int, color bool) string {
	name := fmt.Sprintf("%*s", nameWidth, c.Name)
	marker := " "
	if c.Changed() {
		if color {
			name = colorChanged + name + ansi.Reset
		} else {
			marker = "+"
		}
	}
	return fmt.Sprintf("%s%s 0x%s", marker, name, c.hex(digits, color))
}

// Changes is the result of one diff, in register dump order.
type Changes struct {
	Digits  int
	Changes []*Change
}

const changeCols = 4

// String lays changes out column-major, changeCols to a row.
func (cs *Changes) String(color bool) string {
	if len(cs.Changes) == 0 {
		return ""
	}
	nameWidth := 0
	for _, c := range cs.Changes {
		nameWidth = max(nameWidth, len(c.Name))
	}
	rows := (len(cs.Changes) + changeCols - 1) / changeCols
	var b strings.Builder
	for r := 0; r < rows; r++ {
		var cells []string
		for col := 0; col < changeCols; col++ {
			if i := col*rows + r; i < len(cs.Changes) {
				cells = append(cells, cs.Changes[i].format(cs.Digits, nameWidth, color))
			}
		}
		b.WriteString(strings.Join(cells, "  "))
		b.WriteByte('\n')
	}
	return b.String()
}

func (cs *Changes) Count() int {
	n := 0
	for _, c := range cs.Changes {
		if c.Changed() {
			n++
		}
	}
	return n
}

// Changes diffs the current registers against the previous call.
// With onlyChanged set, only default registers that changed are returned.
func (s *StatusDiff) Changes(onlyChanged bool) (*Changes, error) {
	regs, err := s.U.RegDump()
	if err != nil {
		return nil, err
	}
	cs := &Changes{Digits: s.Bits / 4}
	next := make(map[int]uint64, len(regs))
	for _, r := range regs {
		next[r.Enum] = r.Val
		c := &Change{Reg: r.Reg, Old: s.last[r.Enum], New: r.Val}
		if onlyChanged && (!r.Default || !c.Changed()) {
			continue
		}
		cs.Changes = append(cs.Changes, c)
	}
	s.last = next
	return cs, nil
}
