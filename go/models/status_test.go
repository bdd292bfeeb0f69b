package models

import (
	"strings"
	"testing"
)

type fakeDump []RegVal

func (f fakeDump) RegDump() ([]RegVal, error) { return f, nil }

func TestStatusDiff(t *testing.T) {
	regs := fakeDump{
		{Reg{Enum: 1, Name: "r0", Default: true}, 0},
		{Reg{Enum: 2, Name: "r1", Default: true}, 0},
		{Reg{Enum: 3, Name: "flags"}, 0},
	}
	s := NewStatusDiff(regs, 16)
	if cs, err := s.Changes(false); err != nil || len(cs.Changes) != 3 || cs.Count() != 0 {
		t.Fatalf("initial Changes() = %+v, %v", cs, err)
	}
	regs[0].Val = 0x1234
	regs[2].Val = 1
	cs, err := s.Changes(true)
	if err != nil {
		t.Fatal(err)
	}
	// flags is not a default register
	if len(cs.Changes) != 1 || cs.Changes[0].Name != "r0" || cs.Changes[0].New != 0x1234 {
		t.Fatalf("bad changes: %+v", cs.Changes)
	}
	if out := cs.String(false); out != "+r0 0x1234\n" {
		t.Fatalf("String() = %q", out)
	}
	if out := cs.String(true); !strings.Contains(out, "\x1b[") || !strings.Contains(out, "r0") {
		t.Fatalf("colored String() = %q", out)
	}
	if cs, _ := s.Changes(true); cs.Count() != 0 {
		t.Fatal("second diff reported stale changes")
	}
}

func TestChangesColumns(t *testing.T) {
	var cs Changes
	cs.Digits = 2
	for i := 0; i < 6; i++ {
		cs.Changes = append(cs.Changes, &Change{Reg: Reg{Name: string(rune('a' + i))}, New: uint64(i)})
	}
	lines := strings.Split(strings.TrimSuffix(cs.String(false), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 rows, got %q", lines)
	}
	// column-major: a c e on the first row
	if lines[0] != " a 0x00  +c 0x02  +e 0x04" {
		t.Fatalf("bad first row %q", lines[0])
	}
}
