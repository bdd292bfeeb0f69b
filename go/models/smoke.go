package models

import (
	"testing"
)

// SmokeTest opens every mode of the architecture and round-trips the stack pointer.
func (a *Arch) SmokeTest(t *testing.T) {
	for _, m := range a.Modes {
		c, err := a.Cpu.New(m.Flags)
		if err != nil {
			t.Fatalf("%s mode %#x: %v", a.Name, m.Flags, err)
		}
		if err := c.RegWrite(m.SP, 0x1000); err != nil {
			t.Fatal(err)
		}
		val, err := c.RegRead(m.SP)
		if err != nil {
			t.Fatal(err)
		}
		if val != 0x1000 {
			t.Fatalf("%s mode %#x failed to read/write stack pointer", a.Name, m.Flags)
		}
		for _, r := range m.RegList() {
			if size, ok := m.RegSize(r.Enum); !ok || size <= 0 {
				t.Fatalf("%s register %s has no width", a.Name, r.Name)
			}
		}
		if err := c.Close(); err != nil {
			t.Fatal(err)
		}
	}
}
