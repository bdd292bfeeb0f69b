package ndh

import (
	"encoding/binary"
	"fmt"
	"strings"
)

type ins struct {
	addr  uint64
	op    byte
	name  string
	args  []arg
	bytes []byte
}

func (i *ins) String() string {
	args := make([]string, len(i.args))
	for n, a := range i.args {
		args[n] = a.String()
	}
	return strings.TrimSpace(i.name + " " + strings.Join(args, ", "))
}

type arg interface {
	String() string
}

type u8 struct{ val uint8 }
type u16 struct{ val uint16 }
type reg struct{ num uint8 }
type indirect struct{ arg arg }

func (a *u8) String() string  { return fmt.Sprintf("%#x", a.val) }
func (a *u16) String() string { return fmt.Sprintf("%#x", a.val) }
func (a *reg) String() string {
	switch a.num {
	case PC:
		return "pc"
	case SP:
		return "sp"
	case BP:
		return "bp"
	}
	return fmt.Sprintf("r%d", a.num)
}

func (a *indirect) String() string { return "[" + a.arg.String() + "]" }

// layout finds the operand layout for the instruction at mem, and how many
// bytes of opcode and flag precede the operands. ok is false for invalid
// encodings, and need > 0 when more bytes are required to tell.
func layout(mem []byte) (operands []int, head int, need int, ok bool) {
	if len(mem) == 0 {
		return nil, 0, 1, true
	}
	o, ok := opData[mem[0]]
	if !ok {
		return nil, 0, 0, false
	}
	if o.layout != nil {
		return o.layout, 1, 0, true
	}
	if len(mem) < 2 {
		return nil, 0, 2, true
	}
	operands, ok = flagLayout[mem[1]]
	return operands, 2, 0, ok
}

// insLen returns the full length of the instruction starting mem, which may be
// longer than len(mem) when only a prefix has been fetched. 0 means invalid.
func insLen(mem []byte) int {
	operands, head, need, ok := layout(mem)
	if !ok {
		return 0
	}
	if need > 0 {
		return need
	}
	n := head
	for _, o := range operands {
		n += operandSize[o]
	}
	return n
}

// decode returns the single instruction at the start of mem, or nil if it is invalid or truncated.
func decode(mem []byte, addr uint64) *ins {
	n := insLen(mem)
	if n == 0 || n > len(mem) {
		return nil
	}
	operands, pos, _, _ := layout(mem)
	args := make([]arg, len(operands))
	for i, o := range operands {
		switch o {
		case oReg:
			args[i] = &reg{mem[pos]}
		case oInd:
			args[i] = &indirect{&reg{mem[pos]}}
		case oU8:
			args[i] = &u8{mem[pos]}
		case oU16:
			args[i] = &u16{binary.LittleEndian.Uint16(mem[pos:])}
		}
		pos += operandSize[o]
	}
	return &ins{
		addr:  addr,
		op:    mem[0],
		name:  opData[mem[0]].name,
		args:  args,
		bytes: mem[:n:n],
	}
}
