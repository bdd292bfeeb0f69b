package ndh

const (
	R0 = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	PC
	BP
	SP

	ZF
	AF
	BF
)

// instruction ids for HOOK_INSN
const (
	INS_SYSCALL = OP_SYSCALL
)

// interrupt numbers raised to HOOK_INTR
const (
	INTR_DIVIDE  = 0
	INTR_SYSCALL = 0x80
)

const (
	OP_PUSH = 0x01
	OP_POP  = 0x03

	OP_MOV = 0x04

	OP_ADD = 0x06
	OP_SUB = 0x07
	OP_MUL = 0x08
	OP_DIV = 0x09
	OP_INC = 0x0A
	OP_DEC = 0x0B

	OP_OR  = 0x0C
	OP_AND = 0x0D
	OP_XOR = 0x0E
	OP_NOT = 0x0F

	OP_JZ   = 0x10
	OP_JNZ  = 0x11
	OP_JMPS = 0x16
	OP_TEST = 0x17
	OP_CMP  = 0x18
	OP_CALL = 0x19
	OP_RET  = 0x1A
	OP_JMPL = 0x1B
	OP_END  = 0x1C
	OP_XCHG = 0x1D
	OP_JA   = 0x1E
	OP_JB   = 0x1F

	OP_SYSCALL = 0x30
	OP_NOP     = 0x02
)

const (
	OP_FLAG_REG_REG                 = 0x00
	OP_FLAG_REG_DIRECT08            = 0x01
	OP_FLAG_REG_DIRECT16            = 0x02
	OP_FLAG_REG                     = 0x03
	OP_FLAG_DIRECT16                = 0x04
	OP_FLAG_DIRECT08                = 0x05
	OP_FLAG_REGINDIRECT_REG         = 0x06
	OP_FLAG_REGINDIRECT_DIRECT08    = 0x07
	OP_FLAG_REGINDIRECT_DIRECT16    = 0x08
	OP_FLAG_REGINDIRECT_REGINDIRECT = 0x09
	OP_FLAG_REG_REGINDIRECT         = 0x0a
)

// operand encodings
const (
	oReg = iota // register number, 1 byte
	oInd        // [register], 1 byte
	oU8
	oU16
)

var operandSize = [...]int{oReg: 1, oInd: 1, oU8: 1, oU16: 2}

// operand layouts selected by the flag byte of flagged instructions
var flagLayout = map[byte][]int{
	OP_FLAG_REG_REG:                 {oReg, oReg},
	OP_FLAG_REG_DIRECT08:            {oReg, oU8},
	OP_FLAG_REG_DIRECT16:            {oReg, oU16},
	OP_FLAG_REG:                     {oReg},
	OP_FLAG_DIRECT16:                {oU16},
	OP_FLAG_DIRECT08:                {oU8},
	OP_FLAG_REGINDIRECT_REG:         {oInd, oReg},
	OP_FLAG_REGINDIRECT_DIRECT08:    {oInd, oU8},
	OP_FLAG_REGINDIRECT_DIRECT16:    {oInd, oU16},
	OP_FLAG_REGINDIRECT_REGINDIRECT: {oInd, oInd},
	OP_FLAG_REG_REGINDIRECT:         {oReg, oInd},
}

// op describes an opcode. A nil layout means operands follow a flag byte.
type op struct {
	name   string
	layout []int
}

var (
	none   = []int{}
	oneReg = []int{oReg}
	twoReg = []int{oReg, oReg}
)

var opData = map[byte]op{
	OP_ADD:     {"add", nil},
	OP_AND:     {"and", nil},
	OP_CALL:    {"call", nil},
	OP_CMP:     {"cmp", nil},
	OP_DEC:     {"dec", oneReg},
	OP_DIV:     {"div", nil},
	OP_END:     {"end", none},
	OP_INC:     {"inc", oneReg},
	OP_JA:      {"ja", []int{oU16}},
	OP_JB:      {"jb", []int{oU16}},
	OP_JMPL:    {"jmpl", []int{oU16}},
	OP_JMPS:    {"jmps", []int{oU8}},
	OP_JNZ:     {"jnz", []int{oU16}},
	OP_JZ:      {"jz", []int{oU16}},
	OP_MOV:     {"mov", nil},
	OP_MUL:     {"mul", nil},
	OP_NOP:     {"nop", none},
	OP_NOT:     {"not", oneReg},
	OP_OR:      {"or", nil},
	OP_POP:     {"pop", oneReg},
	OP_PUSH:    {"push", nil},
	OP_RET:     {"ret", none},
	OP_SUB:     {"sub", nil},
	OP_SYSCALL: {"syscall", none},
	OP_TEST:    {"test", twoReg},
	OP_XCHG:    {"xchg", twoReg},
	OP_XOR:     {"xor", nil},
}
