package cpu

// Regs is a register file for Go-implemented engines.
// Registers are stored densely in declaration order; writes truncate to each register's width.
type Regs struct {
	index map[int]int
	masks []uint64
	vals  []uint64
}

func widthMask(bits uint) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return 1<<bits - 1
}

// NewRegs declares enums with a width of bits.
func NewRegs(bits uint, enums []int) *Regs {
	r := &Regs{
		index: make(map[int]int, len(enums)),
		masks: make([]uint64, len(enums)),
		vals:  make([]uint64, len(enums)),
	}
	for i, e := range enums {
		r.index[e] = i
		r.masks[i] = widthMask(bits)
	}
	return r
}

// Narrow changes the width of already declared registers, such as single-bit flags.
func (r *Regs) Narrow(bits uint, enums ...int) {
	for _, e := range enums {
		if i, ok := r.index[e]; ok {
			r.masks[i] = widthMask(bits)
			r.vals[i] &= r.masks[i]
		}
	}
}

func (r *Regs) RegRead(enum int) (uint64, error) {
	i, ok := r.index[enum]
	if !ok {
		return 0, ERR_ARG
	}
	return r.vals[i], nil
}

func (r *Regs) RegWrite(enum int, val uint64) error {
	i, ok := r.index[enum]
	if !ok {
		return ERR_ARG
	}
	r.vals[i] = val & r.masks[i]
	return nil
}

func (r *Regs) RegReadBatch(enums []int) ([]uint64, error) {
	vals := make([]uint64, len(enums))
	for n, e := range enums {
		i, ok := r.index[e]
		if !ok {
			return nil, ERR_ARG
		}
		vals[n] = r.vals[i]
	}
	return vals, nil
}

// RegWriteBatch validates every register before writing any of them.
func (r *Regs) RegWriteBatch(enums []int, vals []uint64) error {
	if len(enums) != len(vals) {
		return ERR_ARG
	}
	slots := make([]int, len(enums))
	for n, e := range enums {
		i, ok := r.index[e]
		if !ok {
			return ERR_ARG
		}
		slots[n] = i
	}
	for n, i := range slots {
		r.vals[i] = vals[n] & r.masks[i]
	}
	return nil
}

// regContext is the opaque snapshot handed out by ContextSave.
// State an engine keeps outside of Regs must be saved by the engine itself.
type regContext []uint64

// ContextSave copies every register, reusing a previous snapshot from the same file when given one.
func (r *Regs) ContextSave(reuse interface{}) (interface{}, error) {
	if reuse == nil {
		return append(regContext(nil), r.vals...), nil
	}
	ctx, ok := reuse.(regContext)
	if !ok || len(ctx) != len(r.vals) {
		return nil, ERR_ARG
	}
	copy(ctx, r.vals)
	return ctx, nil
}

func (r *Regs) ContextRestore(ctx interface{}) error {
	saved, ok := ctx.(regContext)
	if !ok || len(saved) != len(r.vals) {
		return ERR_ARG
	}
	copy(r.vals, saved)
	return nil
}
