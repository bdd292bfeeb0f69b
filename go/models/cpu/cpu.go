package cpu

import (
	"time"
)

// Hook is an opaque token returned by Cpu.HookAdd.
type Hook interface{}

// Hook callback shapes, one per hook family.
type (
	CodeCb     = func(Cpu, uint64, uint32)
	IntrCb     = func(Cpu, uint32)
	MemCb      = func(Cpu, int, uint64, int, int64)
	MemFaultCb = func(Cpu, int, uint64, int, int64) bool
	InCb       = func(Cpu, uint32, uint32) uint32
	OutCb      = func(Cpu, uint32, uint32, uint32)
	SyscallCb  = func(Cpu)
	InvalidCb  = func(Cpu) bool

	// IntrHandledCb reports whether it dealt with the interrupt.
	IntrHandledCb = func(Cpu, uint32) bool
)

// MemRegion describes one mapped range as reported by an engine.
type MemRegion struct {
	Addr, Size uint64
	Prot       int
}

// StartOptions bounds a run. Zero values are unbounded.
type StartOptions struct {
	Timeout time.Duration
	Count   uint64
}

// This interface abstracts the minimum functionality the control layer requires in a CPU emulator.
// Every error returned by an implementation should be (or wrap) an Err or a *MemError.
type Cpu interface {
	// memory mapping
	MemMapProt(addr, size uint64, prot int) error
	MemMapPtr(addr, size uint64, prot int, data []byte) error
	MemProt(addr, size uint64, prot int) error
	MemUnmap(addr, size uint64) error
	MemRegions() ([]MemRegion, error)

	// memory IO
	MemRead(addr, size uint64) ([]byte, error)
	MemReadInto(p []byte, addr uint64) error
	MemWrite(addr uint64, p []byte) error

	// register IO
	RegRead(reg int) (uint64, error)
	RegWrite(reg int, val uint64) error
	RegReadBatch(regs []int) ([]uint64, error)
	RegWriteBatch(regs []int, vals []uint64) error

	// execution
	Start(begin, until uint64) error
	StartWithOptions(begin, until uint64, opts *StartOptions) error
	Stop() error

	// hooks
	HookAdd(htype int, cb interface{}, begin, end uint64, extra ...int) (Hook, error)
	HookDel(hook Hook) error

	// save/restore entire CPU state
	ContextSave(reuse interface{}) (interface{}, error)
	ContextRestore(ctx interface{}) error

	Query(q int) (uint64, error)

	// cleanup
	Close() error
}

// WideRegs is implemented by engines with registers wider than 64 bits.
type WideRegs interface {
	RegReadBytes(reg int, p []byte) error
	RegWriteBytes(reg int, p []byte) error
}

// Builder creates a Cpu for one mode of an architecture.
type Builder interface {
	New(mode int) (Cpu, error)
}
