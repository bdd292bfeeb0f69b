package cpu

import (
	"fmt"
)

// Err is the closed set of outcomes every engine operation reports.
// Values match Unicorn's uc_err so adapters can convert directly.
type Err int

const (
	ERR_OK Err = iota
	ERR_NOMEM
	ERR_ARCH
	ERR_HANDLE
	ERR_MODE
	ERR_VERSION
	ERR_READ_UNMAPPED
	ERR_WRITE_UNMAPPED
	ERR_FETCH_UNMAPPED
	ERR_HOOK
	ERR_INSN_INVALID
	ERR_MAP
	ERR_WRITE_PROT
	ERR_READ_PROT
	ERR_FETCH_PROT
	ERR_ARG
	ERR_READ_UNALIGNED
	ERR_WRITE_UNALIGNED
	ERR_FETCH_UNALIGNED
	ERR_HOOK_EXIST
	ERR_RESOURCE
	ERR_EXCEPTION
)

var errStrings = [...]string{
	ERR_OK:              "OK",
	ERR_NOMEM:           "out of memory",
	ERR_ARCH:            "unsupported architecture",
	ERR_HANDLE:          "invalid handle",
	ERR_MODE:            "invalid or unsupported mode",
	ERR_VERSION:         "different API version between core & binding",
	ERR_READ_UNMAPPED:   "invalid memory read",
	ERR_WRITE_UNMAPPED:  "invalid memory write",
	ERR_FETCH_UNMAPPED:  "invalid memory fetch",
	ERR_HOOK:            "invalid hook type",
	ERR_INSN_INVALID:    "invalid instruction",
	ERR_MAP:             "invalid memory mapping",
	ERR_WRITE_PROT:      "write to write-protected memory",
	ERR_READ_PROT:       "read from non-readable memory",
	ERR_FETCH_PROT:      "fetch from non-executable memory",
	ERR_ARG:             "invalid argument",
	ERR_READ_UNALIGNED:  "read from unaligned memory",
	ERR_WRITE_UNALIGNED: "write to unaligned memory",
	ERR_FETCH_UNALIGNED: "fetch from unaligned memory",
	ERR_HOOK_EXIST:      "hook for this event already existed",
	ERR_RESOURCE:        "insufficient resource",
	ERR_EXCEPTION:       "unhandled CPU exception",
}

func (e Err) Error() string {
	if e >= 0 && int(e) < len(errStrings) {
		return errStrings[e]
	}
	return fmt.Sprintf("unknown error %d", int(e))
}

// Valid reports whether e belongs to the closed set.
func (e Err) Valid() bool {
	return e >= 0 && int(e) < len(errStrings)
}

// MemError is a fault at a specific address. Enum is one of the MEM_* fault access types.
type MemError struct {
	Addr uint64
	Size int
	Enum int
}

func (m *MemError) Error() string {
	reason := "memory error"
	switch m.Enum {
	case MEM_WRITE_UNMAPPED:
		reason = "unmapped write"
	case MEM_READ_UNMAPPED:
		reason = "unmapped read"
	case MEM_FETCH_UNMAPPED:
		reason = "unmapped fetch"
	case MEM_WRITE_PROT:
		reason = "protected write"
	case MEM_READ_PROT:
		reason = "protected read"
	case MEM_FETCH_PROT:
		reason = "protected exec"
	}
	return fmt.Sprintf("%s at %#x(%d)", reason, m.Addr, m.Size)
}

// Err converts the fault access type into the matching error kind.
func (m *MemError) Err() Err {
	switch m.Enum {
	case MEM_WRITE_UNMAPPED:
		return ERR_WRITE_UNMAPPED
	case MEM_READ_UNMAPPED:
		return ERR_READ_UNMAPPED
	case MEM_FETCH_UNMAPPED:
		return ERR_FETCH_UNMAPPED
	case MEM_WRITE_PROT:
		return ERR_WRITE_PROT
	case MEM_READ_PROT:
		return ERR_READ_PROT
	case MEM_FETCH_PROT:
		return ERR_FETCH_PROT
	}
	return ERR_EXCEPTION
}

func (m *MemError) Unwrap() error {
	return m.Err()
}
