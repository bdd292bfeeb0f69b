package corral

import (
	"github.com/pkg/errors"

	"github.com/lunixbochs/corral/go/models/cpu"
)

// Err is the closed set of result kinds. Every error returned by this package is,
// or wraps, one of the values below.
type Err = cpu.Err

const (
	ErrOK             = cpu.ERR_OK
	ErrNoMem          = cpu.ERR_NOMEM
	ErrArch           = cpu.ERR_ARCH
	ErrHandle         = cpu.ERR_HANDLE
	ErrMode           = cpu.ERR_MODE
	ErrVersion        = cpu.ERR_VERSION
	ErrReadUnmapped   = cpu.ERR_READ_UNMAPPED
	ErrWriteUnmapped  = cpu.ERR_WRITE_UNMAPPED
	ErrFetchUnmapped  = cpu.ERR_FETCH_UNMAPPED
	ErrHook           = cpu.ERR_HOOK
	ErrInsnInvalid    = cpu.ERR_INSN_INVALID
	ErrMap            = cpu.ERR_MAP
	ErrWriteProt      = cpu.ERR_WRITE_PROT
	ErrReadProt       = cpu.ERR_READ_PROT
	ErrFetchProt      = cpu.ERR_FETCH_PROT
	ErrArg            = cpu.ERR_ARG
	ErrReadUnaligned  = cpu.ERR_READ_UNALIGNED
	ErrWriteUnaligned = cpu.ERR_WRITE_UNALIGNED
	ErrFetchUnaligned = cpu.ERR_FETCH_UNALIGNED
	ErrHookExist      = cpu.ERR_HOOK_EXIST
	ErrResource       = cpu.ERR_RESOURCE
	ErrException      = cpu.ERR_EXCEPTION
)

// ErrOf classifies err. nil is ErrOK and anything outside the taxonomy is ErrException.
func ErrOf(err error) Err {
	if err == nil {
		return ErrOK
	}
	var e cpu.Err
	if errors.As(err, &e) && e.Valid() {
		return e
	}
	return ErrException
}

// backendErr attaches op context to an engine error, keeping its kind.
func backendErr(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, op)
}
