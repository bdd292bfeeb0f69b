package corral

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lunixbochs/corral/go/arch"
	_ "github.com/lunixbochs/corral/go/arch/ndh"
	"github.com/lunixbochs/corral/go/models"
	"github.com/lunixbochs/corral/go/models/cpu"
)

const version = "1.0.0"

// Version returns the control layer version.
func Version() string { return version }

// IsSupported reports whether an engine is registered for arch.
func IsSupported(archEnum int) bool {
	return arch.Supported(archEnum)
}

// Engine is one emulator instance bound to an architecture and mode.
// It is not safe for concurrent use, except for Stop and Running.
type Engine struct {
	arch     *models.Arch
	mode     *models.Mode
	pageSize uint64
	mask     uint64

	cpu cpu.Cpu
	log *zap.Logger

	regions *regionIndex
	hooks   *hookTable

	closed  bool
	running atomic.Bool
	// first panic raised by a hook during the current run
	panicked interface{}
}

// Open creates an engine for arch and mode.
func Open(archEnum, mode int, opts ...Option) (*Engine, error) {
	cfg := config{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log == nil {
		cfg.log = Logger()
	}
	a, err := arch.Get(archEnum)
	if err != nil {
		return nil, err
	}
	m, err := a.Mode(mode)
	if err != nil {
		return nil, err
	}
	pageSize := a.PageSize
	if cfg.pageSize != 0 {
		if cfg.pageSize&(cfg.pageSize-1) != 0 || cfg.pageSize%a.PageSize != 0 {
			return nil, errors.Wrapf(ErrArg, "page size %#x does not fit %s pages of %#x", cfg.pageSize, a.Name, a.PageSize)
		}
		pageSize = cfg.pageSize
	}
	builder := a.Cpu
	if cfg.builder != nil {
		builder = cfg.builder
	}
	c, err := builder.New(mode)
	if err != nil {
		return nil, backendErr(err, "engine open")
	}
	e := &Engine{
		arch:     a,
		mode:     m,
		pageSize: pageSize,
		mask:     ^uint64(0) >> (64 - uint(m.Bits)),
		cpu:      c,
		log:      cfg.log.With(zap.String("arch", a.Name), zap.Int("mode", mode)),
		regions:  newRegionIndex(),
	}
	e.hooks = newHookTable(e)
	e.log.Debug("engine open", zap.Uint64("page_size", pageSize))
	return e, nil
}

func (e *Engine) check() error {
	if e.closed {
		return ErrHandle
	}
	return nil
}

// Close releases the engine along with its hooks and regions.
// It fails with ErrArg while a run is active and with ErrHandle once closed.
func (e *Engine) Close() error {
	if e.closed {
		return ErrHandle
	}
	if e.running.Load() {
		return errors.Wrap(ErrArg, "close during run")
	}
	e.hooks.clear()
	err := e.cpu.Close()
	e.closed = true
	e.regions = newRegionIndex()
	e.log.Debug("engine close", zap.Error(err))
	return backendErr(err, "engine close")
}

// Query returns runtime facts about the engine. QUERY_PAGE_SIZE reports the
// region granularity and QUERY_TIMEOUT whether the last run ended by timeout.
func (e *Engine) Query(q int) (uint64, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	switch q {
	case cpu.QUERY_PAGE_SIZE:
		return e.pageSize, nil
	case cpu.QUERY_ARCH:
		return uint64(e.arch.Enum), nil
	}
	v, err := e.cpu.Query(q)
	return v, backendErr(err, "query")
}

func (e *Engine) Arch() *models.Arch { return e.arch }

func (e *Engine) Mode() int { return e.mode.Flags }

func (e *Engine) ModeInfo() *models.Mode { return e.mode }

func (e *Engine) PageSize() uint64 { return e.pageSize }

func (e *Engine) Bits() int { return e.mode.Bits }

func (e *Engine) ByteOrder() binary.ByteOrder { return e.mode.Order }

// Backend exposes the underlying engine. Mapping memory or adding hooks through it
// bypasses the region index and the hook multiplexer.
func (e *Engine) Backend() cpu.Cpu { return e.cpu }

func (e *Engine) String() string {
	state := "idle"
	switch {
	case e.closed:
		state = "closed"
	case e.running.Load():
		state = "running"
	}
	return fmt.Sprintf("<Engine %s mode=%#x %s>", e.arch.Name, e.mode.Flags, state)
}
