package corral

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/lunixbochs/corral/go/models/cpu"
)

// Start runs from begin until pc reaches until, a hook calls Stop, or a fault ends the run.
func (e *Engine) Start(begin, until uint64) error {
	return e.StartWithOptions(begin, until, nil)
}

// StartWithOptions is Start bounded by an instruction count and a wall-clock timeout.
// Reaching either bound is not an error; QUERY_TIMEOUT tells them apart.
// Hooks run on the calling goroutine. A panic in a hook stops the run and is
// raised again from here.
func (e *Engine) StartWithOptions(begin, until uint64, opts *StartOptions) error {
	if err := e.check(); err != nil {
		return err
	}
	if !e.running.CompareAndSwap(false, true) {
		return errors.Wrap(ErrArg, "run already active")
	}
	defer e.running.Store(false)
	if err := e.precheck(begin); err != nil {
		return err
	}

	var timeout time.Duration
	var count uint64
	if opts != nil {
		timeout, count = opts.Timeout, opts.Count
	}
	log := e.log.With(zap.Uint64("begin", begin), zap.Uint64("until", until))
	log.Debug("run start", zap.Duration("timeout", timeout), zap.Uint64("count", count))

	e.panicked = nil
	err := e.cpu.StartWithOptions(begin, until, opts)
	if p := e.panicked; p != nil {
		e.panicked = nil
		panic(p)
	}
	log.Debug("run stop", zap.Error(err))
	return backendErr(err, "run")
}

// precheck fails a run that would fault on its first fetch with no hook to
// resolve it, before the engine touches any CPU state.
func (e *Engine) precheck(begin uint64) error {
	mapped, allowed := e.regions.access(begin, 1, cpu.PROT_EXEC)
	var access int
	switch {
	case !mapped:
		access = cpu.MEM_FETCH_UNMAPPED
	case !allowed:
		access = cpu.MEM_FETCH_PROT
	default:
		return nil
	}
	if e.hooks.observes(access, begin) {
		return nil
	}
	return &cpu.MemError{Addr: begin, Size: 1, Enum: access}
}

// observes reports whether an active fault hook covers access at addr.
func (t *hookTable) observes(access int, addr uint64) bool {
	g := t.groups[groupKey{fam: famFault}]
	if g == nil {
		return false
	}
	bit := cpu.HookBit(access)
	for _, h := range g.members {
		if h.kind&bit != 0 && h.contains(addr) {
			return true
		}
	}
	return false
}

// Stop ends the active run at the next instruction boundary. It is a no-op
// when idle and may be called from a hook or from another goroutine.
func (e *Engine) Stop() error {
	if err := e.check(); err != nil {
		return err
	}
	if !e.running.Load() {
		return nil
	}
	return backendErr(e.cpu.Stop(), "stop")
}

// Running reports whether a run is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}
