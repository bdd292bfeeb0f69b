package corral

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Context is a saved copy of CPU state for one architecture and mode. It is
// independent of the engine it was saved from and can be restored into any
// engine opened with the same architecture and mode.
type Context struct {
	arch, mode int
	data       interface{}
	released   bool
	// the engine that last saved into the context, used by Clone for opaque state
	owner *Engine
}

func (c *Context) Arch() int { return c.arch }

func (c *Context) Mode() int { return c.mode }

// Saved reports whether the context holds state.
func (c *Context) Saved() bool { return c.data != nil }

// Release drops the saved state. Any later use fails with ErrHandle.
func (c *Context) Release() error {
	if c.released {
		return ErrHandle
	}
	c.released = true
	c.data, c.owner = nil, nil
	return nil
}

// Clone returns an independent copy of the context.
func (c *Context) Clone() (*Context, error) {
	if c.released {
		return nil, ErrHandle
	}
	dup := &Context{arch: c.arch, mode: c.mode, owner: c.owner}
	if c.data == nil {
		return dup, nil
	}
	// engine state is opaque and can only be copied by round-tripping it through an engine
	e := c.owner
	if e == nil || e.closed || e.running.Load() {
		return nil, errors.Wrap(ErrHandle, "context state needs its engine to clone")
	}
	cur, err := e.cpu.ContextSave(nil)
	if err != nil {
		return nil, backendErr(err, "context clone")
	}
	defer e.cpu.ContextRestore(cur)
	if err := e.cpu.ContextRestore(c.data); err != nil {
		return nil, backendErr(err, "context clone")
	}
	if dup.data, err = e.cpu.ContextSave(nil); err != nil {
		return nil, backendErr(err, "context clone")
	}
	return dup, nil
}

// ContextAlloc allocates an empty context for this engine's architecture and mode.
func (e *Engine) ContextAlloc() (*Context, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return &Context{arch: e.arch.Enum, mode: e.mode.Flags}, nil
}

func (e *Engine) checkContext(ctx *Context) error {
	if err := e.check(); err != nil {
		return err
	}
	if ctx == nil {
		return errors.Wrap(ErrArg, "nil context")
	}
	if ctx.released {
		return ErrHandle
	}
	if ctx.arch != e.arch.Enum || ctx.mode != e.mode.Flags {
		return errors.Wrapf(ErrArg, "context for arch %d mode %#x", ctx.arch, ctx.mode)
	}
	return nil
}

// ContextSave overwrites ctx with the current CPU state. Memory and hooks are not saved.
func (e *Engine) ContextSave(ctx *Context) error {
	if err := e.checkContext(ctx); err != nil {
		return err
	}
	// only reuse state that came from this engine
	reuse := ctx.data
	if ctx.owner != e {
		reuse = nil
	}
	data, err := e.cpu.ContextSave(reuse)
	if err != nil {
		return backendErr(err, "context save")
	}
	ctx.data, ctx.owner = data, e
	e.log.Debug("context save")
	return nil
}

// ContextRestore loads ctx into the CPU. Memory and hooks are not touched.
func (e *Engine) ContextRestore(ctx *Context) error {
	if err := e.checkContext(ctx); err != nil {
		return err
	}
	if ctx.data == nil {
		return errors.Wrap(ErrArg, "context was never saved")
	}
	if err := e.cpu.ContextRestore(ctx.data); err != nil {
		return backendErr(err, "context restore")
	}
	e.log.Debug("context restore", zap.Bool("foreign", ctx.owner != e))
	return nil
}
