package corral

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lunixbochs/corral/go/cpu/ndh"
	"github.com/lunixbochs/corral/go/models/cpu"
)

func dump(t *testing.T, e *Engine) []uint64 {
	t.Helper()
	regs, err := e.RegDump()
	if err != nil {
		t.Fatal(err)
	}
	vals := make([]uint64, len(regs))
	for i, r := range regs {
		vals[i] = r.Val
	}
	return vals
}

func TestContextRoundTrip(t *testing.T) {
	e := openNdh(t)
	e.RegWriteBatch([]RegVal{{ndh.R0, 1}, {ndh.R5, 5}, {ndh.SP, 0x8000}, {ndh.ZF, 1}})
	saved := dump(t, e)
	ctx, err := e.ContextAlloc()
	if err != nil {
		t.Fatal(err)
	}
	if err := e.ContextSave(ctx); err != nil {
		t.Fatal(err)
	}
	e.RegWriteBatch([]RegVal{{ndh.R0, 0xff}, {ndh.R5, 0}, {ndh.PC, 0x1234}, {ndh.ZF, 0}})
	if err := e.ContextRestore(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(saved, dump(t, e)); diff != "" {
		t.Fatalf("restored registers (-want +got):\n%s", diff)
	}

	// saving again overwrites the capsule
	e.RegWrite(ndh.R0, 2)
	e.ContextSave(ctx)
	e.RegWrite(ndh.R0, 3)
	e.ContextRestore(ctx)
	if v, _ := e.RegRead(ndh.R0); v != 2 {
		t.Fatalf("r0 = %d after second restore", v)
	}
}

func TestContextLeavesMemory(t *testing.T) {
	e := openNdh(t)
	e.MemMap(0x1000, 0x1000, cpu.PROT_READ|cpu.PROT_WRITE)
	ctx, _ := e.ContextAlloc()
	e.ContextSave(ctx)
	e.MemWrite(0x1000, []byte{1, 2, 3})
	e.MemMap(0x2000, 0x1000, cpu.PROT_READ)
	e.ContextRestore(ctx)
	if p, _ := e.MemRead(0x1000, 3); !bytes.Equal(p, []byte{1, 2, 3}) {
		t.Fatalf("memory changed by restore: %v", p)
	}
	if regions, _ := e.MemRegions(); len(regions) != 2 {
		t.Fatalf("regions changed by restore: %v", regions)
	}
}

func TestContextLifetime(t *testing.T) {
	e := openNdh(t)
	ctx, _ := e.ContextAlloc()
	expectErr(t, e.ContextRestore(ctx), ErrArg)
	expectErr(t, e.ContextSave(nil), ErrArg)

	mismatch := &Context{arch: cpu.ARCH_X86, mode: cpu.MODE_32}
	expectErr(t, e.ContextSave(mismatch), ErrArg)
	expectErr(t, e.ContextRestore(mismatch), ErrArg)

	e.ContextSave(ctx)
	if err := ctx.Release(); err != nil {
		t.Fatal(err)
	}
	expectErr(t, ctx.Release(), ErrHandle)
	expectErr(t, e.ContextSave(ctx), ErrHandle)
	expectErr(t, e.ContextRestore(ctx), ErrHandle)
	_, err := ctx.Clone()
	expectErr(t, err, ErrHandle)
}

func TestContextOutlivesEngine(t *testing.T) {
	src := openNdh(t)
	src.RegWrite(ndh.R1, 0x1111)
	ctx, _ := src.ContextAlloc()
	src.ContextSave(ctx)
	if err := src.Close(); err != nil {
		t.Fatal(err)
	}

	dst := openNdh(t)
	if err := dst.ContextRestore(ctx); err != nil {
		t.Fatal(err)
	}
	if v, _ := dst.RegRead(ndh.R1); v != 0x1111 {
		t.Fatalf("r1 = %#x in the new engine", v)
	}
	// saving into a foreign context does not write through to the old engine's state
	dst.RegWrite(ndh.R1, 0x2222)
	if err := dst.ContextSave(ctx); err != nil {
		t.Fatal(err)
	}
	if ctx.Arch() != cpu.ARCH_NDH || ctx.Mode() != cpu.MODE_LITTLE_ENDIAN {
		t.Fatalf("context for arch %d mode %d", ctx.Arch(), ctx.Mode())
	}
}

func TestContextClone(t *testing.T) {
	e := openNdh(t)
	e.RegWrite(ndh.R2, 0x22)
	ctx, _ := e.ContextAlloc()
	e.ContextSave(ctx)
	dup, err := ctx.Clone()
	if err != nil {
		t.Fatal(err)
	}
	e.RegWrite(ndh.R2, 0x33)
	e.ContextSave(ctx)

	e.ContextRestore(dup)
	if v, _ := e.RegRead(ndh.R2); v != 0x22 {
		t.Fatalf("clone shares state with its source: r2 = %#x", v)
	}
	e.ContextRestore(ctx)
	if v, _ := e.RegRead(ndh.R2); v != 0x33 {
		t.Fatalf("r2 = %#x", v)
	}
}
