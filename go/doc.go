// Package corral is a host-side control layer over a CPU emulation engine.
//
// An Engine owns one emulator instance bound to an architecture and mode. It tracks the
// mapped address space in a page-aligned region index, gives typed register access,
// multiplexes any number of typed hook callbacks onto the engine's native hooks, and
// drives bounded runs that hooks can stop from inside.
//
// The engine itself is reached only through cpu.Cpu. The built-in NDH interpreter is
// always available; building with the unicorn tag and importing go/cpu/unicorn adds
// the Unicorn architectures.
package corral
