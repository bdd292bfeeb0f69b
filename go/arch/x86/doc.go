// Package x86 registers the 16, 32 and 64-bit x86 modes backed by Unicorn.
package x86
