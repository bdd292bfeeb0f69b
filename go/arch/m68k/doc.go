// Package m68k registers the Motorola 68000 family backed by Unicorn.
package m68k
