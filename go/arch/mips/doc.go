// Package mips registers 32-bit MIPS in both byte orders, backed by Unicorn.
package mips
