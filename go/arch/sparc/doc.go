// Package sparc registers 32-bit SPARC backed by Unicorn.
package sparc
