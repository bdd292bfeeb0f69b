// Package arm64 registers AArch64 backed by Unicorn.
package arm64
