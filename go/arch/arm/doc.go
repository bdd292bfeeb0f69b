// Package arm registers 32-bit ARM and Thumb backed by Unicorn.
package arm
