// Package unicorn adapts the Unicorn engine to the cpu.Cpu interface.
//
// The adapter links against libunicorn through cgo, so it is only built with
// the unicorn build tag:
//
//	go build -tags unicorn ./...
package unicorn
