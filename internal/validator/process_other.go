//go:build !linux

package validator

import "os/exec"

func configureChild(cmd *exec.Cmd) {}

// limitMemory is a no-op here; debug.SetMemoryLimit is the only bound.
func limitMemory(bytes uint64) error { return nil }
