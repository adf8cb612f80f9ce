//go:build linux

package validator

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureChild puts the child in its own process group, kills that group
// on cancel and takes the child down with the parent.
func configureChild(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}

// limitMemory caps the data segment of the current process. Since Linux 4.7
// RLIMIT_DATA covers private writable mappings, which is where the Go heap
// lives; address space reserved but not yet used does not count.
func limitMemory(bytes uint64) error {
	return unix.Setrlimit(unix.RLIMIT_DATA, &unix.Rlimit{Cur: bytes, Max: bytes})
}
