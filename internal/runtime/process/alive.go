package process

import (
	"slices"

	"github.com/shirou/gopsutil/v3/process"
)

// Alive reports whether a process with the given pid is still running.
// Zombies count as gone: they have exited and only wait to be reaped by a
// parent that may not be us. Errors from the process table are treated as
// "not alive".
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := proc.Status()
	if err != nil {
		running, runErr := proc.IsRunning()
		return runErr == nil && running
	}
	return !slices.Contains(status, process.Zombie)
}
