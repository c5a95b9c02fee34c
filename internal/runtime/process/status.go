package process

import (
	"os"
	"syscall"
)

// exitStatus follows the shell convention of reporting 128+N for a process
// terminated by signal N.
func exitStatus(state *os.ProcessState) (int, string) {
	if state == nil {
		return -1, ""
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig := ws.Signal()
		return 128 + int(sig), sig.String()
	}
	return state.ExitCode(), ""
}
