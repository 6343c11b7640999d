//go:build !windows

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// signalsToNotify returns the signals forwarded to the child process.
func signalsToNotify() []os.Signal {
	return []os.Signal{os.Interrupt, unix.SIGTERM, unix.SIGHUP}
}

// terminateSignal asks the child to exit when the timeout expires.
func terminateSignal() os.Signal {
	return unix.SIGTERM
}

// disableCoreDumps sets RLIMIT_CORE to 0 so injected values never reach a
// core file.
func disableCoreDumps() error {
	return unix.Setrlimit(unix.RLIMIT_CORE, &unix.Rlimit{Cur: 0, Max: 0})
}
