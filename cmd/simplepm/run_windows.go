//go:build windows

package main

import "os"

// signalsToNotify returns the signals forwarded to the child process.
// Only Ctrl+C exists on Windows.
func signalsToNotify() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// terminateSignal stops the child when the timeout expires. Windows has no
// SIGTERM, so the process is killed.
func terminateSignal() os.Signal {
	return os.Kill
}

// disableCoreDumps is a no-op; crash dumps go through Windows Error
// Reporting, not RLIMIT_CORE.
func disableCoreDumps() error {
	return nil
}
