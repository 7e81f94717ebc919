package session

import "syscall"

// sessionLeaderAttr makes the child its own session and process group
// leader with the PTY slave as its controlling terminal. Do NOT also set
// Setpgid here: calling setpgid() after setsid() on the session leader
// returns EPERM on some platforms, and Setsid already gives us
// kill(-pid, sig) semantics over the whole group.
func sessionLeaderAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}
}
