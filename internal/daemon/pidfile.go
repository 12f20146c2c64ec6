package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const pidName = "heard.pid"

// runtimeDir returns ~/.cache/heard, creating it on first use.
func runtimeDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	rd := filepath.Join(dir, "heard")
	if err := os.MkdirAll(rd, 0o700); err != nil {
		return "", err
	}
	return rd, nil
}

// PidPath returns ~/.cache/heard/heard.pid.
func PidPath() (string, error) {
	rd, err := runtimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(rd, pidName), nil
}

// WritePid records the current process id.
func WritePid() error {
	path, err := PidPath()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

// RemovePid deletes the pid file. A missing file is fine.
func RemovePid() {
	path, err := PidPath()
	if err != nil {
		return
	}
	_ = os.Remove(path)
}

// ReadPid returns the recorded pid. Missing or garbled files read as 0.
func ReadPid() (int, error) {
	path, err := PidPath()
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, nil
	}
	return pid, nil
}

// Running reports whether the process recorded in the pid file is still
// alive. Stale files count as not running.
func Running() (int, bool) {
	pid, err := ReadPid()
	if err != nil || pid <= 0 {
		return 0, false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}
	return pid, true
}
