// Package deps inspects the machine for everything heard needs at runtime.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/heardlabs/heard/internal/config"
	"github.com/heardlabs/heard/internal/provider"
)

// Check is one doctor finding. Optional checks only matter for features
// the user may never touch, like local mic capture.
type Check struct {
	Name     string
	OK       bool
	Optional bool
	Detail   string
}

// BinaryStatus describes an external binary on this machine.
type BinaryStatus struct {
	Installed bool
	Path      string
	Version   string
}

// CheckPwRecord looks for the PipeWire capture binary used by heard mic.
func CheckPwRecord() BinaryStatus {
	path, err := exec.LookPath("pw-record")
	if err != nil {
		return BinaryStatus{}
	}

	status := BinaryStatus{Installed: true, Path: path}
	if output, err := exec.Command(path, "--version").Output(); err == nil {
		lines := strings.Split(string(output), "\n")
		if len(lines) > 0 {
			status.Version = strings.TrimSpace(lines[0])
		}
	}
	return status
}

// Report runs every doctor check against the loaded config. Pass the
// config.Load error as cfgErr so the report can name it; the remaining
// checks fall back to defaults when the config is unreadable.
func Report(cfg *config.Config, cfgErr error) []Check {
	checks := make([]Check, 0, 4)

	if cfgErr != nil {
		checks = append(checks, Check{Name: "config file", Detail: cfgErr.Error()})
	} else {
		detail := ""
		if path, err := config.GetConfigPath(); err == nil {
			detail = path
		}
		checks = append(checks, Check{Name: "config file", OK: true, Detail: detail})
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	providerName := cfg.Transcription.Provider
	keyCheck := Check{
		Name: fmt.Sprintf("%s api key", providerName),
		OK:   cfg.ResolveAPIKey(providerName) != "",
	}
	if !keyCheck.OK {
		keyCheck.Detail = fmt.Sprintf("set %s or run heard configure", provider.EnvVarForProvider(providerName))
	}
	checks = append(checks, keyCheck)

	storageCheck := Check{Name: "session storage", OK: true}
	if path, err := cfg.StoragePath(); err != nil {
		storageCheck.OK = false
		storageCheck.Detail = err.Error()
	} else if err := writable(filepath.Dir(path)); err != nil {
		storageCheck.OK = false
		storageCheck.Detail = err.Error()
	} else {
		storageCheck.Detail = path
	}
	checks = append(checks, storageCheck)

	pw := CheckPwRecord()
	pwCheck := Check{Name: "pw-record (heard mic)", OK: pw.Installed, Optional: true}
	if pw.Installed {
		pwCheck.Detail = pw.Path
		if pw.Version != "" {
			pwCheck.Detail = fmt.Sprintf("%s (%s)", pw.Path, pw.Version)
		}
	} else {
		pwCheck.Detail = "not found; install pipewire tools to capture microphone audio"
	}
	checks = append(checks, pwCheck)

	return checks
}

// Healthy reports whether every required check passed.
func Healthy(checks []Check) bool {
	for _, c := range checks {
		if !c.OK && !c.Optional {
			return false
		}
	}
	return true
}

func writable(dir string) error {
	f, err := os.CreateTemp(dir, ".heard-doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
