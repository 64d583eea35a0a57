// Package pkgmgr detects the system package manager and resolves abstract
// tool names into concrete install commands. Resolution never guesses: an
// unmapped tool or an undetected manager yields an empty command.
package pkgmgr

import (
	"fmt"
	"os/exec"
	"strings"
)

// Manager identifies a supported system package manager.
type Manager string

const (
	Apt     Manager = "apt"
	Dnf     Manager = "dnf"
	Pacman  Manager = "pacman"
	Zypper  Manager = "zypper"
	Apk     Manager = "apk"
	Brew    Manager = "brew"
	Unknown Manager = ""
)

// probeOrder lists detection binaries, most specific first.
var probeOrder = []struct {
	binary  string
	manager Manager
}{
	{"apt-get", Apt},
	{"dnf", Dnf},
	{"pacman", Pacman},
	{"zypper", Zypper},
	{"apk", Apk},
	{"brew", Brew},
}

// lookPath is swappable for tests.
var lookPath = exec.LookPath

// Detect probes the PATH for a known package manager.
func Detect() (Manager, bool) {
	for _, p := range probeOrder {
		if _, err := lookPath(p.binary); err == nil {
			return p.manager, true
		}
	}
	return Unknown, false
}

// packageNames maps abstract tool names to per-manager package names where
// they differ from the tool name itself.
var packageNames = map[string]map[Manager]string{
	"ripgrep": {Apt: "ripgrep", Dnf: "ripgrep", Pacman: "ripgrep", Zypper: "ripgrep", Apk: "ripgrep", Brew: "ripgrep"},
	"jq":      {Apt: "jq", Dnf: "jq", Pacman: "jq", Zypper: "jq", Apk: "jq", Brew: "jq"},
	"git":     {Apt: "git", Dnf: "git", Pacman: "git", Zypper: "git", Apk: "git", Brew: "git"},
	"curl":    {Apt: "curl", Dnf: "curl", Pacman: "curl", Zypper: "curl", Apk: "curl", Brew: "curl"},
	"sqlite":  {Apt: "sqlite3", Dnf: "sqlite", Pacman: "sqlite", Zypper: "sqlite3", Apk: "sqlite", Brew: "sqlite"},
	"python":  {Apt: "python3", Dnf: "python3", Pacman: "python", Zypper: "python3", Apk: "python3", Brew: "python"},
}

// InstallCommand returns the full install command for tool under the given
// manager, or "" when either side is unknown.
func InstallCommand(mgr Manager, tool string) string {
	tool = strings.ToLower(strings.TrimSpace(tool))
	pkgs, ok := packageNames[tool]
	if !ok {
		return ""
	}
	pkg, ok := pkgs[mgr]
	if !ok {
		return ""
	}
	switch mgr {
	case Apt:
		return fmt.Sprintf("apt-get install -y %s", pkg)
	case Dnf:
		return fmt.Sprintf("dnf install -y %s", pkg)
	case Pacman:
		return fmt.Sprintf("pacman -S --noconfirm %s", pkg)
	case Zypper:
		return fmt.Sprintf("zypper install -y %s", pkg)
	case Apk:
		return fmt.Sprintf("apk add %s", pkg)
	case Brew:
		return fmt.Sprintf("brew install %s", pkg)
	default:
		return ""
	}
}

// Resolve detects the manager and maps tool in one step.
func Resolve(tool string) string {
	mgr, ok := Detect()
	if !ok {
		return ""
	}
	return InstallCommand(mgr, tool)
}
