// Package sysinfo discovers the host facts injected into the prompt
// templates: operating system, architecture and the user's shell.
package sysinfo

import (
	"os"
	"runtime"
)

// Info describes the environment the agent is running in.
type Info struct {
	OS    string
	Arch  string
	Shell string
}

// Collect gathers the host facts. It never fails; unknown values fall back
// to "Unknown".
func Collect() Info {
	return Info{
		OS:    runtime.GOOS,
		Arch:  runtime.GOARCH,
		Shell: shellName(),
	}
}

// shellName resolves the user's shell from $SHELL, guessing from
// BASH_VERSION/ZSH_VERSION when it is unset.
func shellName() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	if os.Getenv("BASH_VERSION") != "" {
		return "Bash"
	}
	if os.Getenv("ZSH_VERSION") != "" {
		return "zsh"
	}
	return "Unknown"
}
