// Package safety classifies shell commands before execution. The rules are
// deliberately conservative and auditable: a fixed, ordered set of string
// checks with no I/O, so classification is instant and explainable.
// False positives (over-prompting) are acceptable; false negatives are not.
package safety

import "strings"

// Decision is the outcome of classifying one command string.
type Decision struct {
	NeedsApproval bool
	Reason        string
}

var fileCommands = []string{
	"rm", "rmdir", "mv", "cp", "dd", "touch", "mkdir", "ln", "chmod", "chown",
	"chgrp", "shred", "nano", "vim", "vi", "emacs", "sed", "tee", "truncate",
	"split", ">>", ">",
}

var packageManagers = []string{
	"brew", "apt", "apt-get", "yum", "dnf", "pacman", "npm", "yarn", "pnpm",
	"pip", "pip3", "cargo", "gem", "go", "composer", "mvn", "gradle", "snap",
	"flatpak", "apk", "zypper",
}

var networkCommands = []string{
	"curl", "wget", "fetch", "http", "scp", "rsync", "ssh", "sftp", "ftp",
	"nc", "netcat", "telnet",
}

var systemCommands = []string{
	"systemctl", "service", "launchctl", "export", "source", "chsh",
	"usermod", "useradd", "userdel", "groupadd", "groupdel", "passwd",
	"sudo", "su", "mount", "umount", "sysctl", "modprobe",
}

var databaseCommands = []string{
	"mysql", "psql", "sqlite", "sqlite3", "mongo", "mongosh", "redis-cli",
	"influx", "cql", "cqlsh",
}

var sqlKeywords = []string{"DROP", "DELETE", "UPDATE", "INSERT", "ALTER", "CREATE"}

var dangerousPatterns = []string{
	"/dev/", "rm -rf", "rm -fr", ":(){ :|:& };:", "/dev/null", "> /dev/sda",
	"mkfs", "format",
}

var dangerousCommands = []string{
	"eval", "exec", "sh", "bash", "zsh", "python", "perl", "ruby", "kill",
	"killall", "pkill", "reboot", "shutdown", "halt", "crontab", "at", "batch",
}

var gitLocalModify = []string{
	"git add", "git commit", "git checkout", "git switch", "git restore",
	"git merge", "git rebase", "git cherry-pick", "git revert", "git stash",
	"git rm", "git mv", "git apply", "git am", "git reset", "git submodule",
}

var gitNetworkOps = []string{
	"git clone", "git fetch", "git pull", "git push", "git remote add",
	"git remote remove", "git remote set-url",
}

var gitWorktreeOps = []string{"git worktree add", "git worktree remove"}

var gitDestructivePatterns = []string{
	"reset --hard", "clean -f", "clean -d", "clean -x", "branch -d",
	"push --force", "push -f", "push --mirror", "filter-branch",
	"reflog delete", "reflog expire", "prune", "gc --prune",
}

// Classify decides whether a command needs explicit user approval and why.
// It is a pure function: same command, same decision.
func Classify(command string) Decision {
	cmd := strings.TrimSpace(command)
	base := baseCommand(cmd)

	if base == "git" {
		return classifyGit(cmd)
	}

	if isFileModifying(base) {
		return Decision{NeedsApproval: true, Reason: "modifies files or system state"}
	}
	if isPackageManager(base) {
		return Decision{NeedsApproval: true, Reason: "installs or manages software"}
	}
	if isNetworkOperation(base) {
		return Decision{NeedsApproval: true, Reason: "performs network operations"}
	}
	if isSystemConfig(cmd, base) {
		return Decision{NeedsApproval: true, Reason: "modifies system configuration"}
	}
	if isDatabaseOperation(cmd, base) {
		return Decision{NeedsApproval: true, Reason: "performs database operations"}
	}
	if isRisky(cmd, base) {
		return Decision{NeedsApproval: true, Reason: "potentially risky operation"}
	}

	return Decision{}
}

// baseCommand extracts the lowercased first command token, skipping leading
// KEY=VALUE environment assignments and stopping at the first pipe segment.
func baseCommand(cmd string) string {
	fields := strings.Fields(cmd)
	i := 0
	for i < len(fields) && strings.Contains(fields[i], "=") {
		i++
	}
	if i >= len(fields) {
		return ""
	}
	segment, _, _ := strings.Cut(fields[i], "|")
	first := strings.Fields(segment)
	if len(first) == 0 {
		return ""
	}
	return strings.ToLower(first[0])
}

func isFileModifying(base string) bool {
	return contains(fileCommands, base) ||
		strings.HasPrefix(base, "write") ||
		strings.HasSuffix(base, "fs")
}

func isPackageManager(base string) bool {
	return contains(packageManagers, base) || strings.HasPrefix(base, "install")
}

func isNetworkOperation(base string) bool {
	return contains(networkCommands, base)
}

func isSystemConfig(cmd, base string) bool {
	if strings.Contains(cmd, "/etc/") || strings.Contains(cmd, "/sys/") {
		return true
	}
	return contains(systemCommands, base)
}

func isDatabaseOperation(cmd, base string) bool {
	if contains(databaseCommands, base) {
		return true
	}
	for _, kw := range sqlKeywords {
		if strings.Contains(cmd, kw) {
			return true
		}
	}
	return false
}

func isRisky(cmd, base string) bool {
	for _, p := range dangerousPatterns {
		if strings.Contains(cmd, p) {
			return true
		}
	}
	return contains(dangerousCommands, base)
}

// classifyGit applies the nested git rules. Destructive patterns are checked
// first so that a command matching both (e.g. "git push --force") gets the
// more severe label.
func classifyGit(cmd string) Decision {
	lower := strings.ToLower(cmd)

	if isDestructiveGit(lower) {
		return Decision{NeedsApproval: true, Reason: "destructive git operation"}
	}
	if isModifyingGit(lower) {
		return Decision{NeedsApproval: true, Reason: "modifies git repository or remote"}
	}
	return Decision{}
}

func isModifyingGit(cmd string) bool {
	for _, p := range gitLocalModify {
		if strings.HasPrefix(cmd, p) {
			return true
		}
	}
	for _, p := range gitNetworkOps {
		if strings.HasPrefix(cmd, p) {
			return true
		}
	}
	for _, p := range gitWorktreeOps {
		if strings.HasPrefix(cmd, p) {
			return true
		}
	}
	return strings.HasPrefix(cmd, "git config") &&
		!strings.Contains(cmd, "--list") && !strings.Contains(cmd, "--get")
}

func isDestructiveGit(cmd string) bool {
	for _, p := range gitDestructivePatterns {
		if strings.Contains(cmd, p) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
