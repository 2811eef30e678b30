package safety

import "testing"

func TestSafeCommands(t *testing.T) {
	safe := []string{
		"ls -la",
		"cat file.txt",
		"git status",
		"git log",
		"grep pattern file",
		"find . -name '*.go'",
		"pwd",
	}
	for _, cmd := range safe {
		if d := Classify(cmd); d.NeedsApproval {
			t.Errorf("expected %q to be safe, got reason %q", cmd, d.Reason)
		}
	}
}

func TestFileModification(t *testing.T) {
	cmds := []string{
		"rm file.txt",
		"mv old.txt new.txt",
		"chmod 755 script.sh",
		"vim config.txt",
	}
	for _, cmd := range cmds {
		d := Classify(cmd)
		if !d.NeedsApproval {
			t.Errorf("expected %q to need approval", cmd)
			continue
		}
		if d.Reason != "modifies files or system state" {
			t.Errorf("Classify(%q) reason = %q", cmd, d.Reason)
		}
	}
}

func TestPackageManagers(t *testing.T) {
	cmds := []string{
		"npm install express",
		"brew install git",
		"pip install requests",
		"cargo install ripgrep",
	}
	for _, cmd := range cmds {
		d := Classify(cmd)
		if !d.NeedsApproval || d.Reason != "installs or manages software" {
			t.Errorf("Classify(%q) = %+v", cmd, d)
		}
	}
}

func TestNetworkCommands(t *testing.T) {
	cmds := []string{
		"curl https://example.com",
		"wget file.tar.gz",
		"scp file.txt remote:",
	}
	for _, cmd := range cmds {
		d := Classify(cmd)
		if !d.NeedsApproval || d.Reason != "performs network operations" {
			t.Errorf("Classify(%q) = %+v", cmd, d)
		}
	}
}

func TestSystemConfig(t *testing.T) {
	cmds := []string{
		"systemctl restart nginx",
		"sudo vim /etc/hosts",
		"export PATH=/new/path",
		"useradd newuser",
	}
	for _, cmd := range cmds {
		d := Classify(cmd)
		if !d.NeedsApproval {
			t.Errorf("expected %q to need approval", cmd)
		}
	}
}

func TestRiskyCommands(t *testing.T) {
	cmds := []string{
		"rm -rf /",
		"eval $(command)",
		"kill -9 1234",
		"reboot",
		"dd if=/dev/zero of=/dev/sda",
	}
	for _, cmd := range cmds {
		if d := Classify(cmd); !d.NeedsApproval {
			t.Errorf("expected %q to need approval", cmd)
		}
	}
}

func TestGitCommands(t *testing.T) {
	safe := []string{"git status", "git log", "git diff", "git branch"}
	for _, cmd := range safe {
		if d := Classify(cmd); d.NeedsApproval {
			t.Errorf("expected %q to be safe, got reason %q", cmd, d.Reason)
		}
	}

	modifying := []string{"git add .", "git commit -m 'test'", "git push origin main"}
	for _, cmd := range modifying {
		d := Classify(cmd)
		if !d.NeedsApproval || d.Reason != "modifies git repository or remote" {
			t.Errorf("Classify(%q) = %+v", cmd, d)
		}
	}

	// Destructive patterns win over the generic modifying label even when
	// both match.
	// "git branch -D" is covered by the lowercase "branch -d" pattern.
	destructive := []string{"git clean -f", "git push --force origin main", "git reset --hard HEAD~1", "git branch -D temp"}
	for _, cmd := range destructive {
		d := Classify(cmd)
		if !d.NeedsApproval || d.Reason != "destructive git operation" {
			t.Errorf("Classify(%q) = %+v", cmd, d)
		}
	}
}

func TestBaseCommandExtraction(t *testing.T) {
	tests := []struct {
		cmd  string
		want string
	}{
		{"ls -la", "ls"},
		{"FOO=bar ls", "ls"},
		{"FOO=bar BAZ=qux RM=1 cat file", "cat"},
		{"cat|grep x", "cat"},
		{"LS=1", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := baseCommand(tt.cmd); got != tt.want {
			t.Errorf("baseCommand(%q) = %q, want %q", tt.cmd, got, tt.want)
		}
	}
}

func TestEnvPrefixDoesNotHideCommand(t *testing.T) {
	d := Classify("RUSTFLAGS=-O rm -rf target")
	if !d.NeedsApproval {
		t.Error("env-prefixed rm should still need approval")
	}
}
