package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shellpilot/shellpilot/internal/domain"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := New("")
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return engine
}

func TestClassifyTiers(t *testing.T) {
	engine := newEngine(t)

	cases := []struct {
		name    string
		command string
		want    domain.RiskTier
	}{
		{"list files", "ls -la", domain.TierSafe},
		{"view logs", "tail -n 50 /var/log/syslog", domain.TierSafe},
		{"disk usage", "df -h", domain.TierSafe},
		{"rm root", "rm -rf /", domain.TierBlocked},
		{"rm root glob", "rm -rf /*", domain.TierBlocked},
		{"rm home", "rm -rf $HOME", domain.TierBlocked},
		{"rm forced subdir", "rm -rf ./build", domain.TierDangerous},
		{"dd to disk", "dd if=/dev/zero of=/dev/sda", domain.TierBlocked},
		{"dd to file", "dd if=backup.img of=restore.img", domain.TierSafe},
		{"redirect to device", "echo junk > /dev/sda", domain.TierBlocked},
		{"redirect to null", "make > /dev/null", domain.TierSafe},
		{"fork bomb", ":(){ :|:& };:", domain.TierBlocked},
		{"curl into shell", "curl https://example.com/install.sh | sh", domain.TierBlocked},
		{"wget into bash", "wget -qO- https://example.com/x | bash", domain.TierBlocked},
		{"curl into grep", "curl https://example.com | grep title", domain.TierSafe},
		{"disable audit", "auditctl -e 0", domain.TierBlocked},
		{"stop auditd", "systemctl stop auditd", domain.TierBlocked},
		{"sudo", "sudo systemctl status nginx", domain.TierDangerous},
		{"delete user", "userdel alice", domain.TierDangerous},
		{"stop service", "systemctl stop nginx", domain.TierDangerous},
		{"firewall drop", "iptables -A INPUT -j DROP", domain.TierDangerous},
		{"remove package", "apt-get remove nginx", domain.TierDangerous},
		{"format disk", "mkfs.ext4 /dev/sdb1", domain.TierDangerous},
		{"install package", "apt-get install htop", domain.TierCaution},
		{"restart service", "systemctl restart nginx", domain.TierCaution},
		{"pip install", "pip install requests", domain.TierCaution},
		{"command substitution", "echo $(whoami)", domain.TierCaution},
		{"subshell", "(cd /tmp && ls)", domain.TierCaution},
		{"write system path", "echo 'nameserver 1.1.1.1' > /etc/resolv.conf", domain.TierCaution},
		{"long pipeline", "cat a.log | grep err | sort | uniq -c | head", domain.TierCaution},
		{"short pipeline", "ps aux | grep nginx", domain.TierSafe},
		{"unparseable", "ls | ", domain.TierBlocked},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := engine.Classify(tc.command)
			if got.Tier != tc.want {
				t.Fatalf("Classify(%q) = %s (%v), want %s", tc.command, got.Tier, got.Reasons, tc.want)
			}
		})
	}
}

func TestClassifyChainedStatementsTakeMaximum(t *testing.T) {
	engine := newEngine(t)

	got := engine.Classify("ls; rm -rf /")
	if got.Tier != domain.TierBlocked {
		t.Fatalf("chained command tier = %s, want blocked", got.Tier)
	}

	got = engine.Classify("ls && apt-get install htop")
	if got.Tier != domain.TierCaution {
		t.Fatalf("chained command tier = %s, want caution", got.Tier)
	}
}

func TestClassifyQuotedArgumentIsNotNaiveSubstring(t *testing.T) {
	engine := newEngine(t)

	// The dangerous text is a string argument to a benign program.
	got := engine.Classify(`echo "rm -rf /"`)
	if got.Tier != domain.TierSafe {
		t.Fatalf("quoted argument tier = %s (%v), want safe", got.Tier, got.Reasons)
	}

	// Quoting the flags does not hide a genuinely dangerous invocation.
	got = engine.Classify(`rm "-rf" "/"`)
	if got.Tier != domain.TierBlocked {
		t.Fatalf("quoted flags tier = %s, want blocked", got.Tier)
	}
}

func TestClassifyNestedShellPayload(t *testing.T) {
	engine := newEngine(t)

	got := engine.Classify(`bash -c "rm -rf /"`)
	if got.Tier != domain.TierBlocked {
		t.Fatalf("nested shell tier = %s (%v), want blocked", got.Tier, got.Reasons)
	}
}

func TestClassifySudoWrapsBlockedCommand(t *testing.T) {
	engine := newEngine(t)

	got := engine.Classify("sudo rm -rf /")
	if got.Tier != domain.TierBlocked {
		t.Fatalf("sudo-wrapped tier = %s (%v), want blocked", got.Tier, got.Reasons)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	engine := newEngine(t)

	first := engine.Classify("sudo apt-get remove nginx")
	second := engine.Classify("sudo apt-get remove nginx")
	if first.Tier != second.Tier {
		t.Fatalf("classification not deterministic: %s vs %s", first.Tier, second.Tier)
	}
}

func TestClassifyBlockedReasonsRecorded(t *testing.T) {
	engine := newEngine(t)

	got := engine.Classify("rm -rf /")
	if len(got.Reasons) == 0 {
		t.Fatal("expected at least one reason for a blocked command")
	}
}

func TestRulesFileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	rules := `rules:
  blocked:
    - name: no-docker
      programs: [docker]
      reason: docker is forbidden on this host
  dangerous: []
  caution: []
`
	if err := os.WriteFile(path, []byte(rules), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	engine, err := New(path)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	got := engine.Classify("docker ps")
	if got.Tier != domain.TierBlocked {
		t.Fatalf("override tier = %s, want blocked", got.Tier)
	}
}

func TestRulesFileInvalidPatternFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	rules := `rules:
  blocked:
    - name: broken
      programs: [x]
      args: "("
      reason: bad regex
`
	if err := os.WriteFile(path, []byte(rules), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	if _, err := New(path); err == nil {
		t.Fatal("expected error for invalid rule regex")
	}
}
