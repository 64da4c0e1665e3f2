package classifier

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/shellpilot/shellpilot/internal/domain"
)

// Rule is one externally configurable pattern. Programs names the invoked
// binaries the rule applies to (matched against the base name, with
// "mkfs" also covering "mkfs.ext4" style suffixes). Args is a regex run
// against the literal argument tokens joined with spaces; empty means the
// program match alone is enough. Raw is a regex run against the statement
// text, for shapes the token view cannot express.
type Rule struct {
	Name     string   `yaml:"name"`
	Programs []string `yaml:"programs,omitempty"`
	Args     string   `yaml:"args,omitempty"`
	Raw      string   `yaml:"raw,omitempty"`
	Reason   string   `yaml:"reason"`
}

// RulesFile is the YAML schema of the external rules file. Tiers are
// implied by the group a rule lives in.
type RulesFile struct {
	Rules struct {
		Blocked   []Rule `yaml:"blocked"`
		Dangerous []Rule `yaml:"dangerous"`
		Caution   []Rule `yaml:"caution"`
	} `yaml:"rules"`
}

type compiledRule struct {
	rule   Rule
	tier   domain.RiskTier
	argsRE *regexp.Regexp
	rawRE  *regexp.Regexp
}

// loadRules reads the rules file, falling back to the built-in defaults
// when the path is empty or the file does not exist. A present but
// unparsable file is an error: silently reverting to defaults would
// loosen policy behind the operator's back.
func loadRules(path string) (RulesFile, error) {
	var rules RulesFile
	if path == "" {
		return defaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultRules(), nil
		}
		return RulesFile{}, err
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return RulesFile{}, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if len(rules.Rules.Blocked)+len(rules.Rules.Dangerous)+len(rules.Rules.Caution) == 0 {
		return defaultRules(), nil
	}
	return rules, nil
}

func compileRules(rules RulesFile) ([]compiledRule, error) {
	groups := []struct {
		tier  domain.RiskTier
		rules []Rule
	}{
		{domain.TierBlocked, rules.Rules.Blocked},
		{domain.TierDangerous, rules.Rules.Dangerous},
		{domain.TierCaution, rules.Rules.Caution},
	}

	var compiled []compiledRule
	for _, group := range groups {
		for _, rule := range group.rules {
			entry := compiledRule{rule: rule, tier: group.tier}
			if rule.Args != "" {
				re, err := regexp.Compile(rule.Args)
				if err != nil {
					return nil, fmt.Errorf("rule %q args pattern: %w", rule.Name, err)
				}
				entry.argsRE = re
			}
			if rule.Raw != "" {
				re, err := regexp.Compile(rule.Raw)
				if err != nil {
					return nil, fmt.Errorf("rule %q raw pattern: %w", rule.Name, err)
				}
				entry.rawRE = re
			}
			if entry.argsRE == nil && entry.rawRE == nil && len(rule.Programs) == 0 {
				return nil, fmt.Errorf("rule %q matches nothing", rule.Name)
			}
			compiled = append(compiled, entry)
		}
	}
	return compiled, nil
}

// defaultRules is the shipped policy. The exact lists are a policy
// decision; operators tighten them through the rules file without a
// rebuild.
func defaultRules() RulesFile {
	var rules RulesFile
	rules.Rules.Blocked = []Rule{
		{Name: "audit-disable", Programs: []string{"auditctl"}, Args: `-e\s*0`, Reason: "disables the audit subsystem"},
		{Name: "audit-stop", Programs: []string{"systemctl", "service"}, Args: `(stop|disable|mask).*(auditd|rsyslog|journald)|(auditd|rsyslog|journald).*stop`, Reason: "stops the audit/logging service"},
		{Name: "history-wipe", Programs: []string{"history"}, Args: `(^|\s)-c(\s|$)`, Reason: "clears the shell audit history"},
		{Name: "fork-bomb", Raw: `:\s*\(\s*\)\s*\{.*\|.*&.*\}\s*;\s*:`, Reason: "fork bomb"},
	}
	rules.Rules.Dangerous = []Rule{
		{Name: "privilege-escalation", Programs: []string{"sudo", "su", "doas", "pkexec"}, Reason: "privilege escalation"},
		{Name: "user-management", Programs: []string{"userdel", "useradd", "usermod", "groupdel", "groupadd", "passwd", "chpasswd"}, Reason: "user or group management"},
		{Name: "service-stop", Programs: []string{"systemctl", "service"}, Args: `(^|\s)(stop|disable|mask|isolate)(\s|$)|\bstop\b`, Reason: "stops or disables a service"},
		{Name: "firewall-change", Programs: []string{"ufw", "iptables", "ip6tables", "nft", "firewall-cmd"}, Reason: "firewall or network configuration change"},
		{Name: "interface-down", Programs: []string{"ip", "ifconfig"}, Args: `\b(down|flush)\b`, Reason: "takes a network interface down"},
		{Name: "package-removal", Programs: []string{"apt", "apt-get", "dnf", "yum", "pacman", "zypper"}, Args: `(^|\s)(remove|purge|autoremove|erase|-R[ns]*)(\s|$)`, Reason: "package removal"},
		{Name: "filesystem-format", Programs: []string{"mkfs", "fdisk", "parted", "wipefs", "sfdisk"}, Reason: "filesystem formatting or partitioning"},
		{Name: "power-state", Programs: []string{"shutdown", "reboot", "halt", "poweroff"}, Reason: "changes machine power state"},
		{Name: "cron-wipe", Programs: []string{"crontab"}, Args: `(^|\s)-r(\s|$)`, Reason: "removes all cron jobs"},
		{Name: "system-ownership", Programs: []string{"chown", "chmod"}, Args: `\s/(etc|usr|boot|var|lib|bin|sbin)?(/|\s|$)`, Reason: "permission change on a system path"},
	}
	rules.Rules.Caution = []Rule{
		{Name: "package-install", Programs: []string{"apt", "apt-get", "dnf", "yum", "pacman", "zypper", "brew", "snap"}, Args: `(^|\s)(install|upgrade|update|dist-upgrade|-S[yu]*)(\s|$)`, Reason: "package installation"},
		{Name: "service-restart", Programs: []string{"systemctl", "service"}, Args: `(^|\s)(restart|reload|start|enable|daemon-reload)(\s|$)|\brestart\b`, Reason: "service restart"},
		{Name: "language-package-install", Programs: []string{"pip", "pip3", "npm", "gem", "cargo"}, Args: `(^|\s)install(\s|$)`, Reason: "package installation"},
		{Name: "system-file-edit", Programs: []string{"tee", "sed", "cp", "mv", "ln"}, Args: `\s/(etc|usr|boot)/`, Reason: "edits files under a system path"},
		{Name: "permissive-chmod", Programs: []string{"chmod"}, Args: `(^|\s)777(\s|$)`, Reason: "overly permissive mode"},
	}
	return rules
}
