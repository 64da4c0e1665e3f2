package provider

import (
	"context"
	"strings"

	"github.com/shellpilot/shellpilot/internal/domain"
	"github.com/shellpilot/shellpilot/internal/ports"
)

// heuristicProvider maps a handful of common administration intents to
// commands without any network call. It keeps the engine usable offline
// and gives tests a deterministic backend.
type heuristicProvider struct{}

func (p *heuristicProvider) Name() string {
	return "heuristic"
}

var heuristics = []struct {
	keywords []string
	command  string
	summary  string
}{
	{[]string{"disk", "space"}, "df -h", "Show free disk space per filesystem"},
	{[]string{"disk", "usage"}, "du -sh *", "Show disk usage of the current directory"},
	{[]string{"memory"}, "free -h", "Show memory usage"},
	{[]string{"list", "files"}, "ls -la", "List files including hidden ones"},
	{[]string{"processes"}, "ps aux --sort=-%cpu | head -n 15", "Show the busiest processes"},
	{[]string{"uptime"}, "uptime", "Show system uptime and load"},
	{[]string{"kernel"}, "uname -r", "Show the running kernel version"},
	{[]string{"ip", "address"}, "ip -brief addr", "Show interface addresses"},
	{[]string{"listening", "ports"}, "ss -tlnp", "Show listening TCP sockets"},
}

func (p *heuristicProvider) Propose(ctx context.Context, req ports.ProposeRequest) (ports.ProposeResponse, error) {
	lowered := strings.ToLower(req.Intent)
	for _, h := range heuristics {
		if containsAll(lowered, h.keywords) {
			return ports.ProposeResponse{
				RawText: h.summary,
				Proposals: []domain.Proposal{
					{RawText: h.command, Summary: h.summary},
				},
			}, nil
		}
	}
	return ports.ProposeResponse{
		RawText: "I don't have an offline answer for that; configure a provider for full assistance.",
	}, nil
}

func containsAll(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if !strings.Contains(text, keyword) {
			return false
		}
	}
	return true
}

var _ ports.Provider = (*heuristicProvider)(nil)
