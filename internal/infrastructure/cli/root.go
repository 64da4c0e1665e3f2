// Package cli exposes the cobra command tree and the terminal adapters.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shellpilot/shellpilot/internal/app"
	"github.com/shellpilot/shellpilot/internal/domain"
	configinfra "github.com/shellpilot/shellpilot/internal/infrastructure/config"
	"github.com/shellpilot/shellpilot/internal/ports"
	"github.com/shellpilot/shellpilot/internal/services"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose bool
}

// NewRootCmd wires the cobra root command.
func NewRootCmd(ctx context.Context, opts Options) (*cobra.Command, error) {
	container, err := app.BuildContainer(ctx, opts.Verbose)
	if err != nil {
		return nil, err
	}
	prompter := NewPrompter(nil, nil)

	runCmd := newRunCommand(container, prompter)

	root := &cobra.Command{
		Use:   "shellpilot [request]",
		Short: "ShellPilot - natural language to vetted shell commands",
		Long:  "ShellPilot turns natural-language requests into shell commands,\nclassifies their risk, asks before anything dangerous runs, and keeps\nan audit trail of every decision.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			runCmd.SetArgs(args)
			return runCmd.ExecuteContext(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return container.Close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(runCmd)
	root.AddCommand(newChatCommand(container, prompter))
	root.AddCommand(newWorkflowCommand(container, prompter))
	root.AddCommand(newClassifyCommand(container))
	root.AddCommand(newHistoryCommand(container))
	root.AddCommand(newConfigCommand(container))
	return root, nil
}

func newRunCommand(container *app.Container, prompter ports.ConfirmationPrompter) *cobra.Command {
	return &cobra.Command{
		Use:   "run [request]",
		Short: "Handle one natural-language request and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntent(cmd.Context(), cmd.OutOrStdout(), container, prompter, strings.Join(args, " "))
		},
	}
}

func newChatCommand(container *app.Container, prompter ports.ConfirmationPrompter) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive session: one request per line",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprintln(out, "ShellPilot chat. Empty line or Ctrl-D exits.")
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					break
				}
				if err := runIntent(cmd.Context(), out, container, prompter, line); err != nil {
					fmt.Fprintln(out, "error:", err)
				}
			}
			return scanner.Err()
		},
	}
}

func newWorkflowCommand(container *app.Container, prompter ports.ConfirmationPrompter) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "workflow [request]",
		Short: "Plan a multi-step execution, then run it step by step",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			wf, err := container.Workflow.Plan(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			RenderWorkflowPlan(out, wf)

			if !yes {
				if !prompter.Enabled() {
					fmt.Fprintln(out, "No terminal available to approve the plan; not running.")
					return nil
				}
				proceed, err := askPlanApproval(cmd.InOrStdin(), out)
				if err != nil {
					return err
				}
				if !proceed {
					fmt.Fprintln(out, "Workflow cancelled.")
					return nil
				}
			}

			confirm := func(c domain.Command) (bool, error) {
				if !prompter.Enabled() {
					return false, nil
				}
				return prompter.Confirm(c.RiskTier, c.RawText, c.RiskReasons)
			}
			if err := container.Workflow.Run(cmd.Context(), &wf, confirm, func(c domain.Command) {
				RenderCommand(out, c)
			}); err != nil {
				return err
			}
			RenderWorkflowSummary(out, wf)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Run the plan without asking first")
	return cmd
}

func askPlanApproval(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprint(out, "\nExecute this workflow? [y/N]: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		// EOF declines, same as an empty answer.
		return false, nil
	}
	line = strings.ToLower(strings.TrimSpace(line))
	return line == "y" || line == "yes", nil
}

func newClassifyCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "classify [command]",
		Short: "Show the risk tier a command would be assigned, without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawText := strings.Join(args, " ")
			RenderClassification(cmd.OutOrStdout(), rawText, container.Classifier.Classify(rawText))
			return nil
		},
	}
}

func newHistoryCommand(container *app.Container) *cobra.Command {
	var (
		limit  int
		search string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived commands from past sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.Archive == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "History archive is unavailable.")
				return nil
			}
			entries, err := container.Archive.Records(limit, search)
			if err != nil {
				return err
			}
			RenderHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Max entries to show")
	cmd.Flags().StringVar(&search, "search", "", "Filter by keyword")
	return cmd
}

func newConfigCommand(container *app.Container) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := yaml.Marshal(container.Config)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), string(data))
				return nil
			},
		},
		&cobra.Command{
			Use:   "diff",
			Short: "Show differences from the built-in defaults",
			RunE: func(cmd *cobra.Command, args []string) error {
				diff := cmp.Diff(configinfra.Default(), container.Config)
				if diff == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "No differences from defaults.")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), diff)
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file location",
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Fprintln(cmd.OutOrStdout(), container.ConfigLoader.Path())
				return nil
			},
		},
	)
	return cmd
}

// runIntent drives one request end to end: proposal, confirmation,
// execution, and rendering of each settled command.
func runIntent(ctx context.Context, out io.Writer, container *app.Container, prompter ports.ConfirmationPrompter, intent string) error {
	ids, err := container.Session.SubmitIntent(ctx, intent)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		if text, ok := drainCommentary(container.Session.Events()); ok {
			fmt.Fprintln(out, text)
		} else {
			fmt.Fprintln(out, "No command was proposed.")
		}
		return nil
	}

	for _, id := range ids {
		if err := settle(ctx, out, container, prompter, id); err != nil {
			return err
		}
	}
	return nil
}

// drainCommentary reads buffered events until it finds commentary or the
// buffer runs dry. Status events from earlier commands in the same
// session may sit ahead of the commentary in the stream.
func drainCommentary(events <-chan domain.Event) (string, bool) {
	for {
		select {
		case ev := <-events:
			if ev.Type == domain.EventCommentary {
				return ev.Text, true
			}
		default:
			return "", false
		}
	}
}

func settle(ctx context.Context, out io.Writer, container *app.Container, prompter ports.ConfirmationPrompter, id string) error {
	state, err := container.Session.Command(id)
	if err != nil {
		return err
	}

	if state.Status == domain.StatusAwaitingConfirmation {
		if !prompter.Enabled() {
			fmt.Fprintln(out, "No terminal available for confirmation; declining.")
			_ = container.Session.Confirm(id, false)
		} else {
			approved, err := prompter.Confirm(state.RiskTier, state.RawText, state.RiskReasons)
			if err != nil {
				return err
			}
			// The gate may have timed out while the operator was typing.
			if err := container.Session.Confirm(id, approved); err != nil && !errors.Is(err, domain.ErrUnknownCommand) {
				return err
			}
		}
	}

	final, err := waitTerminal(ctx, container.Session, id)
	if err != nil {
		return err
	}
	RenderCommand(out, final)
	return nil
}

func waitTerminal(ctx context.Context, session *services.Session, id string) (domain.Command, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	cancelled := false
	for {
		state, err := session.Command(id)
		if err != nil {
			return domain.Command{}, err
		}
		if state.Status.Terminal() {
			return state, nil
		}
		if cancelled {
			<-ticker.C
			continue
		}
		select {
		case <-ctx.Done():
			cancelled = true
			_ = session.Cancel(id)
		case <-ticker.C:
		}
	}
}
