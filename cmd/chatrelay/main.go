package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chatrelay/internal/app"
	"chatrelay/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

const version = "0.3.0"

// applyEnvOverrides lets the environment win over the config file for
// deployment-style settings.
func applyEnvOverrides(cfg *app.Config) {
	if v := strings.TrimSpace(os.Getenv("CHATRELAY_GATEWAY_URL")); v != "" {
		cfg.GatewayURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATRELAY_MODEL")); v != "" {
		cfg.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("CHATRELAY_AGENT_ID")); v != "" {
		cfg.AgentID = v
	}
}

func newApplication() (*app.Application, error) {
	cfg, err := app.LoadConfig(app.DefaultConfigPath())
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	mockMode := !app.HasDefaultCredential(cfg)
	return app.NewApplication(cfg, mockMode)
}

func main() {
	root := &cobra.Command{
		Use:     "chatrelay",
		Short:   "Terminal chat client for the agent gateway",
		Long:    "chatrelay is an interactive terminal chat client that talks to a remote agent gateway.\n\nRun without arguments for the TUI. Session handoff summaries are managed with the 'handoff' subcommand.",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication()
			if err != nil {
				return err
			}
			p := tea.NewProgram(tui.New(application), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return err
			}
			return nil
		},
	}

	handoffCmd := &cobra.Command{
		Use:   "handoff",
		Short: "Inspect and create session handoff summaries",
	}

	handoffListCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved handoff summaries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication()
			if err != nil {
				return err
			}
			infos, err := application.Handoff.ListHandoffSummaries()
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("no handoff summaries found")
				return nil
			}
			for _, info := range infos {
				fmt.Printf("%s\t%s\t%d bytes\n", info.SessionID, info.CreatedAt.Format("2006-01-02 15:04:05"), info.SizeBytes)
			}
			return nil
		},
	}

	handoffShowCmd := &cobra.Command{
		Use:   "show [session-id]",
		Short: "Print one handoff summary, or the latest when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApplication()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				content, ok := application.Handoff.ReadHandoffSummary(args[0])
				if !ok {
					return fmt.Errorf("no handoff summary for session %s", args[0])
				}
				fmt.Println(content)
				return nil
			}
			content, sessionID, ok := application.Handoff.ReadLatestHandoffSummary()
			if !ok {
				return fmt.Errorf("no handoff summaries found")
			}
			fmt.Printf("# latest handoff (session %s)\n\n%s\n", sessionID, content)
			return nil
		},
	}

	var handoffSessionFile string
	handoffRunCmd := &cobra.Command{
		Use:   "run <session-id>",
		Short: "Summarize a session and archive its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigChan
				cancel()
			}()

			application, err := newApplication()
			if err != nil {
				return err
			}
			result, err := application.Handoff.PerformSessionHandoff(ctx, app.HandoffRequest{
				SessionKey:  application.Config.AgentID + ":" + args[0],
				SessionID:   args[0],
				SessionFile: handoffSessionFile,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Messages summarized: %d\n", result.MessageCount)
			if result.Model != "" {
				fmt.Printf("Model: %s\n", result.Model)
			}
			if result.SummaryPath != "" {
				fmt.Printf("Summary: %s\n", result.SummaryPath)
			}
			if result.ArchivedTranscriptPath != "" {
				fmt.Printf("Transcript archive: %s\n", result.ArchivedTranscriptPath)
			} else {
				fmt.Println("Transcript archive: skipped (source transcript not found)")
			}
			fmt.Printf("Latency: %dms\n", result.LatencyMs)
			return nil
		},
	}
	handoffRunCmd.Flags().StringVar(&handoffSessionFile, "session-file", "", "Exact transcript file to summarize")

	handoffCmd.AddCommand(handoffListCmd, handoffShowCmd, handoffRunCmd)
	root.AddCommand(handoffCmd)

	completionCmd := &cobra.Command{
		Use:       "completion [shell]",
		Short:     "Generate shell completion",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return root.GenBashCompletion(os.Stdout)
			case "zsh":
				return root.GenZshCompletion(os.Stdout)
			case "fish":
				return root.GenFishCompletion(os.Stdout, true)
			}
			return fmt.Errorf("unsupported shell: %s", args[0])
		},
	}
	root.AddCommand(completionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
