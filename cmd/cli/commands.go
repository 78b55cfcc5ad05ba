package main

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
)

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Register a target (prompts for the URL when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := ""
		if len(args) == 1 {
			raw = args[0]
		} else {
			reader := bufio.NewReader(os.Stdin)
			fmt.Print("Enter a site URL to monitor (e.g., https://example.com): ")
			raw, _ = reader.ReadString('\n')
		}
		u, err := normalizeInput(raw)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		monitor, _ := cmd.Flags().GetBool("monitor")

		t, err := newClient().addTarget(cmd.Context(), name, u, monitor)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s %s\n", green("Added"), t.URL, gray("id="+t.ID))
		if t.Monitoring {
			fmt.Println("Monitoring started.")
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List targets with their last status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, err := newClient().listTargets(cmd.Context())
		if err != nil {
			return err
		}
		if len(ts) == 0 {
			fmt.Println(gray("No targets"))
			return nil
		}
		fmt.Printf("\n%s\n\n", cyan("=== Targets ==="))
		for _, t := range ts {
			icon := gray("○")
			if t.Monitoring {
				icon = green("●")
			}
			last := gray("never checked")
			if t.LastCheckedAt != nil {
				last = fmt.Sprintf("%s at %s", colorStatus(t.LastStatus), t.LastCheckedAt.Local().Format("2006-01-02 15:04:05"))
			}
			label := t.URL
			if t.Name != "" {
				label = t.Name + " " + gray(t.URL)
			}
			fmt.Printf("  %s %s\n    id: %s  last: %s\n", icon, label, t.ID, last)
		}
		fmt.Println()
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start periodic checks for a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().start(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s monitoring %s\n", green("Started"), args[0])
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Stop periodic checks for a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().stop(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s monitoring %s\n", yellow("Stopped"), args[0])
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show the latest result and advisory for a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newClient().status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		active := gray("inactive")
		if st.Active {
			active = green("active")
		}
		fmt.Printf("%s  %s\n", colorStatus(st.Status), active)
		if st.Known {
			fmt.Printf("checked:  %s\n", st.CheckedAt.Local().Format("2006-01-02 15:04:05"))
		}
		fmt.Printf("advisory: %s\n", st.Advisory)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <id>",
	Short: "Run one check now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := newClient().check(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s  %.0f ms\nadvisory: %s\n", colorStatus(rec.StatusCode), rec.LatencyMS, rec.Advisory)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show recent checks, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := newClient().history(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println(gray("No history yet"))
			return nil
		}
		for _, r := range recs {
			fmt.Printf("%s  %s  %6.0f ms  %s\n",
				r.CheckedAt.Local().Format("2006-01-02 15:04:05"), colorStatus(r.StatusCode), r.LatencyMS, r.Advisory)
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Stop monitoring and delete a target with its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().removeTarget(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", red("Removed"), args[0])
		return nil
	},
}

func init() {
	addCmd.Flags().String("name", "", "display name")
	addCmd.Flags().Bool("monitor", false, "start monitoring right away")
	historyCmd.Flags().Int("limit", 20, "number of records (max 200)")
}

func colorStatus(code int) string {
	s := fmt.Sprintf("%d", code)
	switch {
	case code >= 200 && code < 400:
		return green(s)
	case code >= 400 && code < 500:
		return yellow(s)
	default:
		return red(s)
	}
}

// normalizeInput defaults the scheme to https and checks the result parses.
func normalizeInput(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("no URL given")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	return raw, nil
}
