package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/escape-velocity-ventures/orbit/pkg/runtime"
)

var (
	querySessionID string
	queryEffort    string
	queryStream    bool
)

var queryCmd = &cobra.Command{
	Use:   "query [prompt]",
	Short: "Run a single query against the runtime",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&querySessionID, "session", "", "session id to continue")
	queryCmd.Flags().StringVar(&queryEffort, "effort", "", "effort level (low, medium, high)")
	queryCmd.Flags().BoolVar(&queryStream, "stream", false, "print events as they arrive")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	req := runtime.QueryRequest{
		Prompt:      strings.Join(args, " "),
		SessionID:   querySessionID,
		EffortLevel: queryEffort,
	}

	if !queryStream {
		result, err := a.runtime.QuerySync(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.Text)
		fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", result.SessionID)
		return nil
	}

	events, err := a.runtime.Query(cmd.Context(), req)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for ev := range events {
		switch ev.Type {
		case runtime.EventChunk:
			fmt.Fprint(out, ev.Text)
		case runtime.EventToolCall:
			fmt.Fprintf(out, "\n[tool call] %s\n", ev.ToolCall.Name)
		case runtime.EventToolResult:
			status := "ok"
			if !ev.ToolResult.Success {
				status = "failed: " + ev.ToolResult.ErrorMessage
			}
			fmt.Fprintf(out, "[tool result] %s %s\n", ev.ToolCall.Name, status)
		case runtime.EventComplete:
			fmt.Fprintf(out, "\n")
			fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", ev.SessionID)
		case runtime.EventError:
			return fmt.Errorf("query failed: %s", ev.Error)
		}
	}
	return nil
}
