package cli

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewSubmitCmd создаёт команду submit.
func NewSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var force bool
	var wait bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "submit URL",
		Short: "Submit a property URL for onboarding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.Submit(cmd.Context(), args[0], force)
			if err != nil {
				return err
			}

			if !wait {
				out.Print(
					[]string{"SESSION_ID", "STATUS"},
					[][]string{{resp.SessionID, resp.Status}},
					resp,
				)
				return nil
			}

			out.Success(fmt.Sprintf("Submitted %s, waiting...", resp.SessionID))
			status, err := client.WaitFinished(cmd.Context(), resp.SessionID, interval)
			if err != nil {
				return err
			}
			printStatus(out, status)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Ignore cached artifacts and re-onboard")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the run finishes")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval for --wait")

	return cmd
}

// NewStatusCmd создаёт команду status.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status SESSION_ID",
		Short: "Show run status and steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := clientFn().Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatus(outputFn(), status)
			return nil
		},
	}
}

// NewRetryCmd создаёт команду retry.
func NewRetryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "retry SESSION_ID STEP",
		Short: "Retry a failed step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().Retry(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Step %s scheduled for retry", args[1]))
			return nil
		},
	}
}

// NewCancelCmd создаёт команду cancel.
func NewCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel SESSION_ID",
		Short: "Cancel a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := clientFn().Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := outputFn()
			out.Success(fmt.Sprintf("Run %s cancelled", status.SessionID))
			printStatus(out, status)
			return nil
		},
	}
}

// NewMissingCmd создаёт команду missing.
func NewMissingCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "missing PROPERTY_ID",
		Short: "List optional extractions not completed for a property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := clientFn().Missing(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, len(resp.Missing))
			for i, name := range resp.Missing {
				rows[i] = []string{name}
			}
			outputFn().Print([]string{"STEP"}, rows, resp)
			return nil
		},
	}
}

func printStatus(out *Output, s *StatusResponse) {
	if out.jsonMode {
		out.JSON(s)
		return
	}

	out.Fields(
		[]string{"Session", "URL", "Status", "Property", "Current step", "Completed"},
		map[string]string{
			"Session":      s.SessionID,
			"URL":          s.URL,
			"Status":       s.Status,
			"Property":     deref(s.PropertyID),
			"Current step": deref(s.CurrentStep),
			"Completed":    strings.Join(s.CompletedSteps, ", "),
		},
	)

	names := slices.Sorted(maps.Keys(s.Steps))
	rows := make([][]string, len(names))
	for i, name := range names {
		st := s.Steps[name]
		note := st.Error
		if note == "" {
			note = st.SkipReason
		}
		rows[i] = []string{name, st.Status, strconv.Itoa(st.Attempts), note}
	}
	out.Table([]string{"STEP", "STATUS", "ATTEMPTS", "ERROR"}, rows)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
