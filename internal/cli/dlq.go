package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewDLQCmd создаёт группу команд для Dead Letter Archive.
func NewDLQCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and manage dead-lettered tasks",
	}

	cmd.AddCommand(
		newDLQListCmd(clientFn, outputFn),
		newDLQCountCmd(clientFn, outputFn),
		newDLQDeleteCmd(clientFn, outputFn),
		newDLQClearCmd(clientFn, outputFn),
	)

	return cmd
}

func newDLQListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			entries, total, err := client.ListDeadLetters(limit, offset)
			if err != nil {
				return err
			}

			headers := []string{"LANE", "TASK ID", "TYPE", "ATTEMPTS", "FAILED", "REASON"}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{e.Lane, e.TaskID, e.TaskType, strconv.Itoa(e.Attempts), e.FailedAt, truncate(e.Reason, 60)}
			}

			out.Print(headers, rows, entries)
			if len(entries) < total {
				out.Success(fmt.Sprintf("Showing %d of %d", len(entries), total))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of entries")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of entries to skip")

	return cmd
}

func newDLQCountCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Show the number of dead-lettered tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			count, err := client.CountDeadLetters()
			if err != nil {
				return err
			}

			out.Print([]string{"COUNT"}, [][]string{{strconv.FormatInt(count, 10)}}, map[string]int64{"count": count})
			return nil
		},
	}
}

func newDLQDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete LANE TASK_ID",
		Short: "Delete a dead-lettered task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteDeadLetter(args[0], args[1]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Dead letter deleted: %s/%s", args[0], args[1]))
			return nil
		},
	}
}

func newDLQClearCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all dead-lettered tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the archive without --yes")
			}

			client := clientFn()
			out := outputFn()

			removed, err := client.ClearDeadLetters()
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Dead letters removed: %d", removed))
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm clearing the archive")

	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
