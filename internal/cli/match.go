package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewMatchCmd создаёт группу команд для ручного управления матчами.
func NewMatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Schedule or cancel match tasks",
	}

	cmd.AddCommand(
		newMatchScheduleCmd(clientFn, outputFn),
		newMatchCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newMatchScheduleCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule MATCH_ID",
		Short: "Schedule lifecycle tasks for a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			res, err := client.ScheduleMatch(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Match scheduled: %s", res.MatchID))
			out.Print(
				[]string{"MATCH", "CREATED"},
				[][]string{{res.MatchID, strconv.Itoa(res.Created)}},
				res,
			)
			return nil
		},
	}
}

func newMatchCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel MATCH_ID",
		Short: "Cancel pending tasks for a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			res, err := client.CancelMatch(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Match tasks cancelled: %s", res.MatchID))
			out.Print(
				[]string{"MATCH", "CANCELLED"},
				[][]string{{res.MatchID, strconv.Itoa(res.Cancelled)}},
				res,
			)
			return nil
		},
	}
}

// NewReconcileCmd создаёт команду внеплановой сверки.
func NewReconcileCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run the catch-up reconciler now",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			res, err := client.Reconcile()
			if err != nil {
				return err
			}

			out.Print(
				[]string{"MATCHES", "SCHEDULED", "STUCK FIXED", "FAILED"},
				[][]string{{
					strconv.Itoa(res.MatchesSeen),
					strconv.Itoa(res.ScheduledCount),
					strconv.Itoa(res.StuckFixed),
					strconv.Itoa(res.Failed),
				}},
				res,
			)
			return nil
		},
	}
}
