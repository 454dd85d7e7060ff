package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewProviderCmd создаёт группу команд для состояния провайдеров.
func NewProviderCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Inspect prediction provider health",
	}

	cmd.AddCommand(
		newProviderListCmd(clientFn, outputFn, false),
		newProviderListCmd(clientFn, outputFn, true),
	)

	return cmd
}

func newProviderListCmd(clientFn func() *Client, outputFn func() *Output, disabledOnly bool) *cobra.Command {
	use, short := "list", "List all providers"
	if disabledOnly {
		use, short = "disabled", "List auto-disabled providers"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var (
				providers []ProviderResponse
				err       error
			)
			if disabledOnly {
				providers, err = client.ListDisabledProviders()
			} else {
				providers, err = client.ListProviders()
			}
			if err != nil {
				return err
			}

			headers := []string{"PROVIDER", "STATUS", "FAILURES", "LAST FAILURE", "LAST SUCCESS", "REASON"}
			rows := make([][]string, len(providers))
			for i, p := range providers {
				rows[i] = []string{
					p.Provider,
					p.Status,
					strconv.Itoa(p.ConsecutiveFailures),
					orDash(p.LastFailureAt),
					orDash(p.LastSuccessAt),
					truncate(p.FailureReason, 60),
				}
			}

			out.Print(headers, rows, providers)
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
