// Kickoff CLI — инструмент оператора поверх HTTP API.
//
// Использование:
//
//	kickoff [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	dlq        Dead Letter Archive
//	provider   Состояние провайдеров прогнозов
//	match      Ручное планирование и отмена задач матча
//	reconcile  Внеплановая сверка расписания
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Kickoff/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	defaultURL := os.Getenv("KICKOFF_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	rootCmd := &cobra.Command{
		Use:           "kickoff",
		Short:         "Kickoff CLI — match task scheduling operator tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewDLQCmd(clientFn, outputFn),
		cli.NewProviderCmd(clientFn, outputFn),
		cli.NewMatchCmd(clientFn, outputFn),
		cli.NewReconcileCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
