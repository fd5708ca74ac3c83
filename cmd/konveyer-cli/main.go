// Konveyer CLI — инструмент командной строки для управления
// pipelines и runs через HTTP API.
//
// Использование:
//
//	konveyer [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	pipeline  Управление pipelines
//	run       Управление runs (включая watch — live-поток событий)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smolev/konveyer/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "konveyer",
		Short:         "Konveyer CLI — CI pipeline execution tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewPipelineCmd(clientFn, outputFn),
		cli.NewRunCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
