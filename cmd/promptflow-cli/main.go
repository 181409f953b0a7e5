// PromptFlow CLI — инструмент командной строки для отправки конвейеров
// и управления запросами через HTTP API.
//
// Использование:
//
//	promptflow [--api-url URL] [--api-key KEY] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	request   Управление запросами
//	engine    Список движков
//	db        Обслуживание базы данных
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/promptflow/internal/cli"
	"github.com/shaiso/promptflow/internal/config"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	cfg, err := config.Load(os.Getenv("PROMPTFLOW_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	var apiURL, apiKey, dbURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "promptflow",
		Short:         "PromptFlow CLI — prompt pipeline runner",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", cfg.APIURL, "API server URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", cfg.APIKey, "API key sent as x-api-key")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", cfg.DBURL, "PostgreSQL DSN for db commands")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL, apiKey) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }
	dsnFn := func() string { return dbURL }

	rootCmd.AddCommand(
		cli.NewRequestCmd(clientFn, outputFn),
		cli.NewEngineCmd(clientFn, outputFn),
		cli.NewDBCmd(dsnFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
