// Courier CLI — операторская утилита: ставит задачи в очередь
// и показывает сохранённые outcomes.
//
// Использование:
//
//	courier [--json] [--timeout 30s] <command> <subcommand> [flags]
//
// Команды:
//
//	enqueue   Публикация задач (notification, welcome)
//	outcomes  Просмотр outcomes (list, show, stats)
//
// Подключение берётся из тех же переменных, что у воркера:
// RABBITMQ_URL, RABBITMQ_QUEUE, DATABASE_URL (или COURIER_CONFIG).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/courier/internal/cli"
	"github.com/shaiso/courier/internal/config"
	"github.com/shaiso/courier/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool
	var timeout time.Duration
	var client *cli.Client
	var cancelTimeout context.CancelFunc = func() {}

	rootCmd := &cobra.Command{
		Use:           "courier",
		Short:         "Courier CLI — notification queue tooling",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateCLI(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			cancelTimeout = cancel
			cmd.SetContext(ctx)

			client = cli.NewClient(cfg, telemetry.NewLogger(os.Stderr, "WARN", "text"))
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for broker and database operations")

	backendFn := func() cli.Backend { return client }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewEnqueueCmd(backendFn, outputFn),
		cli.NewOutcomesCmd(backendFn, outputFn),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)

	cancelTimeout()
	if client != nil {
		if closeErr := client.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
