package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"dashshot/internal/worker"

	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Capture one dashboard; reads the task from stdin",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := worker.ReadTask(os.Stdin)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return worker.Run(ctx, task, worker.NewDeps(cfg, os.Stdout))
	},
}
