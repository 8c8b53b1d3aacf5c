package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/app"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "contentd",
		Short:         "Per-user daily content service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the content HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), (*app.App).Serve)
			},
		},
		&cobra.Command{
			Use:   "worker",
			Short: "Consume background generation jobs and sweep stale content",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), (*app.App).RunWorker)
			},
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Delete legacy unstamped rows and superseded history once",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), (*app.App).SweepOnce)
			},
		},
	)
	return root
}

func run(parent context.Context, fn func(*app.App, context.Context) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.Close(closeCtx)
	}()
	return fn(a, ctx)
}
