// Command hubctl runs maintenance tasks against the volunteer hub database.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	config "github.com/phillip/volunteer-hub-go/config"
)

var timeout time.Duration

var rootCmd = &cobra.Command{
	Use:           "hubctl",
	Short:         "Volunteer hub admin tool",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout for the command")
	rootCmd.AddCommand(createAdminCmd, kbCmd, remindersCmd, eventsCmd, exportCmd)
}

// connect loads the same configuration as the API server and opens the store.
func connect(ctx context.Context) (*config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Wire(); err != nil {
		return nil, nil, err
	}
	if err := cfg.Connect(ctx); err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cfg.Disconnect(ctx); err != nil {
			cfg.Log.Error().Err(err).Msg("mongo disconnect failed")
		}
	}
	return cfg, closeFn, nil
}

// withConfig runs fn with a connected config and the command timeout.
func withConfig(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	cfg, closeFn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(ctx, cfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
