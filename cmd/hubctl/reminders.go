package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	config "github.com/phillip/volunteer-hub-go/config"
)

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Reminder maintenance",
}

var remindersRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Send due reminders once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfig(cmd, func(ctx context.Context, cfg *config.Config) error {
			res, err := cfg.Scheduler().RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d, failed %d\n", res.Sent, res.Failed)
			return nil
		})
	},
}

func init() {
	remindersCmd.AddCommand(remindersRunCmd)
}
