package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	config "github.com/phillip/volunteer-hub-go/config"
	store "github.com/phillip/volunteer-hub-go/store"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Event maintenance",
}

var eventsRecountCmd = &cobra.Command{
	Use:   "recount",
	Short: "Rebuild the taken-seat counters from registrations",
	Long: `Every event keeps a running count of the seats its registered entries hold.
recount sums the registrations again and rewrites counters that drifted, for
example after records were edited by hand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfig(cmd, func(ctx context.Context, cfg *config.Config) error {
			fixed, err := recountSeats(ctx, cfg.Store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d event(s) corrected\n", fixed)
			return nil
		})
	},
}

func init() {
	eventsCmd.AddCommand(eventsRecountCmd)
}

func recountSeats(ctx context.Context, s *store.Store) (int, error) {
	events, err := s.Events.List(ctx, store.SubmissionFilter{})
	if err != nil {
		return 0, err
	}
	fixed := 0
	for _, e := range events {
		seats, err := s.Registrations.Seats(ctx, e.ID)
		if err != nil {
			return fixed, fmt.Errorf("count seats of %s: %w", e.ID.Hex(), err)
		}
		if seats == e.SeatsTaken {
			continue
		}
		if err := s.Events.Update(ctx, e.ID, bson.M{"seats_taken": seats}); err != nil {
			return fixed, fmt.Errorf("update %s: %w", e.ID.Hex(), err)
		}
		fixed++
	}
	return fixed, nil
}
