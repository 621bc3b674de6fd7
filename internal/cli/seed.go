package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/tripdesk/internal/booking"
)

func newSeedCmd() *cobra.Command {
	var base string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the sample travel inventory into the booking store",
		Long: "seed writes sample flights, shuttles, hotels, tours and users into the configured " +
			"booking store. Records with the same ids are replaced, so seeding is repeatable.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now()
			if base != "" {
				t, err := time.Parse(time.DateOnly, base)
				if err != nil {
					return fmt.Errorf("--from %q is not a YYYY-MM-DD date", base)
				}
				day = t
			}

			ctx := context.Background()
			a := &app{cfg: cfg, log: log}
			if cfg.Booking.Store != "mongo" {
				fmt.Fprintln(cmd.OutOrStdout(), "booking.store is memory; the sample data is loaded on every start")
				return nil
			}
			if err := a.openBookings(ctx); err != nil {
				return err
			}
			defer a.Close()

			d := booking.SampleData(day)
			if err := a.bookings.Seed(ctx, d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d flights, %d shuttles, %d hotels, %d tours, %d users\n",
				len(d.Flights), len(d.Shuttles), len(d.Hotels), len(d.Tours), len(d.Users))
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "from", "", "first departure day of the sample schedule (default: today)")
	return cmd
}
