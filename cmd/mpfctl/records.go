package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/your-org/mpf/internal/models"
	"github.com/your-org/mpf/internal/queue"
)

func newRematchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rematch <record-id>",
		Short: "Queue a matching run for a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid record id %q", args[0])
			}
			err = ctx.withServices(cmd.Context(), func(s *services) error {
				r, err := s.store.GetRecord(cmd.Context(), id)
				if err != nil {
					return err
				}
				if r == nil {
					return fmt.Errorf("record %d not found", id)
				}
				return nil
			})
			if err != nil {
				return err
			}
			return ctx.withProducer(func(p *queue.Producer) error {
				task := models.MatchTask{RecordID: id, Reason: "manual", RequestedAt: time.Now().UTC()}
				if err := p.PublishMatchTask(cmd.Context(), task); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Matching run queued for record %d\n", id)
				return nil
			})
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show record counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd.Context(), func(s *services) error {
				stats, err := s.store.RecordStats(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{string(models.RecordStatusMissing), strconv.Itoa(stats.Missing)},
					{string(models.RecordStatusPendingReview), strconv.Itoa(stats.PendingReview)},
					{string(models.RecordStatusFound), strconv.Itoa(stats.Found)},
					{"Total", strconv.Itoa(stats.Total)},
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}
