package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/your-org/mpf/internal/models"
)

func newMatchesCommand(ctx *commandContext) *cobra.Command {
	matchesCmd := &cobra.Command{
		Use:   "matches",
		Short: "Review recorded matches",
	}

	matchesCmd.AddCommand(newMatchesListCommand(ctx))
	matchesCmd.AddCommand(newMatchesRecordCommand(ctx))
	matchesCmd.AddCommand(newMatchesSetStatusCommand(ctx))

	return matchesCmd
}

func printMatches(cmd *cobra.Command, matches []models.MatchFact) {
	if len(matches) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matches")
		return
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	fmt.Fprint(cmd.OutOrStdout(), renderTable(matchColumns, buildMatchRows(matches), matchAligns))
}

func newMatchesListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List matches, strongest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseMatchStatuses(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withServices(cmd.Context(), func(s *services) error {
				matches, err := s.ledger.ListMatches(cmd.Context(), statuses, limit)
				if err != nil {
					return err
				}
				printMatches(cmd, matches)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum number of matches")
	return cmd
}

func newMatchesRecordCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "record <record-id>",
		Short: "List matches a record takes part in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid record id %q", args[0])
			}
			return ctx.withServices(cmd.Context(), func(s *services) error {
				matches, err := s.ledger.ListMatchesForRecord(cmd.Context(), id)
				if err != nil {
					return err
				}
				printMatches(cmd, matches)
				return nil
			})
		},
	}
}

func newMatchesSetStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <match-id> <status>",
		Short: "Change the review status of a match",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid match id %q", args[0])
			}
			status, err := models.ParseMatchStatus(args[1])
			if err != nil {
				return err
			}
			return ctx.withServices(cmd.Context(), func(s *services) error {
				fact, err := s.ledger.UpdateMatchStatus(cmd.Context(), id, status)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Match %d is now %s\n", fact.ID, fact.Status)
				return nil
			})
		},
	}
}
