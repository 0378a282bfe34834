package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newNotificationsCommand(ctx *commandContext) *cobra.Command {
	notifCmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "Inspect operator notifications",
	}

	notifCmd.AddCommand(newNotificationsListCommand(ctx))
	notifCmd.AddCommand(newNotificationsReadCommand(ctx))
	notifCmd.AddCommand(newNotificationsDeleteCommand(ctx))

	return notifCmd
}

func newNotificationsListCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List unread notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd.Context(), func(s *services) error {
				list, err := s.alerts.List(cmd.Context(), all, limit)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No notifications")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Level", "Title", "Message", "Read", "Created"},
					buildNotificationRows(list),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include read notifications")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of notifications")
	return cmd
}

func notificationID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid notification id %q", arg)
	}
	return id, nil
}

func newNotificationsReadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := notificationID(args[0])
			if err != nil {
				return err
			}
			return ctx.withServices(cmd.Context(), func(s *services) error {
				if err := s.alerts.MarkRead(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Notification %d marked read\n", id)
				return nil
			})
		},
	}
}

func newNotificationsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := notificationID(args[0])
			if err != nil {
				return err
			}
			return ctx.withServices(cmd.Context(), func(s *services) error {
				if err := s.alerts.Delete(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Notification %d deleted\n", id)
				return nil
			})
		},
	}
}
