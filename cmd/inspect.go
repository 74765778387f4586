package main

import (
	"github.com/spf13/cobra"
)

func newCycleCmd(c *cli) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Print the 16th-to-15th cycle around a date with the team on duty each day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := dateFlag(date)
			if err != nil {
				return err
			}
			comp, err := build(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer comp.close()

			cal, err := comp.svc.Calendar(cmd.Context(), ref)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write([]byte(renderCalendar(cal)))
			return err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "reference date YYYY-MM-DD (default today)")
	return cmd
}

func newTeamCmd(c *cli) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "team",
		Short: "Print the team on duty on a date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := dateFlag(date)
			if err != nil {
				return err
			}
			comp, err := build(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer comp.close()

			d := comp.svc.Today()
			if ref != nil {
				d = *ref
			}
			_, err = cmd.OutOrStdout().Write([]byte(renderTeam(comp.svc.TeamOnDuty(d))))
			return err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date YYYY-MM-DD (default today)")
	return cmd
}

func newQueueCmd(c *cli) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Print the fairness queue for the cycle around a date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := dateFlag(date)
			if err != nil {
				return err
			}
			comp, err := build(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer comp.close()

			q, err := comp.svc.Queue(cmd.Context(), ref)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write([]byte(renderQueue(q)))
			return err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "reference date YYYY-MM-DD (default today)")
	return cmd
}
