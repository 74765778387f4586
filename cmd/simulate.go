package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/dutyqueue/internal/simulation"
)

func newSimulateCmd() *cobra.Command {
	cfg := simulation.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play offer rounds against a running service and verify the queue stays fair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stats, err := simulation.Run(cmd.Context(), cfg)
			if stats != nil {
				_, _ = cmd.OutOrStdout().Write([]byte(renderSimulation(stats)))
			}
			if err != nil {
				return err
			}
			if !stats.OK() {
				return fmt.Errorf("%d fairness violation(s)", len(stats.Violations))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "base URL of the service")
	f.StringVar(&cfg.AdminToken, "admin-token", cfg.AdminToken, "admin token used to add agents")
	f.IntVar(&cfg.Agents, "agents", cfg.Agents, "agents to add before playing")
	f.IntVar(&cfg.Rounds, "rounds", cfg.Rounds, "slots to offer")
	f.Float64Var(&cfg.RefuseRate, "refuse-rate", cfg.RefuseRate, "probability an offer is refused")
	f.IntVar(&cfg.ReplayEvery, "replay-every", cfg.ReplayEvery, "resend every Nth assignment with the same Idempotency-Key (0 disables)")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "seed for accept/refuse draws")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent requests while seeding agents")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "write a JSON transcript of every round to this file")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "log every round")
	return cmd
}

func renderSimulation(s *simulation.Stats) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Simulação"))
	b.WriteString("\n\n")

	t := table{
		header: []string{"Métrica", "Valor"},
		rows: [][]string{
			{"agentes", strconv.Itoa(s.AgentsSeeded)},
			{"rodadas", strconv.Itoa(s.Rounds)},
			{"aceitas", strconv.Itoa(s.Accepted)},
			{"recusadas", strconv.Itoa(s.Refused)},
			{"repetições", strconv.Itoa(s.Replays)},
			{"violações", strconv.Itoa(len(s.Violations))},
			{"duração", s.Duration.String()},
		},
	}
	b.WriteString(t.render())

	for _, v := range s.Violations {
		b.WriteString(headStyle.Render("✗ " + v))
		b.WriteByte('\n')
	}
	return b.String()
}
