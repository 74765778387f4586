package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/dutyqueue/internal/domain/model"
	"github.com/okian/dutyqueue/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Run seeds the roster, plays cfg.Rounds offers against the queue head and
// verifies the queue after each. Invariant violations are collected in the
// returned Stats; transport and API failures abort the run.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Get().Named("simulation")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting duty queue simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("agents", cfg.Agents),
		logger.Int("rounds", cfg.Rounds),
		logger.Float64("refuseRate", cfg.RefuseRate),
		logger.Int("replayEvery", cfg.ReplayEvery),
		logger.Any("seed", cfg.Seed),
	)

	client := NewClient(cfg.BaseURL, cfg.AdminToken, cfg.Timeout)

	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	if err := seedAgents(ctx, client, cfg, stats); err != nil {
		return nil, fmt.Errorf("seeding agents failed: %w", err)
	}

	rounds, err := play(ctx, client, cfg, stats, log)
	if err != nil {
		return stats, fmt.Errorf("round %d failed: %w", stats.Rounds+1, err)
	}

	if cfg.OutputFile != "" {
		if err := saveRounds(cfg.OutputFile, rounds); err != nil {
			log.Warn(ctx, "failed to save rounds to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	log.Info(ctx, "simulation finished",
		logger.Int("rounds", stats.Rounds),
		logger.Int("accepted", stats.Accepted),
		logger.Int("refused", stats.Refused),
		logger.Int("replays", stats.Replays),
		logger.Int("violations", len(stats.Violations)),
		logger.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// seedAgents adds cfg.Agents agents concurrently, cfg.Workers at a time.
func seedAgents(ctx context.Context, client *Client, cfg Config, stats *Stats) error {
	if cfg.Agents == 0 {
		return nil
	}
	run := uuid.NewString()[:4]

	jobs := make(chan int, cfg.Agents)
	for i := range cfg.Agents {
		jobs <- i + 1
	}
	close(jobs)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for range min(cfg.Workers, cfg.Agents) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				if ctx.Err() != nil {
					return
				}
				_, err := client.AddAgent(ctx, fmt.Sprintf("Agente %s-%02d", run, n))
				mu.Lock()
				if err != nil && firstErr == nil {
					firstErr = err
				}
				if err == nil {
					stats.AgentsSeeded++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// play offers one slot per round to whoever /queue/next names.
func play(ctx context.Context, client *Client, cfg Config, stats *Stats, log logger.Logger) ([]Round, error) {
	cv, err := client.Cycle(ctx)
	if err != nil {
		return nil, err
	}
	days := cv.Window.DayList()
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // reproducible draws, not secrets

	rounds := make([]Round, 0, cfg.Rounds)
	for n := 1; n <= cfg.Rounds; n++ {
		if err := ctx.Err(); err != nil {
			return rounds, err
		}

		before, err := client.Queue(ctx)
		if err != nil {
			return rounds, err
		}
		head, err := client.Next(ctx)
		if err != nil {
			return rounds, err
		}
		if first, ok := before.Next(); !ok || first.Agent.ID != head.Agent.ID {
			stats.Violations = append(stats.Violations,
				fmt.Sprintf("round %d: /queue/next named %s but /queue starts with %s", n, head.Agent.Name, first.Agent.Name))
		}

		r := Round{
			N:         n,
			AgentID:   head.Agent.ID,
			AgentName: head.Agent.Name,
			Date:      days[(n-1)%len(days)],
			Shift:     model.ShiftDay,
			Status:    model.StatusAccepted,
			Key:       uuid.NewString(),
		}
		if n%2 == 0 {
			r.Shift = model.ShiftNight
		}
		if rng.Float64() < cfg.RefuseRate {
			r.Status = model.StatusRefused
		}

		ack, err := client.Record(ctx, r.Key, r)
		if err != nil {
			return rounds, err
		}
		if ack.Duplicate {
			stats.Violations = append(stats.Violations, fmt.Sprintf("round %d: fresh key answered as duplicate", n))
		}

		if cfg.ReplayEvery > 0 && n%cfg.ReplayEvery == 0 {
			replay, err := client.Record(ctx, r.Key, r)
			if err != nil {
				return rounds, err
			}
			r.Replayed = true
			stats.Replays++
			if !replay.Duplicate || replay.Assignment.ID != ack.Assignment.ID {
				stats.Violations = append(stats.Violations,
					fmt.Sprintf("round %d: replay of key %s was not answered with the original assignment", n, r.Key))
			}
		}

		after, err := client.Queue(ctx)
		if err != nil {
			return rounds, err
		}
		for _, v := range checkRound(head, before.MinTurns, after, r.Status) {
			stats.Violations = append(stats.Violations, fmt.Sprintf("round %d: %s", n, v))
		}
		for _, v := range checkQueue(after) {
			stats.Violations = append(stats.Violations, fmt.Sprintf("round %d: %s", n, v))
		}

		stats.Rounds++
		if r.Status == model.StatusAccepted {
			stats.Accepted++
		} else {
			stats.Refused++
		}
		rounds = append(rounds, r)

		if cfg.Verbose {
			log.Info(ctx, "round played",
				logger.Int("n", n),
				logger.String("agent", r.AgentName),
				logger.String("date", r.Date.String()),
				logger.String("status", string(r.Status)),
				logger.Bool("replayed", r.Replayed),
			)
		}
	}
	return rounds, nil
}

// saveRounds writes the transcript as indented JSON.
func saveRounds(path string, rounds []Round) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(rounds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, filePermission)
}
