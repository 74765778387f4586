package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/dutyqueue/internal/domain/model"
	"github.com/okian/dutyqueue/pkg/logger"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// PostgresStore is the PostgreSQL implementation of Store.
type PostgresStore struct {
	Pool   *pgxpool.Pool
	logger logger.Logger
}

// OpenPostgres opens a connection pool for dsn and runs pending migrations.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = int32(o.maxOpenConns) //nolint:gosec // bounded by option validation
	cfg.MaxConnLifetime = o.connMaxLife

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := &PostgresStore{Pool: pool, logger: o.logger}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.Pool == nil {
		return nil
	}
	s.Pool.Close()
	return nil
}

// Migrate applies embedded migrations not yet recorded in schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, createMigrationsTable); err != nil {
		return err
	}
	applied := make(map[int]bool)
	rows, err := s.Pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return err
	}
	for _, v := range versions {
		applied[v] = true
	}

	migs, err := loadMigrations("postgres")
	if err != nil {
		return err
	}
	for _, m := range migs {
		if applied[m.Version] {
			continue
		}
		err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations(version, applied_at) VALUES($1, $2) ON CONFLICT (version) DO NOTHING`,
				m.Version, time.Now().Unix())
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
		if s.logger != nil {
			s.logger.Info(ctx, "applied migration", logger.String("driver", "postgres"), logger.String("name", m.Name))
		}
	}
	return nil
}

// pgQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PostgresStore) ListAgents(ctx context.Context) ([]model.Agent, error) {
	defer observe("list_agents", time.Now())
	return listPGAgents(ctx, s.Pool)
}

func listPGAgents(ctx context.Context, q pgQuerier) ([]model.Agent, error) {
	rows, err := q.Query(ctx, `SELECT id, name, created_at FROM agents ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPGAgent)
}

func scanPGAgent(row pgx.CollectableRow) (model.Agent, error) {
	var a model.Agent
	err := row.Scan(&a.ID, &a.Name, &a.CreatedAt)
	return a, err
}

func (s *PostgresStore) GetAgent(ctx context.Context, id string) (model.Agent, error) {
	defer observe("get_agent", time.Now())
	var a model.Agent
	err := s.Pool.QueryRow(ctx, `SELECT id, name, created_at FROM agents WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Agent{}, ErrNotFound
	}
	return a, err
}

func (s *PostgresStore) CreateAgent(ctx context.Context, a model.Agent) error {
	defer observe("create_agent", time.Now())
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO agents(id, name, created_at) VALUES($1, $2, $3)`,
		a.ID, a.Name, a.CreatedAt.UTC())
	return mapPGError(err)
}

func (s *PostgresStore) DeleteAgent(ctx context.Context, id string) error {
	defer observe("delete_agent", time.Now())
	tag, err := s.Pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	return affectedOnePG(tag, err)
}

func (s *PostgresStore) ListAssignments(ctx context.Context) ([]model.AssignmentEvent, error) {
	defer observe("list_assignments", time.Now())
	return listPGAssignments(ctx, s.Pool)
}

func listPGAssignments(ctx context.Context, q pgQuerier) ([]model.AssignmentEvent, error) {
	rows, err := q.Query(ctx,
		`SELECT id, agent_id, to_char(date, 'YYYY-MM-DD'), shift, status, created_at
		   FROM assignments ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPGAssignment)
}

func scanPGAssignment(row pgx.CollectableRow) (model.AssignmentEvent, error) {
	var (
		e             model.AssignmentEvent
		date          string
		shift, status string
	)
	if err := row.Scan(&e.ID, &e.AgentID, &date, &shift, &status, &e.CreatedAt); err != nil {
		return model.AssignmentEvent{}, err
	}
	d, err := model.ParseDate(date)
	if err != nil {
		return model.AssignmentEvent{}, fmt.Errorf("assignment %s: %w", e.ID, err)
	}
	e.Date = d
	e.Shift = model.Shift(shift)
	e.Status = model.Status(status)
	return e, nil
}

func (s *PostgresStore) CreateAssignment(ctx context.Context, e model.AssignmentEvent) error {
	defer observe("create_assignment", time.Now())
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO assignments(id, agent_id, date, shift, status, created_at)
		 VALUES($1, $2, $3::date, $4, $5, $6)`,
		e.ID, e.AgentID, e.Date.String(), string(e.Shift), string(e.Status), e.CreatedAt.UTC())
	return mapPGError(err)
}

func (s *PostgresStore) DeleteAssignment(ctx context.Context, id string) error {
	defer observe("delete_assignment", time.Now())
	tag, err := s.Pool.Exec(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	return affectedOnePG(tag, err)
}

// Snapshot reads both tables in one repeatable-read, read-only transaction.
func (s *PostgresStore) Snapshot(ctx context.Context) (Snapshot, error) {
	defer observe("snapshot", time.Now())
	var snap Snapshot
	err := pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}, func(tx pgx.Tx) error {
		var err error
		if snap.Agents, err = listPGAgents(ctx, tx); err != nil {
			return err
		}
		snap.Assignments, err = listPGAssignments(ctx, tx)
		return err
	})
	return snap, err
}

func mapPGError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func affectedOnePG(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
