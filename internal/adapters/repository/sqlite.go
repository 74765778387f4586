package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/dutyqueue/internal/domain/model"
	"github.com/okian/dutyqueue/pkg/logger"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteTimeLayout is fixed width so text order equals time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is the SQLite implementation of Store.
type SQLiteStore struct {
	DB     *sql.DB
	logger logger.Logger
}

// OpenSQLite opens the database at dsn (a path, a "file:" URI or ":memory:")
// and runs pending migrations.
func OpenSQLite(ctx context.Context, dsn string, opts ...Option) (*SQLiteStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	memory := dsn == ":memory:" || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
	db, err := sql.Open("sqlite", sqliteDSN(dsn, o.busyTimeout))
	if err != nil {
		return nil, err
	}
	if memory {
		// Every connection to an unnamed in-memory database is a new database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(o.maxOpenConns)
		db.SetMaxIdleConns(o.maxOpenConns)
	}
	db.SetConnMaxLifetime(o.connMaxLife)

	s := &SQLiteStore{DB: db, logger: o.logger}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// sqliteDSN normalises dsn into a "file:" URI carrying the connection
// pragmas, so every pooled connection gets them.
func sqliteDSN(dsn string, busy time.Duration) string {
	if dsn == ":memory:" {
		dsn = "file::memory:"
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	pragmas := []string{
		fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()),
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"foreign_keys(ON)",
		"temp_store(MEMORY)",
		"cache_size(-20000)",
	}
	var b strings.Builder
	b.WriteString(dsn)
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range pragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Migrate applies embedded migrations not yet recorded in schema_migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, createMigrationsTable); err != nil {
		return err
	}
	applied := make(map[int]bool)
	rows, err := s.DB.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}

	migs, err := loadMigrations("sqlite")
	if err != nil {
		return err
	}
	for _, m := range migs {
		if applied[m.Version] {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
		if s.logger != nil {
			s.logger.Info(ctx, "applied migration", logger.String("driver", "sqlite"), logger.String("name", m.Name))
		}
	}
	return nil
}

func (s *SQLiteStore) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)`, m.Version, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) ListAgents(ctx context.Context) ([]model.Agent, error) {
	defer observe("list_agents", time.Now())
	return listSQLiteAgents(ctx, s.DB)
}

func listSQLiteAgents(ctx context.Context, q querier) ([]model.Agent, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, created_at FROM agents ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Agent
	for rows.Next() {
		a, err := scanSQLiteAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (model.Agent, error) {
	defer observe("get_agent", time.Now())
	row := s.DB.QueryRowContext(ctx, `SELECT id, name, created_at FROM agents WHERE id = ?`, id)
	a, err := scanSQLiteAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Agent{}, ErrNotFound
	}
	return a, err
}

func (s *SQLiteStore) CreateAgent(ctx context.Context, a model.Agent) error {
	defer observe("create_agent", time.Now())
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO agents(id, name, created_at) VALUES(?, ?, ?)`,
		a.ID, a.Name, formatSQLiteTime(a.CreatedAt))
	return mapSQLiteError(err)
}

func (s *SQLiteStore) DeleteAgent(ctx context.Context, id string) error {
	defer observe("delete_agent", time.Now())
	res, err := s.DB.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	return affectedOne(res, err)
}

func (s *SQLiteStore) ListAssignments(ctx context.Context) ([]model.AssignmentEvent, error) {
	defer observe("list_assignments", time.Now())
	return listSQLiteAssignments(ctx, s.DB)
}

func listSQLiteAssignments(ctx context.Context, q querier) ([]model.AssignmentEvent, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, agent_id, date, shift, status, created_at FROM assignments ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.AssignmentEvent
	for rows.Next() {
		var (
			e       model.AssignmentEvent
			created string
		)
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Date, &e.Shift, &e.Status, &created); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("assignment %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateAssignment(ctx context.Context, e model.AssignmentEvent) error {
	defer observe("create_assignment", time.Now())
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO assignments(id, agent_id, date, shift, status, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		e.ID, e.AgentID, e.Date.String(), string(e.Shift), string(e.Status), formatSQLiteTime(e.CreatedAt))
	return mapSQLiteError(err)
}

func (s *SQLiteStore) DeleteAssignment(ctx context.Context, id string) error {
	defer observe("delete_assignment", time.Now())
	res, err := s.DB.ExecContext(ctx, `DELETE FROM assignments WHERE id = ?`, id)
	return affectedOne(res, err)
}

func (s *SQLiteStore) Snapshot(ctx context.Context) (Snapshot, error) {
	defer observe("snapshot", time.Now())
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, err
	}
	defer func() { _ = tx.Rollback() }()

	agents, err := listSQLiteAgents(ctx, tx)
	if err != nil {
		return Snapshot{}, err
	}
	events, err := listSQLiteAssignments(ctx, tx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Agents: agents, Assignments: events}, tx.Commit()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAgent(r rowScanner) (model.Agent, error) {
	var (
		a       model.Agent
		created string
	)
	if err := r.Scan(&a.ID, &a.Name, &created); err != nil {
		return model.Agent{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return model.Agent{}, fmt.Errorf("agent %s: %w", a.ID, err)
	}
	a.CreatedAt = t
	return a, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// mapSQLiteError turns constraint violations into ErrDuplicate.
func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
