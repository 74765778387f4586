package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/dutyqueue/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2025, time.December, 17, 9, 30, 0, 0, time.UTC)

func agent(id, name string, offset time.Duration) model.Agent {
	return model.Agent{ID: id, Name: name, CreatedAt: base.Add(offset)}
}

func event(id, agentID string, day int, status model.Status, offset time.Duration) model.AssignmentEvent {
	return model.AssignmentEvent{
		ID:        id,
		AgentID:   agentID,
		Date:      model.NewDate(2025, time.December, day),
		Shift:     model.ShiftNight,
		Status:    status,
		CreatedAt: base.Add(offset),
	}
}

// storeContract exercises the behaviour every backend shares.
func storeContract(open func() Store) {
	ctx := context.Background()

	Convey("Given an empty store", func() {
		s := open()
		Reset(func() { _ = s.Close() })

		Convey("When nothing has been written", func() {
			agents, err := s.ListAgents(ctx)
			So(err, ShouldBeNil)
			So(agents, ShouldBeEmpty)

			events, err := s.ListAssignments(ctx)
			So(err, ShouldBeNil)
			So(events, ShouldBeEmpty)

			_, err = s.GetAgent(ctx, "nobody")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("When agents are created out of order", func() {
			So(s.CreateAgent(ctx, agent("b", "Bia", 2*time.Second)), ShouldBeNil)
			So(s.CreateAgent(ctx, agent("a", "Ana", time.Second)), ShouldBeNil)
			So(s.CreateAgent(ctx, agent("c", "Caio", time.Second)), ShouldBeNil)

			Convey("Then they should list in creation order, ties by id", func() {
				agents, err := s.ListAgents(ctx)
				So(err, ShouldBeNil)
				So(len(agents), ShouldEqual, 3)
				So(agents[0].ID, ShouldEqual, "a")
				So(agents[1].ID, ShouldEqual, "c")
				So(agents[2].ID, ShouldEqual, "b")
				So(agents[0].CreatedAt.Equal(base.Add(time.Second)), ShouldBeTrue)
			})

			Convey("Then an agent should be readable by id", func() {
				a, err := s.GetAgent(ctx, "b")
				So(err, ShouldBeNil)
				So(a.Name, ShouldEqual, "Bia")
			})

			Convey("Then a duplicate id should be rejected", func() {
				err := s.CreateAgent(ctx, agent("a", "Other", 0))
				So(errors.Is(err, ErrDuplicate), ShouldBeTrue)
			})

			Convey("Then deleting should remove only that agent", func() {
				So(s.DeleteAgent(ctx, "c"), ShouldBeNil)
				agents, _ := s.ListAgents(ctx)
				So(len(agents), ShouldEqual, 2)
				So(agents[1].ID, ShouldEqual, "b")
				So(errors.Is(s.DeleteAgent(ctx, "c"), ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When assignments are recorded", func() {
			So(s.CreateAgent(ctx, agent("a", "Ana", 0)), ShouldBeNil)
			So(s.CreateAssignment(ctx, event("e2", "a", 18, model.StatusRefused, 2*time.Minute)), ShouldBeNil)
			So(s.CreateAssignment(ctx, event("e1", "a", 17, model.StatusAccepted, time.Minute)), ShouldBeNil)

			Convey("Then they should round-trip every field in creation order", func() {
				events, err := s.ListAssignments(ctx)
				So(err, ShouldBeNil)
				So(len(events), ShouldEqual, 2)
				So(events[0].ID, ShouldEqual, "e1")
				So(events[0].AgentID, ShouldEqual, "a")
				So(events[0].Date, ShouldEqual, model.NewDate(2025, time.December, 17))
				So(events[0].Shift, ShouldEqual, model.ShiftNight)
				So(events[0].Status, ShouldEqual, model.StatusAccepted)
				So(events[0].CreatedAt.Equal(base.Add(time.Minute)), ShouldBeTrue)
				So(events[1].Status, ShouldEqual, model.StatusRefused)
			})

			Convey("Then deleting the agent should keep its assignments", func() {
				So(s.DeleteAgent(ctx, "a"), ShouldBeNil)
				snap, err := s.Snapshot(ctx)
				So(err, ShouldBeNil)
				So(snap.Agents, ShouldBeEmpty)
				So(len(snap.Assignments), ShouldEqual, 2)
			})

			Convey("Then a duplicate assignment id should be rejected", func() {
				err := s.CreateAssignment(ctx, event("e1", "a", 20, model.StatusAccepted, 0))
				So(errors.Is(err, ErrDuplicate), ShouldBeTrue)
			})

			Convey("Then an assignment should be deletable once", func() {
				So(s.DeleteAssignment(ctx, "e1"), ShouldBeNil)
				So(errors.Is(s.DeleteAssignment(ctx, "e1"), ErrNotFound), ShouldBeTrue)
				events, _ := s.ListAssignments(ctx)
				So(len(events), ShouldEqual, 1)
				So(events[0].ID, ShouldEqual, "e2")
			})

			Convey("Then a snapshot should carry both collections", func() {
				snap, err := s.Snapshot(ctx)
				So(err, ShouldBeNil)
				So(len(snap.Agents), ShouldEqual, 1)
				So(len(snap.Assignments), ShouldEqual, 2)
			})
		})

		Convey("When writers race", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_ = s.CreateAgent(ctx, agent(string(rune('a'+i)), "x", time.Duration(i)))
				}(i)
			}
			wg.Wait()

			Convey("Then every write should land", func() {
				agents, err := s.ListAgents(ctx)
				So(err, ShouldBeNil)
				So(len(agents), ShouldEqual, 20)
			})
		})
	})
}

func TestMemoryStore(t *testing.T) {
	Convey("Memory store", t, func() {
		storeContract(func() Store { return NewMemoryStore() })
	})

	Convey("Given a closed memory store", t, func() {
		s := NewMemoryStore()
		So(s.Close(), ShouldBeNil)

		Convey("Then every call should fail with ErrClosed", func() {
			_, err := s.ListAgents(context.Background())
			So(errors.Is(err, ErrClosed), ShouldBeTrue)
			So(errors.Is(s.CreateAgent(context.Background(), agent("a", "A", 0)), ErrClosed), ShouldBeTrue)
			_, err = s.Snapshot(context.Background())
			So(errors.Is(err, ErrClosed), ShouldBeTrue)
		})
	})
}

func TestSQLiteStore(t *testing.T) {
	Convey("SQLite store", t, func() {
		storeContract(func() Store {
			dsn := filepath.Join(t.TempDir(), "duty.db")
			s, err := OpenSQLite(context.Background(), dsn)
			So(err, ShouldBeNil)
			return s
		})
	})

	Convey("Given a SQLite database file", t, func() {
		ctx := context.Background()
		dsn := filepath.Join(t.TempDir(), "duty.db")
		s, err := OpenSQLite(ctx, dsn)
		So(err, ShouldBeNil)
		So(s.CreateAgent(ctx, agent("a", "Ana", 0)), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("When it is reopened", func() {
			s2, err := OpenSQLite(ctx, dsn)
			So(err, ShouldBeNil)
			defer func() { _ = s2.Close() }()

			Convey("Then migrations should be idempotent and data kept", func() {
				So(s2.Migrate(ctx), ShouldBeNil)
				agents, err := s2.ListAgents(ctx)
				So(err, ShouldBeNil)
				So(len(agents), ShouldEqual, 1)
			})
		})
	})

	Convey("Given an in-memory SQLite database", t, func() {
		s, err := OpenSQLite(context.Background(), ":memory:")
		So(err, ShouldBeNil)
		defer func() { _ = s.Close() }()

		Convey("Then it should be usable", func() {
			So(s.CreateAgent(context.Background(), agent("a", "Ana", 0)), ShouldBeNil)
			agents, err := s.ListAgents(context.Background())
			So(err, ShouldBeNil)
			So(len(agents), ShouldEqual, 1)
		})
	})
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DUTYQUEUE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DUTYQUEUE_TEST_POSTGRES_DSN not set")
	}

	Convey("Postgres store", t, func() {
		storeContract(func() Store {
			ctx := context.Background()
			s, err := OpenPostgres(ctx, dsn)
			So(err, ShouldBeNil)
			_, err = s.Pool.Exec(ctx, `TRUNCATE agents, assignments`)
			So(err, ShouldBeNil)
			return s
		})
	})
}

func TestSQLiteDSN(t *testing.T) {
	Convey("Given raw DSNs", t, func() {
		Convey("Then paths should become file URIs carrying pragmas", func() {
			dsn := sqliteDSN("/tmp/duty.db", 5*time.Second)
			So(dsn, ShouldStartWith, "file:/tmp/duty.db?_pragma=busy_timeout(5000)")
			So(dsn, ShouldContainSubstring, "&_pragma=journal_mode(WAL)")
		})

		Convey("Then existing query strings should be extended", func() {
			dsn := sqliteDSN("file:duty.db?mode=rwc", time.Second)
			So(strings.HasPrefix(dsn, "file:duty.db?mode=rwc&_pragma=busy_timeout(1000)"), ShouldBeTrue)
		})

		Convey("Then :memory: should map to the in-memory URI", func() {
			So(sqliteDSN(":memory:", time.Second), ShouldStartWith, "file::memory:?")
		})
	})
}

func TestOpen(t *testing.T) {
	Convey("Given the store factory", t, func() {
		ctx := context.Background()

		Convey("When the memory driver is requested", func() {
			s, err := Open(ctx, DriverMemory, "")
			So(err, ShouldBeNil)
			_, ok := s.(*MemoryStore)
			So(ok, ShouldBeTrue)
		})

		Convey("When the sqlite driver is requested", func() {
			s, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "f.db"))
			So(err, ShouldBeNil)
			So(s.Close(), ShouldBeNil)
		})

		Convey("When an unknown driver is requested", func() {
			s, err := Open(ctx, "mongo", "")
			So(s, ShouldBeNil)
			So(errors.Is(err, ErrUnknownDriver), ShouldBeTrue)
		})
	})
}

func TestParseMigrationVersion(t *testing.T) {
	Convey("Given migration file names", t, func() {
		v, err := parseMigrationVersion("002_assignments_date.sql")
		So(err, ShouldBeNil)
		So(v, ShouldEqual, 2)

		_, err = parseMigrationVersion("init.sql")
		So(err, ShouldNotBeNil)

		migs, err := loadMigrations("sqlite")
		So(err, ShouldBeNil)
		So(len(migs), ShouldBeGreaterThanOrEqualTo, 2)
		So(migs[0].Version, ShouldEqual, 1)
	})
}
