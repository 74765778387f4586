package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/dutyqueue/internal/adapters/mq/feed"
	"github.com/okian/dutyqueue/internal/adapters/repository"
	service "github.com/okian/dutyqueue/internal/app"
	"github.com/okian/dutyqueue/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// eventually polls cond until it holds or the timeout expires.
func eventually(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func openSQLite(t *testing.T, path string) *repository.SQLiteStore {
	t.Helper()
	s, err := repository.OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given two instances sharing a database and a change feed", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "duty.db")
		changes := feed.NewLocalFeed()
		defer func() { _ = changes.Close() }()

		writer := newTestService(
			service.WithStore(openSQLite(t, path)),
			service.WithFeed(changes),
		)
		reader := newTestService(
			service.WithStore(openSQLite(t, path)),
			service.WithFeed(changes),
		)
		So(writer.Start(ctx), ShouldBeNil)
		So(reader.Start(ctx), ShouldBeNil)
		defer writer.Stop()
		defer reader.Stop()

		Convey("When the writer changes the roster and history", func() {
			ana, err := writer.AddAgent(ctx, "Ana")
			So(err, ShouldBeNil)
			_, err = writer.AddAgent(ctx, "Bia")
			So(err, ShouldBeNil)
			_, err = writer.RecordAssignment(ctx, service.AssignmentRequest{
				AgentID: ana.ID,
				Date:    model.NewDate(2025, time.December, 21),
				Shift:   model.ShiftNight,
				Status:  model.StatusAccepted,
			})
			So(err, ShouldBeNil)

			Convey("Then the reader should converge on the same queue", func() {
				So(eventually(func() bool {
					s := reader.GetStats()
					return s.Agents == 2 && s.Assignments == 1
				}, 3*time.Second), ShouldBeTrue)
				So(names(reader), ShouldResemble, names(writer))
				So(names(reader), ShouldResemble, []string{"Bia", "Ana"})
			})
		})
	})

	Convey("Given an instance relying only on the periodic refresh", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "duty.db")

		writer := newTestService(service.WithStore(openSQLite(t, path)))
		poller := newTestService(
			service.WithStore(openSQLite(t, path)),
			service.WithRefreshInterval(20*time.Millisecond),
		)
		So(poller.Start(ctx), ShouldBeNil)
		defer poller.Stop()

		Convey("When another instance writes without a shared feed", func() {
			_, err := writer.AddAgent(ctx, "Caio")
			So(err, ShouldBeNil)

			Convey("Then the poller should pick the change up", func() {
				So(eventually(func() bool { return poller.GetStats().Agents == 1 }, 3*time.Second), ShouldBeTrue)
				So(poller.GetStats().Recomputes, ShouldBeGreaterThan, 1)
			})
		})
	})
}
