package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	service "github.com/okian/dutyqueue/internal/app"
	"github.com/okian/dutyqueue/internal/domain/fairness"
	"github.com/okian/dutyqueue/internal/domain/model"
	"github.com/okian/dutyqueue/internal/domain/rotation"
	"github.com/okian/dutyqueue/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// fakeClock advances one second per reading so creation order is strict.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

var noon = time.Date(2025, time.December, 20, 12, 0, 0, 0, time.UTC)

func newTestService(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithClock(newFakeClock(noon).Now),
		service.WithLocation(time.UTC),
	}
	return service.New(append(base, opts...)...)
}

func record(ctx context.Context, svc *service.Service, agentID string, day int, status model.Status) model.AssignmentEvent {
	e, err := svc.RecordAssignment(ctx, service.AssignmentRequest{
		AgentID: agentID,
		Date:    model.NewDate(2025, time.December, day),
		Shift:   model.ShiftDay,
		Status:  status,
	})
	So(err, ShouldBeNil)
	return e
}

func names(svc *service.Service) []string {
	q, err := svc.Queue(context.Background(), nil)
	So(err, ShouldBeNil)
	out := make([]string, len(q.Standings))
	for i, s := range q.Standings {
		out[i] = s.Agent.Name
	}
	return out
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := newTestService()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats.Policy, ShouldEqual, fairness.PolicyAllTime)
			So(stats.Today, ShouldEqual, model.NewDate(2025, time.December, 20))
			So(stats.TeamOnDuty, ShouldEqual, rotation.Charlie)
			So(svc.Started(), ShouldBeFalse)
		})
	})

	Convey("Given a service with the cycle policy and a custom anchor", t, func() {
		svc := newTestService(
			service.WithPolicy(fairness.PolicyCycle),
			service.WithResolver(rotation.NewResolver(rotation.WithAnchor(model.NewDate(2025, time.December, 20)))),
		)

		Convey("Then both should be honoured", func() {
			stats := svc.GetStats()
			So(stats.Policy, ShouldEqual, fairness.PolicyCycle)
			So(stats.TeamOnDuty, ShouldEqual, rotation.Delta)
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := newTestService()
		// Ensure service is stopped after test
		defer svc.Stop()

		Convey("When starting the service", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := svc.Start(ctx)

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
				So(svc.Started(), ShouldBeTrue)
				So(svc.GetStats().Recomputes, ShouldEqual, 1)
			})

			Convey("And starting again should be a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
				So(svc.GetStats().Recomputes, ShouldEqual, 1)
			})

			Convey("And stopping should be idempotent", func() {
				svc.Stop()
				svc.Stop()
				So(svc.Started(), ShouldBeFalse)
			})
		})
	})
}

func TestService_Agents(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := newTestService()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When an agent is added with surrounding spaces", func() {
			a, err := svc.AddAgent(ctx, "  Ana Souza ")

			Convey("Then the name should be trimmed and an id generated", func() {
				So(err, ShouldBeNil)
				So(a.Name, ShouldEqual, "Ana Souza")
				So(a.ID, ShouldNotBeEmpty)
				So(a.CreatedAt.Location(), ShouldEqual, time.UTC)

				agents, err := svc.Agents(ctx)
				So(err, ShouldBeNil)
				So(len(agents), ShouldEqual, 1)
				So(svc.GetStats().Agents, ShouldEqual, 1)
			})

			Convey("Then removing it twice should fail the second time", func() {
				So(svc.RemoveAgent(ctx, a.ID), ShouldBeNil)
				So(errors.Is(svc.RemoveAgent(ctx, a.ID), service.ErrAgentNotFound), ShouldBeTrue)
				So(svc.GetStats().Agents, ShouldEqual, 0)
			})
		})

		Convey("When a blank name is given", func() {
			_, err := svc.AddAgent(ctx, "   ")

			Convey("Then it should be rejected", func() {
				So(errors.Is(err, service.ErrInvalidName), ShouldBeTrue)
			})
		})
	})
}

func TestService_Queue(t *testing.T) {
	Convey("Given three agents", t, func() {
		ctx := context.Background()
		svc := newTestService()
		ana, _ := svc.AddAgent(ctx, "Ana")
		bia, _ := svc.AddAgent(ctx, "Bia")
		caio, _ := svc.AddAgent(ctx, "Caio")

		Convey("Then the empty history should rank by name", func() {
			So(names(svc), ShouldResemble, []string{"Ana", "Bia", "Caio"})
			head, err := svc.SuggestedAgent(ctx)
			So(err, ShouldBeNil)
			So(head.Agent.ID, ShouldEqual, ana.ID)
		})

		Convey("When Ana accepts", func() {
			e := record(ctx, svc, ana.ID, 17, model.StatusAccepted)

			Convey("Then Ana should move behind the agents who have not gone", func() {
				So(names(svc), ShouldResemble, []string{"Bia", "Caio", "Ana"})
				q, _ := svc.Queue(ctx, nil)
				st, ok := q.Lookup(ana.ID)
				So(ok, ShouldBeTrue)
				So(st.Done, ShouldBeTrue)
				So(st.Balance, ShouldEqual, 1)
				So(st.LastStatus, ShouldEqual, model.StatusAccepted)
				So(q.Label, ShouldEqual, "16/12 a 15/01")
			})

			Convey("And Bia refuses", func() {
				record(ctx, svc, bia.ID, 18, model.StatusRefused)

				Convey("Then a refusal should cost the turn but not add balance", func() {
					So(names(svc), ShouldResemble, []string{"Caio", "Bia", "Ana"})
				})

				Convey("And Caio accepts", func() {
					record(ctx, svc, caio.ID, 19, model.StatusAccepted)

					Convey("Then a new round should start ordered by balance", func() {
						So(names(svc), ShouldResemble, []string{"Bia", "Ana", "Caio"})
						q, _ := svc.Queue(ctx, nil)
						So(q.MinTurns, ShouldEqual, 1)
					})
				})
			})

			Convey("And the assignment is deleted", func() {
				So(svc.RemoveAssignment(ctx, e.ID), ShouldBeNil)

				Convey("Then the queue should be re-derived from history", func() {
					So(names(svc), ShouldResemble, []string{"Ana", "Bia", "Caio"})
					So(errors.Is(svc.RemoveAssignment(ctx, e.ID), service.ErrAssignmentNotFound), ShouldBeTrue)
				})
			})

			Convey("And Ana is removed from the roster", func() {
				So(svc.RemoveAgent(ctx, ana.ID), ShouldBeNil)

				Convey("Then the history should be kept but ignored", func() {
					So(names(svc), ShouldResemble, []string{"Bia", "Caio"})
					events, err := svc.Assignments(ctx)
					So(err, ShouldBeNil)
					So(len(events), ShouldEqual, 1)
					So(svc.GetStats().Ignored.UnknownAgent, ShouldEqual, 1)
				})
			})
		})
	})

	Convey("Given an empty roster", t, func() {
		svc := newTestService()

		Convey("Then there should be no suggestion", func() {
			_, err := svc.SuggestedAgent(context.Background())
			So(errors.Is(err, service.ErrNoAgents), ShouldBeTrue)
		})
	})

	Convey("Given the cycle policy", t, func() {
		ctx := context.Background()
		svc := newTestService(service.WithPolicy(fairness.PolicyCycle))
		ana, _ := svc.AddAgent(ctx, "Ana")
		_, _ = svc.AddAgent(ctx, "Bia")
		record(ctx, svc, ana.ID, 17, model.StatusAccepted)

		Convey("When the next cycle is ranked", func() {
			ref := model.NewDate(2026, time.January, 20)
			q, err := svc.Queue(ctx, &ref)
			So(err, ShouldBeNil)

			Convey("Then balance should reset but turns should carry over", func() {
				So(q.Policy, ShouldEqual, fairness.PolicyCycle)
				So(q.Label, ShouldEqual, "16/01 a 15/02")
				st, _ := q.Lookup(ana.ID)
				So(st.Balance, ShouldEqual, 0)
				So(st.TurnsTaken, ShouldEqual, 1)
				So(st.Done, ShouldBeTrue)
			})
		})
	})
}

func TestService_RecordAssignment(t *testing.T) {
	Convey("Given a service with one agent", t, func() {
		ctx := context.Background()
		svc := newTestService()
		ana, _ := svc.AddAgent(ctx, "Ana")
		valid := service.AssignmentRequest{
			AgentID: ana.ID,
			Date:    model.NewDate(2025, time.December, 24),
			Shift:   model.ShiftNight,
			Status:  model.StatusAccepted,
		}

		Convey("When the request names an unknown agent", func() {
			req := valid
			req.AgentID = "ghost"
			_, err := svc.RecordAssignment(ctx, req)
			So(errors.Is(err, service.ErrAgentNotFound), ShouldBeTrue)
		})

		Convey("When the request is malformed", func() {
			noDate := valid
			noDate.Date = model.Date{}
			_, err := svc.RecordAssignment(ctx, noDate)
			So(errors.Is(err, service.ErrInvalidAssignment), ShouldBeTrue)

			badShift := valid
			badShift.Shift = "evening"
			_, err = svc.RecordAssignment(ctx, badShift)
			So(errors.Is(err, service.ErrInvalidAssignment), ShouldBeTrue)
			So(errors.Is(err, model.ErrInvalidShift), ShouldBeTrue)

			badStatus := valid
			badStatus.Status = "maybe"
			_, err = svc.RecordAssignment(ctx, badStatus)
			So(errors.Is(err, model.ErrInvalidStatus), ShouldBeTrue)
		})

		Convey("When the same idempotency key is sent twice", func() {
			first, dup1, err1 := svc.RecordAssignmentOnce(ctx, "key-1", valid)
			second, dup2, err2 := svc.RecordAssignmentOnce(ctx, "key-1", valid)

			Convey("Then only one event should be recorded", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(dup1, ShouldBeFalse)
				So(dup2, ShouldBeTrue)
				So(second.ID, ShouldEqual, first.ID)
				So(second.Status, ShouldEqual, model.StatusAccepted)
				events, _ := svc.Assignments(ctx)
				So(len(events), ShouldEqual, 1)
				So(svc.GetStats().IdempotentKeys, ShouldEqual, 1)
			})
		})

		Convey("When a keyed request fails", func() {
			req := valid
			req.AgentID = "ghost"
			_, _, err := svc.RecordAssignmentOnce(ctx, "key-2", req)
			So(err, ShouldNotBeNil)

			Convey("Then the key should be free for a retry", func() {
				e, dup, err := svc.RecordAssignmentOnce(ctx, "key-2", valid)
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
				So(e.AgentID, ShouldEqual, ana.ID)
			})
		})

		Convey("When a key is claimed but not completed", func() {
			_, dup := svc.Claim(ctx, "key-3")
			So(dup, ShouldBeFalse)

			Convey("Then a replay should report the request in flight", func() {
				_, dup, err := svc.RecordAssignmentOnce(ctx, "key-3", valid)
				So(dup, ShouldBeTrue)
				So(errors.Is(err, service.ErrRequestInFlight), ShouldBeTrue)

				svc.Release(ctx, "key-3")
				_, dup, err = svc.RecordAssignmentOnce(ctx, "key-3", valid)
				So(err, ShouldBeNil)
				So(dup, ShouldBeFalse)
			})
		})
	})
}

func TestService_CalendarAndRotation(t *testing.T) {
	Convey("Given a service with history in the current cycle", t, func() {
		ctx := context.Background()
		svc := newTestService()
		ana, _ := svc.AddAgent(ctx, "Ana")
		bia, _ := svc.AddAgent(ctx, "Bia")
		record(ctx, svc, ana.ID, 17, model.StatusAccepted)
		record(ctx, svc, bia.ID, 17, model.StatusRefused)
		record(ctx, svc, bia.ID, 18, model.StatusAccepted)

		Convey("When the calendar is built for today", func() {
			cal, err := svc.Calendar(ctx, nil)
			So(err, ShouldBeNil)

			Convey("Then every day of the window should be present", func() {
				So(len(cal.Days), ShouldEqual, 31)
				So(cal.Label, ShouldEqual, "16/12 a 15/01")
				So(cal.Days[0].Date, ShouldEqual, model.NewDate(2025, time.December, 16))
			})

			Convey("Then refused offers should be hidden", func() {
				day := cal.Days[1]
				So(day.Team, ShouldEqual, rotation.Delta)
				So(day.Weekday, ShouldEqual, "Qua")
				So(len(day.Assignments), ShouldEqual, 1)
				So(day.Assignments[0].AgentName, ShouldEqual, "Ana")
				So(cal.Days[2].Assignments[0].AgentName, ShouldEqual, "Bia")
			})
		})

		Convey("When Bia leaves the roster", func() {
			So(svc.RemoveAgent(ctx, bia.ID), ShouldBeNil)
			cal, _ := svc.Calendar(ctx, nil)

			Convey("Then the slot should stay with no name", func() {
				So(cal.Days[2].Assignments[0].AgentID, ShouldEqual, bia.ID)
				So(cal.Days[2].Assignments[0].AgentName, ShouldBeEmpty)
			})
		})

		Convey("When a past cycle is requested", func() {
			ref := model.NewDate(2025, time.November, 30)
			cal, err := svc.Calendar(ctx, &ref)
			So(err, ShouldBeNil)

			Convey("Then it should hold no assignments", func() {
				So(len(cal.Days), ShouldEqual, 30)
				for _, d := range cal.Days {
					So(d.Assignments, ShouldBeEmpty)
				}
			})
		})

		Convey("Then cycle and team lookups should follow the calendar", func() {
			view := svc.Cycle(nil)
			So(view.Days, ShouldEqual, 31)
			So(view.Prev.Label(), ShouldEqual, "16/11 a 15/12")
			So(svc.TeamOnDuty(model.NewDate(2025, time.December, 18)).Team, ShouldEqual, rotation.Alfa)
			So(svc.TeamOnDuty(model.NewDate(2025, time.December, 16)).Team, ShouldEqual, rotation.Charlie)
		})
	})
}
