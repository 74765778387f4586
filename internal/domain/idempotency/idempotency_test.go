package idempotency_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/dutyqueue/internal/domain/idempotency"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new memory cache", t, func() {
		c := idempotency.NewMemoryCache()

		Convey("When reserving a fresh key", func() {
			result, seen := c.Reserve(ctx, "key-1")

			Convey("Then it should be claimed", func() {
				So(seen, ShouldBeFalse)
				So(result, ShouldEqual, "")
				So(c.Size(), ShouldEqual, 1)
			})
		})

		Convey("When reserving a key twice", func() {
			c.Reserve(ctx, "key-1")
			result, seen := c.Reserve(ctx, "key-1")

			Convey("Then the second reservation should report it as seen", func() {
				So(seen, ShouldBeTrue)
				So(result, ShouldEqual, "")
				So(c.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a reservation is completed", func() {
			c.Reserve(ctx, "key-1")
			c.Complete(ctx, "key-1", "assignment-9")
			result, seen := c.Reserve(ctx, "key-1")

			Convey("Then replays should return the stored result", func() {
				So(seen, ShouldBeTrue)
				So(result, ShouldEqual, "assignment-9")
			})
		})

		Convey("When completing an unknown key", func() {
			c.Complete(ctx, "missing", "x")

			Convey("Then nothing should be stored", func() {
				So(c.Size(), ShouldEqual, 0)
			})
		})

		Convey("When a reservation is released", func() {
			c.Reserve(ctx, "key-1")
			c.Release(ctx, "key-1")
			c.Release(ctx, "never-reserved")

			Convey("Then the key should be claimable again", func() {
				So(c.Size(), ShouldEqual, 0)
				_, seen := c.Reserve(ctx, "key-1")
				So(seen, ShouldBeFalse)
			})
		})
	})

	Convey("Given a bounded cache", t, func() {
		c := idempotency.NewMemoryCache(idempotency.WithMaxSize(3))

		Convey("When more keys than the bound are reserved", func() {
			for i := 1; i <= 4; i++ {
				c.Reserve(ctx, fmt.Sprintf("key-%d", i))
			}

			Convey("Then the oldest key should be evicted", func() {
				So(c.Size(), ShouldEqual, 3)
				_, seen := c.Reserve(ctx, "key-4")
				So(seen, ShouldBeTrue)
				_, seen = c.Reserve(ctx, "key-2")
				So(seen, ShouldBeTrue)
				_, seen = c.Reserve(ctx, "key-1")
				So(seen, ShouldBeFalse)
			})
		})
	})

	Convey("Given an unbounded cache", t, func() {
		c := idempotency.NewMemoryCache(idempotency.WithMaxSize(0))

		Convey("When many keys are reserved", func() {
			for i := 0; i < 20_000; i++ {
				c.Reserve(ctx, fmt.Sprintf("key-%d", i))
			}

			Convey("Then none should be evicted", func() {
				So(c.Size(), ShouldEqual, 20_000)
			})
		})
	})

	Convey("Given concurrent reservations of one key", t, func() {
		c := idempotency.NewMemoryCache()
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			claimed int
		)

		Convey("When fifty goroutines race", func() {
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, seen := c.Reserve(ctx, "shared"); !seen {
						mu.Lock()
						claimed++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one should win", func() {
				So(claimed, ShouldEqual, 1)
			})
		})
	})
}
