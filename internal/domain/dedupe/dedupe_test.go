package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/sieve/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should be empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When seeding it from a checkpoint", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithCapacity(10), dedupe.WithSeen("1", "2", "2"))

			Convey("Then seeded ids are seen and counted once", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.Seen(ctx, "1"), ShouldBeTrue)
				So(d.Seen(ctx, "3"), ShouldBeFalse)
				So(d.SeenAndRecord(ctx, "2"), ShouldBeTrue)
			})
		})

		Convey("When recording items", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the item is new", func() {
				seen := d.SeenAndRecord(ctx, "item-1")

				Convey("Then it should return false and record the item", func() {
					So(seen, ShouldBeFalse)
					So(d.Size(), ShouldEqual, 1)
					So(d.Seen(ctx, "item-1"), ShouldBeTrue)
				})
			})

			Convey("And the item was already seen", func() {
				d.SeenAndRecord(ctx, "item-1")
				seen := d.SeenAndRecord(ctx, "item-1")

				Convey("Then it should return true", func() {
					So(seen, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And many items are recorded", func() {
				for i := 0; i < 10_000; i++ {
					d.SeenAndRecord(ctx, fmt.Sprintf("item-%d", i))
				}

				Convey("Then none are evicted", func() {
					So(d.Size(), ShouldEqual, 10_000)
					So(d.Seen(ctx, "item-0"), ShouldBeTrue)
				})
			})
		})

		Convey("When unrecording items", func() {
			d := dedupe.NewInMemoryDeduper()
			d.SeenAndRecord(ctx, "item-1")

			Convey("And the item exists", func() {
				d.Unrecord(ctx, "item-1")

				Convey("Then it should be removed", func() {
					So(d.Size(), ShouldEqual, 0)
					So(d.SeenAndRecord(ctx, "item-1"), ShouldBeFalse)
				})
			})

			Convey("And the item doesn't exist", func() {
				d.Unrecord(ctx, "item-2")

				Convey("Then it should not affect the size", func() {
					So(d.Size(), ShouldEqual, 1)
				})
			})
		})
	})

	Convey("Given a deduper with concurrent access", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("When multiple goroutines record the same ids", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 100; i++ {
						if !d.SeenAndRecord(ctx, fmt.Sprintf("item-%d", i)) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each id is claimed exactly once", func() {
				So(fresh, ShouldEqual, 100)
				So(d.Size(), ShouldEqual, 100)
			})
		})
	})
}
