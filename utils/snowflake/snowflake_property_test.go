package snowflake

import (
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_IDsAreUniqueAndIncreasing(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("sequential ids strictly increase", prop.ForAll(
		func(count int) bool {
			g := MustNew(1)
			var last int64
			for i := range count {
				id, err := g.NextID()
				if err != nil || (i > 0 && id <= last) {
					return false
				}
				last = id
			}
			return true
		},
		gen.IntRange(100, 1000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_ConcurrentIDsAreUnique(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("ids generated concurrently are unique", prop.ForAll(
		func(goroutines int, perGoroutine int) bool {
			g := MustNew(3)
			ids := make(chan int64, goroutines*perGoroutine)

			var wg sync.WaitGroup
			for range goroutines {
				wg.Go(func() {
					for range perGoroutine {
						id, err := g.NextID()
						if err != nil {
							return
						}
						ids <- id
					}
				})
			}
			wg.Wait()
			close(ids)

			seen := make(map[int64]bool)
			for id := range ids {
				if seen[id] {
					return false
				}
				seen[id] = true
			}
			return len(seen) == goroutines*perGoroutine
		},
		gen.IntRange(5, 20),
		gen.IntRange(50, 200),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestProperty_WorkerIDRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("parse returns the generator's worker id", prop.ForAll(
		func(worker int64) bool {
			id, err := MustNew(worker).NextID()
			if err != nil {
				return false
			}
			_, parsed, _ := Parse(id)
			return parsed == worker
		},
		gen.Int64Range(0, MaxWorkerID),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
