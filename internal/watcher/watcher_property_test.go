//go:build property

package watcher

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDebouncerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("accepted events are at least one window apart", prop.ForAll(
		func(gaps []int) bool {
			d := NewDebouncer(DefaultDebounce)
			now := base
			var accepted []time.Time
			for _, gap := range gaps {
				now = now.Add(time.Duration(gap) * time.Millisecond)
				if d.Allow("doc.md", now) {
					accepted = append(accepted, now)
				}
			}
			for i := 1; i < len(accepted); i++ {
				if accepted[i].Sub(accepted[i-1]) < DefaultDebounce {
					return false
				}
			}
			return len(gaps) == 0 || len(accepted) >= 1
		},
		gen.SliceOf(gen.IntRange(0, 1500)),
	))

	properties.Property("events spaced beyond the window are never dropped", prop.ForAll(
		func(count int, extra int) bool {
			d := NewDebouncer(DefaultDebounce)
			now := base
			for i := 0; i < count; i++ {
				if !d.Allow("doc.md", now) {
					return false
				}
				now = now.Add(DefaultDebounce + time.Duration(extra)*time.Millisecond)
			}
			return true
		},
		gen.IntRange(1, 50),
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
