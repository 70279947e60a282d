// Package coalesce debounces bursts of change events into one summary.
//
// A Coalescer counts every event passed to Observe and (re)starts a quiet
// period timer. Once no event has been observed for the quiet period the
// summary callback receives the count and the most recent event, and the
// counter starts again from zero.
//
// The Coalescer only smooths notifications. It never sees or changes the
// collection state, so a summary that never fires (because Stop was called
// first) loses nothing but the notification.
//
//	c := coalesce.New(time.Second, func(s coalesce.Summary) {
//	    fmt.Printf("%d %s updated\n", s.Count, s.Resource)
//	})
//	defer c.Stop()
//	c.Observe(ev)
package coalesce
