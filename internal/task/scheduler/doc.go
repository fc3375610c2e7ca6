// Package scheduler runs named jobs on fixed intervals.
//
// One loop goroutine owns the timing: it sleeps until the earliest job is due
// (bounded by the poll interval), collects every due job in (next run,
// registration) order and executes them either inline or through the task
// engine. A job never overlaps with itself. Failures are recorded per job and
// never stop the loop.
package scheduler
