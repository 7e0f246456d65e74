// Package session tracks batch sessions from submission to completion.
//
// A Registry owns every live session. Each session carries its own lock, so
// the many tasks of one batch can report progress without blocking other
// sessions, and readers always receive a deep-copied Snapshot. Status only
// moves forward: starting, processing, then complete or error.
//
// Finished sessions are kept for a configurable time-to-live and removed by
// Registry.Sweep, which a Sweeper runs on a cron schedule.
package session
