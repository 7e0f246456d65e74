// Package generation defines the port through which the batch orchestrator
// drives an external image generation service.
//
// A Backend launches one Engine per session. The engine is shared by every
// task of that session and hands out isolated Workspaces, one per attempt.
// A workspace walks a prompt through Prepare, Submit, Await and Fetch; the
// caller owns step deadlines and the retry policy, so adapters only report
// what went wrong. Fragile, backend-specific behaviour stays behind this
// boundary.
package generation
