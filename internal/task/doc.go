// Package task runs a single prompt through the generation port. A Runner
// walks one attempt through its states (preparing, submitting the prompt,
// awaiting and downloading the result), stores the image, and retries with a
// fresh workspace until the attempt budget is spent. Every transition is
// reported through a ProgressFunc.
package task
