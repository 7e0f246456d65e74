// Package batch partitions a session's prompts into fixed-size batches and
// runs them one after another, each batch fanned out concurrently.
package batch
