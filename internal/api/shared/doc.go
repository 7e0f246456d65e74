// Package shared holds HTTP helpers used by the api package and its
// middleware: trace IDs in the request context, JSON decoding with
// validation, and uniform error responses.
package shared
