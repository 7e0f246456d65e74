// Package export bundles a completed session's images into a zip archive.
package export
