// Package ciutil detects the execution environment and resolves environment
// variables that tests and tooling share, such as the archive database URL.
package ciutil
