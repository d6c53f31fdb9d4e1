// Package source produces log lines for the CLI: from a followed file or
// from a reader such as stdin.
package source
