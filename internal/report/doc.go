// Package report aggregates run reports into summaries for the CLI.
package report
