package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"featureflow/internal/gate"
)

// writeJSON prints v as indented JSON on the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func printArtifacts(out io.Writer, refs []string) {
	for _, ref := range refs {
		fmt.Fprintf(out, "  + %s\n", ref)
	}
}

func printIssues(out io.Writer, issues []gate.Issue) {
	for _, issue := range issues {
		fmt.Fprintf(out, "  - %s\n", issue)
	}
}
