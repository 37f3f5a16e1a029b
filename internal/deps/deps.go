package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Requirement names an external binary featureflow invokes.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports whether a requirement's binary can be executed. Command is
// the resolved path when the binary was found.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// CheckBinaries resolves each requirement's command through PATH (or as a
// path when it contains a separator) and checks that it is executable.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		results = append(results, check(req))
	}
	return results
}

func check(req Requirement) Status {
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(req.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return status
	}
	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		status.Detail = fmt.Sprintf("%s is not an executable file", resolved)
		return status
	}
	status.Command = resolved
	status.Available = true
	return status
}
