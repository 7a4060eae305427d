package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external program nfckeyboard relies on. When
// Alternatives is set the requirement is satisfied by the first of Command and
// Alternatives found on PATH.
type Requirement struct {
	Name         string
	Command      string
	Alternatives []string
	Description  string
	Optional     bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		candidates := append([]string{cmd}, req.Alternatives...)
		for _, candidate := range candidates {
			candidate = strings.TrimSpace(candidate)
			if candidate == "" {
				continue
			}
			if _, err := exec.LookPath(candidate); err == nil {
				status.Available = true
				status.Command = candidate
				break
			}
		}
		if !status.Available {
			status.Detail = fmt.Sprintf("binary %q not found", strings.Join(candidates, `" or "`))
		}
		results = append(results, status)
	}
	return results
}
